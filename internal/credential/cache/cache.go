// Package cache holds computed verification statuses between mutations.
//
// Entries are keyed by owner and owner kind. Every mutation of an owner's
// credentials or suspension invalidates its entries, and an entry never
// outlives the owner's next credential expiry.
//
// Each owner carries a generation that Invalidate bumps. Callers read the
// generation before loading credentials and pass it to Set, which drops the
// write if an invalidation happened in between.
package cache

import (
	"errors"
	"time"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

var (
	// ErrMiss is returned by Get when no entry is cached.
	ErrMiss = errors.New("status cache miss")
	// ErrStale is returned by Set when the owner was invalidated after the
	// caller read its generation. Nothing is written.
	ErrStale = errors.New("status computed before last invalidation")
)

const (
	keyPrefix = "credlife:status:"
	genPrefix = "credlife:status-gen:"
)

func genKey(ownerID string) string {
	return genPrefix + ownerID
}

func key(ownerID string, ownerKind models.OwnerKind) string {
	return keyPrefix + ownerID + ":" + string(ownerKind)
}

// ownerKeys lists every key an owner may occupy.
func ownerKeys(ownerID id.OwnerID) []string {
	keys := make([]string, 0, len(models.OwnerKinds))
	for _, k := range models.OwnerKinds {
		keys = append(keys, key(ownerID.String(), k))
	}
	return keys
}

// ttlFor caps ttl at the time left until the next credential expiry.
// A non-positive result means the status must not be cached.
func ttlFor(status models.VerificationStatus, ttl time.Duration, now time.Time) time.Duration {
	next := status.NextExpiringCredential
	if next != nil && next.ExpiresAt != nil {
		if left := next.ExpiresAt.Sub(now); left < ttl {
			return left
		}
	}
	return ttl
}
