// Package aggregate derives an owner's verification status from its credentials.
package aggregate

import (
	"time"

	"credlife/internal/credential/models"
	"credlife/internal/credential/policy"
)

// ComputeStatus is the only place an owner's overall status is decided.
// Credentials of other owners are ignored. A suspended owner is reported as
// suspended whatever its credentials say.
func ComputeStatus(owner models.OwnerRef, credentials []*models.Credential, p policy.OwnerPolicy, now time.Time, suspended bool) models.VerificationStatus {
	current := map[models.Kind]*models.Credential{}
	var owned int
	var next *models.Credential

	for _, c := range credentials {
		if c == nil || c.OwnerID != owner.ID {
			continue
		}
		owned++
		if c.Status == models.StatusReplaced {
			continue
		}
		// There is at most one non-replaced record per kind; the latest wins
		// if a store ever hands back more.
		if prev, ok := current[c.Kind]; !ok || c.SubmittedAt.After(prev.SubmittedAt) {
			current[c.Kind] = c
		}
		if c.EffectiveStatus(now) == models.StatusApproved && c.ExpiresAt != nil {
			if next == nil || c.ExpiresAt.Before(*next.ExpiresAt) {
				next = c
			}
		}
	}

	required := p.RequiredKinds()
	var approved int
	var missing []models.Kind
	rejected := false
	for _, kind := range required {
		c, ok := current[kind]
		if !ok {
			missing = append(missing, kind)
			continue
		}
		switch c.EffectiveStatus(now) {
		case models.StatusApproved:
			approved++
		case models.StatusRejected:
			rejected = true
			missing = append(missing, kind)
		}
	}

	pct := 100
	if len(required) > 0 {
		pct = approved * 100 / len(required)
	}

	status := models.VerificationStatus{
		OwnerID:                owner.ID.String(),
		OwnerKind:              owner.Kind,
		CompletionPercentage:   pct,
		MissingKinds:           missing,
		NextExpiringCredential: next.Clone(),
		ComputedAt:             now,
	}

	switch {
	case suspended:
		status.OverallStatus = models.OverallSuspended
	case pct == 100:
		status.OverallStatus = models.OverallVerified
	case rejected:
		status.OverallStatus = models.OverallRejected
	case owned > 0:
		status.OverallStatus = models.OverallInProgress
	default:
		status.OverallStatus = models.OverallNotStarted
	}
	return status
}
