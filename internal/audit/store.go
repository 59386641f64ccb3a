package audit

import (
	"context"

	id "credlife/pkg/domain"
)

// Store persists audit entries. Implementations only ever append.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByCredential(ctx context.Context, credentialID id.CredentialID) ([]Entry, error)
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]Entry, error)
}
