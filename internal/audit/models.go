// Package audit records every credential transition in an append-only log.
package audit

import (
	"time"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

// Entry is an immutable record of one transition or admin action.
// CredentialID is nil for owner-level actions such as suspensions.
type Entry struct {
	ID           id.AuditEntryID
	CredentialID *id.CredentialID
	OwnerID      id.OwnerID
	Action       string
	OldStatus    models.Status
	NewStatus    models.Status
	ActorID      id.ActorID
	ActorRole    id.Role
	Timestamp    time.Time
	Reason       string
}

// ForTransition builds the entry for a credential status change.
func ForTransition(c *models.Credential, action string, oldStatus models.Status, actorID id.ActorID, role id.Role, at time.Time, reason string) Entry {
	credentialID := c.ID
	return Entry{
		CredentialID: &credentialID,
		OwnerID:      c.OwnerID,
		Action:       action,
		OldStatus:    oldStatus,
		NewStatus:    c.Status,
		ActorID:      actorID,
		ActorRole:    role,
		Timestamp:    at,
		Reason:       reason,
	}
}
