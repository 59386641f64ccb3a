// Package notification carries credential lifecycle events to the delivery collaborator.
package notification

import (
	"slices"
	"time"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

// EventType names a lifecycle event.
type EventType string

const (
	CredentialSubmitted EventType = "credential_submitted"
	CredentialApproved  EventType = "credential_approved"
	CredentialRejected  EventType = "credential_rejected"
	CredentialExpiring  EventType = "credential_expiring"
	CredentialExpired   EventType = "credential_expired"
	OwnerVerified       EventType = "owner_verified"
	OwnerSuspended      EventType = "owner_suspended"
	CredentialsMissing  EventType = "credentials_missing"
)

// Event is the payload handed to notifiers. CredentialID and Kind are empty
// for owner-level events. Kinds is only set on reminders.
type Event struct {
	Type         EventType     `json:"type"`
	OwnerID      string        `json:"owner_id"`
	CredentialID string        `json:"credential_id,omitempty"`
	Kind         models.Kind   `json:"kind,omitempty"`
	Kinds        []models.Kind `json:"kinds,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ForCredential builds a credential-scoped event.
func ForCredential(t EventType, c *models.Credential, at time.Time) Event {
	return Event{
		Type:         t,
		OwnerID:      c.OwnerID.String(),
		CredentialID: c.ID.String(),
		Kind:         c.Kind,
		Timestamp:    at,
	}
}

// ForOwner builds an owner-scoped event.
func ForOwner(t EventType, ownerID id.OwnerID, at time.Time) Event {
	return Event{Type: t, OwnerID: ownerID.String(), Timestamp: at}
}

// ForMissing builds a reminder listing the kinds the owner still has to upload.
func ForMissing(ownerID id.OwnerID, kinds []models.Kind, at time.Time) Event {
	return Event{Type: CredentialsMissing, OwnerID: ownerID.String(), Kinds: slices.Clone(kinds), Timestamp: at}
}
