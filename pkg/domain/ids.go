// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "credlife/pkg/domain-errors"
)

// Distinct ID types: the compiler prevents passing an OwnerID where a CredentialID is expected.
type (
	OwnerID      uuid.UUID
	CredentialID uuid.UUID
	ActorID      uuid.UUID
	AuditEntryID uuid.UUID
)

// SystemActorID identifies automated actors such as the expiry scanner.
var SystemActorID = ActorID(uuid.Nil)

func NewOwnerID() OwnerID           { return OwnerID(uuid.New()) }
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs, token claims).

func ParseOwnerID(s string) (OwnerID, error) {
	id, err := parseUUID(s, "owner ID")
	return OwnerID(id), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	id, err := parseUUID(s, "credential ID")
	return CredentialID(id), err
}

func ParseActorID(s string) (ActorID, error) {
	id, err := parseUUID(s, "actor ID")
	return ActorID(id), err
}

func (id OwnerID) String() string      { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string      { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id OwnerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic. Nil UUIDs parse successfully;
// services reject them with IsNil so stores can still report not-found.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
