package models

import (
	"maps"
	"slices"
	"time"

	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
)

// Audit actions recorded for credential transitions.
const (
	AuditActionSubmitted = "credential_submitted"
	AuditActionApproved  = "credential_approved"
	AuditActionRejected  = "credential_rejected"
	AuditActionExpired   = "credential_expired"
	AuditActionReplaced  = "credential_replaced"
	AuditActionSuspended = "owner_suspended"
	AuditActionLifted    = "owner_suspension_lifted"
)

// OwnerRef identifies the entity a credential belongs to.
type OwnerRef struct {
	ID   id.OwnerID
	Kind OwnerKind
}

// FileRef points at an uploaded artifact held by the file storage collaborator.
type FileRef struct {
	URI       string
	MimeType  string
	SizeBytes int64
}

// ExamResult is a score produced by an external grader. It is stored as received.
type ExamResult struct {
	GraderRef string
	Score     int
	PassScore int
	Passed    bool
	GradedAt  time.Time
}

// Credential is a single verifiable artifact: a document, certification record, or contract.
//
// At most one credential per (OwnerID, Kind) is pending or approved. Credentials
// are never deleted; superseded records move to StatusReplaced and keep the
// SupersededByID link.
type Credential struct {
	ID                id.CredentialID
	OwnerID           id.OwnerID
	OwnerKind         OwnerKind
	Kind              Kind
	Status            Status
	File              FileRef
	Metadata          map[string]string
	DocumentExpiresAt *time.Time
	ExamResult        *ExamResult
	SubmittedAt       time.Time
	ReviewedAt        *time.Time
	ExpiresAt         *time.Time
	ReviewerID        *id.ActorID
	RejectionReason   string
	SupersedesID      *id.CredentialID
	SupersededByID    *id.CredentialID
	ExpiryNotifiedAt  *time.Time
	Version           int64
}

// NewCredential creates a pending credential with invariant checks.
func NewCredential(credentialID id.CredentialID, owner OwnerRef, kind Kind, file FileRef, submittedAt time.Time) (*Credential, error) {
	if credentialID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariant, "credential ID required")
	}
	if owner.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariant, "owner ID required")
	}
	if !owner.Kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariant, "invalid owner kind")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariant, "invalid credential kind")
	}
	if file.URI == "" {
		return nil, dErrors.New(dErrors.CodeInvariant, "file reference required")
	}
	if submittedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariant, "submission time required")
	}
	return &Credential{
		ID:          credentialID,
		OwnerID:     owner.ID,
		OwnerKind:   owner.Kind,
		Kind:        kind,
		Status:      StatusPending,
		File:        file,
		Metadata:    map[string]string{},
		SubmittedAt: submittedAt,
		Version:     1,
	}, nil
}

// Owner returns the reference of the credential's owner.
func (c *Credential) Owner() OwnerRef {
	return OwnerRef{ID: c.OwnerID, Kind: c.OwnerKind}
}

// EffectiveStatus treats an approved credential whose expiry has passed as
// expired, even before the scanner has persisted the transition.
func (c *Credential) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusApproved && c.IsExpiredAt(now) {
		return StatusExpired
	}
	return c.Status
}

// IsExpiredAt reports whether the credential's expiry is at or before now.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// CanResubmit reports whether the owner is expected to upload a new version.
func (c *Credential) CanResubmit(now time.Time) bool {
	s := c.EffectiveStatus(now)
	return s == StatusRejected || s == StatusExpired
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Metadata = maps.Clone(c.Metadata)
	out.DocumentExpiresAt = cloneTime(c.DocumentExpiresAt)
	out.ReviewedAt = cloneTime(c.ReviewedAt)
	out.ExpiresAt = cloneTime(c.ExpiresAt)
	out.ExpiryNotifiedAt = cloneTime(c.ExpiryNotifiedAt)
	if c.ExamResult != nil {
		exam := *c.ExamResult
		out.ExamResult = &exam
	}
	if c.ReviewerID != nil {
		reviewer := *c.ReviewerID
		out.ReviewerID = &reviewer
	}
	if c.SupersedesID != nil {
		prev := *c.SupersedesID
		out.SupersedesID = &prev
	}
	if c.SupersededByID != nil {
		next := *c.SupersededByID
		out.SupersededByID = &next
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Filter narrows ListByOwner results. Zero value lists every non-replaced credential.
type Filter struct {
	Kinds           []Kind
	Statuses        []Status
	IncludeReplaced bool
}

// Matches reports whether a credential passes the filter.
func (f Filter) Matches(c *Credential) bool {
	if !f.IncludeReplaced && c.Status == StatusReplaced && !slices.Contains(f.Statuses, StatusReplaced) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, c.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
		return false
	}
	return true
}

// Suspension is an admin override that forces an owner's overall status to suspended.
type Suspension struct {
	OwnerID     id.OwnerID
	Reason      string
	SuspendedBy id.ActorID
	SuspendedAt time.Time
}
