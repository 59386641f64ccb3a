package models

import "time"

// VerificationStatus is the derived view over an owner's credentials.
// It is computed on demand and never written back as a source of truth.
type VerificationStatus struct {
	OwnerID                string
	OwnerKind              OwnerKind
	OverallStatus          OverallStatus
	CompletionPercentage   int
	MissingKinds           []Kind
	NextExpiringCredential *Credential
	ComputedAt             time.Time
}

// IsVerified reports whether the owner may transact.
func (v VerificationStatus) IsVerified() bool {
	return v.OverallStatus == OverallVerified
}
