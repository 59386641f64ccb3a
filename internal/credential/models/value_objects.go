package models

import "slices"

// Status is the lifecycle state of a single credential.
type Status string

const (
	// StatusNone stands for "no record yet" when validating the first submission.
	StatusNone     Status = ""
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusReplaced Status = "replaced"
)

// Statuses lists every persisted status.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusReplaced}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusReplaced:
		return true
	}
	return false
}

// IsActive reports whether the status counts toward the single-active invariant.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved
}

func (s Status) String() string {
	if s == StatusNone {
		return "none"
	}
	return string(s)
}

// Kind is the type of artifact a credential represents.
type Kind string

const (
	KindIdentityDocument     Kind = "identity_document"
	KindDrivingLicense       Kind = "driving_license"
	KindInsuranceCertificate Kind = "insurance_certificate"
	KindVehicleRegistration  Kind = "vehicle_registration"
	KindCertificationExam    Kind = "certification_exam"
	KindCommercialContract   Kind = "commercial_contract"
	KindProofOfAddress       Kind = "proof_of_address"
	KindBusinessRegistration Kind = "business_registration"
)

// Kinds lists every recognised credential kind.
var Kinds = []Kind{
	KindIdentityDocument,
	KindDrivingLicense,
	KindInsuranceCertificate,
	KindVehicleRegistration,
	KindCertificationExam,
	KindCommercialContract,
	KindProofOfAddress,
	KindBusinessRegistration,
}

func (k Kind) IsValid() bool {
	return slices.Contains(Kinds, k)
}

func (k Kind) String() string { return string(k) }

// OwnerKind is the type of marketplace participant that must be verified.
type OwnerKind string

const (
	OwnerDeliverer OwnerKind = "deliverer"
	OwnerProvider  OwnerKind = "provider"
	OwnerMerchant  OwnerKind = "merchant"
)

var OwnerKinds = []OwnerKind{OwnerDeliverer, OwnerProvider, OwnerMerchant}

func (k OwnerKind) IsValid() bool {
	return k == OwnerDeliverer || k == OwnerProvider || k == OwnerMerchant
}

func (k OwnerKind) String() string { return string(k) }

// Decision is a reviewer verdict on a pending credential.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// TargetStatus maps a decision onto the status it requests.
func (d Decision) TargetStatus() Status {
	switch d {
	case DecisionApprove:
		return StatusApproved
	case DecisionReject:
		return StatusRejected
	}
	return StatusNone
}

// OverallStatus is the derived verification state of an owner.
type OverallStatus string

const (
	OverallNotStarted OverallStatus = "not_started"
	OverallInProgress OverallStatus = "in_progress"
	OverallVerified   OverallStatus = "verified"
	OverallRejected   OverallStatus = "rejected"
	OverallSuspended  OverallStatus = "suspended"
)
