package handler

import (
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/models"
	"credlife/internal/credential/workers/expiry"
)

type ExamResultResponse struct {
	GraderRef string    `json:"grader_ref"`
	Score     int       `json:"score"`
	PassScore int       `json:"pass_score"`
	Passed    bool      `json:"passed"`
	GradedAt  time.Time `json:"graded_at"`
}

type FileResponse struct {
	URI       string `json:"uri"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

type CredentialResponse struct {
	ID                string              `json:"id"`
	OwnerID           string              `json:"owner_id"`
	OwnerKind         string              `json:"owner_kind"`
	Kind              string              `json:"kind"`
	Status            string              `json:"status"`
	File              FileResponse        `json:"file"`
	Metadata          map[string]string   `json:"metadata,omitempty"`
	DocumentExpiresAt *time.Time          `json:"document_expires_at,omitempty"`
	ExamResult        *ExamResultResponse `json:"exam_result,omitempty"`
	SubmittedAt       time.Time           `json:"submitted_at"`
	ReviewedAt        *time.Time          `json:"reviewed_at,omitempty"`
	ExpiresAt         *time.Time          `json:"expires_at,omitempty"`
	ReviewerID        string              `json:"reviewer_id,omitempty"`
	RejectionReason   string              `json:"rejection_reason,omitempty"`
	SupersedesID      string              `json:"supersedes_id,omitempty"`
	SupersededByID    string              `json:"superseded_by_id,omitempty"`
}

type StatusResponse struct {
	OwnerID                string              `json:"owner_id"`
	OwnerKind              string              `json:"owner_kind"`
	OverallStatus          string              `json:"overall_status"`
	CompletionPercentage   int                 `json:"completion_percentage"`
	MissingKinds           []string            `json:"missing_kinds"`
	NextExpiringCredential *CredentialResponse `json:"next_expiring_credential,omitempty"`
	ComputedAt             time.Time           `json:"computed_at"`
}

type SubmitResponse struct {
	Credential CredentialResponse `json:"credential"`
	ReplacedID string             `json:"replaced_id,omitempty"`
	Status     StatusResponse     `json:"status"`
	Warnings   []string           `json:"warnings,omitempty"`
}

type ReviewResponse struct {
	Credential    CredentialResponse `json:"credential"`
	Status        StatusResponse     `json:"status"`
	OwnerVerified bool               `json:"owner_verified"`
	Warnings      []string           `json:"warnings,omitempty"`
}

type ListResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
}

type AuditEntryResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

type HistoryResponse struct {
	CredentialID string               `json:"credential_id"`
	Entries      []AuditEntryResponse `json:"entries"`
}

type OwnerHistoryResponse struct {
	OwnerID string               `json:"owner_id"`
	Entries []AuditEntryResponse `json:"entries"`
}

type ReminderResponse struct {
	Kinds    []string `json:"kinds"`
	Sent     bool     `json:"sent"`
	Warnings []string `json:"warnings,omitempty"`
}

type DownloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SuspensionResponse struct {
	Status   StatusResponse `json:"status"`
	Warnings []string       `json:"warnings,omitempty"`
}

type ScanFailureResponse struct {
	CredentialID string `json:"credential_id,omitempty"`
	OwnerID      string `json:"owner_id,omitempty"`
	Stage        string `json:"stage"`
	Error        string `json:"error"`
}

type ScanResponse struct {
	Expired          []string              `json:"expired"`
	ExpiringSoon     []string              `json:"expiring_soon"`
	RecomputedOwners int                   `json:"recomputed_owners"`
	Failures         []ScanFailureResponse `json:"failures,omitempty"`
	Warnings         []string              `json:"warnings,omitempty"`
}

func toCredentialResponse(c *models.Credential) CredentialResponse {
	resp := CredentialResponse{
		ID:        c.ID.String(),
		OwnerID:   c.OwnerID.String(),
		OwnerKind: string(c.OwnerKind),
		Kind:      string(c.Kind),
		Status:    string(c.Status),
		File: FileResponse{
			URI:       c.File.URI,
			MimeType:  c.File.MimeType,
			SizeBytes: c.File.SizeBytes,
		},
		Metadata:          c.Metadata,
		DocumentExpiresAt: c.DocumentExpiresAt,
		SubmittedAt:       c.SubmittedAt,
		ReviewedAt:        c.ReviewedAt,
		ExpiresAt:         c.ExpiresAt,
		RejectionReason:   c.RejectionReason,
	}
	if c.ExamResult != nil {
		resp.ExamResult = &ExamResultResponse{
			GraderRef: c.ExamResult.GraderRef,
			Score:     c.ExamResult.Score,
			PassScore: c.ExamResult.PassScore,
			Passed:    c.ExamResult.Passed,
			GradedAt:  c.ExamResult.GradedAt,
		}
	}
	if c.ReviewerID != nil {
		resp.ReviewerID = c.ReviewerID.String()
	}
	if c.SupersedesID != nil {
		resp.SupersedesID = c.SupersedesID.String()
	}
	if c.SupersededByID != nil {
		resp.SupersededByID = c.SupersededByID.String()
	}
	return resp
}

func toStatusResponse(s models.VerificationStatus) StatusResponse {
	resp := StatusResponse{
		OwnerID:              s.OwnerID,
		OwnerKind:            string(s.OwnerKind),
		OverallStatus:        string(s.OverallStatus),
		CompletionPercentage: s.CompletionPercentage,
		MissingKinds:         make([]string, 0, len(s.MissingKinds)),
		ComputedAt:           s.ComputedAt,
	}
	for _, k := range s.MissingKinds {
		resp.MissingKinds = append(resp.MissingKinds, string(k))
	}
	if s.NextExpiringCredential != nil {
		next := toCredentialResponse(s.NextExpiringCredential)
		resp.NextExpiringCredential = &next
	}
	return resp
}

func toAuditEntryResponse(e audit.Entry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID.String(),
		Action:    e.Action,
		OldStatus: e.OldStatus.String(),
		NewStatus: e.NewStatus.String(),
		ActorID:   e.ActorID.String(),
		ActorRole: string(e.ActorRole),
		Timestamp: e.Timestamp,
		Reason:    e.Reason,
	}
}

func toScanResponse(r expiry.Result) ScanResponse {
	resp := ScanResponse{
		Expired:          make([]string, 0, len(r.Expired)),
		ExpiringSoon:     make([]string, 0, len(r.ExpiringSoon)),
		RecomputedOwners: r.RecomputedOwners,
		Warnings:         r.Warnings,
	}
	for _, c := range r.Expired {
		resp.Expired = append(resp.Expired, c.ID.String())
	}
	for _, c := range r.ExpiringSoon {
		resp.ExpiringSoon = append(resp.ExpiringSoon, c.ID.String())
	}
	for _, f := range r.Failures {
		fr := ScanFailureResponse{Stage: f.Stage, Error: f.Err.Error()}
		if !f.CredentialID.IsNil() {
			fr.CredentialID = f.CredentialID.String()
		}
		if !f.OwnerID.IsNil() {
			fr.OwnerID = f.OwnerID.String()
		}
		resp.Failures = append(resp.Failures, fr)
	}
	return resp
}
