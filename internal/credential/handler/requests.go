package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"credlife/internal/credential/models"
	"credlife/internal/credential/service"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	pkgstrings "credlife/pkg/platform/strings"
	"credlife/pkg/platform/validation"
	"credlife/pkg/requestcontext"
)

// FileRequest references an artifact already uploaded to file storage.
type FileRequest struct {
	URI       string `json:"uri" validate:"required,uri"`
	MimeType  string `json:"mime_type" validate:"omitempty,max=100"`
	SizeBytes int64  `json:"size_bytes" validate:"gte=0"`
}

// ExamResultRequest is the grader output attached to a certification exam.
type ExamResultRequest struct {
	GraderRef string    `json:"grader_ref" validate:"required,notblank"`
	Score     int       `json:"score" validate:"gte=0"`
	PassScore int       `json:"pass_score" validate:"gte=0"`
	Passed    bool      `json:"passed"`
	GradedAt  time.Time `json:"graded_at" validate:"required"`
}

// SubmitRequest is the body of a credential submission.
type SubmitRequest struct {
	Kind              string             `json:"kind" validate:"required,credkind"`
	File              FileRequest        `json:"file"`
	Metadata          map[string]string  `json:"metadata"`
	DocumentExpiresAt *time.Time         `json:"document_expires_at"`
	ExamResult        *ExamResultRequest `json:"exam_result"`
}

func (r *SubmitRequest) Normalize() {
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	r.File.URI = strings.TrimSpace(r.File.URI)
	r.File.MimeType = strings.ToLower(strings.TrimSpace(r.File.MimeType))
	if r.ExamResult != nil {
		r.ExamResult.GraderRef = strings.TrimSpace(r.ExamResult.GraderRef)
	}
}

func (r *SubmitRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if err := validation.CheckStringLength("file.uri", r.File.URI, validation.MaxFileURILength); err != nil {
		return err
	}
	if err := validation.CheckMetadata(r.Metadata); err != nil {
		return err
	}
	if r.ExamResult != nil {
		if err := validation.CheckStringLength("exam_result.grader_ref", r.ExamResult.GraderRef, validation.MaxGraderRefLength); err != nil {
			return err
		}
	}
	return nil
}

// ToCommand maps the request onto a submit command for owner.
func (r *SubmitRequest) ToCommand(owner models.OwnerRef) service.SubmitCommand {
	cmd := service.SubmitCommand{
		Owner: owner,
		Kind:  models.Kind(r.Kind),
		File: models.FileRef{
			URI:       r.File.URI,
			MimeType:  r.File.MimeType,
			SizeBytes: r.File.SizeBytes,
		},
		Metadata:          r.Metadata,
		DocumentExpiresAt: r.DocumentExpiresAt,
	}
	if r.ExamResult != nil {
		cmd.ExamResult = &models.ExamResult{
			GraderRef: r.ExamResult.GraderRef,
			Score:     r.ExamResult.Score,
			PassScore: r.ExamResult.PassScore,
			Passed:    r.ExamResult.Passed,
			GradedAt:  r.ExamResult.GradedAt.UTC(),
		}
	}
	return cmd
}

// ReviewRequest is a reviewer decision on a pending credential.
type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason"`
}

func (r *ReviewRequest) Normalize() {
	r.Decision = strings.ToLower(strings.TrimSpace(r.Decision))
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *ReviewRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if models.Decision(r.Decision) == models.DecisionReject && r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required when rejecting")
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

// SuspendRequest places an administrative hold on an owner.
type SuspendRequest struct {
	OwnerKind string `json:"owner_kind" validate:"required,ownerkind"`
	Reason    string `json:"reason" validate:"required,notblank"`
}

func (r *SuspendRequest) Normalize() {
	r.OwnerKind = strings.ToLower(strings.TrimSpace(r.OwnerKind))
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *SuspendRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

func parseOwner(r *http.Request) (models.OwnerRef, error) {
	kind, err := parseOwnerKind(chi.URLParam(r, "ownerKind"))
	if err != nil {
		return models.OwnerRef{}, err
	}
	ownerID, err := parseOwnerID(chi.URLParam(r, "ownerID"))
	if err != nil {
		return models.OwnerRef{}, err
	}
	return models.OwnerRef{ID: ownerID, Kind: kind}, nil
}

func parseOwnerKind(raw string) (models.OwnerKind, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if err := validation.Var("owner_kind", raw, "required,ownerkind"); err != nil {
		return "", err
	}
	return models.OwnerKind(raw), nil
}

func parseOwnerID(raw string) (id.OwnerID, error) {
	ownerID, err := id.ParseOwnerID(strings.TrimSpace(raw))
	if err != nil {
		return id.OwnerID{}, err
	}
	if ownerID.IsNil() {
		return id.OwnerID{}, dErrors.New(dErrors.CodeInvalidInput, "owner ID cannot be nil")
	}
	return ownerID, nil
}

func parseCredentialID(r *http.Request) (id.CredentialID, error) {
	return id.ParseCredentialID(strings.TrimSpace(chi.URLParam(r, "credentialID")))
}

// parseFilter reads repeated or comma-separated kind and status query values.
func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var filter models.Filter

	kinds := pkgstrings.SplitLower(q["kind"])
	if err := validation.CheckSliceCount("kind filters", len(kinds), validation.MaxFilterValues); err != nil {
		return filter, err
	}
	for _, k := range kinds {
		if err := validation.Var("kind", k, "credkind"); err != nil {
			return filter, err
		}
		filter.Kinds = append(filter.Kinds, models.Kind(k))
	}

	statuses := pkgstrings.SplitLower(q["status"])
	if err := validation.CheckSliceCount("status filters", len(statuses), validation.MaxFilterValues); err != nil {
		return filter, err
	}
	for _, s := range statuses {
		if err := validation.Var("status", s, "credstatus"); err != nil {
			return filter, err
		}
		filter.Statuses = append(filter.Statuses, models.Status(s))
	}

	if raw := q.Get("include_replaced"); raw != "" {
		switch strings.ToLower(raw) {
		case "true", "1":
			filter.IncludeReplaced = true
		case "false", "0":
		default:
			return filter, dErrors.New(dErrors.CodeValidation, "include_replaced must be a boolean")
		}
	}
	return filter, nil
}

// PendingQuery selects the review queue.
type PendingQuery struct {
	OwnerKind models.OwnerKind
	Limit     int
}

// parsePendingQuery reads status, owner_kind and limit. Only the pending
// status can be listed across owners.
func parsePendingQuery(r *http.Request) (PendingQuery, error) {
	q := r.URL.Query()
	var out PendingQuery

	if status := strings.ToLower(strings.TrimSpace(q.Get("status"))); status != "" && models.Status(status) != models.StatusPending {
		return out, dErrors.New(dErrors.CodeValidation, "only status=pending can be listed across owners")
	}
	if raw := q.Get("owner_kind"); raw != "" {
		kind, err := parseOwnerKind(raw)
		if err != nil {
			return out, err
		}
		out.OwnerKind = kind
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return out, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		out.Limit = limit
	}
	return out, nil
}

// requireSelf allows only the owner themselves to act.
func requireSelf(actor requestcontext.AuthenticatedActor, owner models.OwnerRef) error {
	if actor.Role != id.RoleOwner || id.OwnerID(actor.ID) != owner.ID {
		return dErrors.New(dErrors.CodeForbidden, "only the owner may submit credentials")
	}
	return nil
}

// requireSelfOrStaff allows the owner, reviewers, and admins.
func requireSelfOrStaff(actor requestcontext.AuthenticatedActor, ownerID id.OwnerID) error {
	if actor.Role.CanReview() {
		return nil
	}
	if actor.Role == id.RoleOwner && id.OwnerID(actor.ID) == ownerID {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "access to this owner is not permitted")
}
