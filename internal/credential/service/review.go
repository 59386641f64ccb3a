package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/lifecycle"
	"credlife/internal/credential/models"
	"credlife/internal/credential/store"
	"credlife/internal/notification"
	"credlife/internal/platform/tracer"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

type ReviewCommand struct {
	CredentialID id.CredentialID
	Actor        requestcontext.AuthenticatedActor
	Decision     models.Decision
	Reason       string
}

type ReviewResult struct {
	Credential *models.Credential
	Status     models.VerificationStatus
	// OwnerVerified is set when this decision moved the owner to verified.
	OwnerVerified bool
	Warnings      []string
}

// Review applies a reviewer decision to a pending credential. A lost version
// race is retried once against the freshly loaded record.
func (s *Service) Review(ctx context.Context, cmd ReviewCommand) (result *ReviewResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanReview,
		tracer.String(tracer.AttrCredentialID, cmd.CredentialID.String()),
		tracer.String(tracer.AttrDecision, string(cmd.Decision)),
	)
	defer func() {
		span.End(err)
		if s.metrics != nil {
			s.metrics.ObserveLatency("review", start)
		}
	}()

	if err := validateReview(cmd); err != nil {
		return nil, s.rejected("review", err)
	}

	now := requestcontext.Now(ctx)
	var (
		prev    *models.Credential
		updated *models.Credential
		before  models.VerificationStatus
	)
	for attempt := 0; ; attempt++ {
		prev, updated, before, err = s.applyDecision(ctx, cmd, now)
		if err == nil {
			break
		}
		if attempt == 0 && dErrors.HasCode(err, dErrors.CodeConcurrentModification) {
			if s.metrics != nil {
				s.metrics.ConcurrentRetries.Inc()
			}
			s.logger.InfoContext(ctx, "retrying review after concurrent modification",
				"credential_id", cmd.CredentialID.String(),
			)
			continue
		}
		return nil, s.rejected("review", err)
	}

	var w warnings
	action := models.AuditActionApproved
	event := notification.CredentialApproved
	if updated.Status == models.StatusRejected {
		action = models.AuditActionRejected
		event = notification.CredentialRejected
	}
	s.record(ctx, &w, audit.ForTransition(updated, action, prev.Status, cmd.Actor.ID, cmd.Actor.Role, now, cmd.Reason))
	s.notify(ctx, &w, notification.ForCredential(event, updated, now))

	status, err := s.refresh(ctx, updated.Owner(), now)
	if err != nil {
		s.deliveryFailed(ctx, &w, "status", err, "owner status not recomputed")
	}
	newlyVerified := err == nil && status.IsVerified() && !before.IsVerified()
	if newlyVerified {
		s.notify(ctx, &w, notification.ForOwner(notification.OwnerVerified, updated.OwnerID, now))
	}

	if s.metrics != nil {
		s.metrics.IncReview(string(cmd.Decision))
		s.metrics.IncTransition(string(prev.Status), string(updated.Status))
	}
	s.logger.InfoContext(ctx, "credential reviewed",
		"credential_id", updated.ID.String(),
		"owner_id", updated.OwnerID.String(),
		"decision", string(cmd.Decision),
		"reviewer_id", cmd.Actor.ID.String(),
		"owner_verified", newlyVerified,
		"request_id", requestcontext.RequestID(ctx),
	)

	return &ReviewResult{Credential: updated, Status: status, OwnerVerified: newlyVerified, Warnings: w}, nil
}

func validateReview(cmd ReviewCommand) error {
	if cmd.CredentialID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "credential ID required")
	}
	if cmd.Actor.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "reviewer identity required")
	}
	if !cmd.Decision.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "decision must be approve or reject")
	}
	if cmd.Decision == models.DecisionReject && strings.TrimSpace(cmd.Reason) == "" {
		return dErrors.New(dErrors.CodePolicyViolation, "a rejection requires a reason")
	}
	return nil
}

// applyDecision loads, validates and persists one review attempt. It returns
// the record as loaded, the record as stored, and the owner status before the change.
func (s *Service) applyDecision(ctx context.Context, cmd ReviewCommand, now time.Time) (*models.Credential, *models.Credential, models.VerificationStatus, error) {
	var before models.VerificationStatus

	current, err := s.store.Get(ctx, cmd.CredentialID)
	if err != nil {
		return nil, nil, before, translateStoreErr(err, "credential not found")
	}
	target := cmd.Decision.TargetStatus()
	if err := lifecycle.ValidateTransition(current.Status, target, cmd.Actor.Role); err != nil {
		return nil, nil, before, err
	}

	before, err = s.computeStatus(ctx, current.Owner(), now)
	if err != nil {
		return nil, nil, before, err
	}

	updated := current.Clone()
	updated.Status = target
	reviewedAt := now
	updated.ReviewedAt = &reviewedAt
	reviewer := cmd.Actor.ID
	updated.ReviewerID = &reviewer

	switch target {
	case models.StatusApproved:
		rule, err := s.policies.Lookup(current.OwnerKind, current.Kind)
		if err != nil {
			return nil, nil, before, err
		}
		updated.ExpiresAt = approvalExpiry(now, rule.Validity(), current.DocumentExpiresAt)
		updated.RejectionReason = ""
	case models.StatusRejected:
		updated.RejectionReason = strings.TrimSpace(cmd.Reason)
	}

	if err := s.store.UpdateStatus(ctx, updated, current.Version); err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			return nil, nil, before, dErrors.Wrap(err, dErrors.CodeConcurrentModification, "credential changed during review")
		}
		return nil, nil, before, translateStoreErr(err, "failed to store review")
	}
	return current, updated, before, nil
}

// approvalExpiry is reviewedAt plus the kind's validity, capped at the
// document's own expiry. Nil means the approval does not expire.
func approvalExpiry(reviewedAt time.Time, validity time.Duration, documentExpiresAt *time.Time) *time.Time {
	var expires *time.Time
	if validity > 0 {
		t := reviewedAt.Add(validity)
		expires = &t
	}
	if documentExpiresAt != nil && (expires == nil || documentExpiresAt.Before(*expires)) {
		t := *documentExpiresAt
		expires = &t
	}
	return expires
}
