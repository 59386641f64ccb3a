package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
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

type SubmitCommand struct {
	Owner             models.OwnerRef
	Kind              models.Kind
	File              models.FileRef
	Metadata          map[string]string
	DocumentExpiresAt *time.Time
	ExamResult        *models.ExamResult
}

type SubmitResult struct {
	Credential *models.Credential
	// Replaced is the prior record for the same kind, now in status replaced.
	Replaced *models.Credential
	Status   models.VerificationStatus
	Warnings []string
}

// Submit records a new pending credential. A previous record of the same
// kind is replaced atomically; resubmitting the file of a credential that is
// still pending is refused as a duplicate.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (result *SubmitResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanSubmit,
		tracer.String(tracer.AttrOwnerID, cmd.Owner.ID.String()),
		tracer.String(tracer.AttrOwnerKind, string(cmd.Owner.Kind)),
		tracer.String(tracer.AttrKind, string(cmd.Kind)),
	)
	defer func() {
		span.End(err)
		if s.metrics != nil {
			s.metrics.ObserveLatency("submit", start)
		}
	}()

	now := requestcontext.Now(ctx)
	cred, err := s.prepareSubmission(ctx, cmd, now)
	if err != nil {
		return nil, s.rejected("submit", err)
	}

	replaced, err := s.persistSubmission(ctx, cred)
	if err != nil {
		return nil, s.rejected("submit", err)
	}

	var w warnings
	owner := cred.Owner()
	actor := id.ActorID(owner.ID)
	if replaced != nil {
		s.record(ctx, &w, audit.ForTransition(replaced.Credential, models.AuditActionReplaced, replaced.prevStatus, actor, id.RoleOwner, now, ""))
	}
	s.record(ctx, &w, audit.ForTransition(cred, models.AuditActionSubmitted, models.StatusNone, actor, id.RoleOwner, now, ""))
	s.notify(ctx, &w, notification.ForCredential(notification.CredentialSubmitted, cred, now))

	status, err := s.refresh(ctx, owner, now)
	if err != nil {
		s.deliveryFailed(ctx, &w, "status", err, "owner status not recomputed")
	}

	if s.metrics != nil {
		s.metrics.IncSubmission(string(owner.Kind), string(cred.Kind))
		if replaced != nil {
			s.metrics.IncTransition(string(replaced.prevStatus), string(models.StatusReplaced))
		}
		s.metrics.IncTransition(models.StatusNone.String(), string(models.StatusPending))
	}
	s.logger.InfoContext(ctx, "credential submitted",
		"credential_id", cred.ID.String(),
		"owner_id", owner.ID.String(),
		"kind", string(cred.Kind),
		"replaced", replaced != nil,
		"request_id", requestcontext.RequestID(ctx),
	)

	result = &SubmitResult{Credential: cred, Status: status, Warnings: w}
	if replaced != nil {
		result.Replaced = replaced.Credential
	}
	return result, nil
}

func (s *Service) prepareSubmission(ctx context.Context, cmd SubmitCommand, now time.Time) (*models.Credential, error) {
	if cmd.Owner.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner ID required")
	}
	rule, err := s.policies.Lookup(cmd.Owner.Kind, cmd.Kind)
	if err != nil {
		return nil, err
	}

	file := cmd.File
	if s.inspector != nil {
		obj, err := s.inspector.Inspect(ctx, file.URI)
		if err != nil {
			return nil, err
		}
		file.SizeBytes = obj.SizeBytes
		if obj.ContentType != "" {
			file.MimeType = obj.ContentType
		}
	}
	if err := rule.CheckFile(file); err != nil {
		return nil, err
	}

	if cmd.Kind == models.KindCertificationExam && cmd.ExamResult == nil {
		return nil, dErrors.New(dErrors.CodePolicyViolation, "certification exam submissions require an exam result")
	}
	if cmd.DocumentExpiresAt != nil && !cmd.DocumentExpiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodePolicyViolation, "document is already expired")
	}
	if err := lifecycle.ValidateTransition(models.StatusNone, models.StatusPending, id.RoleOwner); err != nil {
		return nil, err
	}

	cred, err := models.NewCredential(id.NewCredentialID(), cmd.Owner, cmd.Kind, file, now)
	if err != nil {
		return nil, err
	}
	if len(cmd.Metadata) > 0 {
		cred.Metadata = maps.Clone(cmd.Metadata)
	}
	if cmd.DocumentExpiresAt != nil {
		t := *cmd.DocumentExpiresAt
		cred.DocumentExpiresAt = &t
	}
	if cmd.ExamResult != nil {
		exam := *cmd.ExamResult
		cred.ExamResult = &exam
	}
	return cred, nil
}

// replacedRecord is the prior credential after replacement plus the status
// it had before.
type replacedRecord struct {
	*models.Credential
	prevStatus models.Status
}

// currentRecord returns the record a new submission supersedes: the active
// one when it exists, else the latest rejected or expired record.
func (s *Service) currentRecord(ctx context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error) {
	active, err := s.store.FindActive(ctx, ownerID, kind)
	if !errors.Is(err, store.ErrNotFound) {
		return active, err
	}
	return s.store.FindCurrent(ctx, ownerID, kind)
}

func (s *Service) persistSubmission(ctx context.Context, cred *models.Credential) (*replacedRecord, error) {
	current, err := s.currentRecord(ctx, cred.OwnerID, cred.Kind)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.store.Insert(ctx, cred); err != nil {
			return nil, translateStoreErr(err, "an active credential of this kind already exists")
		}
		return nil, nil
	}
	if err != nil {
		return nil, translateStoreErr(err, "failed to load current credential")
	}

	if current.Status == models.StatusPending && current.File.URI == cred.File.URI {
		return nil, dErrors.New(dErrors.CodeDuplicateActive,
			fmt.Sprintf("credential %s with the same file is already pending review", current.ID))
	}
	if err := lifecycle.ValidateTransition(current.Status, models.StatusReplaced, id.RoleOwner); err != nil {
		return nil, err
	}

	prior := current.Clone()
	prior.Status = models.StatusReplaced
	prior.SupersededByID = &cred.ID
	priorID := current.ID
	cred.SupersedesID = &priorID

	if err := s.store.Replace(ctx, prior, current.Version, cred); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeConcurrentModification, "current credential changed during submission")
		}
		return nil, translateStoreErr(err, "failed to replace current credential")
	}
	return &replacedRecord{Credential: prior, prevStatus: current.Status}, nil
}
