package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/models"
	"credlife/internal/credential/store"
	"credlife/internal/notification"
	"credlife/internal/platform/tracer"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

type SuspendCommand struct {
	Owner  models.OwnerRef
	Actor  requestcontext.AuthenticatedActor
	Reason string
}

type LiftCommand struct {
	Owner models.OwnerRef
	Actor requestcontext.AuthenticatedActor
}

type SuspensionResult struct {
	Status   models.VerificationStatus
	Warnings []string
}

// Suspend forces the owner's overall status to suspended until lifted.
// Credentials are left untouched.
func (s *Service) Suspend(ctx context.Context, cmd SuspendCommand) (result *SuspensionResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSuspend, tracer.String(tracer.AttrOwnerID, cmd.Owner.ID.String()))
	defer func() { span.End(err) }()

	if err := requireAdmin(cmd.Actor); err != nil {
		return nil, s.rejected("suspend", err)
	}
	if err := validateOwner(cmd.Owner); err != nil {
		return nil, s.rejected("suspend", err)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, s.rejected("suspend", dErrors.New(dErrors.CodeValidation, "a suspension requires a reason"))
	}

	now := requestcontext.Now(ctx)
	err = s.suspensions.Put(ctx, models.Suspension{
		OwnerID:     cmd.Owner.ID,
		Reason:      reason,
		SuspendedBy: cmd.Actor.ID,
		SuspendedAt: now,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, s.rejected("suspend", dErrors.Wrap(err, dErrors.CodeConflict, "owner is already suspended"))
	}
	if err != nil {
		return nil, translateStoreErr(err, "failed to store suspension")
	}

	var w warnings
	s.record(ctx, &w, ownerEntry(cmd.Owner.ID, models.AuditActionSuspended, cmd.Actor, now, reason))
	s.notify(ctx, &w, notification.ForOwner(notification.OwnerSuspended, cmd.Owner.ID, now))

	status, err := s.refresh(ctx, cmd.Owner, now)
	if err != nil {
		s.deliveryFailed(ctx, &w, "status", err, "owner status not recomputed")
	}
	s.logger.InfoContext(ctx, "owner suspended",
		"owner_id", cmd.Owner.ID.String(),
		"admin_id", cmd.Actor.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &SuspensionResult{Status: status, Warnings: w}, nil
}

// Lift removes a suspension. An owner whose credentials are complete becomes
// verified again and an owner_verified event is emitted.
func (s *Service) Lift(ctx context.Context, cmd LiftCommand) (result *SuspensionResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLift, tracer.String(tracer.AttrOwnerID, cmd.Owner.ID.String()))
	defer func() { span.End(err) }()

	if err := requireAdmin(cmd.Actor); err != nil {
		return nil, s.rejected("lift", err)
	}
	if err := validateOwner(cmd.Owner); err != nil {
		return nil, s.rejected("lift", err)
	}

	now := requestcontext.Now(ctx)
	if err := s.suspensions.Delete(ctx, cmd.Owner.ID); err != nil {
		return nil, s.rejected("lift", translateStoreErr(err, "owner is not suspended"))
	}

	var w warnings
	s.record(ctx, &w, ownerEntry(cmd.Owner.ID, models.AuditActionLifted, cmd.Actor, now, ""))

	status, err := s.refresh(ctx, cmd.Owner, now)
	if err != nil {
		s.deliveryFailed(ctx, &w, "status", err, "owner status not recomputed")
	} else if status.IsVerified() {
		s.notify(ctx, &w, notification.ForOwner(notification.OwnerVerified, cmd.Owner.ID, now))
	}
	s.logger.InfoContext(ctx, "owner suspension lifted",
		"owner_id", cmd.Owner.ID.String(),
		"admin_id", cmd.Actor.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &SuspensionResult{Status: status, Warnings: w}, nil
}

func requireAdmin(actor requestcontext.AuthenticatedActor) error {
	if actor.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "admin identity required")
	}
	if actor.Role != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "only admins may change suspensions")
	}
	return nil
}

func ownerEntry(ownerID id.OwnerID, action string, actor requestcontext.AuthenticatedActor, at time.Time, reason string) audit.Entry {
	return audit.Entry{
		OwnerID:   ownerID,
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Timestamp: at,
		Reason:    reason,
	}
}
