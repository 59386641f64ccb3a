package service

import (
	"context"
	"time"

	"credlife/internal/credential/models"
	"credlife/internal/credential/policy"
	"credlife/internal/notification"
	"credlife/pkg/requestcontext"
)

type ReminderResult struct {
	// Kinds lists the required kinds the owner has to upload or renew.
	Kinds    []models.Kind
	Sent     bool
	Warnings []string
}

// RemindMissing emits a credentials_missing event when required kinds have
// no usable record: never submitted, rejected, or expired. Pending records
// need no action from the owner. Nothing is sent when the list is empty.
func (s *Service) RemindMissing(ctx context.Context, owner models.OwnerRef) (*ReminderResult, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	creds, err := s.store.ListByOwner(ctx, owner.ID, models.Filter{})
	if err != nil {
		return nil, translateStoreErr(err, "failed to load owner credentials")
	}

	res := &ReminderResult{Kinds: outstandingKinds(s.policies.For(owner.Kind), owner, creds, now)}
	if len(res.Kinds) == 0 {
		return res, nil
	}
	var w warnings
	s.notify(ctx, &w, notification.ForMissing(owner.ID, res.Kinds, now))
	res.Sent = len(w) == 0
	res.Warnings = w

	s.logger.InfoContext(ctx, "missing credentials reminder",
		"owner_id", owner.ID.String(),
		"kinds", len(res.Kinds),
		"sent", res.Sent,
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, nil
}

func outstandingKinds(p policy.OwnerPolicy, owner models.OwnerRef, creds []*models.Credential, now time.Time) []models.Kind {
	current := map[models.Kind]*models.Credential{}
	for _, c := range creds {
		if c.OwnerKind != owner.Kind || c.Status == models.StatusReplaced {
			continue
		}
		if prev, ok := current[c.Kind]; !ok || c.SubmittedAt.After(prev.SubmittedAt) {
			current[c.Kind] = c
		}
	}
	out := []models.Kind{}
	for _, kind := range p.RequiredKinds() {
		c, ok := current[kind]
		if !ok || c.CanResubmit(now) {
			out = append(out, kind)
		}
	}
	return out
}
