package service

import (
	"context"
	"errors"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/aggregate"
	"credlife/internal/credential/cache"
	"credlife/internal/credential/models"
	"credlife/internal/credential/store"
	"credlife/internal/credential/workers/expiry"
	"credlife/internal/platform/tracer"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

// GetStatus returns the owner's verification status, served from the cache
// when a fresh entry exists.
func (s *Service) GetStatus(ctx context.Context, owner models.OwnerRef) (status models.VerificationStatus, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanStatus,
		tracer.String(tracer.AttrOwnerID, owner.ID.String()),
		tracer.String(tracer.AttrOwnerKind, string(owner.Kind)),
	)
	defer func() { span.End(err) }()

	if err := validateOwner(owner); err != nil {
		return status, err
	}

	cached, err := s.cache.Get(ctx, owner)
	switch {
	case err == nil:
		span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
		if s.metrics != nil {
			s.metrics.IncCache(true)
		}
		return *cached, nil
	case !errors.Is(err, cache.ErrMiss):
		s.logger.WarnContext(ctx, "status cache read failed", "error", err, "owner_id", owner.ID.String())
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))
	if s.metrics != nil {
		s.metrics.IncCache(false)
	}

	now := requestcontext.Now(ctx)
	gen, genErr := s.cache.Generation(ctx, owner.ID)
	if genErr != nil {
		s.logger.WarnContext(ctx, "status cache generation read failed", "error", genErr, "owner_id", owner.ID.String())
	}
	status, err = s.computeStatus(ctx, owner, now)
	if err != nil {
		return status, err
	}
	if genErr == nil {
		s.cacheStatus(ctx, status, gen, now)
	}
	return status, nil
}

// ListCredentials returns an owner's credentials ordered by submission time.
func (s *Service) ListCredentials(ctx context.Context, owner models.OwnerRef, filter models.Filter) ([]*models.Credential, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	for _, k := range filter.Kinds {
		if !k.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown credential kind "+string(k))
		}
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown status "+string(st))
		}
	}
	creds, err := s.store.ListByOwner(ctx, owner.ID, filter)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list credentials")
	}
	out := creds[:0]
	for _, c := range creds {
		if c.OwnerKind == owner.Kind {
			out = append(out, c)
		}
	}
	return out, nil
}

const (
	DefaultPendingLimit = 50
	MaxPendingLimit     = 200
)

// ListPending is the review queue: pending credentials across owners, newest
// first, optionally restricted to one owner kind.
func (s *Service) ListPending(ctx context.Context, ownerKind models.OwnerKind, limit int) ([]*models.Credential, error) {
	if ownerKind != "" && !ownerKind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown owner kind "+string(ownerKind))
	}
	switch {
	case limit <= 0:
		limit = DefaultPendingLimit
	case limit > MaxPendingLimit:
		limit = MaxPendingLimit
	}
	creds, err := s.store.ListPending(ctx, ownerKind, limit)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list pending credentials")
	}
	return creds, nil
}

// GetCredential loads a single credential.
func (s *Service) GetCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	c, err := s.store.Get(ctx, credentialID)
	if err != nil {
		return nil, translateStoreErr(err, "credential not found")
	}
	return c, nil
}

// History returns the audit trail of one credential in recording order.
func (s *Service) History(ctx context.Context, credentialID id.CredentialID) ([]audit.Entry, error) {
	if _, err := s.GetCredential(ctx, credentialID); err != nil {
		return nil, err
	}
	return s.auditor.History(ctx, credentialID)
}

// OwnerHistory returns every audit entry recorded for an owner, suspension
// changes included, in recording order.
func (s *Service) OwnerHistory(ctx context.Context, owner models.OwnerRef) ([]audit.Entry, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	return s.auditor.OwnerHistory(ctx, owner.ID)
}

// DownloadURL issues a short-lived link to the credential's file.
func (s *Service) DownloadURL(ctx context.Context, credentialID id.CredentialID) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, dErrors.New(dErrors.CodeNotFound, "file downloads are not configured")
	}
	c, err := s.GetCredential(ctx, credentialID)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.signer.DownloadURL(ctx, c.File.URI)
}

// RunExpiryScan runs the expiry scanner once at now.
func (s *Service) RunExpiryScan(ctx context.Context, now time.Time) (expiry.Result, error) {
	res, err := s.scanner.Scan(ctx, now)
	if err != nil {
		return res, translateStoreErr(err, "expiry scan failed")
	}
	return res, nil
}

// RefreshOwner drops the cached status and recomputes it. The expiry scanner
// calls it for every owner whose credentials it expired.
func (s *Service) RefreshOwner(ctx context.Context, owner models.OwnerRef, now time.Time) error {
	_, err := s.refresh(ctx, owner, now)
	return err
}

func (s *Service) refresh(ctx context.Context, owner models.OwnerRef, now time.Time) (models.VerificationStatus, error) {
	if err := s.cache.Invalidate(ctx, owner.ID); err != nil {
		s.logger.WarnContext(ctx, "status cache invalidation failed", "error", err, "owner_id", owner.ID.String())
	}
	gen, genErr := s.cache.Generation(ctx, owner.ID)
	status, err := s.computeStatus(ctx, owner, now)
	if err != nil {
		return status, err
	}
	if genErr == nil {
		s.cacheStatus(ctx, status, gen, now)
	}
	return status, nil
}

// cacheStatus stores a status computed after reading generation gen. A write
// that lost against a later invalidation is dropped.
func (s *Service) cacheStatus(ctx context.Context, status models.VerificationStatus, gen uint64, now time.Time) {
	err := s.cache.Set(ctx, status, gen, now)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStale):
		s.logger.DebugContext(ctx, "stale status not cached", "owner_id", status.OwnerID)
	default:
		s.logger.WarnContext(ctx, "status cache write failed", "error", err, "owner_id", status.OwnerID)
	}
}

func (s *Service) computeStatus(ctx context.Context, owner models.OwnerRef, now time.Time) (models.VerificationStatus, error) {
	creds, err := s.store.ListByOwner(ctx, owner.ID, models.Filter{})
	if err != nil {
		return models.VerificationStatus{}, translateStoreErr(err, "failed to load owner credentials")
	}
	suspended, err := s.isSuspended(ctx, owner.ID)
	if err != nil {
		return models.VerificationStatus{}, err
	}
	status := aggregate.ComputeStatus(owner, creds, s.policies.For(owner.Kind), now, suspended)
	if s.metrics != nil {
		s.metrics.IncOverallStatus(string(status.OverallStatus))
	}
	return status, nil
}

func (s *Service) isSuspended(ctx context.Context, ownerID id.OwnerID) (bool, error) {
	_, err := s.suspensions.Get(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translateStoreErr(err, "failed to load suspension")
	}
	return true, nil
}

func validateOwner(owner models.OwnerRef) error {
	if owner.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "owner ID required")
	}
	if !owner.Kind.IsValid() {
		return dErrors.New(dErrors.CodePolicyViolation, "unknown owner kind "+string(owner.Kind))
	}
	return nil
}
