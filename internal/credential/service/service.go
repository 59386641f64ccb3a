// Package service applies credential lifecycle operations: submission,
// review, expiry, suspension and status derivation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/cache"
	"credlife/internal/credential/metrics"
	"credlife/internal/credential/models"
	"credlife/internal/credential/policy"
	"credlife/internal/credential/store"
	"credlife/internal/credential/workers/expiry"
	"credlife/internal/filestore"
	"credlife/internal/notification"
	"credlife/internal/platform/tracer"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

// Store persists credentials.
// Error Contract:
//   - Get, FindActive, FindCurrent return store.ErrNotFound when no record matches
//   - Insert, Replace return store.ErrConflict when the single-active rule would break
//   - UpdateStatus, Replace, MarkExpiryNotified return store.ErrConcurrentModification
//     when the stored version differs from the expected one
type Store interface {
	Get(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	FindActive(ctx context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error)
	FindCurrent(ctx context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error)
	ListByOwner(ctx context.Context, ownerID id.OwnerID, filter models.Filter) ([]*models.Credential, error)
	ListPending(ctx context.Context, ownerKind models.OwnerKind, limit int) ([]*models.Credential, error)
	Insert(ctx context.Context, c *models.Credential) error
	UpdateStatus(ctx context.Context, c *models.Credential, expectedVersion int64) error
	Replace(ctx context.Context, prior *models.Credential, priorVersion int64, next *models.Credential) error
	ListApprovedExpiringBefore(ctx context.Context, now, horizon time.Time, limit int) ([]*models.Credential, error)
	MarkExpiryNotified(ctx context.Context, credentialID id.CredentialID, expectedVersion int64, at time.Time) error
}

// SuspensionStore persists admin overrides.
// Get and Delete return store.ErrNotFound for owners without a suspension;
// Put returns store.ErrConflict when one already exists.
type SuspensionStore interface {
	Get(ctx context.Context, ownerID id.OwnerID) (*models.Suspension, error)
	Put(ctx context.Context, suspension models.Suspension) error
	Delete(ctx context.Context, ownerID id.OwnerID) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
	History(ctx context.Context, credentialID id.CredentialID) ([]audit.Entry, error)
	OwnerHistory(ctx context.Context, ownerID id.OwnerID) ([]audit.Entry, error)
}

type Notifier interface {
	Notify(ctx context.Context, event notification.Event) error
}

// StatusCache returns cache.ErrMiss from Get when nothing is cached. Set
// returns cache.ErrStale, writing nothing, when the owner was invalidated
// since the given generation was read.
type StatusCache interface {
	Get(ctx context.Context, owner models.OwnerRef) (*models.VerificationStatus, error)
	Generation(ctx context.Context, ownerID id.OwnerID) (uint64, error)
	Set(ctx context.Context, status models.VerificationStatus, generation uint64, now time.Time) error
	Invalidate(ctx context.Context, ownerID id.OwnerID) error
}

// FileInspector reports the stored attributes of an uploaded file.
type FileInspector interface {
	Inspect(ctx context.Context, uri string) (*filestore.Object, error)
}

type DownloadSigner interface {
	DownloadURL(ctx context.Context, uri string) (string, time.Time, error)
}

type Option func(*Service)

// Service owns every status change of a credential.
type Service struct {
	store       Store
	suspensions SuspensionStore
	auditor     AuditRecorder
	notifier    Notifier
	policies    *policy.Set
	cache       StatusCache
	inspector   FileInspector
	signer      DownloadSigner
	tracer      tracer.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	scanOpts    []expiry.Option
	scanner     *expiry.Scanner
}

func New(store Store, suspensions SuspensionStore, auditor AuditRecorder, notifier Notifier, opts ...Option) *Service {
	svc := &Service{
		store:       store,
		suspensions: suspensions,
		auditor:     auditor,
		notifier:    notifier,
		policies:    policy.Defaults(),
		cache:       cache.Noop{},
		tracer:      tracer.NewNoop(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	scanOpts := append([]expiry.Option{
		expiry.WithLogger(svc.logger),
		expiry.WithTracer(svc.tracer),
		expiry.WithMetrics(svc.metrics),
	}, svc.scanOpts...)
	svc.scanner = expiry.New(store, auditor, notifier, svc, scanOpts...)
	return svc
}

func WithPolicies(p *policy.Set) Option {
	return func(s *Service) {
		if p != nil {
			s.policies = p
		}
	}
}

func WithCache(c StatusCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithInspector makes Submit check the stored object instead of the declared attributes.
func WithInspector(i FileInspector) Option {
	return func(s *Service) { s.inspector = i }
}

func WithDownloadSigner(d DownloadSigner) Option {
	return func(s *Service) { s.signer = d }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScannerOptions configures the expiry scanner built by New.
func WithScannerOptions(opts ...expiry.Option) Option {
	return func(s *Service) { s.scanOpts = append(s.scanOpts, opts...) }
}

// Scanner exposes the expiry scanner so callers can run it on a schedule.
func (s *Service) Scanner() *expiry.Scanner {
	return s.scanner
}

// Policies returns the active requirement configuration.
func (s *Service) Policies() *policy.Set {
	return s.policies
}

// warnings collects non-fatal delivery failures for an operation result.
type warnings []string

func (s *Service) deliveryFailed(ctx context.Context, w *warnings, target string, err error, msg string) {
	*w = append(*w, fmt.Sprintf("%s: %v", msg, err))
	s.logger.WarnContext(ctx, msg,
		"error", err,
		"target", target,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncDeliveryFailure(target)
	}
}

func (s *Service) record(ctx context.Context, w *warnings, entry audit.Entry) {
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.deliveryFailed(ctx, w, "audit", err, "audit entry not recorded")
	}
}

func (s *Service) notify(ctx context.Context, w *warnings, event notification.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.deliveryFailed(ctx, w, "notification", err, fmt.Sprintf("%s event not delivered", event.Type))
	}
}

// translateStoreErr maps store sentinels onto domain errors. It is the only
// place store errors become domain errors.
func translateStoreErr(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, store.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeDuplicateActive, msg)
	case errors.Is(err, store.ErrConcurrentModification):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodePersistence, msg)
	}
}

func (s *Service) rejected(operation string, err error) error {
	if s.metrics != nil && err != nil {
		s.metrics.IncRejected(operation, string(dErrors.CodeOf(err)))
	}
	return err
}
