// Package expiry moves approved credentials past their expiry to expired and
// warns owners about credentials that expire soon.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"credlife/internal/audit"
	"credlife/internal/credential/lifecycle"
	"credlife/internal/credential/metrics"
	"credlife/internal/credential/models"
	"credlife/internal/notification"
	"credlife/internal/platform/tracer"
	id "credlife/pkg/domain"
)

const (
	DefaultWarningWindow = 30 * 24 * time.Hour
	DefaultInterval      = time.Hour
	defaultConcurrency   = 8
)

// Store is the slice of the credential store the scanner needs.
// ListApprovedExpiringBefore returns approved credentials expiring at or
// before horizon that are either due at now or not yet warned about.
type Store interface {
	ListApprovedExpiringBefore(ctx context.Context, now, horizon time.Time, limit int) ([]*models.Credential, error)
	UpdateStatus(ctx context.Context, c *models.Credential, expectedVersion int64) error
	MarkExpiryNotified(ctx context.Context, credentialID id.CredentialID, expectedVersion int64, at time.Time) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// OwnerRefresher recomputes and re-caches an owner's verification status.
type OwnerRefresher interface {
	RefreshOwner(ctx context.Context, owner models.OwnerRef, now time.Time) error
}

// Failure is a per-credential or per-owner error collected during a scan.
type Failure struct {
	CredentialID id.CredentialID
	OwnerID      id.OwnerID
	Stage        string
	Err          error
}

func (f Failure) Error() string {
	if f.CredentialID.IsNil() {
		return fmt.Sprintf("%s owner %s: %v", f.Stage, f.OwnerID, f.Err)
	}
	return fmt.Sprintf("%s credential %s: %v", f.Stage, f.CredentialID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result summarizes one scan.
type Result struct {
	Expired          []*models.Credential
	ExpiringSoon     []*models.Credential
	Failures         []Failure
	RecomputedOwners int
	Warnings         []string
}

// Err joins the collected failures, or returns nil.
func (r Result) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

type Scanner struct {
	store       Store
	auditor     AuditRecorder
	notifier    notification.Notifier
	refresher   OwnerRefresher
	window      time.Duration
	interval    time.Duration
	batchSize   int
	concurrency int
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	logger      *slog.Logger
}

type Option func(*Scanner)

// WithWarningWindow sets how far ahead credentials are reported as expiring soon.
func WithWarningWindow(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize caps how many credentials one scan loads. Zero means no cap.
func WithBatchSize(n int) Option {
	return func(s *Scanner) {
		if n >= 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds parallel owner recomputes.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Scanner) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(store Store, auditor AuditRecorder, notifier notification.Notifier, refresher OwnerRefresher, opts ...Option) *Scanner {
	s := &Scanner{
		store:       store,
		auditor:     auditor,
		notifier:    notifier,
		refresher:   refresher,
		window:      DefaultWarningWindow,
		interval:    DefaultInterval,
		concurrency: defaultConcurrency,
		tracer:      tracer.NewNoop(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start scans on every tick until ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.Scan(ctx, time.Now())
			if err != nil {
				s.logger.ErrorContext(ctx, "expiry scan failed", "error", err)
				continue
			}
			if len(res.Failures) > 0 {
				s.logger.WarnContext(ctx, "expiry scan finished with failures",
					"failures", len(res.Failures),
					"error", res.Err(),
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Scan expires every approved credential whose expiry is at or before now and
// reports, once per credential, those expiring within the warning window.
// Per-credential failures are collected in the result and never stop the
// scan; the returned error is set only when the candidate list cannot be read.
// Running Scan twice with the same now changes nothing the second time.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (res Result, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanExpiryScan)
	defer func() {
		span.SetAttributes(
			tracer.Int(tracer.AttrExpired, len(res.Expired)),
			tracer.Int(tracer.AttrExpiring, len(res.ExpiringSoon)),
			tracer.Int(tracer.AttrFailures, len(res.Failures)),
		)
		span.End(err)
		if s.metrics != nil {
			s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
			s.metrics.ScanExpired.Add(float64(len(res.Expired)))
			s.metrics.ScanExpiring.Add(float64(len(res.ExpiringSoon)))
			s.metrics.ScanFailures.Add(float64(len(res.Failures)))
		}
	}()

	candidates, err := s.store.ListApprovedExpiringBefore(ctx, now, now.Add(s.window), s.batchSize)
	if err != nil {
		return res, fmt.Errorf("list expiring credentials: %w", err)
	}

	owners := map[id.OwnerID]models.OwnerRef{}
	for _, c := range candidates {
		switch {
		case c.IsExpiredAt(now):
			if s.expire(ctx, c, now, &res) {
				owners[c.OwnerID] = c.Owner()
			}
		case c.ExpiryNotifiedAt == nil:
			s.warn(ctx, c, now, &res)
		}
	}

	s.recompute(ctx, owners, now, &res)

	s.logger.InfoContext(ctx, "expiry scan completed",
		"expired", len(res.Expired),
		"expiring_soon", len(res.ExpiringSoon),
		"failures", len(res.Failures),
		"recomputed_owners", res.RecomputedOwners,
	)
	return res, nil
}

func (s *Scanner) expire(ctx context.Context, c *models.Credential, now time.Time, res *Result) bool {
	fail := func(stage string, err error) bool {
		res.Failures = append(res.Failures, Failure{CredentialID: c.ID, OwnerID: c.OwnerID, Stage: stage, Err: err})
		return false
	}
	if err := lifecycle.ValidateTransition(c.Status, models.StatusExpired, id.RoleSystem); err != nil {
		return fail("validate", err)
	}

	expired := c.Clone()
	expired.Status = models.StatusExpired
	if err := s.store.UpdateStatus(ctx, expired, c.Version); err != nil {
		return fail("update", err)
	}
	res.Expired = append(res.Expired, expired)
	if s.metrics != nil {
		s.metrics.IncTransition(string(models.StatusApproved), string(models.StatusExpired))
	}

	entry := audit.ForTransition(expired, models.AuditActionExpired, c.Status, id.SystemActorID, id.RoleSystem, now, "")
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.warnf(ctx, res, "audit", "audit entry for expired credential %s not recorded: %v", c.ID, err)
	}
	if err := s.notifier.Notify(ctx, notification.ForCredential(notification.CredentialExpired, expired, now)); err != nil {
		s.warnf(ctx, res, "notification", "expiry notification for credential %s not delivered: %v", c.ID, err)
	}
	return true
}

// warn stages the expiring event before setting the notified flag, so a
// failed append leaves the credential to the next scan. A flag write lost
// after a successful append can repeat the warning once.
func (s *Scanner) warn(ctx context.Context, c *models.Credential, now time.Time, res *Result) {
	fail := func(stage string, err error) {
		res.Failures = append(res.Failures, Failure{CredentialID: c.ID, OwnerID: c.OwnerID, Stage: stage, Err: err})
	}
	notified := c.Clone()
	notified.ExpiryNotifiedAt = &now
	notified.Version++

	if err := s.notifier.Notify(ctx, notification.ForCredential(notification.CredentialExpiring, notified, now)); err != nil {
		if s.metrics != nil {
			s.metrics.IncDeliveryFailure("notification")
		}
		fail("notify", err)
		return
	}
	if err := s.store.MarkExpiryNotified(ctx, c.ID, c.Version, now); err != nil {
		fail("mark_notified", err)
		return
	}
	res.ExpiringSoon = append(res.ExpiringSoon, notified)
}

func (s *Scanner) recompute(ctx context.Context, owners map[id.OwnerID]models.OwnerRef, now time.Time, res *Result) {
	if len(owners) == 0 {
		return
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			err := s.refresher.RefreshOwner(ctx, owner, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, Failure{OwnerID: owner.ID, Stage: "recompute", Err: err})
				return nil
			}
			res.RecomputedOwners++
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scanner) warnf(ctx context.Context, res *Result, target, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	res.Warnings = append(res.Warnings, msg)
	s.logger.WarnContext(ctx, msg)
	if s.metrics != nil {
		s.metrics.IncDeliveryFailure(target)
	}
}
