package audit

import (
	"context"
	"log/slog"
	"time"

	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
	"credlife/pkg/requestcontext"
)

// Recorder appends audit entries synchronously. Callers decide what a failure
// means; the lifecycle service treats it as a warning.
type Recorder struct {
	store   Store
	metrics *Metrics
	logger  *slog.Logger
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

func WithMetrics(m *Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record assigns an ID and timestamp when missing and persists the entry.
// Failures are returned with code persistence_error.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == (id.AuditEntryID{}) {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}

	start := time.Now()
	err := r.store.Append(ctx, entry)
	if r.metrics != nil {
		r.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.PersistFailures.Inc()
		}
		r.logger.ErrorContext(ctx, "failed to persist audit entry",
			"error", err,
			"action", entry.Action,
			"owner_id", entry.OwnerID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodePersistence, "record audit entry")
	}
	if r.metrics != nil {
		r.metrics.Recorded.Inc()
	}
	return nil
}

// History returns the audit trail of a credential in recording order.
func (r *Recorder) History(ctx context.Context, credentialID id.CredentialID) ([]Entry, error) {
	entries, err := r.store.ListByCredential(ctx, credentialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "list audit entries")
	}
	return entries, nil
}

// OwnerHistory returns every entry recorded for an owner.
func (r *Recorder) OwnerHistory(ctx context.Context, ownerID id.OwnerID) ([]Entry, error) {
	entries, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "list audit entries")
	}
	return entries, nil
}
