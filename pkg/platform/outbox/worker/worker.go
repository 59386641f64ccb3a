package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"credlife/internal/platform/kafka/producer"
	"credlife/pkg/platform/outbox"
	"credlife/pkg/platform/outbox/metrics"
)

// Publisher delivers a message to the broker. *producer.Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox and publishes pending entries.
type Worker struct {
	store        outbox.Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) { w.topic = topic }
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithRetention enables deletion of published entries older than d.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) { w.retention = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(store outbox.Store, pub Publisher, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:        store,
		publisher:    pub,
		topic:        "credlife.credential.events",
		batchSize:    100,
		pollInterval: 500 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop in a background goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			w.PollOnce(w.ctx)
		}
	}
}

// PollOnce fetches one batch and publishes it. It returns the number of
// entries marked processed.
func (w *Worker) PollOnce(ctx context.Context) int {
	start := time.Now()

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logError("failed to fetch outbox entries", "error", err)
		if w.metrics != nil {
			w.metrics.IncPublishFailures()
		}
		return 0
	}
	if len(entries) == 0 {
		w.cleanup(ctx)
		return 0
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
	}

	published := w.publishBatch(ctx, entries)

	if w.metrics != nil {
		w.metrics.ObservePollDuration(time.Since(start).Seconds())
		if pending, err := w.store.CountPending(ctx); err == nil {
			w.metrics.SetPendingDepth(pending)
		}
	}
	return published
}

func (w *Worker) publishBatch(ctx context.Context, entries []*outbox.Entry) int {
	published := 0
	for _, entry := range entries {
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logError("failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncPublishFailures()
			}
			continue
		}
		// A published but unmarked entry is re-sent on the next poll; consumers dedupe on the key.
		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now()); err != nil {
			w.logError("failed to mark entry as processed", "id", entry.ID, "error", err)
			continue
		}
		if w.metrics != nil {
			w.metrics.IncPublished()
		}
		published++
	}
	return published
}

func (w *Worker) publishEntry(ctx context.Context, entry *outbox.Entry) error {
	start := time.Now()
	msg := &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: map[string]string{
			"entry_id":       entry.ID.String(),
			"aggregate_type": entry.AggregateType,
			"event_type":     entry.EventType,
		},
	}
	if err := w.publisher.Produce(ctx, msg); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	}
	return nil
}

func (w *Worker) cleanup(ctx context.Context) {
	if w.retention <= 0 {
		return
	}
	n, err := w.store.DeleteProcessedBefore(ctx, time.Now().Add(-w.retention))
	if err != nil {
		w.logError("failed to delete processed outbox entries", "error", err)
		return
	}
	if n > 0 && w.logger != nil {
		w.logger.Debug("deleted processed outbox entries", "count", n)
	}
}

// drain publishes what is left during shutdown, bounded by a short timeout.
func (w *Worker) drain() {
	if w.logger != nil {
		w.logger.Info("draining outbox worker")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for ctx.Err() == nil {
		entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
		if err != nil {
			w.logError("failed to fetch entries during drain", "error", err)
			return
		}
		if len(entries) == 0 {
			return
		}
		if w.publishBatch(ctx, entries) == 0 {
			return
		}
	}
}

// Stop cancels the loop and waits for the drain to finish or ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) logError(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Error(msg, args...)
	}
}
