package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"credlife/pkg/platform/outbox"
)

// Notifier delivers lifecycle events. Delivery failures are reported to the
// caller but never undo the transition that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// OutboxNotifier stages events in the outbox table for the Kafka worker. The
// append is its own statement, not part of the write that caused the event.
type OutboxNotifier struct {
	store outbox.Store
}

func NewOutboxNotifier(store outbox.Store) *OutboxNotifier {
	return &OutboxNotifier{store: store}
}

func (n *OutboxNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	entry := outbox.NewEntry("owner", event.OwnerID, string(event.Type), payload)
	entry.CreatedAt = event.Timestamp
	if err := n.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("stage %s event: %w", event.Type, err)
	}
	return nil
}

// LogNotifier writes events to the structured log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.InfoContext(ctx, "credential lifecycle event",
		"event_type", string(event.Type),
		"owner_id", event.OwnerID,
		"credential_id", event.CredentialID,
		"kind", string(event.Kind),
	)
	return nil
}

// Recorder keeps events in memory. Used by tests and the e2e harness.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of a single type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
