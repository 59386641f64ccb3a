package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"credlife/pkg/platform/outbox"
)

// InMemory is an outbox store for tests and single-process runs.
type InMemory struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*outbox.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[uuid.UUID]*outbox.Entry)}
}

func (s *InMemory) Append(_ context.Context, entry *outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *InMemory) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range s.entries {
		if e.IsPending() {
			cp := *e
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *outbox.Entry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.IsPending() {
		return fmt.Errorf("outbox entry not found or already processed: %s", id)
	}
	at := processedAt
	e.ProcessedAt = &at
	return nil
}

func (s *InMemory) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, e := range s.entries {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}
