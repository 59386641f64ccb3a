package cache

import (
	"context"
	"sync"
	"time"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

type memoryEntry struct {
	status    models.VerificationStatus
	expiresAt time.Time
}

// InMemory is a process-local cache for single-instance deployments and tests.
type InMemory struct {
	mu          sync.Mutex
	ttl         time.Duration
	entries     map[string]memoryEntry
	generations map[string]uint64
	clock       func() time.Time
}

func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{
		ttl:         ttl,
		entries:     map[string]memoryEntry{},
		generations: map[string]uint64{},
		clock:       time.Now,
	}
}

func (c *InMemory) Get(_ context.Context, owner models.OwnerRef) (*models.VerificationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(owner.ID.String(), owner.Kind)
	e, ok := c.entries[k]
	if !ok {
		return nil, ErrMiss
	}
	if !c.clock().Before(e.expiresAt) {
		delete(c.entries, k)
		return nil, ErrMiss
	}
	status := e.status
	return &status, nil
}

func (c *InMemory) Generation(_ context.Context, ownerID id.OwnerID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[ownerID.String()], nil
}

func (c *InMemory) Set(_ context.Context, status models.VerificationStatus, generation uint64, now time.Time) error {
	ttl := ttlFor(status, c.ttl, now)
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[status.OwnerID] != generation {
		return ErrStale
	}
	c.entries[key(status.OwnerID, status.OwnerKind)] = memoryEntry{status: status, expiresAt: c.clock().Add(ttl)}
	return nil
}

func (c *InMemory) Invalidate(_ context.Context, ownerID id.OwnerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ownerID.String()]++
	for _, k := range ownerKeys(ownerID) {
		delete(c.entries, k)
	}
	return nil
}

// Noop never caches.
type Noop struct{}

func (Noop) Get(context.Context, models.OwnerRef) (*models.VerificationStatus, error) {
	return nil, ErrMiss
}

func (Noop) Generation(context.Context, id.OwnerID) (uint64, error) { return 0, nil }

func (Noop) Set(context.Context, models.VerificationStatus, uint64, time.Time) error { return nil }

func (Noop) Invalidate(context.Context, id.OwnerID) error { return nil }
