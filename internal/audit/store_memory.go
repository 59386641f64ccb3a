package audit

import (
	"context"
	"sync"

	id "credlife/pkg/domain"
)

// InMemoryStore keeps audit entries in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByCredential(_ context.Context, credentialID id.CredentialID) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.CredentialID != nil && *e.CredentialID == credentialID }), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.OwnerID) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.OwnerID == ownerID }), nil
}

// All returns every entry. Used by tests.
func (s *InMemoryStore) All() []Entry {
	return s.filter(func(Entry) bool { return true })
}

func (s *InMemoryStore) filter(keep func(Entry) bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
