package store

import (
	"context"
	"sync"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

// InMemorySuspensionStore keeps admin suspensions in memory.
type InMemorySuspensionStore struct {
	mu          sync.RWMutex
	suspensions map[id.OwnerID]models.Suspension
}

func NewInMemorySuspensions() *InMemorySuspensionStore {
	return &InMemorySuspensionStore{suspensions: make(map[id.OwnerID]models.Suspension)}
}

func (s *InMemorySuspensionStore) Get(_ context.Context, ownerID id.OwnerID) (*models.Suspension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sus, ok := s.suspensions[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sus, nil
}

func (s *InMemorySuspensionStore) Put(_ context.Context, suspension models.Suspension) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suspensions[suspension.OwnerID]; ok {
		return ErrConflict
	}
	s.suspensions[suspension.OwnerID] = suspension
	return nil
}

func (s *InMemorySuspensionStore) Delete(_ context.Context, ownerID id.OwnerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suspensions[ownerID]; !ok {
		return ErrNotFound
	}
	delete(s.suspensions, ownerID)
	return nil
}
