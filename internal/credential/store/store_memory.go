package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

// InMemoryStore keeps credentials in memory for tests and local runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[id.CredentialID]*models.Credential
}

// NewInMemory constructs an empty in-memory credential store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[id.CredentialID]*models.Credential)}
}

func (s *InMemoryStore) Get(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) FindActive(_ context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.findLocked(ownerID, kind, func(c *models.Credential) bool { return c.Status.IsActive() }, id.CredentialID{}); c != nil {
		return c.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) FindCurrent(_ context.Context, ownerID id.OwnerID, kind models.Kind) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.findLocked(ownerID, kind, func(c *models.Credential) bool { return c.Status != models.StatusReplaced }, id.CredentialID{}); c != nil {
		return c.Clone(), nil
	}
	return nil, ErrNotFound
}

// findLocked returns the most recently submitted match, skipping the given ID.
func (s *InMemoryStore) findLocked(ownerID id.OwnerID, kind models.Kind, match func(*models.Credential) bool, skip id.CredentialID) *models.Credential {
	var found *models.Credential
	for _, c := range s.credentials {
		if c.OwnerID != ownerID || c.Kind != kind || c.ID == skip || !match(c) {
			continue
		}
		if found == nil || c.SubmittedAt.After(found.SubmittedAt) {
			found = c
		}
	}
	return found
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.OwnerID, filter models.Filter) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, c := range s.credentials {
		if c.OwnerID == ownerID && filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *InMemoryStore) Insert(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[c.ID]; exists {
		return ErrConflict
	}
	if s.violatesSingleActive(c, id.CredentialID{}) {
		return ErrConflict
	}
	if c.Version == 0 {
		c.Version = 1
	}
	s.credentials[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, c *models.Credential, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(c.ID, expectedVersion); err != nil {
		return err
	}
	if s.violatesSingleActive(c, c.ID) {
		return ErrConflict
	}
	c.Version = expectedVersion + 1
	s.credentials[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) Replace(_ context.Context, prior *models.Credential, priorVersion int64, next *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(prior.ID, priorVersion); err != nil {
		return err
	}
	if _, exists := s.credentials[next.ID]; exists {
		return ErrConflict
	}
	// The prior record stops counting once replaced.
	if s.violatesSingleActive(next, prior.ID) {
		return ErrConflict
	}
	prior.Version = priorVersion + 1
	if next.Version == 0 {
		next.Version = 1
	}
	s.credentials[prior.ID] = prior.Clone()
	s.credentials[next.ID] = next.Clone()
	return nil
}

func (s *InMemoryStore) ListApprovedExpiringBefore(_ context.Context, now, horizon time.Time, limit int) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, c := range s.credentials {
		if c.Status != models.StatusApproved || c.ExpiresAt == nil || c.ExpiresAt.After(horizon) {
			continue
		}
		if c.ExpiryNotifiedAt != nil && c.ExpiresAt.After(now) {
			continue
		}
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Credential) int { return a.ExpiresAt.Compare(*b.ExpiresAt) })
	return truncate(out, limit), nil
}

func (s *InMemoryStore) ListPending(_ context.Context, ownerKind models.OwnerKind, limit int) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, c := range s.credentials {
		if c.Status == models.StatusPending && (ownerKind == "" || c.OwnerKind == ownerKind) {
			out = append(out, c.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b *models.Credential) int { return b.SubmittedAt.Compare(a.SubmittedAt) })
	return truncate(out, limit), nil
}

func (s *InMemoryStore) MarkExpiryNotified(_ context.Context, credentialID id.CredentialID, expectedVersion int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(credentialID, expectedVersion); err != nil {
		return err
	}
	stored := s.credentials[credentialID]
	notified := at
	stored.ExpiryNotifiedAt = &notified
	stored.Version++
	return nil
}

func (s *InMemoryStore) checkVersionLocked(credentialID id.CredentialID, expected int64) error {
	stored, ok := s.credentials[credentialID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expected {
		return ErrConcurrentModification
	}
	return nil
}

func (s *InMemoryStore) violatesSingleActive(c *models.Credential, skip id.CredentialID) bool {
	if !c.Status.IsActive() {
		return false
	}
	other := s.findLocked(c.OwnerID, c.Kind, func(o *models.Credential) bool { return o.Status.IsActive() }, skip)
	return other != nil && other.ID != c.ID
}

func sortBySubmission(cs []*models.Credential) {
	slices.SortStableFunc(cs, func(a, b *models.Credential) int { return a.SubmittedAt.Compare(b.SubmittedAt) })
}

func truncate(cs []*models.Credential, limit int) []*models.Credential {
	if limit > 0 && len(cs) > limit {
		return cs[:limit]
	}
	return cs
}
