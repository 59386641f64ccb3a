package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

type statusCache interface {
	Get(ctx context.Context, owner models.OwnerRef) (*models.VerificationStatus, error)
	Generation(ctx context.Context, ownerID id.OwnerID) (uint64, error)
	Set(ctx context.Context, status models.VerificationStatus, generation uint64, now time.Time) error
	Invalidate(ctx context.Context, ownerID id.OwnerID) error
}

// cacheContract runs against every implementation.
type cacheContract struct {
	suite.Suite
	newCache func(ttl time.Duration) statusCache
	owner    models.OwnerRef
	now      time.Time
}

func (s *cacheContract) SetupTest() {
	s.owner = models.OwnerRef{ID: id.NewOwnerID(), Kind: models.OwnerDeliverer}
	s.now = time.Now()
}

func (s *cacheContract) status(overall models.OverallStatus) models.VerificationStatus {
	return models.VerificationStatus{
		OwnerID:              s.owner.ID.String(),
		OwnerKind:            s.owner.Kind,
		OverallStatus:        overall,
		CompletionPercentage: 50,
		MissingKinds:         []models.Kind{models.KindDrivingLicense},
		ComputedAt:           s.now.UTC().Truncate(time.Millisecond),
	}
}

func (s *cacheContract) gen(c statusCache) uint64 {
	g, err := c.Generation(context.Background(), s.owner.ID)
	s.Require().NoError(err)
	return g
}

func (s *cacheContract) TestMissThenHit() {
	ctx := context.Background()
	c := s.newCache(time.Minute)

	_, err := c.Get(ctx, s.owner)
	s.ErrorIs(err, ErrMiss)

	s.Require().NoError(c.Set(ctx, s.status(models.OverallInProgress), s.gen(c), s.now))
	got, err := c.Get(ctx, s.owner)
	s.Require().NoError(err)
	s.Equal(models.OverallInProgress, got.OverallStatus)
	s.Equal(50, got.CompletionPercentage)
	s.Equal([]models.Kind{models.KindDrivingLicense}, got.MissingKinds)
}

func (s *cacheContract) TestOwnerKindIsPartOfKey() {
	ctx := context.Background()
	c := s.newCache(time.Minute)
	s.Require().NoError(c.Set(ctx, s.status(models.OverallVerified), s.gen(c), s.now))

	_, err := c.Get(ctx, models.OwnerRef{ID: s.owner.ID, Kind: models.OwnerMerchant})
	s.ErrorIs(err, ErrMiss)
}

func (s *cacheContract) TestInvalidateDropsEntry() {
	ctx := context.Background()
	c := s.newCache(time.Minute)
	s.Require().NoError(c.Set(ctx, s.status(models.OverallVerified), s.gen(c), s.now))
	s.Require().NoError(c.Invalidate(ctx, s.owner.ID))

	_, err := c.Get(ctx, s.owner)
	s.ErrorIs(err, ErrMiss)
}

func (s *cacheContract) TestAlreadyExpiredNextCredentialIsNotCached() {
	ctx := context.Background()
	c := s.newCache(time.Minute)
	past := s.now.Add(-time.Second)
	st := s.status(models.OverallVerified)
	st.NextExpiringCredential = &models.Credential{ExpiresAt: &past}

	s.Require().NoError(c.Set(ctx, st, s.gen(c), s.now))
	_, err := c.Get(ctx, s.owner)
	s.ErrorIs(err, ErrMiss)
}

func (s *cacheContract) TestSetAfterInvalidationIsDropped() {
	ctx := context.Background()
	c := s.newCache(time.Minute)
	before := s.gen(c)

	// A mutation lands while the reader is still computing.
	s.Require().NoError(c.Invalidate(ctx, s.owner.ID))
	fresh := s.gen(c)
	s.NotEqual(before, fresh)
	s.Require().NoError(c.Set(ctx, s.status(models.OverallVerified), fresh, s.now))

	s.ErrorIs(c.Set(ctx, s.status(models.OverallInProgress), before, s.now), ErrStale)
	got, err := c.Get(ctx, s.owner)
	s.Require().NoError(err)
	s.Equal(models.OverallVerified, got.OverallStatus)
}

func TestInMemoryCache(t *testing.T) {
	suite.Run(t, &cacheContract{newCache: func(ttl time.Duration) statusCache { return NewInMemory(ttl) }})
}

func TestTTLCappedAtNextExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	soon := now.Add(10 * time.Second)
	st := models.VerificationStatus{NextExpiringCredential: &models.Credential{ExpiresAt: &soon}}

	if got := ttlFor(st, time.Hour, now); got != 10*time.Second {
		t.Fatalf("ttl = %s, want 10s", got)
	}
	if got := ttlFor(models.VerificationStatus{}, time.Hour, now); got != time.Hour {
		t.Fatalf("ttl = %s, want 1h", got)
	}
}

func TestInMemoryEntryExpires(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(time.Minute)
	clock := time.Now()
	c.clock = func() time.Time { return clock }
	owner := models.OwnerRef{ID: id.NewOwnerID(), Kind: models.OwnerProvider}

	if err := c.Set(ctx, models.VerificationStatus{OwnerID: owner.ID.String(), OwnerKind: owner.Kind}, 0, clock); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := c.Get(ctx, owner); err != ErrMiss {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}
