package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

// generationTTL keeps idle owners' counters from piling up. It only needs to
// outlive a single status computation.
const generationTTL = 7 * 24 * time.Hour

// Redis stores statuses as JSON strings next to a per-owner generation
// counter. Set runs under WATCH on the counter.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, owner models.OwnerRef) (*models.VerificationStatus, error) {
	raw, err := c.client.Get(ctx, key(owner.ID.String(), owner.Kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cached status: %w", err)
	}
	var status models.VerificationStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}
	return &status, nil
}

func (c *Redis) Generation(ctx context.Context, ownerID id.OwnerID) (uint64, error) {
	return readGeneration(ctx, c.client, ownerID.String())
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r getter, ownerID string) (uint64, error) {
	gen, err := r.Get(ctx, genKey(ownerID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read status generation: %w", err)
	}
	return gen, nil
}

func (c *Redis) Set(ctx context.Context, status models.VerificationStatus, generation uint64, now time.Time) error {
	ttl := ttlFor(status, c.ttl, now)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	gk := genKey(status.OwnerID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, status.OwnerID)
		if err != nil {
			return err
		}
		if current != generation {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(status.OwnerID, status.OwnerKind), raw, ttl)
			return nil
		})
		return err
	}, gk)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		// The counter moved while we were watching it.
		return ErrStale
	default:
		return fmt.Errorf("write cached status: %w", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context, ownerID id.OwnerID) error {
	gk := genKey(ownerID.String())
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, ownerKeys(ownerID)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached status: %w", err)
	}
	return nil
}
