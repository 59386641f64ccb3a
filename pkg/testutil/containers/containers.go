//go:build integration

// Package containers starts throwaway Postgres, Redis and Redpanda instances
// for integration tests. Each is started on first use and shared by every
// suite in the test binary; Ryuk removes them when the process exits.
package containers

import (
	"sync"
	"testing"
)

// lazy starts its value once. A failed start fails the calling test and is
// retried by the next caller.
type lazy[T any] struct {
	mu  sync.Mutex
	val *T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.val == nil {
		l.val = start(t)
	}
	return l.val
}

// Manager hands out the shared containers.
type Manager struct {
	postgres lazy[PostgresContainer]
	redis    lazy[RedisContainer]
	kafka    lazy[KafkaContainer]
}

var shared = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	return shared
}

// GetPostgres returns a migrated Postgres container.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

// GetKafka returns a Redpanda broker speaking the Kafka protocol.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}
