// Package outbox implements the outbox table used to publish lifecycle
// events to Kafka at least once.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a pending event in the outbox table.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "owner"
	AggregateID   string // owner ID, used as the Kafka partition key
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published
}

// IsPending returns true if this entry has not been published yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}
