// Package eventstore implements the durable, tenant-scoped, append-only
// event log: envelopes, stored events, the EventStore contract, and its
// in-memory and SQLite-backed implementations.
package eventstore

import (
	"encoding/json"
	"time"

	"erpcore/pkg/kernel"
)

// Envelope is the unit of transport: an event plus the tenant/aggregate/
// sequence metadata needed to store, route, and replay it.
type Envelope struct {
	EventID        string          `json:"event_id"`
	TenantID       kernel.TenantID `json:"tenant_id"`
	AggregateID    kernel.AggregateID `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	SequenceNumber int64           `json:"sequence_number"`
	EventType      string          `json:"event_type"`
	EventVersion   int             `json:"event_version"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload"`
}

// StoredEvent is an Envelope as persisted by the store, carrying the
// insertion timestamp in addition to the envelope fields.
type StoredEvent struct {
	Envelope
	CreatedAt time.Time `json:"created_at"`
}

// UncommittedEvent is an Envelope without a sequence number; the store
// assigns SequenceNumber on append.
type UncommittedEvent struct {
	EventID       string
	TenantID      kernel.TenantID
	AggregateID   kernel.AggregateID
	AggregateType string
	EventType     string
	EventVersion  int
	OccurredAt    time.Time
	Payload       json.RawMessage
}
