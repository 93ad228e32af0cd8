package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeVenueRegistered
	EventTypePositionMinted
	EventTypePositionBurned
	EventTypePositionRolled
	EventTypePositionTransferred
	EventTypePremiumSettled
)

func (t EventType) String() string {
	switch t {
	case EventTypeVenueRegistered:
		return "venue_registered"
	case EventTypePositionMinted:
		return "position_minted"
	case EventTypePositionBurned:
		return "position_burned"
	case EventTypePositionRolled:
		return "position_rolled"
	case EventTypePositionTransferred:
		return "position_transferred"
	case EventTypePremiumSettled:
		return "premium_settled"
	default:
		return "unknown"
	}
}

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key for the operation
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Venue context (0 for global events)
	PoolID uint64

	// Operation timestamp
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of ledger state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PoolID returns the venue context (0 for global events)
	PoolID() uint64
}
