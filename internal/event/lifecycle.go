package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VenueRegistered records a pool registration.
type VenueRegistered struct {
	Pool      uint64    `json:"pool"`
	Token0    string    `json:"token0"`
	Token1    string    `json:"token1"`
	Fee       uint32    `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *VenueRegistered) IdempotencyKey() string {
	return fmt.Sprintf("venue:%d:%s:%s:%d", e.Pool, e.Token0, e.Token1, e.Fee)
}
func (e *VenueRegistered) EventType() EventType { return EventTypeVenueRegistered }
func (e *VenueRegistered) PoolID() uint64       { return e.Pool }

// PositionMinted records a completed mint: per-operation totals plus the
// resulting price tick.
type PositionMinted struct {
	OpID       uuid.UUID `json:"op_id"`
	Pool       uint64    `json:"pool"`
	Owner      uuid.UUID `json:"owner"`
	TokenID    string    `json:"token_id"` // hex wire form
	Size       string    `json:"size"`
	Collected0 string    `json:"collected0"`
	Collected1 string    `json:"collected1"`
	Moved0     string    `json:"moved0"`
	Moved1     string    `json:"moved1"`
	NewTick    int32     `json:"new_tick"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *PositionMinted) IdempotencyKey() string { return "mint:" + e.OpID.String() }
func (e *PositionMinted) EventType() EventType   { return EventTypePositionMinted }
func (e *PositionMinted) PoolID() uint64         { return e.Pool }

// PositionBurned records a completed burn.
type PositionBurned struct {
	OpID       uuid.UUID `json:"op_id"`
	Pool       uint64    `json:"pool"`
	Owner      uuid.UUID `json:"owner"`
	TokenID    string    `json:"token_id"`
	Size       string    `json:"size"`
	Collected0 string    `json:"collected0"`
	Collected1 string    `json:"collected1"`
	Moved0     string    `json:"moved0"`
	Moved1     string    `json:"moved1"`
	NewTick    int32     `json:"new_tick"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *PositionBurned) IdempotencyKey() string { return "burn:" + e.OpID.String() }
func (e *PositionBurned) EventType() EventType   { return EventTypePositionBurned }
func (e *PositionBurned) PoolID() uint64         { return e.Pool }

// PositionRolled records an atomic burn+mint under one lock with one
// combined netting swap.
type PositionRolled struct {
	OpID       uuid.UUID `json:"op_id"`
	Pool       uint64    `json:"pool"`
	Owner      uuid.UUID `json:"owner"`
	OldTokenID string    `json:"old_token_id"`
	NewTokenID string    `json:"new_token_id"`
	Size       string    `json:"size"`
	NewTick    int32     `json:"new_tick"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *PositionRolled) IdempotencyKey() string { return "roll:" + e.OpID.String() }
func (e *PositionRolled) EventType() EventType   { return EventTypePositionRolled }
func (e *PositionRolled) PoolID() uint64         { return e.Pool }

// PositionTransferred records an ownership-ledger transfer that moved
// the underlying chunk state between owners.
type PositionTransferred struct {
	OpID      uuid.UUID `json:"op_id"`
	Pool      uint64    `json:"pool"`
	From      uuid.UUID `json:"from"`
	To        uuid.UUID `json:"to"`
	TokenID   string    `json:"token_id"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *PositionTransferred) IdempotencyKey() string { return "transfer:" + e.OpID.String() }
func (e *PositionTransferred) EventType() EventType   { return EventTypePositionTransferred }
func (e *PositionTransferred) PoolID() uint64         { return e.Pool }

// PremiumSettled records a premium settlement for one account chunk.
type PremiumSettled struct {
	OpID      uuid.UUID `json:"op_id"`
	Pool      uint64    `json:"pool"`
	Owner     uuid.UUID `json:"owner"`
	TokenType uint8     `json:"token_type"`
	TickLower int32     `json:"tick_lower"`
	TickUpper int32     `json:"tick_upper"`
	Long      bool      `json:"long"`
	Amount0   string    `json:"amount0"`
	Amount1   string    `json:"amount1"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *PremiumSettled) IdempotencyKey() string { return "premium:" + e.OpID.String() }
func (e *PremiumSettled) EventType() EventType   { return EventTypePremiumSettled }
func (e *PremiumSettled) PoolID() uint64         { return e.Pool }
