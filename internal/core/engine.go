// Package core is the lifecycle engine: it owns every liquidity
// transition, drives the venue, and is the single writer of the event
// log. All state-mutating entry points run under the pool's scoped lock
// and either complete fully or leave no trace.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/premium"
	"RangeLedger/internal/venue"
)

// Output is what the engine hands downstream after each applied
// operation: the sealed envelope for persistence and publishing.
type Output struct {
	Envelope *event.EventEnvelope
}

// Engine processes position lifecycle operations single-threaded per
// pool. Liquidity accounting, premium accrual, and event sequencing all
// happen inside the pool lock.
type Engine struct {
	sequence int64
	hasher   *StateHasher

	pools      map[uint64]*PoolContext
	byPair     map[pairKey]uint64
	nextPoolID uint64

	tracker   *ledger.LiquidityTracker
	premiums  *premium.Engine
	positions *ledger.PositionLedger
	validator *ledger.InvariantValidator

	metrics *observability.Metrics
	log     zerolog.Logger

	persistChan chan<- Output
	publishChan chan<- Output
}

// NewEngine wires the engine's accounting state. Either channel may be
// nil; emission to a nil channel is skipped.
func NewEngine(log zerolog.Logger, metrics *observability.Metrics, persistChan, publishChan chan<- Output) *Engine {
	tracker := ledger.NewLiquidityTracker()
	positions := ledger.NewPositionLedger()

	e := &Engine{
		sequence:    0,
		hasher:      NewStateHasher(),
		pools:       make(map[uint64]*PoolContext),
		byPair:      make(map[pairKey]uint64),
		nextPoolID:  1,
		tracker:     tracker,
		premiums:    premium.NewEngine(),
		positions:   positions,
		validator:   ledger.NewInvariantValidator(tracker),
		metrics:     metrics,
		log:         log,
		persistChan: persistChan,
		publishChan: publishChan,
	}
	positions.SetTransferHook(e)
	return e
}

// Positions exposes the fungible balance ledger. Transfers through it
// route back into the engine via the hook.
func (e *Engine) Positions() *ledger.PositionLedger { return e.positions }

// Sequence returns the next event sequence number.
func (e *Engine) Sequence() int64 { return e.sequence }

// RegisterVenue registers the venue under a canonical pool identifier.
// Registration is idempotent on the (token pair, fee) key regardless of
// token order; re-registering an existing pair returns the original
// identifier.
func (e *Engine) RegisterVenue(v venue.Venue) (uint64, error) {
	token0, token1 := v.Tokens()
	key := canonicalPair(token0, token1, v.Fee())

	if id, ok := e.byPair[key]; ok {
		return id, nil
	}

	id := e.nextPoolID
	e.nextPoolID++
	e.pools[id] = &PoolContext{ID: id, Venue: v}
	e.byPair[key] = id

	e.log.Info().
		Uint64("pool", id).
		Str("token0", key.token0).
		Str("token1", key.token1).
		Uint32("fee", key.fee).
		Msg("venue registered")
	if e.metrics != nil {
		e.metrics.RegisteredPools.Set(float64(len(e.pools)))
	}

	e.emit(&event.VenueRegistered{
		Pool:      id,
		Token0:    key.token0,
		Token1:    key.token1,
		Fee:       key.fee,
		Timestamp: time.Now().UTC(),
	})
	return id, nil
}

// VerifyObligation checks that a venue claiming a payment obligation is
// the one registered for the pair. Obligation claims from any other
// party are rejected.
func (e *Engine) VerifyObligation(claimed venue.Venue, tokenA, tokenB string, fee uint32) error {
	id, ok := e.byPair[canonicalPair(tokenA, tokenB, fee)]
	if !ok {
		return ErrPoolNotRegistered
	}
	if e.pools[id].Venue != claimed {
		return fmt.Errorf("%w: pool %d", ErrUnauthorized, id)
	}
	return nil
}

func (e *Engine) pool(id uint64) (*PoolContext, error) {
	p, ok := e.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotRegistered, id)
	}
	return p, nil
}

// emit seals the payload into an envelope, advances the hash chain, and
// hands the output downstream. Persistence gets a blocking send so no
// event is lost; publishing gets a non-blocking send and may drop,
// subscribers rebuild from the durable log.
func (e *Engine) emit(evt event.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s event: %v", evt.EventType(), err))
	}

	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, payload)

	envelope := &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		PoolID:         evt.PoolID(),
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	e.sequence++

	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}

	out := Output{Envelope: envelope}
	if e.persistChan != nil {
		e.persistChan <- out
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			// Dropped; subscribers catch up from the event log.
		}
	}
}

// postCheck re-validates chunk conservation for every chunk the
// operation touched. A violation here means the accounting state is
// corrupt and continuing would compound the damage.
func (e *Engine) postCheck(chunks map[ledger.ChunkKey]struct{}) {
	for chunk := range chunks {
		if err := e.validator.ValidateChunkConservation(chunk); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
		}
	}
}

func (e *Engine) observeOp(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil {
		e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
