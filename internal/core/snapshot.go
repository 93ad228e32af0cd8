package core

import (
	"encoding/json"
	"fmt"
	"time"

	"RangeLedger/internal/ledger"
	"RangeLedger/internal/premium"
	"RangeLedger/internal/venue"
)

// StateSnapshot is the engine's full serializable accounting state.
// Venue state is not included: venues are external systems and must be
// reattached by the orchestrator on restore.
type StateSnapshot struct {
	Sequence int64  `json:"sequence"`
	PrevHash []byte `json:"prev_hash"`

	Pools       []PoolRegistration          `json:"pools"`
	Accounts    []ledger.AccountSnapshot    `json:"accounts"`
	ChunkTotals []ledger.ChunkTotalSnapshot `json:"chunk_totals"`
	Balances    []ledger.BalanceSnapshot    `json:"balances"`
	Premiums    []premium.AccountState      `json:"premiums"`

	CreatedAt time.Time `json:"created_at"`
}

// Marshal encodes the snapshot as JSON for durable storage.
func (s *StateSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a stored snapshot payload.
func UnmarshalSnapshot(data []byte) (*StateSnapshot, error) {
	var snap StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// PoolRegistration records one registered venue's identity.
type PoolRegistration struct {
	ID     uint64 `json:"id"`
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Fee    uint32 `json:"fee"`
}

// ExportState serializes the engine's accounting state. Call between
// operations only; the export does not take pool locks.
func (e *Engine) ExportState() *StateSnapshot {
	prev := e.hasher.GetPrevHash()

	pools := make([]PoolRegistration, 0, len(e.byPair))
	for key, id := range e.byPair {
		pools = append(pools, PoolRegistration{
			ID:     id,
			Token0: key.token0,
			Token1: key.token1,
			Fee:    key.fee,
		})
	}

	accounts, totals := e.tracker.Export()
	return &StateSnapshot{
		Sequence:    e.sequence,
		PrevHash:    prev[:],
		Pools:       pools,
		Accounts:    accounts,
		ChunkTotals: totals,
		Balances:    e.positions.Export(),
		Premiums:    e.premiums.Export(),
		CreatedAt:   time.Now().UTC(),
	}
}

// RestoreState replaces the engine's accounting state with the snapshot
// and reattaches the supplied venue instances by pool identifier. Every
// pool in the snapshot must be given a venue whose pair and fee match
// its registration.
func (e *Engine) RestoreState(snap *StateSnapshot, venues map[uint64]venue.Venue) error {
	pools := make(map[uint64]*PoolContext, len(snap.Pools))
	byPair := make(map[pairKey]uint64, len(snap.Pools))
	next := uint64(1)

	for _, reg := range snap.Pools {
		v, ok := venues[reg.ID]
		if !ok {
			return fmt.Errorf("%w: no venue supplied for pool %d", ErrPoolNotRegistered, reg.ID)
		}
		token0, token1 := v.Tokens()
		key := canonicalPair(token0, token1, v.Fee())
		if key != canonicalPair(reg.Token0, reg.Token1, reg.Fee) {
			return fmt.Errorf("%w: venue pair mismatch for pool %d", ErrUnauthorized, reg.ID)
		}
		pools[reg.ID] = &PoolContext{ID: reg.ID, Venue: v}
		byPair[key] = reg.ID
		if reg.ID >= next {
			next = reg.ID + 1
		}
	}

	if err := e.tracker.Restore(snap.Accounts, snap.ChunkTotals); err != nil {
		return err
	}
	if err := e.positions.Restore(snap.Balances); err != nil {
		return err
	}
	if err := e.premiums.Restore(snap.Premiums); err != nil {
		return err
	}

	e.pools = pools
	e.byPair = byPair
	e.nextPoolID = next
	e.sequence = snap.Sequence

	var tip [32]byte
	copy(tip[:], snap.PrevHash)
	e.hasher.RestoreTip(tip)

	if err := e.validator.ValidateAll(); err != nil {
		return fmt.Errorf("restored state fails conservation: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RegisteredPools.Set(float64(len(e.pools)))
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
	return nil
}
