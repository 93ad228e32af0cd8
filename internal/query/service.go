// Package query is the read/write façade the API server talks to. The
// engine itself is single-threaded; the service serializes access so
// concurrent HTTP handlers never interleave inside an operation.
package query

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"RangeLedger/internal/core"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/position"
	"RangeLedger/internal/venue"
)

// Service wraps the engine behind a single mutex. Write operations and
// venue-sampling reads both go through it.
type Service struct {
	mu        sync.Mutex
	engine    *core.Engine
	snapshots *persistence.SnapshotManager // nil when running without Postgres
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewService(engine *core.Engine, snapshots *persistence.SnapshotManager, metrics *observability.Metrics, log zerolog.Logger) *Service {
	return &Service{
		engine:    engine,
		snapshots: snapshots,
		metrics:   metrics,
		log:       log,
	}
}

func (s *Service) instrument(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Sequence returns the engine's next event sequence number.
func (s *Service) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Sequence()
}

// RegisterVenue registers a venue with the engine.
func (s *Service) RegisterVenue(v venue.Venue) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RegisterVenue(v)
}

// Mint opens a position.
func (s *Service) Mint(owner uuid.UUID, id *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (core.Receipt, error) {
	defer s.instrument("mint", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Mint(owner, id, size, tickLimitLow, tickLimitHigh)
}

// Burn closes a position.
func (s *Service) Burn(owner uuid.UUID, id *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (core.Receipt, error) {
	defer s.instrument("burn", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Burn(owner, id, size, tickLimitLow, tickLimitHigh)
}

// Roll atomically replaces one position with another.
func (s *Service) Roll(owner uuid.UUID, oldID, newID *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (core.Receipt, error) {
	defer s.instrument("roll", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Roll(owner, oldID, newID, size, tickLimitLow, tickLimitHigh)
}

// Transfer moves a position balance between owners through the
// ownership ledger; the engine hook moves the chunk state.
func (s *Service) Transfer(from, to uuid.UUID, id *uint256.Int, amount *big.Int) error {
	defer s.instrument("transfer", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Positions().Transfer(from, to, id, amount)
}

// Pools lists registered venues.
func (s *Service) Pools() []core.PoolInfo {
	defer s.instrument("pools", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Pools()
}

// Balance returns an owner's balance of one identifier.
func (s *Service) Balance(owner uuid.UUID, id *uint256.Int) *big.Int {
	defer s.instrument("balance", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Positions().BalanceOf(owner, id)
}

// OwnerAccounts lists the chunk accounts an owner holds.
func (s *Service) OwnerAccounts(owner uuid.UUID) []ledger.AccountKey {
	defer s.instrument("accounts", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.OwnerAccounts(owner)
}

// AccountLiquidity returns removed and net liquidity for one chunk.
func (s *Service) AccountLiquidity(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range) (removed, net *uint256.Int, err error) {
	defer s.instrument("liquidity", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AccountLiquidity(poolID, owner, tokenType, r)
}

// Premium returns the per-unit X64 premium for one side of a chunk.
func (s *Service) Premium(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range, long, atCurrentTick bool) (*uint256.Int, *uint256.Int, error) {
	defer s.instrument("premium", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Premium(poolID, owner, tokenType, r, long, atCurrentTick)
}

// FeesBase returns the fee-base snapshot for one chunk account.
func (s *Service) FeesBase(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range) (*uint256.Int, *uint256.Int, error) {
	defer s.instrument("fees_base", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.FeesBase(poolID, owner, tokenType, r)
}

// RecentEvents reads envelopes from the durable log. Returns nil when
// the service runs without Postgres.
func (s *Service) RecentEvents(ctx context.Context, fromSequence int64, limit int) ([]persistence.EventRow, error) {
	defer s.instrument("events", time.Now())
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.LoadEventsFrom(ctx, fromSequence, limit)
}

// Snapshot serializes and stores the engine's accounting state.
func (s *Service) Snapshot(ctx context.Context) (int64, error) {
	defer s.instrument("snapshot", time.Now())
	s.mu.Lock()
	snap := s.engine.ExportState()
	s.mu.Unlock()

	if s.snapshots == nil {
		return snap.Sequence, nil
	}
	data, err := snap.Marshal()
	if err != nil {
		return 0, err
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap.Sequence, snap.PrevHash, data); err != nil {
		return 0, err
	}
	if err := s.snapshots.MarkVerified(ctx, snap.Sequence); err != nil {
		s.log.Warn().Err(err).Int64("sequence", snap.Sequence).Msg("failed to mark snapshot verified")
	}
	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotSizeBytes.Set(float64(len(data)))
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return snap.Sequence, nil
}
