package core

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeLedger/internal/ledger"
	"RangeLedger/internal/position"
	"RangeLedger/internal/venue"
)

// PoolInfo is the registration view of one venue.
type PoolInfo struct {
	ID          uint64
	Token0      string
	Token1      string
	Fee         uint32
	TickSpacing int32
	Tick        int32
}

// Pools lists every registered venue with its current tick.
func (e *Engine) Pools() []PoolInfo {
	out := make([]PoolInfo, 0, len(e.pools))
	for _, p := range e.pools {
		token0, token1 := p.Venue.Tokens()
		_, tick := p.Venue.Slot0()
		out = append(out, PoolInfo{
			ID:          p.ID,
			Token0:      token0,
			Token1:      token1,
			Fee:         p.Venue.Fee(),
			TickSpacing: p.Venue.TickSpacing(),
			Tick:        tick,
		})
	}
	return out
}

// CurrentTick returns the pool's present price tick.
func (e *Engine) CurrentTick(poolID uint64) (int32, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return 0, err
	}
	_, tick := p.Venue.Slot0()
	return tick, nil
}

// AccountLiquidity returns the removed and net liquidity an owner holds
// in one chunk.
func (e *Engine) AccountLiquidity(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range) (removed, net *uint256.Int, err error) {
	if _, err := e.pool(poolID); err != nil {
		return nil, nil, err
	}
	key := accountKey(poolID, owner, tokenType, r)
	removed, net = e.tracker.Get(key)
	return removed, net, nil
}

// Premium returns the per-unit X64 premium for one side of an account
// chunk. With atCurrentTick the venue's fee growth is sampled fresh
// under the pool lock; otherwise the value reflects state as of the
// account's last touch.
func (e *Engine) Premium(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range, long, atCurrentTick bool) (*uint256.Int, *uint256.Int, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return nil, nil, err
	}
	key := accountKey(poolID, owner, tokenType, r)

	if !atCurrentTick {
		p0, p1 := e.premiums.Premium(key, long)
		return p0, p1, nil
	}

	release, err := p.acquire()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	_, tick := p.Venue.Slot0()
	inside0, inside1 := venue.FeeGrowthInside(p.Venue, venue.Range{TickLower: r.TickLower, TickUpper: r.TickUpper}, tick)
	removed, net := e.tracker.Get(key)
	p0, p1 := e.premiums.PremiumAt(key, inside0, inside1, net, removed, long)
	return p0, p1, nil
}

// FeesBase returns the account's fee-base snapshot.
func (e *Engine) FeesBase(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range) (*uint256.Int, *uint256.Int, error) {
	if _, err := e.pool(poolID); err != nil {
		return nil, nil, err
	}
	key := accountKey(poolID, owner, tokenType, r)
	base0, base1 := e.premiums.FeesBase(key)
	return base0, base1, nil
}

// OwnerAccounts lists every chunk account the owner currently holds.
func (e *Engine) OwnerAccounts(owner uuid.UUID) []ledger.AccountKey {
	return e.tracker.Accounts(owner)
}

// ValidateAll re-checks chunk conservation across the whole ledger.
func (e *Engine) ValidateAll() error {
	return e.validator.ValidateAll()
}

func accountKey(poolID uint64, owner uuid.UUID, tokenType position.TokenType, r venue.Range) ledger.AccountKey {
	return ledger.AccountKey{
		Chunk: ledger.ChunkKey{
			PoolID:    poolID,
			TokenType: tokenType,
			TickLower: r.TickLower,
			TickUpper: r.TickUpper,
		},
		Owner: owner,
	}
}
