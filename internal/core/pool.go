package core

import (
	"sync"

	"RangeLedger/internal/venue"
)

// pairKey identifies a venue by its canonical token ordering and fee
// tier. Registration with the tokens swapped resolves to the same key.
type pairKey struct {
	token0 string
	token1 string
	fee    uint32
}

func canonicalPair(tokenA, tokenB string, fee uint32) pairKey {
	if tokenB < tokenA {
		tokenA, tokenB = tokenB, tokenA
	}
	return pairKey{token0: tokenA, token1: tokenB, fee: fee}
}

// PoolContext binds a registered venue to its canonical pool identifier
// and carries the per-pool reentrancy lock. The lock is scoped to one
// pool: operations against different pools never contend.
type PoolContext struct {
	ID    uint64
	Venue venue.Venue

	mu     sync.Mutex
	locked bool
}

// acquire takes the pool's operation lock. It fails immediately with
// ErrReentrant instead of blocking: a second entry while an operation
// is in flight is a protocol violation, not a queueing situation.
func (p *PoolContext) acquire() (func(), error) {
	p.mu.Lock()
	if p.locked {
		p.mu.Unlock()
		return nil, ErrReentrant
	}
	p.locked = true
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		p.locked = false
		p.mu.Unlock()
	}, nil
}
