// Package ledger tracks per-account liquidity state for every chunk an
// owner has touched, plus the fungible balances of minted position
// identifiers. The lifecycle engine exclusively owns liquidity
// transitions; balance transfers go through the engine's veto hook.
package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeLedger/internal/position"
)

var (
	// ErrInsufficientAccountLiquidity is returned when a withdrawal,
	// borrow, or repayment exceeds the recorded account state.
	ErrInsufficientAccountLiquidity = errors.New("insufficient account liquidity")

	// ErrOccupiedDestination rejects transfers into a chunk the receiver
	// already holds: merging accumulators with different fee bases would
	// break the settlement invariant.
	ErrOccupiedDestination = errors.New("destination account already holds liquidity in chunk")
)

// ChunkKey identifies one liquidity chunk on one venue.
type ChunkKey struct {
	PoolID    uint64
	TokenType position.TokenType
	TickLower int32
	TickUpper int32
}

// AccountKey scopes a chunk to an owner.
type AccountKey struct {
	Chunk ChunkKey
	Owner uuid.UUID
}

// Path returns the canonical string form used for storage and logging.
func (k AccountKey) Path() string {
	return fmt.Sprintf("pool:%d:owner:%s:type:%d:range:%d:%d",
		k.Chunk.PoolID, k.Owner, k.Chunk.TokenType, k.Chunk.TickLower, k.Chunk.TickUpper)
}

// AccountLiquidity is the packed pair tracked per account and chunk:
// Net is liquidity currently deployed in the venue after long borrows,
// Removed is the amount borrowed out by longs. Both are non-negative;
// the entry is deleted when both reach zero.
type AccountLiquidity struct {
	Net     *uint256.Int
	Removed *uint256.Int
}

// LiquidityTracker maintains AccountLiquidity for all accounts plus
// per-chunk deposit/withdraw totals for conservation checking.
type LiquidityTracker struct {
	accounts  map[AccountKey]*AccountLiquidity
	deposited map[ChunkKey]*uint256.Int
	withdrawn map[ChunkKey]*uint256.Int
}

func NewLiquidityTracker() *LiquidityTracker {
	return &LiquidityTracker{
		accounts:  make(map[AccountKey]*AccountLiquidity),
		deposited: make(map[ChunkKey]*uint256.Int),
		withdrawn: make(map[ChunkKey]*uint256.Int),
	}
}

// Get returns copies of the account's removed and net liquidity.
func (lt *LiquidityTracker) Get(key AccountKey) (removed, net *uint256.Int) {
	acct, ok := lt.accounts[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	return new(uint256.Int).Set(acct.Removed), new(uint256.Int).Set(acct.Net)
}

func (lt *LiquidityTracker) account(key AccountKey) *AccountLiquidity {
	acct, ok := lt.accounts[key]
	if !ok {
		acct = &AccountLiquidity{Net: new(uint256.Int), Removed: new(uint256.Int)}
		lt.accounts[key] = acct
	}
	return acct
}

func (lt *LiquidityTracker) chunkTotal(m map[ChunkKey]*uint256.Int, key ChunkKey) *uint256.Int {
	v, ok := m[key]
	if !ok {
		v = new(uint256.Int)
		m[key] = v
	}
	return v
}

// DeployShort records a short deposit into the venue for the chunk.
func (lt *LiquidityTracker) DeployShort(key AccountKey, liquidity *uint256.Int) {
	acct := lt.account(key)
	acct.Net.Add(acct.Net, liquidity)
	total := lt.chunkTotal(lt.deposited, key.Chunk)
	total.Add(total, liquidity)
}

// WithdrawShort records a short withdrawal from the venue for the chunk.
func (lt *LiquidityTracker) WithdrawShort(key AccountKey, liquidity *uint256.Int) error {
	acct := lt.account(key)
	if acct.Net.Lt(liquidity) {
		return fmt.Errorf("%w: net %s < withdraw %s at %s", ErrInsufficientAccountLiquidity, acct.Net, liquidity, key.Path())
	}
	acct.Net.Sub(acct.Net, liquidity)
	total := lt.chunkTotal(lt.withdrawn, key.Chunk)
	total.Add(total, liquidity)
	lt.prune(key)
	return nil
}

// Borrow moves net liquidity into removed: a long leg taking deployed
// liquidity out of the venue.
func (lt *LiquidityTracker) Borrow(key AccountKey, liquidity *uint256.Int) error {
	acct := lt.account(key)
	if acct.Net.Lt(liquidity) {
		return fmt.Errorf("%w: net %s < borrow %s at %s", ErrInsufficientAccountLiquidity, acct.Net, liquidity, key.Path())
	}
	acct.Net.Sub(acct.Net, liquidity)
	acct.Removed.Add(acct.Removed, liquidity)
	return nil
}

// Repay moves removed liquidity back into net: a long leg returning
// borrowed liquidity at burn.
func (lt *LiquidityTracker) Repay(key AccountKey, liquidity *uint256.Int) error {
	acct := lt.account(key)
	if acct.Removed.Lt(liquidity) {
		return fmt.Errorf("%w: removed %s < repay %s at %s", ErrInsufficientAccountLiquidity, acct.Removed, liquidity, key.Path())
	}
	acct.Removed.Sub(acct.Removed, liquidity)
	acct.Net.Add(acct.Net, liquidity)
	return nil
}

// MoveAccount transfers the full liquidity state of a chunk from one
// owner to another. The destination must be empty.
func (lt *LiquidityTracker) MoveAccount(from, to AccountKey) error {
	if from.Chunk != to.Chunk {
		return fmt.Errorf("cannot move between different chunks")
	}
	src, ok := lt.accounts[from]
	if !ok {
		return nil
	}
	if dst, ok := lt.accounts[to]; ok && (!dst.Net.IsZero() || !dst.Removed.IsZero()) {
		return fmt.Errorf("%w: %s", ErrOccupiedDestination, to.Path())
	}
	lt.accounts[to] = src
	delete(lt.accounts, from)
	return nil
}

// ChunkTotals returns, for one chunk, the summed net and removed
// liquidity across owners and the lifetime deposit/withdraw totals.
func (lt *LiquidityTracker) ChunkTotals(chunk ChunkKey) (sumNet, sumRemoved, deposited, withdrawn *uint256.Int) {
	sumNet = new(uint256.Int)
	sumRemoved = new(uint256.Int)
	for key, acct := range lt.accounts {
		if key.Chunk == chunk {
			sumNet.Add(sumNet, acct.Net)
			sumRemoved.Add(sumRemoved, acct.Removed)
		}
	}
	deposited = new(uint256.Int)
	if v, ok := lt.deposited[chunk]; ok {
		deposited.Set(v)
	}
	withdrawn = new(uint256.Int)
	if v, ok := lt.withdrawn[chunk]; ok {
		withdrawn.Set(v)
	}
	return sumNet, sumRemoved, deposited, withdrawn
}

// Chunks returns every chunk with lifetime activity.
func (lt *LiquidityTracker) Chunks() []ChunkKey {
	out := make([]ChunkKey, 0, len(lt.deposited))
	for key := range lt.deposited {
		out = append(out, key)
	}
	return out
}

// Accounts returns the keys of all live accounts for an owner.
func (lt *LiquidityTracker) Accounts(owner uuid.UUID) []AccountKey {
	var out []AccountKey
	for key := range lt.accounts {
		if key.Owner == owner {
			out = append(out, key)
		}
	}
	return out
}

func (lt *LiquidityTracker) prune(key AccountKey) {
	if acct, ok := lt.accounts[key]; ok && acct.Net.IsZero() && acct.Removed.IsZero() {
		delete(lt.accounts, key)
	}
}
