// Package premium maintains the fee accrual ledger: per-account,
// per-chunk premium accumulators fed by venue fee-growth samples, with
// the short/long spread weighting that compensates short holders for
// liquidity borrowed out from under them.
package premium

import (
	"github.com/holiman/uint256"

	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/ledger"
)

// Vegoid is the spread divisor exponent: the removed-liquidity terms of
// the spread numerators are divided by 2^Vegoid.
const Vegoid = 2

// accumulator holds the premium state for one (owner, chunk). Owed is
// the long side's per-unit X64 accumulator, Gross the short side's;
// both only ever grow. Base snapshots advance at settlement so the
// delta owed since the last settlement is accumulator minus base.
type accumulator struct {
	insideLast0 *uint256.Int // X128 fee growth inside at last touch
	insideLast1 *uint256.Int
	lastTick    int32

	feesBase0 *uint256.Int // insideLast x net liquidity, the fee-base snapshot
	feesBase1 *uint256.Int

	owed0X64  *uint256.Int
	owed1X64  *uint256.Int
	gross0X64 *uint256.Int
	gross1X64 *uint256.Int

	baseOwed0X64  *uint256.Int
	baseOwed1X64  *uint256.Int
	baseGross0X64 *uint256.Int
	baseGross1X64 *uint256.Int
}

func newAccumulator(inside0, inside1 *uint256.Int, tick int32) *accumulator {
	return &accumulator{
		insideLast0:   new(uint256.Int).Set(inside0),
		insideLast1:   new(uint256.Int).Set(inside1),
		lastTick:      tick,
		feesBase0:     new(uint256.Int),
		feesBase1:     new(uint256.Int),
		owed0X64:      new(uint256.Int),
		owed1X64:      new(uint256.Int),
		gross0X64:     new(uint256.Int),
		gross1X64:     new(uint256.Int),
		baseOwed0X64:  new(uint256.Int),
		baseOwed1X64:  new(uint256.Int),
		baseGross0X64: new(uint256.Int),
		baseGross1X64: new(uint256.Int),
	}
}

// Engine is the premium accounting engine. The lifecycle engine calls
// Accrue for a chunk strictly before mutating the chunk's
// AccountLiquidity, so fee deltas are computed against the liquidity
// that earned them.
type Engine struct {
	accounts map[ledger.AccountKey]*accumulator
}

func NewEngine() *Engine {
	return &Engine{accounts: make(map[ledger.AccountKey]*accumulator)}
}

// Accrue folds the fee growth since the account's last touch into its
// premium accumulators and returns the absolute fee amounts attributed
// to the account's net liquidity. inside0/inside1 are the X128
// fee-growth-inside samples at the current tick; net and removed are
// the account's liquidity state before the pending change.
func (e *Engine) Accrue(key ledger.AccountKey, inside0, inside1 *uint256.Int, net, removed *uint256.Int, atTick int32) (*uint256.Int, *uint256.Int) {
	acc, ok := e.accounts[key]
	if !ok {
		acc = newAccumulator(inside0, inside1, atTick)
		e.accounts[key] = acc
		acc.feesBase0 = fpmath.MulDiv128(inside0, net)
		acc.feesBase1 = fpmath.MulDiv128(inside1, net)
		return new(uint256.Int), new(uint256.Int)
	}

	delta0 := fpmath.WrappingSub(inside0, acc.insideLast0)
	delta1 := fpmath.WrappingSub(inside1, acc.insideLast1)
	collected0 := fpmath.MulDiv128(delta0, net)
	collected1 := fpmath.MulDiv128(delta1, net)

	owedD0, grossD0 := premiaDeltas(collected0, net, removed)
	owedD1, grossD1 := premiaDeltas(collected1, net, removed)
	acc.owed0X64.Add(acc.owed0X64, owedD0)
	acc.owed1X64.Add(acc.owed1X64, owedD1)
	acc.gross0X64.Add(acc.gross0X64, grossD0)
	acc.gross1X64.Add(acc.gross1X64, grossD1)

	acc.insideLast0.Set(inside0)
	acc.insideLast1.Set(inside1)
	acc.lastTick = atTick
	acc.feesBase0 = fpmath.MulDiv128(inside0, net)
	acc.feesBase1 = fpmath.MulDiv128(inside1, net)

	return collected0, collected1
}

// premiaDeltas computes the per-unit X64 premium increments for the two
// sides from fees collected on net liquidity.
//
// With T = net + removed, the long side owes
//
//	collected * (net + removed/2^Vegoid) * 2^64 / net^2
//
// and the short side accrues
//
//	collected * (T^2 - T*removed + removed^2/2^Vegoid) * 2^64 / (net^2 * T)
//
// so with no outstanding longs both collapse to collected * 2^64 / net.
// A short whose liquidity was borrowed out earns more than the flat
// proportional share; the surplus is exactly what the longs pay, so the
// short's settled total over T units equals the venue-collected amount
// plus the long payment, up to flooring.
func premiaDeltas(collected, net, removed *uint256.Int) (owedX64, grossX64 *uint256.Int) {
	owedX64 = new(uint256.Int)
	grossX64 = new(uint256.Int)
	if collected.IsZero() || net.IsZero() {
		return owedX64, grossX64
	}

	total := new(uint256.Int).Add(net, removed)
	netSq := new(uint256.Int).Mul(net, net)
	totalSq := new(uint256.Int).Mul(total, total)

	// Long side: (net + removed/2^Vegoid) / net^2.
	owedNum := new(uint256.Int).Rsh(removed, Vegoid)
	owedNum.Add(owedNum, net)
	owedNum.Mul(owedNum, fpmath.Q64)
	if v, err := fpmath.MulDiv(collected, owedNum, netSq); err == nil {
		owedX64 = v
	}

	// Short side: (T^2 - T*removed + removed^2/2^Vegoid) / (net^2 * T).
	grossNum := new(uint256.Int).Mul(removed, removed)
	grossNum.Rsh(grossNum, Vegoid)
	grossNum.Add(grossNum, totalSq)
	grossNum.Sub(grossNum, new(uint256.Int).Mul(total, removed))
	grossNum.Mul(grossNum, fpmath.Q64)
	denom := new(uint256.Int).Mul(netSq, total)
	if v, err := fpmath.MulDiv(collected, grossNum, denom); err == nil {
		grossX64 = v
	}
	return owedX64, grossX64
}

// Premium returns the per-unit X64 premium accumulated for a side since
// the account's last settlement, evaluated against already-settled
// state only.
func (e *Engine) Premium(key ledger.AccountKey, long bool) (*uint256.Int, *uint256.Int) {
	acc, ok := e.accounts[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	if long {
		return new(uint256.Int).Sub(acc.owed0X64, acc.baseOwed0X64),
			new(uint256.Int).Sub(acc.owed1X64, acc.baseOwed1X64)
	}
	return new(uint256.Int).Sub(acc.gross0X64, acc.baseGross0X64),
		new(uint256.Int).Sub(acc.gross1X64, acc.baseGross1X64)
}

// PremiumAt returns the per-unit X64 premium as it would stand after a
// fresh accrual at the supplied fee-growth sample, without mutating any
// stored state.
func (e *Engine) PremiumAt(key ledger.AccountKey, inside0, inside1 *uint256.Int, net, removed *uint256.Int, long bool) (*uint256.Int, *uint256.Int) {
	settled0, settled1 := e.Premium(key, long)
	acc, ok := e.accounts[key]
	if !ok {
		return settled0, settled1
	}

	delta0 := fpmath.WrappingSub(inside0, acc.insideLast0)
	delta1 := fpmath.WrappingSub(inside1, acc.insideLast1)
	collected0 := fpmath.MulDiv128(delta0, net)
	collected1 := fpmath.MulDiv128(delta1, net)

	owedD0, grossD0 := premiaDeltas(collected0, net, removed)
	owedD1, grossD1 := premiaDeltas(collected1, net, removed)
	if long {
		settled0.Add(settled0, owedD0)
		settled1.Add(settled1, owedD1)
	} else {
		settled0.Add(settled0, grossD0)
		settled1.Add(settled1, grossD1)
	}
	return settled0, settled1
}

// Settle converts the unsettled per-unit premium into absolute token
// amounts for the given liquidity and advances the side's base to its
// accumulator, zeroing the delta.
func (e *Engine) Settle(key ledger.AccountKey, long bool, liquidity *uint256.Int) (*uint256.Int, *uint256.Int) {
	acc, ok := e.accounts[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	d0, d1 := e.Premium(key, long)
	amount0 := fpmath.MulDiv64(d0, liquidity)
	amount1 := fpmath.MulDiv64(d1, liquidity)
	if long {
		acc.baseOwed0X64.Set(acc.owed0X64)
		acc.baseOwed1X64.Set(acc.owed1X64)
	} else {
		acc.baseGross0X64.Set(acc.gross0X64)
		acc.baseGross1X64.Set(acc.gross1X64)
	}
	return amount0, amount1
}

// FeesBase returns the account's fee-base snapshot: fee growth inside at
// the last touch multiplied by the net liquidity that held it.
func (e *Engine) FeesBase(key ledger.AccountKey) (*uint256.Int, *uint256.Int) {
	acc, ok := e.accounts[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	return new(uint256.Int).Set(acc.feesBase0), new(uint256.Int).Set(acc.feesBase1)
}

// LastTick returns the price tick cached at the account's last accrual.
func (e *Engine) LastTick(key ledger.AccountKey) (int32, bool) {
	acc, ok := e.accounts[key]
	if !ok {
		return 0, false
	}
	return acc.lastTick, true
}

// Clear drops the account's accumulator. Called when liquidity for the
// key fully returns to zero; re-initialization at zero is safe.
func (e *Engine) Clear(key ledger.AccountKey) {
	delete(e.accounts, key)
}

// MoveAccount transfers the full accumulator state between owners of the
// same chunk. The destination must not already hold state: merging
// accumulators with different fee bases is disallowed.
func (e *Engine) MoveAccount(from, to ledger.AccountKey) error {
	src, ok := e.accounts[from]
	if !ok {
		return nil
	}
	if _, ok := e.accounts[to]; ok {
		return ledger.ErrOccupiedDestination
	}
	e.accounts[to] = src
	delete(e.accounts, from)
	return nil
}
