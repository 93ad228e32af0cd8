// Package venue abstracts the external ranged-liquidity market the engine
// deposits into, withdraws from, and swaps against. Payment is modeled as
// a synchronous obligation: deposit and swap calls return the amounts the
// engine owes as part of the same call's return path.
package venue

import (
	"math/big"

	"github.com/holiman/uint256"

	fpmath "RangeLedger/internal/math"
)

// Range is an inclusive tick range on the venue's price grid.
type Range struct {
	TickLower int32
	TickUpper int32
}

// Venue is the ranged-liquidity market collaborator. Its own swap and
// liquidity math is trusted and consumed, not reimplemented.
type Venue interface {
	// Tokens returns the pair's asset symbols in canonical order.
	Tokens() (string, string)

	// Fee returns the pool fee in hundredths of a basis point.
	Fee() uint32

	TickSpacing() int32

	// Slot0 returns the current sqrt price (Q64.96) and tick.
	Slot0() (*uint256.Int, int32)

	// FeeGrowthGlobal returns the cumulative fee growth per unit of
	// liquidity for each token, X128, monotone modulo 2^256.
	FeeGrowthGlobal() (*uint256.Int, *uint256.Int)

	// TickFeeGrowthOutside returns the fee growth recorded on the far
	// side of an initialized tick, X128.
	TickFeeGrowthOutside(tick int32) (*uint256.Int, *uint256.Int)

	// Deposit adds liquidity over the range and returns the token
	// amounts owed to the venue. The caller settles the obligation
	// before the operation completes.
	Deposit(r Range, liquidity *uint256.Int) (owed0, owed1 *uint256.Int, err error)

	// Withdraw removes liquidity over the range and returns the token
	// amounts released plus the trading fees collected for the removed
	// liquidity since the position was last touched.
	Withdraw(r Range, liquidity *uint256.Int) (amount0, amount1, fees0, fees1 *uint256.Int, err error)

	// Poke settles fees for the range without moving liquidity.
	Poke(r Range) (fees0, fees1 *uint256.Int, err error)

	// QuoteSwap prices a swap without executing it: same semantics as
	// Swap but no state change on either side.
	QuoteSwap(zeroForOne bool, amountIn *uint256.Int) (delta0, delta1 *big.Int, newTick int32, err error)

	// Swap trades amountIn of one token for the other. The returned
	// deltas are from the caller's perspective: negative amounts are
	// owed to the venue, positive amounts are received from it.
	Swap(zeroForOne bool, amountIn *uint256.Int) (delta0, delta1 *big.Int, newTick int32, err error)
}

// FeeGrowthInside samples the cumulative fee growth per unit liquidity
// accrued inside [r.TickLower, r.TickUpper], evaluated at atTick. The
// three-region formula subtracts the growth outside the range on
// whichever side of the current price is relevant; counters wrap modulo
// 2^256.
func FeeGrowthInside(v Venue, r Range, atTick int32) (*uint256.Int, *uint256.Int) {
	global0, global1 := v.FeeGrowthGlobal()
	lower0, lower1 := v.TickFeeGrowthOutside(r.TickLower)
	upper0, upper1 := v.TickFeeGrowthOutside(r.TickUpper)

	var below0, below1, above0, above1 *uint256.Int
	if atTick >= r.TickLower {
		below0, below1 = lower0, lower1
	} else {
		below0 = fpmath.WrappingSub(global0, lower0)
		below1 = fpmath.WrappingSub(global1, lower1)
	}
	if atTick < r.TickUpper {
		above0, above1 = upper0, upper1
	} else {
		above0 = fpmath.WrappingSub(global0, upper0)
		above1 = fpmath.WrappingSub(global1, upper1)
	}

	inside0 := fpmath.WrappingSub(fpmath.WrappingSub(global0, below0), above0)
	inside1 := fpmath.WrappingSub(fpmath.WrappingSub(global1, below1), above1)
	return inside0, inside1
}
