package position

import (
	"fmt"

	"github.com/holiman/uint256"

	fpmath "RangeLedger/internal/math"
)

// LiquidityChunk is the concrete price range and liquidity amount derived
// from one leg. It is always recomputed from leg parameters, never stored
// independently.
type LiquidityChunk struct {
	TickLower int32
	TickUpper int32
	Liquidity *uint256.Int
}

// legTicks computes the chunk's tick range: strike +/- width*spacing/2,
// each bound rounded down to a tick-spacing multiple. The asymmetric
// split keeps the full span when width*spacing is odd.
func legTicks(leg Leg, tickSpacing int32) (int32, int32, error) {
	if tickSpacing <= 0 {
		return 0, 0, fmt.Errorf("%w: tick spacing %d", ErrInvalidTokenID, tickSpacing)
	}
	span := leg.Width * tickSpacing
	down := span / 2
	up := span - down

	lower := floorToSpacing(leg.Strike-down, tickSpacing)
	upper := floorToSpacing(leg.Strike+up, tickSpacing)
	if lower < fpmath.MinTick || upper > fpmath.MaxTick {
		return 0, 0, fmt.Errorf("%w: range [%d, %d] outside tick bounds", ErrInvalidTokenID, lower, upper)
	}
	return lower, upper, nil
}

func floorToSpacing(tick, spacing int32) int32 {
	r := tick % spacing
	if r < 0 {
		r += spacing
	}
	return tick - r
}

// LegChunk derives the chunk for a leg at the given position size. The
// liquidity amount uses the leg's denominating asset's constant-product
// formula and floors; it must be recomputed per leg because of
// ratio-specific rounding. A zero floor for a nonzero size returns the
// chunk together with ErrZeroLiquidity so callers can apply the
// dust exemption where it is allowed.
func LegChunk(leg Leg, positionSize *uint256.Int, tickSpacing int32) (LiquidityChunk, error) {
	lower, upper, err := legTicks(leg, tickSpacing)
	if err != nil {
		return LiquidityChunk{}, err
	}
	chunk := LiquidityChunk{TickLower: lower, TickUpper: upper, Liquidity: new(uint256.Int)}

	amount := new(uint256.Int).Mul(positionSize, uint256.NewInt(uint64(leg.Ratio)))
	if err := fpmath.CheckUint128(amount); err != nil {
		return LiquidityChunk{}, fmt.Errorf("leg amount: %w", err)
	}

	sqrtLower, err := fpmath.SqrtRatioAtTick(lower)
	if err != nil {
		return LiquidityChunk{}, err
	}
	sqrtUpper, err := fpmath.SqrtRatioAtTick(upper)
	if err != nil {
		return LiquidityChunk{}, err
	}

	if leg.AssetToken1 {
		chunk.Liquidity = fpmath.LiquidityForAmount1(sqrtLower, sqrtUpper, amount)
	} else {
		chunk.Liquidity = fpmath.LiquidityForAmount0(sqrtLower, sqrtUpper, amount)
	}
	if err := fpmath.CheckUint128(chunk.Liquidity); err != nil {
		return LiquidityChunk{}, fmt.Errorf("leg liquidity: %w", err)
	}

	if chunk.Liquidity.IsZero() && !positionSize.IsZero() {
		return chunk, ErrZeroLiquidity
	}
	return chunk, nil
}
