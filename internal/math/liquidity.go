package math

import (
	"github.com/holiman/uint256"
)

// Constant-product liquidity math over a sqrt-price range. All results
// floor; the same floor is relied on at mint and at burn/transfer
// validation so liquidity cannot leak between accounts.

func sortRatios(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Gt(b) {
		return b, a
	}
	return a, b
}

// Amount0ForLiquidity returns the token0 amount backing liquidity over
// [sqrtA, sqrtB]: L<<96 * (B-A) / B / A.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) *uint256.Int {
	a, b := sortRatios(sqrtA, sqrtB)
	num := new(uint256.Int).Lsh(liquidity, 96)
	span := new(uint256.Int).Sub(b, a)
	out, err := MulDiv(num, span, b)
	if err != nil {
		return new(uint256.Int)
	}
	return out.Div(out, a)
}

// Amount1ForLiquidity returns the token1 amount backing liquidity over
// [sqrtA, sqrtB]: L * (B-A) / 2^96.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) *uint256.Int {
	a, b := sortRatios(sqrtA, sqrtB)
	span := new(uint256.Int).Sub(b, a)
	return MulDiv96(liquidity, span)
}

// LiquidityForAmount0 returns the liquidity equivalent of a token0 amount
// over [sqrtA, sqrtB].
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) *uint256.Int {
	a, b := sortRatios(sqrtA, sqrtB)
	intermediate, err := MulDiv(a, b, Q96)
	if err != nil {
		return new(uint256.Int)
	}
	span := new(uint256.Int).Sub(b, a)
	out, err := MulDiv(amount0, intermediate, span)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}

// LiquidityForAmount1 returns the liquidity equivalent of a token1 amount
// over [sqrtA, sqrtB].
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) *uint256.Int {
	a, b := sortRatios(sqrtA, sqrtB)
	span := new(uint256.Int).Sub(b, a)
	out, err := MulDiv(amount1, Q96, span)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}

// AmountsForLiquidity returns the token amounts backing liquidity over
// [sqrtA, sqrtB] at the current price. Entirely-below ranges are all
// token0, entirely-above all token1, straddling ranges split at the
// current price.
func AmountsForLiquidity(sqrtCurrent, sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, *uint256.Int) {
	a, b := sortRatios(sqrtA, sqrtB)
	amount0 := new(uint256.Int)
	amount1 := new(uint256.Int)

	switch {
	case !sqrtCurrent.Gt(a):
		amount0 = Amount0ForLiquidity(a, b, liquidity)
	case sqrtCurrent.Lt(b):
		amount0 = Amount0ForLiquidity(sqrtCurrent, b, liquidity)
		amount1 = Amount1ForLiquidity(a, sqrtCurrent, liquidity)
	default:
		amount1 = Amount1ForLiquidity(a, b, liquidity)
	}
	return amount0, amount1
}
