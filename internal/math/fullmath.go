package math

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a result does not fit its target width.
var ErrOverflow = errors.New("arithmetic overflow")

var (
	// Q64 is the 2^64 fixed-point scaling factor used by premium accumulators.
	Q64 = uint256.MustFromHex("0x10000000000000000")
	// Q96 is the 2^96 scaling factor of sqrt prices.
	Q96 = uint256.MustFromHex("0x1000000000000000000000000")
	// Q128 is the 2^128 scaling factor of fee-growth counters.
	Q128 = uint256.MustFromHex("0x100000000000000000000000000000000")

	// MaxUint128 bounds liquidity amounts.
	MaxUint128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")

	bigQ64  = new(big.Int).Lsh(big.NewInt(1), 64)
	bigQ96  = new(big.Int).Lsh(big.NewInt(1), 96)
	bigQ128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

// MulDiv computes floor(a*b/denom) with a full 512-bit intermediate product.
// Returns ErrOverflow if the result does not fit in 256 bits, and an error
// on a zero denominator.
func MulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, errors.New("muldiv: division by zero")
	}
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	prod.Quo(prod, denom.ToBig())
	out, overflow := uint256.FromBig(prod)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDiv64 computes floor(a*b/2^64). Used to turn per-unit X64 premium
// values into absolute token amounts.
func MulDiv64(a, b *uint256.Int) *uint256.Int {
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	prod.Rsh(prod, 64)
	out, _ := uint256.FromBig(prod)
	return out
}

// MulDiv96 computes floor(a*b/2^96).
func MulDiv96(a, b *uint256.Int) *uint256.Int {
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	prod.Rsh(prod, 96)
	out, _ := uint256.FromBig(prod)
	return out
}

// MulDiv128 computes floor(a*b/2^128). This is the fee-per-liquidity times
// liquidity primitive: exact up to the full 512-bit product before the
// final shift.
func MulDiv128(a, b *uint256.Int) *uint256.Int {
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	prod.Rsh(prod, 128)
	out, _ := uint256.FromBig(prod)
	return out
}

// WrappingSub computes a-b modulo 2^256. Fee-growth counters are monotone
// modulo 2^256, so deltas must be taken with wraparound semantics.
func WrappingSub(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(a, b)
}

// CheckUint128 verifies v fits an unsigned 128-bit liquidity amount.
func CheckUint128(v *uint256.Int) error {
	if v.Gt(MaxUint128) {
		return ErrOverflow
	}
	return nil
}
