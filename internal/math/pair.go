package math

import (
	"fmt"
	"math/big"
)

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// TokenPair carries a two-sided signed amount: Right is the token0 amount,
// Left the token1 amount. Each half is bounded to the signed 128-bit range;
// any operation that would push a half outside that range fails with
// ErrOverflow.
type TokenPair struct {
	right *big.Int
	left  *big.Int
}

// NewTokenPair returns a zero pair.
func NewTokenPair() TokenPair {
	return TokenPair{right: new(big.Int), left: new(big.Int)}
}

// PairOf builds a pair from explicit halves. The inputs are copied.
func PairOf(right, left *big.Int) (TokenPair, error) {
	p := NewTokenPair()
	if err := checkInt128(right); err != nil {
		return p, fmt.Errorf("right half: %w", err)
	}
	if err := checkInt128(left); err != nil {
		return p, fmt.Errorf("left half: %w", err)
	}
	p.right.Set(right)
	p.left.Set(left)
	return p, nil
}

// Right returns a copy of the token0 half.
func (p TokenPair) Right() *big.Int {
	if p.right == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.right)
}

// Left returns a copy of the token1 half.
func (p TokenPair) Left() *big.Int {
	if p.left == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(p.left)
}

// IsZero reports whether both halves are zero.
func (p TokenPair) IsZero() bool {
	return (p.right == nil || p.right.Sign() == 0) && (p.left == nil || p.left.Sign() == 0)
}

// Add returns p+q, checking both halves against the int128 range.
func (p TokenPair) Add(q TokenPair) (TokenPair, error) {
	return PairOf(
		new(big.Int).Add(p.Right(), q.Right()),
		new(big.Int).Add(p.Left(), q.Left()),
	)
}

// Sub returns p-q, checking both halves against the int128 range.
func (p TokenPair) Sub(q TokenPair) (TokenPair, error) {
	return PairOf(
		new(big.Int).Sub(p.Right(), q.Right()),
		new(big.Int).Sub(p.Left(), q.Left()),
	)
}

// Neg returns the pair with both halves negated.
func (p TokenPair) Neg() TokenPair {
	out, _ := PairOf(new(big.Int).Neg(p.Right()), new(big.Int).Neg(p.Left()))
	return out
}

// AddRight returns the pair with v added to the token0 half.
func (p TokenPair) AddRight(v *big.Int) (TokenPair, error) {
	return PairOf(new(big.Int).Add(p.Right(), v), p.Left())
}

// AddLeft returns the pair with v added to the token1 half.
func (p TokenPair) AddLeft(v *big.Int) (TokenPair, error) {
	return PairOf(p.Right(), new(big.Int).Add(p.Left(), v))
}

func (p TokenPair) String() string {
	return fmt.Sprintf("(right=%s left=%s)", p.Right(), p.Left())
}

func checkInt128(v *big.Int) error {
	if v.Cmp(maxInt128) > 0 || v.Cmp(minInt128) < 0 {
		return ErrOverflow
	}
	return nil
}
