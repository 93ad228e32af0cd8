// Package position defines the packed multi-leg position identifier, its
// validation rules, and the derivation of concrete liquidity chunks from
// leg parameters.
package position

import (
	"errors"
)

// Sentinel errors shared by the codec and the chunk deriver.
var (
	ErrInvalidTokenID = errors.New("invalid position identifier")
	ErrZeroLiquidity  = errors.New("derived liquidity is zero")
)

// MaxLegs is the leg capacity of one identifier.
const MaxLegs = 4

// MaxRatio bounds the relative sizing multiplier of a leg.
const MaxRatio = 127

// TokenType selects which side of the pair a leg's liquidity is
// denominated in when deployed.
type TokenType uint8

const (
	TokenType0 TokenType = iota // call-equivalent: liquidity in token0
	TokenType1                  // put-equivalent: liquidity in token1
)

// Leg is one component of a multi-part position: a strike/width price
// range, a relative size ratio, and a long/short direction.
type Leg struct {
	// AssetToken1 selects the asset that denominates position size for
	// this leg: false = token0, true = token1.
	AssetToken1 bool

	// Ratio is the relative leg sizing multiplier, 1..127.
	Ratio uint8

	// IsLong marks a leg that borrows liquidity out of the venue rather
	// than deploying it.
	IsLong bool

	// TokenType selects the deployed token side.
	TokenType TokenType

	// RiskPartner is the index of the leg this one is hedged against.
	// A leg pointing at its own index has no partner.
	RiskPartner int

	// Strike is the center tick of the leg's range.
	Strike int32

	// Width is the range half-size in tick-spacing units, 1..4095.
	Width int32
}

// empty reports whether the leg slot is unpopulated. Ratio 0 marks an
// empty slot in the wire encoding.
func (l Leg) empty() bool {
	return l.Ratio == 0
}

// sameChunkShape reports whether two legs describe the same chunk with
// the same direction, which validation rejects as a degenerate pairing.
func (l Leg) sameChunkShape(o Leg) bool {
	return l.Strike == o.Strike && l.Width == o.Width &&
		l.TokenType == o.TokenType && l.IsLong == o.IsLong
}
