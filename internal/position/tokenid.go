package position

import (
	"fmt"

	"github.com/holiman/uint256"

	fpmath "RangeLedger/internal/math"
)

// TokenID identifies a multi-leg position against one venue. The wire
// form packs the canonical pool id into the low 64 bits and up to four
// 48-bit leg records above it; the encoding is canonical, so two
// identifiers describing the same economic position are byte-identical.
//
// Leg record layout (48 bits, low to high):
//
//	ratio:7 | assetToken1:1 | isLong:1 | tokenType:1 | riskPartner:2 | strike:24 (two's complement) | width:12
type TokenID struct {
	PoolID uint64
	Legs   []Leg
}

const (
	legBits       = 48
	legBaseOffset = 64

	ratioMask   = 0x7f
	strikeMask  = 0xffffff
	widthMask   = 0xfff
	strikeSign  = 0x800000
	maxWidth    = 0xfff
	legBitsMask = (uint64(1) << legBits) - 1
)

// LegCount returns the number of populated legs.
func (t TokenID) LegCount() int {
	return len(t.Legs)
}

// Encode packs the identifier into its canonical wire integer. The
// identifier is validated structurally first; tick-spacing dependent
// checks are left to Validate.
func (t TokenID) Encode() (*uint256.Int, error) {
	if len(t.Legs) == 0 || len(t.Legs) > MaxLegs {
		return nil, fmt.Errorf("%w: %d legs", ErrInvalidTokenID, len(t.Legs))
	}

	out := uint256.NewInt(t.PoolID)
	for i, leg := range t.Legs {
		if leg.empty() {
			return nil, fmt.Errorf("%w: leg %d has zero ratio", ErrInvalidTokenID, i)
		}
		packed, err := packLeg(leg)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		word := new(uint256.Int).Lsh(uint256.NewInt(packed), uint(legBaseOffset+i*legBits))
		out.Or(out, word)
	}
	return out, nil
}

// Decode unpacks a wire integer. Legs must be contiguous from index 0;
// a populated slot after an empty one, or stray bits in empty slots,
// make the identifier invalid.
func Decode(id *uint256.Int) (TokenID, error) {
	t := TokenID{PoolID: new(uint256.Int).And(id, uint256.NewInt(^uint64(0))).Uint64()}

	sawEmpty := false
	for i := 0; i < MaxLegs; i++ {
		raw := new(uint256.Int).Rsh(id, uint(legBaseOffset+i*legBits))
		bits := raw.Uint64() & legBitsMask

		if bits == 0 {
			sawEmpty = true
			continue
		}
		if sawEmpty {
			return TokenID{}, fmt.Errorf("%w: leg %d populated after a gap", ErrInvalidTokenID, i)
		}
		leg, err := unpackLeg(bits)
		if err != nil {
			return TokenID{}, fmt.Errorf("leg %d: %w", i, err)
		}
		t.Legs = append(t.Legs, leg)
	}
	if len(t.Legs) == 0 {
		return TokenID{}, fmt.Errorf("%w: no legs", ErrInvalidTokenID)
	}
	return t, nil
}

// Validate checks the full leg-combination rules for the given venue
// tick spacing. It is pure: identifiers are the universal ledger key and
// must be checked before any state is touched.
func (t TokenID) Validate(tickSpacing int32) error {
	n := len(t.Legs)
	if n == 0 || n > MaxLegs {
		return fmt.Errorf("%w: %d legs", ErrInvalidTokenID, n)
	}

	for i, leg := range t.Legs {
		if leg.Ratio == 0 || leg.Ratio > MaxRatio {
			return fmt.Errorf("%w: leg %d ratio %d", ErrInvalidTokenID, i, leg.Ratio)
		}
		if leg.Width <= 0 || leg.Width > maxWidth {
			return fmt.Errorf("%w: leg %d width %d", ErrInvalidTokenID, i, leg.Width)
		}
		if leg.TokenType > TokenType1 {
			return fmt.Errorf("%w: leg %d token type %d", ErrInvalidTokenID, i, leg.TokenType)
		}
		lower, upper, err := legTicks(leg, tickSpacing)
		if err != nil {
			return err
		}
		if lower >= upper {
			return fmt.Errorf("%w: leg %d degenerate range [%d, %d]", ErrInvalidTokenID, i, lower, upper)
		}

		if leg.RiskPartner < 0 || leg.RiskPartner >= n {
			return fmt.Errorf("%w: leg %d risk partner %d out of range", ErrInvalidTokenID, i, leg.RiskPartner)
		}
		if p := leg.RiskPartner; p != i {
			partner := t.Legs[p]
			if partner.RiskPartner != i {
				return fmt.Errorf("%w: legs %d and %d are not mutual risk partners", ErrInvalidTokenID, i, p)
			}
			if partner.IsLong == leg.IsLong {
				return fmt.Errorf("%w: risk partners %d and %d have the same direction", ErrInvalidTokenID, i, p)
			}
			if partner.AssetToken1 != leg.AssetToken1 {
				return fmt.Errorf("%w: risk partners %d and %d have different asset denominations", ErrInvalidTokenID, i, p)
			}
		}

		for j := 0; j < i; j++ {
			if leg.sameChunkShape(t.Legs[j]) {
				return fmt.Errorf("%w: legs %d and %d duplicate the same chunk", ErrInvalidTokenID, j, i)
			}
		}
	}
	return nil
}

func packLeg(leg Leg) (uint64, error) {
	if leg.Ratio == 0 || leg.Ratio > MaxRatio {
		return 0, fmt.Errorf("%w: ratio %d", ErrInvalidTokenID, leg.Ratio)
	}
	if leg.Width <= 0 || leg.Width > maxWidth {
		return 0, fmt.Errorf("%w: width %d", ErrInvalidTokenID, leg.Width)
	}
	if leg.Strike < fpmath.MinTick || leg.Strike > fpmath.MaxTick {
		return 0, fmt.Errorf("%w: strike %d", ErrInvalidTokenID, leg.Strike)
	}
	if leg.RiskPartner < 0 || leg.RiskPartner >= MaxLegs {
		return 0, fmt.Errorf("%w: risk partner %d", ErrInvalidTokenID, leg.RiskPartner)
	}

	bits := uint64(leg.Ratio) & ratioMask
	if leg.AssetToken1 {
		bits |= 1 << 7
	}
	if leg.IsLong {
		bits |= 1 << 8
	}
	if leg.TokenType == TokenType1 {
		bits |= 1 << 9
	}
	bits |= uint64(leg.RiskPartner) << 10
	bits |= (uint64(uint32(leg.Strike)) & strikeMask) << 12
	bits |= uint64(leg.Width) << 36
	return bits, nil
}

func unpackLeg(bits uint64) (Leg, error) {
	leg := Leg{
		Ratio:       uint8(bits & ratioMask),
		AssetToken1: bits&(1<<7) != 0,
		IsLong:      bits&(1<<8) != 0,
		RiskPartner: int((bits >> 10) & 0x3),
		Width:       int32((bits >> 36) & widthMask),
	}
	if bits&(1<<9) != 0 {
		leg.TokenType = TokenType1
	}

	raw := (bits >> 12) & strikeMask
	if raw&strikeSign != 0 {
		leg.Strike = int32(raw) - (1 << 24)
	} else {
		leg.Strike = int32(raw)
	}
	if leg.Strike < fpmath.MinTick || leg.Strike > fpmath.MaxTick {
		return Leg{}, fmt.Errorf("%w: strike %d", ErrInvalidTokenID, leg.Strike)
	}
	if leg.Width == 0 {
		return Leg{}, fmt.Errorf("%w: zero width", ErrInvalidTokenID)
	}
	return leg, nil
}
