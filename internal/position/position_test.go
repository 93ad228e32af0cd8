package position_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"RangeLedger/internal/position"
)

// ============================================================================
// Test: TokenID codec
// ============================================================================

func TestTokenID_EncodeDecodeRoundTrip(t *testing.T) {
	tid := position.TokenID{
		PoolID: 7,
		Legs: []position.Leg{
			{Ratio: 1, TokenType: position.TokenType0, Strike: 1200, Width: 2, RiskPartner: 0},
			{Ratio: 3, TokenType: position.TokenType1, Strike: -4560, Width: 10, RiskPartner: 1, IsLong: true, AssetToken1: true},
			{Ratio: 127, TokenType: position.TokenType0, Strike: 887100, Width: 4095, RiskPartner: 2},
		},
	}

	id, err := tid.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := position.Decode(id)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.PoolID != tid.PoolID {
		t.Errorf("pool id: got %d, want %d", got.PoolID, tid.PoolID)
	}
	if len(got.Legs) != len(tid.Legs) {
		t.Fatalf("leg count: got %d, want %d", len(got.Legs), len(tid.Legs))
	}
	for i := range tid.Legs {
		if got.Legs[i] != tid.Legs[i] {
			t.Errorf("leg %d: got %+v, want %+v", i, got.Legs[i], tid.Legs[i])
		}
	}
}

func TestTokenID_EncodeCanonical(t *testing.T) {
	tid := position.TokenID{
		PoolID: 1,
		Legs:   []position.Leg{{Ratio: 2, Strike: -300, Width: 6}},
	}
	a, err := tid.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := tid.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !a.Eq(b) {
		t.Errorf("encoding not canonical: %s vs %s", a.Hex(), b.Hex())
	}
}

func TestTokenID_NegativeStrikeRoundTrip(t *testing.T) {
	for _, strike := range []int32{-887272, -1, 0, 1, 887272} {
		tid := position.TokenID{PoolID: 1, Legs: []position.Leg{{Ratio: 1, Strike: strike, Width: 2}}}
		id, err := tid.Encode()
		if err != nil {
			t.Fatalf("Encode strike %d: %v", strike, err)
		}
		got, err := position.Decode(id)
		if err != nil {
			t.Fatalf("Decode strike %d: %v", strike, err)
		}
		if got.Legs[0].Strike != strike {
			t.Errorf("strike %d: decoded as %d", strike, got.Legs[0].Strike)
		}
	}
}

func TestDecode_RejectsGap(t *testing.T) {
	tid := position.TokenID{PoolID: 1, Legs: []position.Leg{{Ratio: 1, Strike: 0, Width: 2}}}
	id, err := tid.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Plant a populated leg in slot 2, leaving slot 1 empty.
	stray := new(uint256.Int).Lsh(uint256.NewInt(1), 64+2*48)
	id.Or(id, stray)

	if _, err := position.Decode(id); !errors.Is(err, position.ErrInvalidTokenID) {
		t.Errorf("got %v, want ErrInvalidTokenID", err)
	}
}

func TestDecode_RejectsNoLegs(t *testing.T) {
	if _, err := position.Decode(uint256.NewInt(42)); !errors.Is(err, position.ErrInvalidTokenID) {
		t.Errorf("got %v, want ErrInvalidTokenID", err)
	}
}

func TestEncode_RejectsZeroRatio(t *testing.T) {
	tid := position.TokenID{PoolID: 1, Legs: []position.Leg{{Ratio: 0, Strike: 0, Width: 2}}}
	if _, err := tid.Encode(); !errors.Is(err, position.ErrInvalidTokenID) {
		t.Errorf("got %v, want ErrInvalidTokenID", err)
	}
}

// ============================================================================
// Test: Validation
// ============================================================================

func TestValidate_Table(t *testing.T) {
	const spacing = 60

	cases := []struct {
		name    string
		legs    []position.Leg
		wantErr bool
	}{
		{
			name: "single short leg",
			legs: []position.Leg{{Ratio: 1, Strike: 0, Width: 2}},
		},
		{
			name: "mutual risk partners opposite direction",
			legs: []position.Leg{
				{Ratio: 1, Strike: 0, Width: 2, RiskPartner: 1},
				{Ratio: 1, Strike: 600, Width: 2, RiskPartner: 0, IsLong: true},
			},
		},
		{
			name: "non-mutual risk partner",
			legs: []position.Leg{
				{Ratio: 1, Strike: 0, Width: 2, RiskPartner: 1},
				{Ratio: 1, Strike: 600, Width: 2, RiskPartner: 1, IsLong: true},
			},
			wantErr: true,
		},
		{
			name: "risk partners same direction",
			legs: []position.Leg{
				{Ratio: 1, Strike: 0, Width: 2, RiskPartner: 1},
				{Ratio: 1, Strike: 600, Width: 2, RiskPartner: 0},
			},
			wantErr: true,
		},
		{
			name: "risk partners different asset denomination",
			legs: []position.Leg{
				{Ratio: 1, Strike: 0, Width: 2, RiskPartner: 1},
				{Ratio: 1, Strike: 600, Width: 2, RiskPartner: 0, IsLong: true, AssetToken1: true},
			},
			wantErr: true,
		},
		{
			name: "duplicate chunk same direction",
			legs: []position.Leg{
				{Ratio: 1, Strike: 0, Width: 2},
				{Ratio: 2, Strike: 0, Width: 2},
			},
			wantErr: true,
		},
		{
			name: "same chunk opposite direction allowed",
			legs: []position.Leg{
				{Ratio: 2, Strike: 0, Width: 2, RiskPartner: 1},
				{Ratio: 1, Strike: 0, Width: 2, RiskPartner: 0, IsLong: true},
			},
		},
		{
			name:    "partner index out of range",
			legs:    []position.Leg{{Ratio: 1, Strike: 0, Width: 2, RiskPartner: 3}},
			wantErr: true,
		},
		{
			name:    "range outside tick bounds",
			legs:    []position.Leg{{Ratio: 1, Strike: 887272, Width: 10}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tid := position.TokenID{PoolID: 1, Legs: tc.legs}
			err := tid.Validate(spacing)
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// ============================================================================
// Test: Chunk derivation
// ============================================================================

func TestLegChunk_TickRange(t *testing.T) {
	// Even span splits symmetrically around the strike.
	leg := position.Leg{Ratio: 1, Strike: 0, Width: 2}
	chunk, err := position.LegChunk(leg, uint256.NewInt(1_000_000_000), 60)
	if err != nil {
		t.Fatalf("LegChunk: %v", err)
	}
	if chunk.TickLower != -60 || chunk.TickUpper != 60 {
		t.Errorf("got [%d, %d], want [-60, 60]", chunk.TickLower, chunk.TickUpper)
	}
}

func TestLegChunk_AsymmetricSplit(t *testing.T) {
	// Odd span: the extra tick goes above the strike before flooring.
	leg := position.Leg{Ratio: 1, Strike: 100, Width: 1}
	chunk, err := position.LegChunk(leg, uint256.NewInt(1_000_000_000), 10)
	if err != nil {
		t.Fatalf("LegChunk: %v", err)
	}
	if chunk.TickLower != 90 || chunk.TickUpper != 100 {
		t.Errorf("got [%d, %d], want [90, 100]", chunk.TickLower, chunk.TickUpper)
	}
}

func TestLegChunk_RatioScalesLiquidity(t *testing.T) {
	size := uint256.NewInt(1_000_000_000)
	one, err := position.LegChunk(position.Leg{Ratio: 1, Strike: 0, Width: 2}, size, 60)
	if err != nil {
		t.Fatalf("LegChunk ratio 1: %v", err)
	}
	three, err := position.LegChunk(position.Leg{Ratio: 3, Strike: 0, Width: 2}, size, 60)
	if err != nil {
		t.Fatalf("LegChunk ratio 3: %v", err)
	}

	lower := new(uint256.Int).Mul(one.Liquidity, uint256.NewInt(3))
	// Flooring happens after the ratio multiply, so 3x the amount yields
	// at least 3x the unit liquidity.
	if three.Liquidity.Lt(lower) {
		t.Errorf("ratio 3 liquidity %s below 3x unit %s", three.Liquidity, lower)
	}
}

func TestLegChunk_DustReturnsZeroLiquidity(t *testing.T) {
	leg := position.Leg{Ratio: 1, Strike: 0, Width: 4095}
	chunk, err := position.LegChunk(leg, uint256.NewInt(1), 60)
	if !errors.Is(err, position.ErrZeroLiquidity) {
		t.Fatalf("got %v, want ErrZeroLiquidity", err)
	}
	// The chunk's range still comes back so callers can apply the dust
	// exemption.
	if chunk.TickLower >= chunk.TickUpper {
		t.Errorf("degenerate range [%d, %d] on dust chunk", chunk.TickLower, chunk.TickUpper)
	}
}

func TestLegChunk_AssetDenominationDiffers(t *testing.T) {
	size := uint256.NewInt(1_000_000_000)
	byToken0, err := position.LegChunk(position.Leg{Ratio: 1, Strike: 2400, Width: 2}, size, 60)
	if err != nil {
		t.Fatalf("LegChunk token0: %v", err)
	}
	byToken1, err := position.LegChunk(position.Leg{Ratio: 1, Strike: 2400, Width: 2, AssetToken1: true}, size, 60)
	if err != nil {
		t.Fatalf("LegChunk token1: %v", err)
	}
	if byToken0.Liquidity.Eq(byToken1.Liquidity) {
		t.Error("token0- and token1-denominated legs should derive different liquidity away from parity")
	}
}
