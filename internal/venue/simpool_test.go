package venue_test

import (
	"testing"

	"github.com/holiman/uint256"

	"RangeLedger/internal/venue"
)

func newPool(t *testing.T, startTick int32) *venue.SimPool {
	t.Helper()
	p, err := venue.NewSimPool("WETH", "USDC", 3000, 60, startTick)
	if err != nil {
		t.Fatalf("NewSimPool: %v", err)
	}
	return p
}

var inRange = venue.Range{TickLower: -60, TickUpper: 60}

// ============================================================================
// Test: Deposit / Withdraw
// ============================================================================

func TestDeposit_InRangeTakesBothTokens(t *testing.T) {
	p := newPool(t, 0)
	liq := uint256.NewInt(1_000_000_000)

	owed0, owed1, err := p.Deposit(inRange, liq)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if owed0.IsZero() || owed1.IsZero() {
		t.Errorf("in-range deposit owed (%s, %s), want both nonzero", owed0, owed1)
	}
	if !p.Liquidity().Eq(liq) {
		t.Errorf("active liquidity: got %s, want %s", p.Liquidity(), liq)
	}
}

func TestDeposit_AboveRangeIsSingleSided(t *testing.T) {
	p := newPool(t, 0)
	r := venue.Range{TickLower: 60, TickUpper: 120}

	owed0, owed1, err := p.Deposit(r, uint256.NewInt(1_000_000_000))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if owed0.IsZero() || !owed1.IsZero() {
		t.Errorf("above-price deposit owed (%s, %s), want token0 only", owed0, owed1)
	}
	// Out-of-range liquidity is not active.
	if !p.Liquidity().IsZero() {
		t.Errorf("active liquidity: got %s, want 0", p.Liquidity())
	}
}

func TestDeposit_MisalignedRangeRejected(t *testing.T) {
	p := newPool(t, 0)
	if _, _, err := p.Deposit(venue.Range{TickLower: -50, TickUpper: 60}, uint256.NewInt(1)); err == nil {
		t.Error("expected error for range not aligned to spacing")
	}
	if _, _, err := p.Deposit(venue.Range{TickLower: 60, TickUpper: 60}, uint256.NewInt(1)); err == nil {
		t.Error("expected error for degenerate range")
	}
}

func TestWithdraw_ReturnsDeposit(t *testing.T) {
	p := newPool(t, 0)
	liq := uint256.NewInt(1_000_000_000)

	owed0, owed1, err := p.Deposit(inRange, liq)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	got0, got1, fees0, fees1, err := p.Withdraw(inRange, liq)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !got0.Eq(owed0) || !got1.Eq(owed1) {
		t.Errorf("withdraw amounts (%s, %s) differ from deposit (%s, %s)", got0, got1, owed0, owed1)
	}
	if !fees0.IsZero() || !fees1.IsZero() {
		t.Errorf("fees (%s, %s) without trading, want zeros", fees0, fees1)
	}
	if !p.Liquidity().IsZero() {
		t.Errorf("active liquidity after full withdraw: %s", p.Liquidity())
	}
}

func TestWithdraw_ExceedsPosition(t *testing.T) {
	p := newPool(t, 0)
	if _, _, _, _, err := p.Withdraw(inRange, uint256.NewInt(1)); err == nil {
		t.Error("expected error withdrawing from empty position")
	}
}

// ============================================================================
// Test: Fees
// ============================================================================

func TestAccrueFees_CollectedOnWithdraw(t *testing.T) {
	p := newPool(t, 0)
	liq := uint256.NewInt(1_000_000_000)
	if _, _, err := p.Deposit(inRange, liq); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := p.AccrueFees(uint256.NewInt(5000), uint256.NewInt(3000)); err != nil {
		t.Fatalf("AccrueFees: %v", err)
	}

	_, _, fees0, fees1, err := p.Withdraw(inRange, liq)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	// Per-liquidity growth floors twice, so at most one unit is lost.
	if fees0.Uint64() < 4999 || fees0.Uint64() > 5000 {
		t.Errorf("fees0: got %s, want ~5000", fees0)
	}
	if fees1.Uint64() < 2999 || fees1.Uint64() > 3000 {
		t.Errorf("fees1: got %s, want ~3000", fees1)
	}
}

func TestAccrueFees_SplitsProportionally(t *testing.T) {
	p := newPool(t, 0)
	liqA := uint256.NewInt(3_000_000_000)
	liqB := uint256.NewInt(1_000_000_000)
	wide := venue.Range{TickLower: -120, TickUpper: 120}

	if _, _, err := p.Deposit(inRange, liqA); err != nil {
		t.Fatalf("Deposit A: %v", err)
	}
	if _, _, err := p.Deposit(wide, liqB); err != nil {
		t.Fatalf("Deposit B: %v", err)
	}
	if err := p.AccrueFees(uint256.NewInt(4000), uint256.NewInt(0)); err != nil {
		t.Fatalf("AccrueFees: %v", err)
	}

	feesA0, _, err := p.Poke(inRange)
	if err != nil {
		t.Fatalf("Poke A: %v", err)
	}
	feesB0, _, err := p.Poke(wide)
	if err != nil {
		t.Fatalf("Poke B: %v", err)
	}
	// 3:1 active liquidity split over 4000 of fees.
	if feesA0.Uint64() < 2999 || feesA0.Uint64() > 3000 {
		t.Errorf("feesA0: got %s, want ~3000", feesA0)
	}
	if feesB0.Uint64() < 999 || feesB0.Uint64() > 1000 {
		t.Errorf("feesB0: got %s, want ~1000", feesB0)
	}
}

// ============================================================================
// Test: Swap
// ============================================================================

func TestSwap_ZeroForOne(t *testing.T) {
	p := newPool(t, 0)
	if _, _, err := p.Deposit(inRange, uint256.NewInt(100_000_000_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	_, tickBefore := p.Slot0()
	g0Before, _ := p.FeeGrowthGlobal()

	amountIn := uint256.NewInt(100_000)
	delta0, delta1, newTick, err := p.Swap(true, amountIn)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if delta0.Sign() >= 0 {
		t.Errorf("delta0 %s should be negative (owed to venue)", delta0)
	}
	if delta1.Sign() <= 0 {
		t.Errorf("delta1 %s should be positive (received)", delta1)
	}
	if newTick > tickBefore {
		t.Errorf("selling token0 moved tick up: %d -> %d", tickBefore, newTick)
	}

	g0After, _ := p.FeeGrowthGlobal()
	if !g0After.Gt(g0Before) {
		t.Error("fee growth for the input token did not increase")
	}
}

func TestQuoteSwap_MatchesSwapWithoutStateChange(t *testing.T) {
	p := newPool(t, 0)
	if _, _, err := p.Deposit(inRange, uint256.NewInt(100_000_000_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	amountIn := uint256.NewInt(100_000)

	q0, q1, qTick, err := p.QuoteSwap(true, amountIn)
	if err != nil {
		t.Fatalf("QuoteSwap: %v", err)
	}
	_, tickAfterQuote := p.Slot0()
	if tickAfterQuote != 0 {
		t.Errorf("quote moved the pool tick to %d", tickAfterQuote)
	}

	s0, s1, sTick, err := p.Swap(true, amountIn)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if q0.Cmp(s0) != 0 || q1.Cmp(s1) != 0 || qTick != sTick {
		t.Errorf("quote (%s, %s, %d) differs from swap (%s, %s, %d)", q0, q1, qTick, s0, s1, sTick)
	}
}

func TestSwap_NoLiquidity(t *testing.T) {
	p := newPool(t, 0)
	if _, _, _, err := p.Swap(true, uint256.NewInt(1000)); err == nil {
		t.Error("expected error swapping with no active liquidity")
	}
}

func TestSwap_RefusesToCrossInitializedTick(t *testing.T) {
	p := newPool(t, 0)
	if _, _, err := p.Deposit(inRange, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	// An input far larger than the range can absorb pushes past -60.
	if _, _, _, err := p.Swap(true, uint256.NewInt(1_000_000_000)); err == nil {
		t.Error("expected error for swap crossing the range boundary")
	}
}

// ============================================================================
// Test: MovePrice
// ============================================================================

func TestMovePrice_CrossesRange(t *testing.T) {
	p := newPool(t, 0)
	liq := uint256.NewInt(1_000_000_000)
	if _, _, err := p.Deposit(inRange, liq); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := p.MovePrice(-120); err != nil {
		t.Fatalf("MovePrice: %v", err)
	}
	if !p.Liquidity().IsZero() {
		t.Errorf("liquidity still active below the range: %s", p.Liquidity())
	}

	// Below the range the position is entirely token0.
	amount0, amount1, _, _, err := p.Withdraw(inRange, liq)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if amount0.IsZero() || !amount1.IsZero() {
		t.Errorf("below-range withdraw: got (%s, %s), want token0 only", amount0, amount1)
	}

	if err := p.MovePrice(0); err != nil {
		t.Fatalf("MovePrice back: %v", err)
	}
	_, tick := p.Slot0()
	if tick != 0 {
		t.Errorf("tick: got %d, want 0", tick)
	}
}
