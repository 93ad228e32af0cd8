package core_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"RangeLedger/internal/core"
	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/position"
	"RangeLedger/internal/venue"
)

// ============================================================
// Helpers
// ============================================================

func newTestEngine(t *testing.T) (*core.Engine, *venue.SimPool, uint64, chan core.Output) {
	t.Helper()
	persist := make(chan core.Output, 256)
	e := core.NewEngine(zerolog.Nop(), nil, persist, nil)

	pool, err := venue.NewSimPool("WETH", "USDC", 3000, 60, 0)
	if err != nil {
		t.Fatalf("NewSimPool: %v", err)
	}
	poolID, err := e.RegisterVenue(pool)
	if err != nil {
		t.Fatalf("RegisterVenue: %v", err)
	}
	if poolID != 1 {
		t.Fatalf("first pool id = %d, want 1", poolID)
	}
	return e, pool, poolID, persist
}

func encodeID(t *testing.T, poolID uint64, legs ...position.Leg) *uint256.Int {
	t.Helper()
	id, err := position.TokenID{PoolID: poolID, Legs: legs}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return id
}

func shortLeg(strike, width int32) position.Leg {
	return position.Leg{Ratio: 1, TokenType: position.TokenType0, Strike: strike, Width: width}
}

func longLeg(strike, width int32) position.Leg {
	l := shortLeg(strike, width)
	l.IsLong = true
	return l
}

func drainEvents(ch chan core.Output) []*event.EventEnvelope {
	var out []*event.EventEnvelope
	for {
		select {
		case o := <-ch:
			out = append(out, o.Envelope)
		default:
			return out
		}
	}
}

var fullRangeLow, fullRangeHigh = fpmath.MinTick, fpmath.MaxTick

// ============================================================
// Mint
// ============================================================

func TestMint_ZeroSize(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	id := encodeID(t, poolID, shortLeg(0, 2))

	_, err := e.Mint(uuid.New(), id, big.NewInt(0), fullRangeLow, fullRangeHigh)
	if !errors.Is(err, core.ErrZeroSize) {
		t.Errorf("zero size: got %v, want ErrZeroSize", err)
	}
	_, err = e.Mint(uuid.New(), id, nil, fullRangeLow, fullRangeHigh)
	if !errors.Is(err, core.ErrZeroSize) {
		t.Errorf("nil size: got %v, want ErrZeroSize", err)
	}
}

func TestMint_UnknownPool(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	id := encodeID(t, 99, shortLeg(0, 2))

	_, err := e.Mint(uuid.New(), id, big.NewInt(1_000_000_000), fullRangeLow, fullRangeHigh)
	if !errors.Is(err, core.ErrPoolNotRegistered) {
		t.Errorf("got %v, want ErrPoolNotRegistered", err)
	}
}

func TestMint_ShortDeploysLiquidity(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)

	receipt, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if receipt.NewTick != 0 {
		t.Errorf("NewTick = %d, want 0", receipt.NewTick)
	}
	// In-range deposit owes both tokens to the venue.
	if receipt.Moved.Right().Sign() >= 0 || receipt.Moved.Left().Sign() >= 0 {
		t.Errorf("Moved = %s, want both sides negative", receipt.Moved)
	}
	if !receipt.Collected.IsZero() {
		t.Errorf("Collected = %s, want zero on first touch", receipt.Collected)
	}

	if bal := e.Positions().BalanceOf(owner, id); bal.Cmp(size) != 0 {
		t.Errorf("balance = %s, want %s", bal, size)
	}
	removed, net, err := e.AccountLiquidity(poolID, owner, position.TokenType0, venue.Range{TickLower: -60, TickUpper: 60})
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if !removed.IsZero() || net.IsZero() {
		t.Errorf("removed = %s, net = %s, want removed 0 and net > 0", removed, net)
	}
	if !pool.Liquidity().Eq(net) {
		t.Errorf("venue active liquidity = %s, want %s", pool.Liquidity(), net)
	}
}

func TestMint_ShortAboveRangeIsSingleSided(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(240, 2))

	receipt, err := e.Mint(owner, id, big.NewInt(1_000_000_000), fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	// A range entirely above the current tick deposits token0 only and
	// stays out of the venue's active liquidity.
	if receipt.Moved.Right().Sign() >= 0 {
		t.Errorf("moved token0 = %s, want negative", receipt.Moved.Right())
	}
	if receipt.Moved.Left().Sign() != 0 {
		t.Errorf("moved token1 = %s, want 0", receipt.Moved.Left())
	}
	if !pool.Liquidity().IsZero() {
		t.Errorf("active liquidity = %s, want 0 for out-of-range chunk", pool.Liquidity())
	}
	_, net, err := e.AccountLiquidity(poolID, owner, position.TokenType0, venue.Range{TickLower: 180, TickUpper: 300})
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if net.IsZero() {
		t.Error("net liquidity is zero, want deployed amount tracked")
	}
}

func TestMint_LongRequiresDeployedLiquidity(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, longLeg(0, 2))

	_, err := e.Mint(owner, id, big.NewInt(1_000_000_000), fullRangeLow, fullRangeHigh)
	if !errors.Is(err, core.ErrInsufficientLiquidity) {
		t.Fatalf("got %v, want ErrInsufficientLiquidity", err)
	}
	if bal := e.Positions().BalanceOf(owner, id); bal.Sign() != 0 {
		t.Errorf("balance = %s after rejected mint, want 0", bal)
	}
	if accts := e.OwnerAccounts(owner); len(accts) != 0 {
		t.Errorf("owner accounts = %v after rejected mint, want none", accts)
	}
	if !pool.Liquidity().IsZero() {
		t.Errorf("venue liquidity = %s after rejected mint, want 0", pool.Liquidity())
	}
}

func TestMint_LongBorrowsAgainstShort(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	shortID := encodeID(t, poolID, shortLeg(0, 2))
	longID := encodeID(t, poolID, longLeg(0, 2))
	r := venue.Range{TickLower: -60, TickUpper: 60}

	if _, err := e.Mint(owner, shortID, big.NewInt(2_000_000_000), fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("short mint: %v", err)
	}
	_, netBefore, err := e.AccountLiquidity(poolID, owner, position.TokenType0, r)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}

	receipt, err := e.Mint(owner, longID, big.NewInt(1_000_000_000), fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("long mint: %v", err)
	}
	// A long withdraws liquidity from the venue, so tokens flow in.
	if receipt.Moved.Right().Sign() < 0 || receipt.Moved.Left().Sign() < 0 {
		t.Errorf("Moved = %s, want both sides non-negative", receipt.Moved)
	}

	removed, net, err := e.AccountLiquidity(poolID, owner, position.TokenType0, r)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if removed.IsZero() || net.IsZero() {
		t.Errorf("removed = %s, net = %s, want both nonzero", removed, net)
	}
	sum := new(uint256.Int).Add(removed, net)
	if !sum.Eq(netBefore) {
		t.Errorf("removed + net = %s, want %s", sum, netBefore)
	}
}

func TestMint_PairedShortLongLegs(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	owner := uuid.New()

	// One identifier carrying a 2x short and a 1x long on the same chunk,
	// hedged as risk partners. The short leg deposits first, so the long
	// leg borrows against liquidity deployed within the same operation.
	short := shortLeg(0, 2)
	short.Ratio = 2
	short.RiskPartner = 1
	long := longLeg(0, 2)
	long.RiskPartner = 0
	id := encodeID(t, poolID, short, long)
	size := big.NewInt(1_000_000_000)

	receipt, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	// Net effect is a deposit: more liquidity went in than came back out.
	if receipt.Moved.Right().Sign() >= 0 || receipt.Moved.Left().Sign() >= 0 {
		t.Errorf("Moved = %s, want both sides negative", receipt.Moved)
	}
	if bal := e.Positions().BalanceOf(owner, id); bal.Cmp(size) != 0 {
		t.Errorf("balance = %s, want %s", bal, size)
	}

	removed, net, err := e.AccountLiquidity(poolID, owner, position.TokenType0, venue.Range{TickLower: -60, TickUpper: 60})
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if removed.IsZero() || net.IsZero() {
		t.Fatalf("removed = %s, net = %s, want both nonzero", removed, net)
	}
	// With 2:1 sizing the remaining net equals the borrowed amount up to
	// one unit of per-leg liquidity flooring.
	diff := new(uint256.Int)
	if net.Gt(removed) {
		diff.Sub(net, removed)
	} else {
		diff.Sub(removed, net)
	}
	if diff.GtUint64(1) {
		t.Errorf("net = %s, removed = %s, want equal within 1", net, removed)
	}
}

// callbackPool wraps a SimPool and re-enters the engine from inside
// Deposit, the way a venue with transfer callbacks could.
type callbackPool struct {
	*venue.SimPool
	enter func() error
	inner error
	fired bool
}

func (p *callbackPool) Deposit(r venue.Range, liquidity *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if !p.fired {
		p.fired = true
		p.inner = p.enter()
	}
	return p.SimPool.Deposit(r, liquidity)
}

func TestMint_ReentrantCallRejected(t *testing.T) {
	persist := make(chan core.Output, 256)
	e := core.NewEngine(zerolog.Nop(), nil, persist, nil)
	sim, err := venue.NewSimPool("WETH", "USDC", 3000, 60, 0)
	if err != nil {
		t.Fatalf("NewSimPool: %v", err)
	}
	pool := &callbackPool{SimPool: sim}
	poolID, err := e.RegisterVenue(pool)
	if err != nil {
		t.Fatalf("RegisterVenue: %v", err)
	}

	owner := uuid.New()
	intruder := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	pool.enter = func() error {
		_, err := e.Mint(intruder, id, big.NewInt(1_000_000), fullRangeLow, fullRangeHigh)
		return err
	}

	size := big.NewInt(1_000_000_000)
	if _, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !pool.fired {
		t.Fatal("venue callback never ran")
	}
	if !errors.Is(pool.inner, core.ErrReentrant) {
		t.Fatalf("re-entered mint: got %v, want ErrReentrant", pool.inner)
	}
	// The rejected inner call left no trace; the outer one committed.
	if bal := e.Positions().BalanceOf(intruder, id); bal.Sign() != 0 {
		t.Errorf("intruder balance = %s, want 0", bal)
	}
	if accts := e.OwnerAccounts(intruder); len(accts) != 0 {
		t.Errorf("intruder accounts = %v, want none", accts)
	}
	if bal := e.Positions().BalanceOf(owner, id); bal.Cmp(size) != 0 {
		t.Errorf("owner balance = %s, want %s", bal, size)
	}
}

func TestMint_PriceBoundRejected(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))

	// Current tick 0 sits outside [60, 120]; the whole mint unwinds.
	_, err := e.Mint(owner, id, big.NewInt(1_000_000_000), 60, 120)
	if !errors.Is(err, core.ErrPriceBound) {
		t.Fatalf("got %v, want ErrPriceBound", err)
	}
	if accts := e.OwnerAccounts(owner); len(accts) != 0 {
		t.Errorf("owner accounts = %v after rejected mint, want none", accts)
	}
	if !pool.Liquidity().IsZero() {
		t.Errorf("venue liquidity = %s after rejected mint, want 0", pool.Liquidity())
	}
	if bal := e.Positions().BalanceOf(owner, id); bal.Sign() != 0 {
		t.Errorf("balance = %s after rejected mint, want 0", bal)
	}
}

func TestMint_DustLegIsExempt(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 4095))

	// Size 1 over the widest range floors to zero liquidity; the chunk
	// math exempts leg 0 and the mint records only the balance.
	receipt, err := e.Mint(owner, id, big.NewInt(1), fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !receipt.Moved.IsZero() {
		t.Errorf("Moved = %s, want zero for dust leg", receipt.Moved)
	}
	if bal := e.Positions().BalanceOf(owner, id); bal.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("balance = %s, want 1", bal)
	}
	if accts := e.OwnerAccounts(owner); len(accts) != 0 {
		t.Errorf("owner accounts = %v, want none for dust leg", accts)
	}
	if !pool.Liquidity().IsZero() {
		t.Errorf("venue liquidity = %s, want 0", pool.Liquidity())
	}
}

// ============================================================
// Burn
// ============================================================

func TestBurn_ClosesPosition(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)
	r := venue.Range{TickLower: -60, TickUpper: 60}

	if _, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	receipt, err := e.Burn(owner, id, size, fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	// Withdrawal flows the deposit back out.
	if receipt.Moved.Right().Sign() < 0 || receipt.Moved.Left().Sign() < 0 {
		t.Errorf("Moved = %s, want both sides non-negative", receipt.Moved)
	}

	if bal := e.Positions().BalanceOf(owner, id); bal.Sign() != 0 {
		t.Errorf("balance = %s after burn, want 0", bal)
	}
	removed, net, err := e.AccountLiquidity(poolID, owner, position.TokenType0, r)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if !removed.IsZero() || !net.IsZero() {
		t.Errorf("removed = %s, net = %s after burn, want both zero", removed, net)
	}
	if !pool.Liquidity().IsZero() {
		t.Errorf("venue liquidity = %s after burn, want 0", pool.Liquidity())
	}
	if accts := e.OwnerAccounts(owner); len(accts) != 0 {
		t.Errorf("owner accounts = %v after burn, want none", accts)
	}
}

func TestBurn_MoreThanBalance(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))

	if _, err := e.Mint(owner, id, big.NewInt(1000), fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	_, err := e.Burn(owner, id, big.NewInt(1001), fullRangeLow, fullRangeHigh)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestBurn_CollectsAccruedFees(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)

	if _, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := pool.AccrueFees(uint256.NewInt(50_000), uint256.NewInt(30_000)); err != nil {
		t.Fatalf("AccrueFees: %v", err)
	}

	receipt, err := e.Burn(owner, id, size, fullRangeLow, fullRangeHigh)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if receipt.Collected.Right().Sign() <= 0 || receipt.Collected.Left().Sign() <= 0 {
		t.Errorf("Collected = %s, want both sides positive", receipt.Collected)
	}
}

// ============================================================
// Roll
// ============================================================

func TestRoll_MatchesBurnThenMint(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	oldID := encodeID(t, poolID, shortLeg(0, 2))
	newID := encodeID(t, poolID, shortLeg(240, 2))
	size := big.NewInt(1_000_000_000)
	oldRange := venue.Range{TickLower: -60, TickUpper: 60}
	newRange := venue.Range{TickLower: 180, TickUpper: 300}

	if _, err := e.Mint(owner, oldID, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := e.Roll(owner, oldID, newID, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Roll: %v", err)
	}

	if bal := e.Positions().BalanceOf(owner, oldID); bal.Sign() != 0 {
		t.Errorf("old balance = %s after roll, want 0", bal)
	}
	if bal := e.Positions().BalanceOf(owner, newID); bal.Cmp(size) != 0 {
		t.Errorf("new balance = %s after roll, want %s", bal, size)
	}
	_, oldNet, err := e.AccountLiquidity(poolID, owner, position.TokenType0, oldRange)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if !oldNet.IsZero() {
		t.Errorf("old chunk net = %s after roll, want 0", oldNet)
	}

	// Same destination position minted directly must land on the same
	// deployed liquidity.
	ref, _, refPool, _ := newTestEngine(t)
	if _, err := ref.Mint(owner, newID, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("reference mint: %v", err)
	}
	_, rolledNet, err := e.AccountLiquidity(poolID, owner, position.TokenType0, newRange)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	_, directNet, err := ref.AccountLiquidity(refPool, owner, position.TokenType0, newRange)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if !rolledNet.Eq(directNet) {
		t.Errorf("rolled net = %s, direct mint net = %s", rolledNet, directNet)
	}
}

func TestRoll_AcrossPoolsRejected(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	oldID := encodeID(t, poolID, shortLeg(0, 2))
	newID := encodeID(t, poolID+1, shortLeg(0, 2))
	size := big.NewInt(1000)

	if _, err := e.Mint(owner, oldID, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	_, err := e.Roll(owner, oldID, newID, size, fullRangeLow, fullRangeHigh)
	if !errors.Is(err, position.ErrInvalidTokenID) {
		t.Errorf("got %v, want ErrInvalidTokenID", err)
	}
}

// ============================================================
// Netting swap
// ============================================================

func TestRoll_InvertedLimitsNetImbalance(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	provider := uuid.New()
	trader := uuid.New()

	// An in-range short provides the liquidity the netting swap trades
	// against.
	providerID := encodeID(t, poolID, shortLeg(0, 8))
	if _, err := e.Mint(provider, providerID, big.NewInt(1_000_000_000_000), fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("provider mint: %v", err)
	}

	// Rolling an above-range chunk to a below-range chunk frees token0
	// and demands token1; inverted limits consent to the netting swap.
	aboveID := encodeID(t, poolID, shortLeg(90, 1))
	belowID := encodeID(t, poolID, shortLeg(-90, 1))
	size := big.NewInt(1_000_000_000)
	if _, err := e.Mint(trader, aboveID, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("trader mint: %v", err)
	}

	sqrtBefore, _ := pool.Slot0()
	receipt, err := e.Roll(trader, aboveID, belowID, size, fullRangeHigh, fullRangeLow)
	if err != nil {
		t.Fatalf("Roll with swap consent: %v", err)
	}
	sqrtAfter, _ := pool.Slot0()
	if !sqrtAfter.Lt(sqrtBefore) {
		t.Errorf("sqrt price %s not below %s, netting swap did not sell token0", sqrtAfter, sqrtBefore)
	}
	if receipt.NewTick > 0 {
		t.Errorf("NewTick = %d, want <= 0 after selling token0", receipt.NewTick)
	}

	// Without consent the same roll is fine too since the imbalance is
	// the caller's to keep; straight full-range limits never swap.
	sqrtQuiet, _ := pool.Slot0()
	if _, err := e.Roll(trader, belowID, aboveID, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Roll without swap consent: %v", err)
	}
	sqrtNow, _ := pool.Slot0()
	if !sqrtNow.Eq(sqrtQuiet) {
		t.Errorf("price moved from %s to %s without swap consent", sqrtQuiet, sqrtNow)
	}
}

// ============================================================
// Premium queries
// ============================================================

func TestPremium_CachedVersusCurrent(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	r := venue.Range{TickLower: -60, TickUpper: 60}

	if _, err := e.Mint(owner, id, big.NewInt(1_000_000_000), fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := pool.AccrueFees(uint256.NewInt(50_000), uint256.NewInt(30_000)); err != nil {
		t.Fatalf("AccrueFees: %v", err)
	}

	// The cached view reflects the last touch, before fees accrued.
	c0, c1, err := e.Premium(poolID, owner, position.TokenType0, r, false, false)
	if err != nil {
		t.Fatalf("Premium cached: %v", err)
	}
	if !c0.IsZero() || !c1.IsZero() {
		t.Errorf("cached premium = (%s, %s), want zero", c0, c1)
	}

	p0, p1, err := e.Premium(poolID, owner, position.TokenType0, r, false, true)
	if err != nil {
		t.Fatalf("Premium at current tick: %v", err)
	}
	if p0.IsZero() || p1.IsZero() {
		t.Errorf("current premium = (%s, %s), want both nonzero", p0, p1)
	}
}

// ============================================================
// Transfers
// ============================================================

func TestTransfer_MovesChunkAccounts(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	alice, bob := uuid.New(), uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)
	r := venue.Range{TickLower: -60, TickUpper: 60}

	if _, err := e.Mint(alice, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := e.Positions().Transfer(alice, bob, id, size); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if bal := e.Positions().BalanceOf(alice, id); bal.Sign() != 0 {
		t.Errorf("alice balance = %s after transfer, want 0", bal)
	}
	if bal := e.Positions().BalanceOf(bob, id); bal.Cmp(size) != 0 {
		t.Errorf("bob balance = %s after transfer, want %s", bal, size)
	}
	_, aliceNet, err := e.AccountLiquidity(poolID, alice, position.TokenType0, r)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if !aliceNet.IsZero() {
		t.Errorf("alice net = %s after transfer, want 0", aliceNet)
	}
	_, bobNet, err := e.AccountLiquidity(poolID, bob, position.TokenType0, r)
	if err != nil {
		t.Fatalf("AccountLiquidity: %v", err)
	}
	if bobNet.IsZero() {
		t.Error("bob net is zero after transfer, want deployed liquidity")
	}
}

func TestTransfer_PartialRejected(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	alice, bob := uuid.New(), uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)

	if _, err := e.Mint(alice, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	err := e.Positions().Transfer(alice, bob, id, big.NewInt(500_000_000))
	if !errors.Is(err, core.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if bal := e.Positions().BalanceOf(alice, id); bal.Cmp(size) != 0 {
		t.Errorf("alice balance = %s after rejected transfer, want %s", bal, size)
	}
}

func TestTransfer_OccupiedReceiverRejected(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	alice, bob := uuid.New(), uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)

	if _, err := e.Mint(alice, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("alice mint: %v", err)
	}
	if _, err := e.Mint(bob, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("bob mint: %v", err)
	}
	err := e.Positions().Transfer(alice, bob, id, size)
	if !errors.Is(err, core.ErrTransferFailed) {
		t.Errorf("got %v, want ErrTransferFailed", err)
	}
}

// ============================================================
// Snapshot round trip
// ============================================================

func TestSnapshot_RestoreContinuesOperation(t *testing.T) {
	e, pool, poolID, _ := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)

	if _, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	data, err := e.ExportState().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	snap, err := core.UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	restored := core.NewEngine(zerolog.Nop(), nil, nil, nil)
	if err := restored.RestoreState(snap, map[uint64]venue.Venue{poolID: pool}); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}
	if restored.Sequence() != e.Sequence() {
		t.Errorf("restored sequence = %d, want %d", restored.Sequence(), e.Sequence())
	}
	if bal := restored.Positions().BalanceOf(owner, id); bal.Cmp(size) != 0 {
		t.Errorf("restored balance = %s, want %s", bal, size)
	}

	// The restored engine picks up where the first left off.
	if _, err := restored.Burn(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Burn on restored engine: %v", err)
	}
	if !pool.Liquidity().IsZero() {
		t.Errorf("venue liquidity = %s after restored burn, want 0", pool.Liquidity())
	}
}

func TestSnapshot_RestoreRejectsBadVenue(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)
	snap := e.ExportState()

	restored := core.NewEngine(zerolog.Nop(), nil, nil, nil)
	err := restored.RestoreState(snap, map[uint64]venue.Venue{})
	if !errors.Is(err, core.ErrPoolNotRegistered) {
		t.Errorf("missing venue: got %v, want ErrPoolNotRegistered", err)
	}

	wrong, werr := venue.NewSimPool("WETH", "USDC", 500, 10, 0)
	if werr != nil {
		t.Fatalf("NewSimPool: %v", werr)
	}
	err = restored.RestoreState(snap, map[uint64]venue.Venue{poolID: wrong})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("pair mismatch: got %v, want ErrUnauthorized", err)
	}
}

// ============================================================
// Event log
// ============================================================

func TestEvents_SequencedAndChained(t *testing.T) {
	e, _, poolID, persist := newTestEngine(t)
	owner := uuid.New()
	id := encodeID(t, poolID, shortLeg(0, 2))
	size := big.NewInt(1_000_000_000)

	if _, err := e.Mint(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := e.Burn(owner, id, size, fullRangeLow, fullRangeHigh); err != nil {
		t.Fatalf("Burn: %v", err)
	}

	events := drainEvents(persist)
	if len(events) < 3 {
		t.Fatalf("got %d events, want at least registration, mint, burn", len(events))
	}
	if events[0].EventType != event.EventTypeVenueRegistered {
		t.Errorf("event 0 type = %s, want venue_registered", events[0].EventType)
	}
	if events[1].EventType != event.EventTypePositionMinted {
		t.Errorf("event 1 type = %s, want position_minted", events[1].EventType)
	}

	for i, env := range events {
		if env.Sequence != int64(i) {
			t.Errorf("event %d sequence = %d, want %d", i, env.Sequence, i)
		}
		if env.IdempotencyKey == "" {
			t.Errorf("event %d has empty idempotency key", i)
		}
		if i > 0 && env.PrevHash != events[i-1].StateHash {
			t.Errorf("event %d prev hash does not chain to event %d state hash", i, i-1)
		}
	}
	if e.Sequence() != int64(len(events)) {
		t.Errorf("engine sequence = %d, want %d", e.Sequence(), len(events))
	}
}

func TestRegisterVenue_IdempotentOnPair(t *testing.T) {
	e, _, poolID, _ := newTestEngine(t)

	// Same pair in reversed token order resolves to the same pool.
	again, err := venue.NewSimPool("USDC", "WETH", 3000, 60, 0)
	if err != nil {
		t.Fatalf("NewSimPool: %v", err)
	}
	id, err := e.RegisterVenue(again)
	if err != nil {
		t.Fatalf("RegisterVenue: %v", err)
	}
	if id != poolID {
		t.Errorf("re-registration id = %d, want %d", id, poolID)
	}
	if n := len(e.Pools()); n != 1 {
		t.Errorf("pool count = %d, want 1", n)
	}
}
