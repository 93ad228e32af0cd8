package venue

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	fpmath "RangeLedger/internal/math"
)

// SimPool is a deterministic in-memory venue. It keeps real tick and
// sqrt-price math (shared with internal/math) and realistic fee-growth
// bookkeeping, but swaps may not cross an initialized tick; tests and
// local runs arrange liquidity so the active range suffices.
type SimPool struct {
	token0      string
	token1      string
	fee         uint32
	tickSpacing int32

	sqrtPriceX96 *uint256.Int
	tick         int32

	liquidity *uint256.Int // active in-range liquidity

	feeGrowthGlobal0 *uint256.Int
	feeGrowthGlobal1 *uint256.Int

	ticks     map[int32]*tickState
	positions map[Range]*poolPosition
}

type tickState struct {
	liquidityGross    *uint256.Int
	liquidityNet      *big.Int
	feeGrowthOutside0 *uint256.Int
	feeGrowthOutside1 *uint256.Int
}

type poolPosition struct {
	liquidity   *uint256.Int
	insideLast0 *uint256.Int
	insideLast1 *uint256.Int
	owed0       *uint256.Int
	owed1       *uint256.Int
}

// NewSimPool creates a pool for the pair at the given starting tick.
func NewSimPool(token0, token1 string, fee uint32, tickSpacing int32, startTick int32) (*SimPool, error) {
	sqrtPrice, err := fpmath.SqrtRatioAtTick(startTick)
	if err != nil {
		return nil, err
	}
	return &SimPool{
		token0:           token0,
		token1:           token1,
		fee:              fee,
		tickSpacing:      tickSpacing,
		sqrtPriceX96:     sqrtPrice,
		tick:             startTick,
		liquidity:        new(uint256.Int),
		feeGrowthGlobal0: new(uint256.Int),
		feeGrowthGlobal1: new(uint256.Int),
		ticks:            make(map[int32]*tickState),
		positions:        make(map[Range]*poolPosition),
	}, nil
}

func (p *SimPool) Tokens() (string, string) { return p.token0, p.token1 }
func (p *SimPool) Fee() uint32              { return p.fee }
func (p *SimPool) TickSpacing() int32       { return p.tickSpacing }

func (p *SimPool) Slot0() (*uint256.Int, int32) {
	return new(uint256.Int).Set(p.sqrtPriceX96), p.tick
}

func (p *SimPool) FeeGrowthGlobal() (*uint256.Int, *uint256.Int) {
	return new(uint256.Int).Set(p.feeGrowthGlobal0), new(uint256.Int).Set(p.feeGrowthGlobal1)
}

func (p *SimPool) TickFeeGrowthOutside(tick int32) (*uint256.Int, *uint256.Int) {
	ts, ok := p.ticks[tick]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	return new(uint256.Int).Set(ts.feeGrowthOutside0), new(uint256.Int).Set(ts.feeGrowthOutside1)
}

// Liquidity returns the current active in-range liquidity.
func (p *SimPool) Liquidity() *uint256.Int {
	return new(uint256.Int).Set(p.liquidity)
}

func (p *SimPool) checkRange(r Range) error {
	if r.TickLower >= r.TickUpper {
		return fmt.Errorf("degenerate range [%d, %d]", r.TickLower, r.TickUpper)
	}
	if r.TickLower < fpmath.MinTick || r.TickUpper > fpmath.MaxTick {
		return fmt.Errorf("range [%d, %d] out of tick bounds", r.TickLower, r.TickUpper)
	}
	if r.TickLower%p.tickSpacing != 0 || r.TickUpper%p.tickSpacing != 0 {
		return fmt.Errorf("range [%d, %d] not aligned to spacing %d", r.TickLower, r.TickUpper, p.tickSpacing)
	}
	return nil
}

func (p *SimPool) Deposit(r Range, liquidity *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := p.checkRange(r); err != nil {
		return nil, nil, err
	}
	if liquidity.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}

	pos := p.position(r)
	p.settle(r, pos)

	p.updateTick(r.TickLower, liquidity, false)
	p.updateTick(r.TickUpper, liquidity, true)
	pos.liquidity.Add(pos.liquidity, liquidity)
	if r.TickLower <= p.tick && p.tick < r.TickUpper {
		p.liquidity.Add(p.liquidity, liquidity)
	}

	owed0, owed1, err := p.rangeAmounts(r, liquidity)
	if err != nil {
		return nil, nil, err
	}
	return owed0, owed1, nil
}

func (p *SimPool) Withdraw(r Range, liquidity *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, *uint256.Int, error) {
	if err := p.checkRange(r); err != nil {
		return nil, nil, nil, nil, err
	}
	pos := p.position(r)
	if pos.liquidity.Lt(liquidity) {
		return nil, nil, nil, nil, fmt.Errorf("withdraw %s exceeds position liquidity %s", liquidity, pos.liquidity)
	}

	p.settle(r, pos)

	neg := new(uint256.Int).Set(liquidity)
	p.removeTick(r.TickLower, neg, false)
	p.removeTick(r.TickUpper, neg, true)
	pos.liquidity.Sub(pos.liquidity, liquidity)
	if r.TickLower <= p.tick && p.tick < r.TickUpper {
		p.liquidity.Sub(p.liquidity, liquidity)
	}

	amount0, amount1, err := p.rangeAmounts(r, liquidity)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	fees0, fees1 := pos.owed0, pos.owed1
	pos.owed0 = new(uint256.Int)
	pos.owed1 = new(uint256.Int)
	if pos.liquidity.IsZero() {
		delete(p.positions, r)
	}
	return amount0, amount1, fees0, fees1, nil
}

func (p *SimPool) Poke(r Range) (*uint256.Int, *uint256.Int, error) {
	if err := p.checkRange(r); err != nil {
		return nil, nil, err
	}
	pos := p.position(r)
	p.settle(r, pos)
	fees0, fees1 := pos.owed0, pos.owed1
	pos.owed0 = new(uint256.Int)
	pos.owed1 = new(uint256.Int)
	return fees0, fees1, nil
}

func (p *SimPool) QuoteSwap(zeroForOne bool, amountIn *uint256.Int) (*big.Int, *big.Int, int32, error) {
	delta0, delta1, _, newTick, err := p.computeSwap(zeroForOne, amountIn)
	return delta0, delta1, newTick, err
}

func (p *SimPool) Swap(zeroForOne bool, amountIn *uint256.Int) (*big.Int, *big.Int, int32, error) {
	delta0, delta1, sqrtNew, newTick, err := p.computeSwap(zeroForOne, amountIn)
	if err != nil {
		return nil, nil, 0, err
	}
	if amountIn.IsZero() {
		return delta0, delta1, newTick, nil
	}

	// Fee growth accrues to the input token side.
	feeAmt := p.swapFee(amountIn)
	growth := new(uint256.Int).Lsh(feeAmt, 128)
	growth.Div(growth, p.liquidity)
	if zeroForOne {
		p.feeGrowthGlobal0.Add(p.feeGrowthGlobal0, growth)
	} else {
		p.feeGrowthGlobal1.Add(p.feeGrowthGlobal1, growth)
	}

	p.sqrtPriceX96 = sqrtNew
	p.tick = newTick
	return delta0, delta1, newTick, nil
}

func (p *SimPool) swapFee(amountIn *uint256.Int) *uint256.Int {
	feeAmt := new(uint256.Int).Mul(amountIn, uint256.NewInt(uint64(p.fee)))
	return feeAmt.Div(feeAmt, uint256.NewInt(1_000_000))
}

func (p *SimPool) computeSwap(zeroForOne bool, amountIn *uint256.Int) (*big.Int, *big.Int, *uint256.Int, int32, error) {
	if amountIn.IsZero() {
		return new(big.Int), new(big.Int), new(uint256.Int).Set(p.sqrtPriceX96), p.tick, nil
	}
	if p.liquidity.IsZero() {
		return nil, nil, nil, 0, fmt.Errorf("no active liquidity to swap against")
	}

	feeAmt := p.swapFee(amountIn)
	net := new(uint256.Int).Sub(amountIn, feeAmt)

	liq := p.liquidity.ToBig()
	sqrtP := p.sqrtPriceX96.ToBig()

	var sqrtNew, out *big.Int
	if zeroForOne {
		// sqrtP' = L*sqrtP<<96 / (L<<96 + net*sqrtP)
		num := new(big.Int).Mul(liq, sqrtP)
		num.Lsh(num, 96)
		den := new(big.Int).Lsh(liq, 96)
		den.Add(den, new(big.Int).Mul(net.ToBig(), sqrtP))
		sqrtNew = num.Quo(num, den)
		// amount1 out = L*(sqrtP - sqrtP') >> 96
		out = new(big.Int).Sub(sqrtP, sqrtNew)
		out.Mul(out, liq)
		out.Rsh(out, 96)
	} else {
		// sqrtP' = sqrtP + net<<96 / L
		step := new(big.Int).Lsh(net.ToBig(), 96)
		step.Quo(step, liq)
		sqrtNew = new(big.Int).Add(sqrtP, step)
		// amount0 out = L*(sqrtP' - sqrtP)<<96 / (sqrtP' * sqrtP)
		out = new(big.Int).Sub(sqrtNew, sqrtP)
		out.Mul(out, liq)
		out.Lsh(out, 96)
		out.Quo(out, new(big.Int).Mul(sqrtNew, sqrtP))
	}

	sqrtNewU, overflow := uint256.FromBig(sqrtNew)
	if overflow {
		return nil, nil, nil, 0, fpmath.ErrOverflow
	}
	newTick, err := fpmath.TickAtSqrtRatio(sqrtNewU)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	if crossed := p.crossedTicks(p.tick, newTick); len(crossed) > 0 {
		return nil, nil, nil, 0, fmt.Errorf("swap would cross initialized tick %d", crossed[0])
	}

	delta0 := new(big.Int)
	delta1 := new(big.Int)
	if zeroForOne {
		delta0.Neg(amountIn.ToBig())
		delta1.Set(out)
	} else {
		delta1.Neg(amountIn.ToBig())
		delta0.Set(out)
	}
	return delta0, delta1, sqrtNewU, newTick, nil
}

// MovePrice moves the pool price to newTick, crossing initialized ticks
// with the usual fee-growth-outside flip and net-liquidity application.
// Test and replay helper; real venues move price through swaps.
func (p *SimPool) MovePrice(newTick int32) error {
	sqrtPrice, err := fpmath.SqrtRatioAtTick(newTick)
	if err != nil {
		return err
	}
	if newTick > p.tick {
		for _, t := range p.initializedBetween(p.tick, newTick) {
			p.crossTick(t, true)
		}
	} else if newTick < p.tick {
		ticks := p.initializedBetween(newTick, p.tick)
		for i := len(ticks) - 1; i >= 0; i-- {
			p.crossTick(ticks[i], false)
		}
	}
	p.tick = newTick
	p.sqrtPriceX96 = sqrtPrice
	return nil
}

// AccrueFees injects fee growth for both tokens against the current
// active liquidity. Test helper.
func (p *SimPool) AccrueFees(fee0, fee1 *uint256.Int) error {
	if p.liquidity.IsZero() {
		return fmt.Errorf("no active liquidity to accrue against")
	}
	g0 := new(uint256.Int).Lsh(fee0, 128)
	g0.Div(g0, p.liquidity)
	g1 := new(uint256.Int).Lsh(fee1, 128)
	g1.Div(g1, p.liquidity)
	p.feeGrowthGlobal0.Add(p.feeGrowthGlobal0, g0)
	p.feeGrowthGlobal1.Add(p.feeGrowthGlobal1, g1)
	return nil
}

func (p *SimPool) position(r Range) *poolPosition {
	pos, ok := p.positions[r]
	if !ok {
		pos = &poolPosition{
			liquidity:   new(uint256.Int),
			insideLast0: new(uint256.Int),
			insideLast1: new(uint256.Int),
			owed0:       new(uint256.Int),
			owed1:       new(uint256.Int),
		}
		p.positions[r] = pos
	}
	return pos
}

// settle folds fee growth since the last touch into the position's owed
// amounts and advances its inside snapshots.
func (p *SimPool) settle(r Range, pos *poolPosition) {
	inside0, inside1 := FeeGrowthInside(p, r, p.tick)
	if !pos.liquidity.IsZero() {
		d0 := fpmath.WrappingSub(inside0, pos.insideLast0)
		d1 := fpmath.WrappingSub(inside1, pos.insideLast1)
		pos.owed0.Add(pos.owed0, fpmath.MulDiv128(d0, pos.liquidity))
		pos.owed1.Add(pos.owed1, fpmath.MulDiv128(d1, pos.liquidity))
	}
	pos.insideLast0 = inside0
	pos.insideLast1 = inside1
}

func (p *SimPool) rangeAmounts(r Range, liquidity *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	sqrtL, err := fpmath.SqrtRatioAtTick(r.TickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtU, err := fpmath.SqrtRatioAtTick(r.TickUpper)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1 := fpmath.AmountsForLiquidity(p.sqrtPriceX96, sqrtL, sqrtU, liquidity)
	return amount0, amount1, nil
}

func (p *SimPool) updateTick(tick int32, liquidity *uint256.Int, upper bool) {
	ts, ok := p.ticks[tick]
	if !ok {
		ts = &tickState{
			liquidityGross:    new(uint256.Int),
			liquidityNet:      new(big.Int),
			feeGrowthOutside0: new(uint256.Int),
			feeGrowthOutside1: new(uint256.Int),
		}
		// Initialization convention: ticks at or below the current price
		// start with outside growth equal to the global counters.
		if tick <= p.tick {
			ts.feeGrowthOutside0.Set(p.feeGrowthGlobal0)
			ts.feeGrowthOutside1.Set(p.feeGrowthGlobal1)
		}
		p.ticks[tick] = ts
	}
	ts.liquidityGross.Add(ts.liquidityGross, liquidity)
	if upper {
		ts.liquidityNet.Sub(ts.liquidityNet, liquidity.ToBig())
	} else {
		ts.liquidityNet.Add(ts.liquidityNet, liquidity.ToBig())
	}
}

func (p *SimPool) removeTick(tick int32, liquidity *uint256.Int, upper bool) {
	ts, ok := p.ticks[tick]
	if !ok {
		return
	}
	ts.liquidityGross.Sub(ts.liquidityGross, liquidity)
	if upper {
		ts.liquidityNet.Add(ts.liquidityNet, liquidity.ToBig())
	} else {
		ts.liquidityNet.Sub(ts.liquidityNet, liquidity.ToBig())
	}
	if ts.liquidityGross.IsZero() {
		delete(p.ticks, tick)
	}
}

// initializedBetween returns initialized ticks t with from < t <= to,
// ascending.
func (p *SimPool) initializedBetween(from, to int32) []int32 {
	var out []int32
	for t := range p.ticks {
		if t > from && t <= to {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *SimPool) crossedTicks(from, to int32) []int32 {
	if from < to {
		return p.initializedBetween(from, to)
	}
	return p.initializedBetween(to, from)
}

func (p *SimPool) crossTick(tick int32, up bool) {
	ts := p.ticks[tick]
	ts.feeGrowthOutside0 = fpmath.WrappingSub(p.feeGrowthGlobal0, ts.feeGrowthOutside0)
	ts.feeGrowthOutside1 = fpmath.WrappingSub(p.feeGrowthGlobal1, ts.feeGrowthOutside1)

	liq := p.liquidity.ToBig()
	if up {
		liq.Add(liq, ts.liquidityNet)
	} else {
		liq.Sub(liq, ts.liquidityNet)
	}
	if liq.Sign() < 0 {
		liq.SetInt64(0)
	}
	p.liquidity, _ = uint256.FromBig(liq)
}
