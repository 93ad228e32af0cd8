package core

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeLedger/internal/event"
	"RangeLedger/internal/ledger"
	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/position"
	"RangeLedger/internal/venue"
)

// Receipt summarizes one lifecycle operation. Collected is the premium
// attributed to the owner during the operation (fee-growth accrual plus
// settlement at burn; negative when a long owes more than it earned).
// Moved is every token amount physically exchanged with the venue:
// deposit obligations negative, withdrawals and pooled fee collections
// positive, swap deltas signed from the engine's perspective.
type Receipt struct {
	Collected fpmath.TokenPair
	Moved     fpmath.TokenPair
	NewTick   int32
}

// legContext is one leg resolved against the pool's tick grid.
type legContext struct {
	key   ledger.AccountKey
	leg   position.Leg
	chunk position.LiquidityChunk

	// skip marks a dust-exempt leg: size so small the liquidity floor
	// is zero. Nothing is deployed and no account state is created.
	skip bool
}

// pendingSettle defers premium settlement until the operation is known
// to commit; settlement advances the account's base and cannot be
// unwound.
type pendingSettle struct {
	key  ledger.AccountKey
	long bool
	liq  *uint256.Int
}

// Mint opens a position: short legs deposit liquidity into the venue,
// long legs borrow deployed liquidity back out. Inverted tick limits
// (low > high) consent to a netting swap of any token imbalance; the
// limits are then read in swapped order for the final price-bound check.
func (e *Engine) Mint(owner uuid.UUID, id *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (Receipt, error) {
	start := time.Now()
	receipt, err := e.mint(owner, id, size, tickLimitLow, tickLimitHigh)
	e.observeOp("mint", start, err)
	return receipt, err
}

func (e *Engine) mint(owner uuid.UUID, id *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (Receipt, error) {
	if size == nil || size.Sign() <= 0 {
		return Receipt{}, ErrZeroSize
	}
	tid, err := position.Decode(id)
	if err != nil {
		return Receipt{}, err
	}
	p, err := e.pool(tid.PoolID)
	if err != nil {
		return Receipt{}, err
	}
	release, err := p.acquire()
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	spacing := p.Venue.TickSpacing()
	if err := tid.Validate(spacing); err != nil {
		return Receipt{}, err
	}
	swapAllowed, low, high := normalizeLimits(tickLimitLow, tickLimitHigh)

	sizeU, overflow := uint256.FromBig(size)
	if overflow {
		return Receipt{}, fmt.Errorf("position size: %w", fpmath.ErrOverflow)
	}
	legs, err := e.deriveLegs(tid, owner, sizeU, spacing)
	if err != nil {
		return Receipt{}, err
	}

	var undos []func()
	collected := fpmath.NewTokenPair()
	moved := fpmath.NewTokenPair()
	touched := make(map[ledger.ChunkKey]struct{})

	for _, lc := range legs {
		if lc.skip {
			continue
		}
		c, m, undo, legErr := e.applyMintLeg(p, lc)
		if legErr != nil {
			e.unwind(undos)
			return Receipt{}, legErr
		}
		undos = append(undos, undo)
		touched[lc.key.Chunk] = struct{}{}

		if collected, err = collected.Add(c); err == nil {
			moved, err = moved.Add(m)
		}
		if err != nil {
			e.unwind(undos)
			return Receipt{}, err
		}
	}

	moved, newTick, err := e.netAndBound(p, moved, swapAllowed, low, high)
	if err != nil {
		e.unwind(undos)
		return Receipt{}, err
	}

	e.positions.Mint(owner, id, size)
	e.postCheck(touched)

	opID := uuid.New()
	e.logOp("mint", opID, owner, tid.PoolID, size, collected, moved, newTick)
	e.emit(&event.PositionMinted{
		OpID:       opID,
		Pool:       tid.PoolID,
		Owner:      owner,
		TokenID:    id.Hex(),
		Size:       size.String(),
		Collected0: collected.Right().String(),
		Collected1: collected.Left().String(),
		Moved0:     moved.Right().String(),
		Moved1:     moved.Left().String(),
		NewTick:    newTick,
		Timestamp:  time.Now().UTC(),
	})
	return Receipt{Collected: collected, Moved: moved, NewTick: newTick}, nil
}

// Burn closes size units of a previously minted position: long legs
// repay borrowed liquidity into the venue, short legs withdraw it.
// Accrued premium settles leg by leg once the operation commits.
func (e *Engine) Burn(owner uuid.UUID, id *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (Receipt, error) {
	start := time.Now()
	receipt, err := e.burn(owner, id, size, tickLimitLow, tickLimitHigh)
	e.observeOp("burn", start, err)
	return receipt, err
}

func (e *Engine) burn(owner uuid.UUID, id *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (Receipt, error) {
	if size == nil || size.Sign() <= 0 {
		return Receipt{}, ErrZeroSize
	}
	tid, err := position.Decode(id)
	if err != nil {
		return Receipt{}, err
	}
	p, err := e.pool(tid.PoolID)
	if err != nil {
		return Receipt{}, err
	}
	release, err := p.acquire()
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	if bal := e.positions.BalanceOf(owner, id); bal.Cmp(size) < 0 {
		return Receipt{}, fmt.Errorf("%w: balance %s < burn %s", ledger.ErrInsufficientBalance, bal, size)
	}

	spacing := p.Venue.TickSpacing()
	swapAllowed, low, high := normalizeLimits(tickLimitLow, tickLimitHigh)

	sizeU, overflow := uint256.FromBig(size)
	if overflow {
		return Receipt{}, fmt.Errorf("position size: %w", fpmath.ErrOverflow)
	}
	legs, err := e.deriveLegs(tid, owner, sizeU, spacing)
	if err != nil {
		return Receipt{}, err
	}

	var undos []func()
	var pending []pendingSettle
	collected := fpmath.NewTokenPair()
	moved := fpmath.NewTokenPair()
	touched := make(map[ledger.ChunkKey]struct{})

	for _, lc := range legs {
		if lc.skip {
			continue
		}
		c, m, settle, undo, legErr := e.applyBurnLeg(p, lc)
		if legErr != nil {
			e.unwind(undos)
			return Receipt{}, legErr
		}
		undos = append(undos, undo)
		pending = append(pending, settle)
		touched[lc.key.Chunk] = struct{}{}

		if collected, err = collected.Add(c); err == nil {
			moved, err = moved.Add(m)
		}
		if err != nil {
			e.unwind(undos)
			return Receipt{}, err
		}
	}

	moved, newTick, err := e.netAndBound(p, moved, swapAllowed, low, high)
	if err != nil {
		e.unwind(undos)
		return Receipt{}, err
	}

	if err := e.positions.Burn(owner, id, size); err != nil {
		e.unwind(undos)
		return Receipt{}, err
	}

	opID := uuid.New()
	settled, err := e.settlePending(opID, tid.PoolID, pending)
	if err != nil {
		panic(fmt.Sprintf("FATAL: premium settlement overflow: %v", err))
	}
	if collected, err = collected.Add(settled); err != nil {
		panic(fmt.Sprintf("FATAL: premium settlement overflow: %v", err))
	}

	e.postCheck(touched)

	e.logOp("burn", opID, owner, tid.PoolID, size, collected, moved, newTick)
	e.emit(&event.PositionBurned{
		OpID:       opID,
		Pool:       tid.PoolID,
		Owner:      owner,
		TokenID:    id.Hex(),
		Size:       size.String(),
		Collected0: collected.Right().String(),
		Collected1: collected.Left().String(),
		Moved0:     moved.Right().String(),
		Moved1:     moved.Left().String(),
		NewTick:    newTick,
		Timestamp:  time.Now().UTC(),
	})
	return Receipt{Collected: collected, Moved: moved, NewTick: newTick}, nil
}

// Roll atomically replaces oldID with newID at the same size under one
// pool lock, netting the combined token flows of both halves in a
// single swap. Equivalent to burn followed by mint for every accounting
// invariant, but with one price-bound check over the whole operation.
func (e *Engine) Roll(owner uuid.UUID, oldID, newID *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (Receipt, error) {
	start := time.Now()
	receipt, err := e.roll(owner, oldID, newID, size, tickLimitLow, tickLimitHigh)
	e.observeOp("roll", start, err)
	return receipt, err
}

func (e *Engine) roll(owner uuid.UUID, oldID, newID *uint256.Int, size *big.Int, tickLimitLow, tickLimitHigh int32) (Receipt, error) {
	if size == nil || size.Sign() <= 0 {
		return Receipt{}, ErrZeroSize
	}
	oldTID, err := position.Decode(oldID)
	if err != nil {
		return Receipt{}, err
	}
	newTID, err := position.Decode(newID)
	if err != nil {
		return Receipt{}, err
	}
	if oldTID.PoolID != newTID.PoolID {
		return Receipt{}, fmt.Errorf("%w: roll across pools %d and %d", position.ErrInvalidTokenID, oldTID.PoolID, newTID.PoolID)
	}
	p, err := e.pool(oldTID.PoolID)
	if err != nil {
		return Receipt{}, err
	}
	release, err := p.acquire()
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	if bal := e.positions.BalanceOf(owner, oldID); bal.Cmp(size) < 0 {
		return Receipt{}, fmt.Errorf("%w: balance %s < roll %s", ledger.ErrInsufficientBalance, bal, size)
	}

	spacing := p.Venue.TickSpacing()
	if err := newTID.Validate(spacing); err != nil {
		return Receipt{}, err
	}
	swapAllowed, low, high := normalizeLimits(tickLimitLow, tickLimitHigh)

	sizeU, overflow := uint256.FromBig(size)
	if overflow {
		return Receipt{}, fmt.Errorf("position size: %w", fpmath.ErrOverflow)
	}
	oldLegs, err := e.deriveLegs(oldTID, owner, sizeU, spacing)
	if err != nil {
		return Receipt{}, err
	}
	newLegs, err := e.deriveLegs(newTID, owner, sizeU, spacing)
	if err != nil {
		return Receipt{}, err
	}

	var undos []func()
	var pending []pendingSettle
	collected := fpmath.NewTokenPair()
	moved := fpmath.NewTokenPair()
	touched := make(map[ledger.ChunkKey]struct{})

	for _, lc := range oldLegs {
		if lc.skip {
			continue
		}
		c, m, settle, legErr := e.applyBurnLegTracked(p, lc, &undos)
		if legErr != nil {
			e.unwind(undos)
			return Receipt{}, legErr
		}
		pending = append(pending, settle)
		touched[lc.key.Chunk] = struct{}{}
		if collected, err = collected.Add(c); err == nil {
			moved, err = moved.Add(m)
		}
		if err != nil {
			e.unwind(undos)
			return Receipt{}, err
		}
	}
	for _, lc := range newLegs {
		if lc.skip {
			continue
		}
		c, m, undo, legErr := e.applyMintLeg(p, lc)
		if legErr != nil {
			e.unwind(undos)
			return Receipt{}, legErr
		}
		undos = append(undos, undo)
		touched[lc.key.Chunk] = struct{}{}
		if collected, err = collected.Add(c); err == nil {
			moved, err = moved.Add(m)
		}
		if err != nil {
			e.unwind(undos)
			return Receipt{}, err
		}
	}

	moved, newTick, err := e.netAndBound(p, moved, swapAllowed, low, high)
	if err != nil {
		e.unwind(undos)
		return Receipt{}, err
	}

	if err := e.positions.Burn(owner, oldID, size); err != nil {
		e.unwind(undos)
		return Receipt{}, err
	}
	e.positions.Mint(owner, newID, size)

	opID := uuid.New()
	settled, err := e.settlePending(opID, oldTID.PoolID, pending)
	if err != nil {
		panic(fmt.Sprintf("FATAL: premium settlement overflow: %v", err))
	}
	if collected, err = collected.Add(settled); err != nil {
		panic(fmt.Sprintf("FATAL: premium settlement overflow: %v", err))
	}

	e.postCheck(touched)

	e.log.Info().
		Str("op", "roll").
		Str("op_id", opID.String()).
		Str("owner", owner.String()).
		Uint64("pool", oldTID.PoolID).
		Str("size", size.String()).
		Int32("new_tick", newTick).
		Msg("position rolled")
	e.emit(&event.PositionRolled{
		OpID:       opID,
		Pool:       oldTID.PoolID,
		Owner:      owner,
		OldTokenID: oldID.Hex(),
		NewTokenID: newID.Hex(),
		Size:       size.String(),
		NewTick:    newTick,
		Timestamp:  time.Now().UTC(),
	})
	return Receipt{Collected: collected, Moved: moved, NewTick: newTick}, nil
}

// deriveLegs resolves every leg of the identifier into its chunk and
// account key. A zero liquidity floor is tolerated only on the first
// leg; on any other leg it rejects the whole operation.
func (e *Engine) deriveLegs(tid position.TokenID, owner uuid.UUID, size *uint256.Int, spacing int32) ([]legContext, error) {
	legs := make([]legContext, 0, len(tid.Legs))
	for i, leg := range tid.Legs {
		chunk, err := position.LegChunk(leg, size, spacing)
		if err != nil {
			if err == position.ErrZeroLiquidity && i == 0 {
				legs = append(legs, legContext{leg: leg, chunk: chunk, skip: true})
				continue
			}
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		legs = append(legs, legContext{
			key: ledger.AccountKey{
				Chunk: ledger.ChunkKey{
					PoolID:    tid.PoolID,
					TokenType: leg.TokenType,
					TickLower: chunk.TickLower,
					TickUpper: chunk.TickUpper,
				},
				Owner: owner,
			},
			leg:   leg,
			chunk: chunk,
		})
	}
	return legs, nil
}

// applyMintLeg accrues premium at the pre-move state, then moves
// liquidity: shorts deposit into the venue, longs withdraw previously
// deployed liquidity. Premium accrual must see the account before its
// net liquidity changes or the accrued fees would be attributed at the
// wrong rate.
func (e *Engine) applyMintLeg(p *PoolContext, lc legContext) (collected, moved fpmath.TokenPair, undo func(), err error) {
	r := venue.Range{TickLower: lc.chunk.TickLower, TickUpper: lc.chunk.TickUpper}
	liq := lc.chunk.Liquidity
	_, tick := p.Venue.Slot0()

	removed, net := e.tracker.Get(lc.key)
	inside0, inside1 := venue.FeeGrowthInside(p.Venue, r, tick)
	c0, c1 := e.premiums.Accrue(lc.key, inside0, inside1, net, removed, tick)
	if collected, err = fpmath.PairOf(c0.ToBig(), c1.ToBig()); err != nil {
		return collected, moved, nil, err
	}

	if lc.leg.IsLong {
		if net.Lt(liq) {
			return collected, moved, nil, fmt.Errorf("%w: net %s < borrow %s at %s",
				ErrInsufficientLiquidity, net, liq, lc.key.Path())
		}
		amount0, amount1, fees0, fees1, werr := p.Venue.Withdraw(r, liq)
		if werr != nil {
			return collected, moved, nil, werr
		}
		in0 := new(big.Int).Add(amount0.ToBig(), fees0.ToBig())
		in1 := new(big.Int).Add(amount1.ToBig(), fees1.ToBig())
		if moved, err = fpmath.PairOf(in0, in1); err != nil {
			return collected, moved, nil, err
		}
		if err = e.tracker.Borrow(lc.key, liq); err != nil {
			return collected, moved, nil, err
		}
		undo = func() {
			if uerr := e.tracker.Repay(lc.key, liq); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind repay: %v", uerr))
			}
			if _, _, uerr := p.Venue.Deposit(r, liq); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind deposit: %v", uerr))
			}
		}
		return collected, moved, undo, nil
	}

	owed0, owed1, derr := p.Venue.Deposit(r, liq)
	if derr != nil {
		return collected, moved, nil, derr
	}
	out0 := new(big.Int).Neg(owed0.ToBig())
	out1 := new(big.Int).Neg(owed1.ToBig())
	if moved, err = fpmath.PairOf(out0, out1); err != nil {
		return collected, moved, nil, err
	}
	e.tracker.DeployShort(lc.key, liq)
	undo = func() {
		if uerr := e.tracker.WithdrawShort(lc.key, liq); uerr != nil {
			panic(fmt.Sprintf("FATAL: unwind short withdraw: %v", uerr))
		}
		if _, _, _, _, uerr := p.Venue.Withdraw(r, liq); uerr != nil {
			panic(fmt.Sprintf("FATAL: unwind withdraw: %v", uerr))
		}
	}
	return collected, moved, undo, nil
}

// applyBurnLeg reverses a leg: longs re-deposit what they borrowed,
// shorts withdraw what they deployed. Settlement is deferred until the
// operation commits because advancing the premium base is irreversible.
func (e *Engine) applyBurnLeg(p *PoolContext, lc legContext) (collected, moved fpmath.TokenPair, settle pendingSettle, undo func(), err error) {
	r := venue.Range{TickLower: lc.chunk.TickLower, TickUpper: lc.chunk.TickUpper}
	liq := lc.chunk.Liquidity
	_, tick := p.Venue.Slot0()

	removed, net := e.tracker.Get(lc.key)
	inside0, inside1 := venue.FeeGrowthInside(p.Venue, r, tick)
	c0, c1 := e.premiums.Accrue(lc.key, inside0, inside1, net, removed, tick)
	if collected, err = fpmath.PairOf(c0.ToBig(), c1.ToBig()); err != nil {
		return collected, moved, settle, nil, err
	}
	settle = pendingSettle{key: lc.key, long: lc.leg.IsLong, liq: new(uint256.Int).Set(liq)}

	if lc.leg.IsLong {
		if err = e.tracker.Repay(lc.key, liq); err != nil {
			return collected, moved, settle, nil, err
		}
		owed0, owed1, derr := p.Venue.Deposit(r, liq)
		if derr != nil {
			return collected, moved, settle, nil, derr
		}
		out0 := new(big.Int).Neg(owed0.ToBig())
		out1 := new(big.Int).Neg(owed1.ToBig())
		if moved, err = fpmath.PairOf(out0, out1); err != nil {
			return collected, moved, settle, nil, err
		}
		undo = func() {
			if _, _, _, _, uerr := p.Venue.Withdraw(r, liq); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind withdraw: %v", uerr))
			}
			if uerr := e.tracker.Borrow(lc.key, liq); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind borrow: %v", uerr))
			}
		}
		return collected, moved, settle, undo, nil
	}

	if err = e.tracker.WithdrawShort(lc.key, liq); err != nil {
		return collected, moved, settle, nil, err
	}
	amount0, amount1, fees0, fees1, werr := p.Venue.Withdraw(r, liq)
	if werr != nil {
		return collected, moved, settle, nil, werr
	}
	in0 := new(big.Int).Add(amount0.ToBig(), fees0.ToBig())
	in1 := new(big.Int).Add(amount1.ToBig(), fees1.ToBig())
	if moved, err = fpmath.PairOf(in0, in1); err != nil {
		return collected, moved, settle, nil, err
	}
	undo = func() {
		if _, _, uerr := p.Venue.Deposit(r, liq); uerr != nil {
			panic(fmt.Sprintf("FATAL: unwind deposit: %v", uerr))
		}
		e.tracker.DeployShort(lc.key, liq)
	}
	return collected, moved, settle, undo, nil
}

func (e *Engine) applyBurnLegTracked(p *PoolContext, lc legContext, undos *[]func()) (fpmath.TokenPair, fpmath.TokenPair, pendingSettle, error) {
	c, m, settle, undo, err := e.applyBurnLeg(p, lc)
	if err != nil {
		return c, m, settle, err
	}
	*undos = append(*undos, undo)
	return c, m, settle, nil
}

// settlePending converts each leg's accrued per-unit premium into token
// amounts and emits a settlement event per nonzero leg. Gross premium
// flows to shorts; owed premium is charged to longs.
func (e *Engine) settlePending(opID uuid.UUID, poolID uint64, pending []pendingSettle) (fpmath.TokenPair, error) {
	total := fpmath.NewTokenPair()
	for _, ps := range pending {
		s0, s1 := e.premiums.Settle(ps.key, ps.long, ps.liq)

		amount0 := s0.ToBig()
		amount1 := s1.ToBig()
		if ps.long {
			amount0.Neg(amount0)
			amount1.Neg(amount1)
		}
		pair, err := fpmath.PairOf(amount0, amount1)
		if err != nil {
			return total, err
		}
		if total, err = total.Add(pair); err != nil {
			return total, err
		}

		if amount0.Sign() != 0 || amount1.Sign() != 0 {
			e.emit(&event.PremiumSettled{
				OpID:      opID,
				Pool:      poolID,
				Owner:     ps.key.Owner,
				TokenType: uint8(ps.key.Chunk.TokenType),
				TickLower: ps.key.Chunk.TickLower,
				TickUpper: ps.key.Chunk.TickUpper,
				Long:      ps.long,
				Amount0:   amount0.String(),
				Amount1:   amount1.String(),
				Timestamp: time.Now().UTC(),
			})
		}

		// Drop the accumulator once the account holds nothing.
		removed, net := e.tracker.Get(ps.key)
		if removed.IsZero() && net.IsZero() {
			e.premiums.Clear(ps.key)
		}
	}
	return total, nil
}

// netAndBound runs the optional netting swap and enforces the caller's
// price tolerance. The swap is quoted first so an out-of-bounds result
// rejects before any venue state changes; only an in-bounds quote
// executes.
func (e *Engine) netAndBound(p *PoolContext, moved fpmath.TokenPair, swapAllowed bool, low, high int32) (fpmath.TokenPair, int32, error) {
	_, tick := p.Venue.Slot0()

	if swapAllowed {
		zeroForOne, amountIn, ok := nettingSwapInput(p.Venue, moved)
		if ok {
			_, _, quotedTick, err := p.Venue.QuoteSwap(zeroForOne, amountIn)
			if err != nil {
				return moved, tick, err
			}
			if quotedTick < low || quotedTick > high {
				return moved, tick, fmt.Errorf("%w: swap would end at tick %d outside [%d, %d]",
					ErrPriceBound, quotedTick, low, high)
			}
			delta0, delta1, newTick, err := p.Venue.Swap(zeroForOne, amountIn)
			if err != nil {
				return moved, tick, err
			}
			pair, perr := fpmath.PairOf(delta0, delta1)
			if perr != nil {
				return moved, tick, perr
			}
			if moved, perr = moved.Add(pair); perr != nil {
				return moved, tick, perr
			}
			tick = newTick
			if e.metrics != nil {
				e.metrics.SwapsExecuted.Inc()
			}
		}
	}

	if tick < low || tick > high {
		return moved, tick, fmt.Errorf("%w: tick %d outside [%d, %d]", ErrPriceBound, tick, low, high)
	}
	return moved, tick, nil
}

// nettingSwapInput decides the single swap that nets a two-sided token
// imbalance. Only a genuine imbalance (one surplus, one deficit) swaps;
// the surplus token is sold, capped at the amount whose value at the
// current price covers the deficit. The sign pattern fixes the
// direction, so competing legs collapse into one deterministic swap.
func nettingSwapInput(v venue.Venue, moved fpmath.TokenPair) (zeroForOne bool, amountIn *uint256.Int, ok bool) {
	m0 := moved.Right()
	m1 := moved.Left()
	if m0.Sign() == 0 || m1.Sign() == 0 || m0.Sign() == m1.Sign() {
		return false, nil, false
	}

	sqrtP, _ := v.Slot0()
	priceX192 := new(big.Int).Mul(sqrtP.ToBig(), sqrtP.ToBig())

	var input *big.Int
	if m0.Sign() > 0 {
		// Sell surplus token0 to cover the token1 deficit:
		// need = |m1| << 192 / sqrtP^2.
		zeroForOne = true
		need := new(big.Int).Lsh(new(big.Int).Abs(m1), 192)
		need.Quo(need, priceX192)
		input = minBig(m0, need)
	} else {
		// Sell surplus token1 to cover the token0 deficit:
		// need = |m0| * sqrtP^2 >> 192.
		zeroForOne = false
		need := new(big.Int).Mul(new(big.Int).Abs(m0), priceX192)
		need.Rsh(need, 192)
		input = minBig(m1, need)
	}
	if input.Sign() <= 0 {
		return false, nil, false
	}
	amountIn, overflow := uint256.FromBig(input)
	if overflow {
		return false, nil, false
	}
	return zeroForOne, amountIn, true
}

// normalizeLimits interprets the caller's tick limits. Inverted limits
// signal swap consent and are read in swapped order for the bound
// check.
func normalizeLimits(low, high int32) (swapAllowed bool, boundLow, boundHigh int32) {
	if low > high {
		return true, high, low
	}
	return false, low, high
}

func (e *Engine) unwind(undos []func()) {
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

func (e *Engine) logOp(op string, opID, owner uuid.UUID, poolID uint64, size *big.Int, collected, moved fpmath.TokenPair, newTick int32) {
	e.log.Info().
		Str("op", op).
		Str("op_id", opID.String()).
		Str("owner", owner.String()).
		Uint64("pool", poolID).
		Str("size", size.String()).
		Str("collected", collected.String()).
		Str("moved", moved.String()).
		Int32("new_tick", newTick).
		Msg("position " + op)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
