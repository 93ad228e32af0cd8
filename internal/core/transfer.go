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
)

// OnTransfer is the balance ledger's veto hook: it runs before any
// balance mutation and moves the underlying chunk accounts between
// owners. Only a full-balance transfer of the identifier is allowed,
// and only when the sender's chunk accounts hold exactly what this
// identifier deployed; commingled state from other identifiers in the
// same chunk makes ownership of the accumulators ambiguous and rejects
// the transfer.
func (e *Engine) OnTransfer(from, to uuid.UUID, id *uint256.Int, amount *big.Int) error {
	tid, err := position.Decode(id)
	if err != nil {
		return err
	}
	p, err := e.pool(tid.PoolID)
	if err != nil {
		return err
	}
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	if bal := e.positions.BalanceOf(from, id); bal.Cmp(amount) != 0 {
		return fmt.Errorf("%w: partial transfer %s of balance %s", ErrTransferFailed, amount, bal)
	}
	if bal := e.positions.BalanceOf(to, id); bal.Sign() != 0 {
		return fmt.Errorf("%w: receiver already holds the identifier", ErrTransferFailed)
	}

	sizeU, overflow := uint256.FromBig(amount)
	if overflow {
		return fmt.Errorf("transfer amount: %w", fpmath.ErrOverflow)
	}
	legs, err := e.deriveLegs(tid, from, sizeU, p.Venue.TickSpacing())
	if err != nil {
		return err
	}

	var movedPairs [][2]ledger.AccountKey
	undoMoves := func() {
		for i := len(movedPairs) - 1; i >= 0; i-- {
			fromKey, toKey := movedPairs[i][0], movedPairs[i][1]
			if uerr := e.tracker.MoveAccount(toKey, fromKey); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind account move: %v", uerr))
			}
			if uerr := e.premiums.MoveAccount(toKey, fromKey); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind premium move: %v", uerr))
			}
		}
	}

	for i, lc := range legs {
		if lc.skip {
			continue
		}
		if err := e.checkWholeAccount(lc); err != nil {
			undoMoves()
			return fmt.Errorf("leg %d: %w", i, err)
		}

		toKey := ledger.AccountKey{Chunk: lc.key.Chunk, Owner: to}
		if err := e.tracker.MoveAccount(lc.key, toKey); err != nil {
			undoMoves()
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if err := e.premiums.MoveAccount(lc.key, toKey); err != nil {
			if uerr := e.tracker.MoveAccount(toKey, lc.key); uerr != nil {
				panic(fmt.Sprintf("FATAL: unwind account move: %v", uerr))
			}
			undoMoves()
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		movedPairs = append(movedPairs, [2]ledger.AccountKey{lc.key, toKey})
	}

	e.emit(&event.PositionTransferred{
		OpID:      uuid.New(),
		Pool:      tid.PoolID,
		From:      from,
		To:        to,
		TokenID:   id.Hex(),
		Amount:    amount.String(),
		Timestamp: time.Now().UTC(),
	})
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues("transfer").Inc()
	}
	return nil
}

// checkWholeAccount verifies the sender's chunk account holds exactly
// what this leg deployed: shorts expect net equal to the leg liquidity
// with nothing borrowed out, longs expect the mirror image.
func (e *Engine) checkWholeAccount(lc legContext) error {
	removed, net := e.tracker.Get(lc.key)
	if lc.leg.IsLong {
		if !removed.Eq(lc.chunk.Liquidity) || !net.IsZero() {
			return fmt.Errorf("%w: chunk state commingled at %s", ErrTransferFailed, lc.key.Path())
		}
		return nil
	}
	if !net.Eq(lc.chunk.Liquidity) || !removed.IsZero() {
		return fmt.Errorf("%w: chunk state commingled at %s", ErrTransferFailed, lc.key.Path())
	}
	return nil
}
