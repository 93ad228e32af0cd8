package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned when a burn or transfer exceeds the
// holder's position balance.
var ErrInsufficientBalance = errors.New("insufficient position balance")

// TransferHook is invoked before a position balance transfer commits.
// A non-nil error vetoes the transfer and no balances change.
type TransferHook interface {
	OnTransfer(from, to uuid.UUID, id *uint256.Int, amount *big.Int) error
}

type balanceKey struct {
	Owner uuid.UUID
	ID    [32]byte
}

// PositionLedger is the fungible ownership ledger for minted position
// identifiers. It owns balances only; the underlying liquidity state is
// owned by the lifecycle engine, which it notifies through the hook.
type PositionLedger struct {
	balances map[balanceKey]*big.Int
	hook     TransferHook
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{balances: make(map[balanceKey]*big.Int)}
}

// SetTransferHook installs the engine's transfer-notification hook.
func (pl *PositionLedger) SetTransferHook(hook TransferHook) {
	pl.hook = hook
}

func key(owner uuid.UUID, id *uint256.Int) balanceKey {
	return balanceKey{Owner: owner, ID: id.Bytes32()}
}

// BalanceOf returns the owner's balance of the identifier.
func (pl *PositionLedger) BalanceOf(owner uuid.UUID, id *uint256.Int) *big.Int {
	if bal, ok := pl.balances[key(owner, id)]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Mint credits amount of the identifier to the owner.
func (pl *PositionLedger) Mint(owner uuid.UUID, id *uint256.Int, amount *big.Int) {
	k := key(owner, id)
	bal, ok := pl.balances[k]
	if !ok {
		bal = new(big.Int)
		pl.balances[k] = bal
	}
	bal.Add(bal, amount)
}

// Burn debits amount of the identifier from the owner.
func (pl *PositionLedger) Burn(owner uuid.UUID, id *uint256.Int, amount *big.Int) error {
	k := key(owner, id)
	bal, ok := pl.balances[k]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: owner %s id %s", ErrInsufficientBalance, owner, id)
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(pl.balances, k)
	}
	return nil
}

// Transfer moves amount between owners. The engine hook runs first and
// may veto; on veto no balances are mutated.
func (pl *PositionLedger) Transfer(from, to uuid.UUID, id *uint256.Int, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	bal := pl.BalanceOf(from, id)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: owner %s id %s", ErrInsufficientBalance, from, id)
	}
	if pl.hook != nil {
		if err := pl.hook.OnTransfer(from, to, id, amount); err != nil {
			return fmt.Errorf("transfer vetoed: %w", err)
		}
	}
	if err := pl.Burn(from, id, amount); err != nil {
		return err
	}
	pl.Mint(to, id, amount)
	return nil
}
