package core

import (
	"errors"

	"RangeLedger/internal/ledger"
	fpmath "RangeLedger/internal/math"
	"RangeLedger/internal/position"
)

// Engine error taxonomy. Validation errors reject before any state
// change; liquidity and price-bound errors reject mid-operation with no
// partial writes; authorization and reentrancy errors signal misuse and
// are never retried automatically.
var (
	// ErrZeroSize rejects mint/burn of a zero position size.
	ErrZeroSize = errors.New("position size is zero")

	// ErrPoolNotRegistered rejects operations against an unknown venue.
	ErrPoolNotRegistered = errors.New("pool not registered")

	// ErrInsufficientLiquidity rejects a long borrow exceeding what the
	// paired short leg has net-deployed.
	ErrInsufficientLiquidity = errors.New("insufficient deployed liquidity to borrow")

	// ErrPriceBound rejects an operation whose resulting price tick
	// falls outside the caller's [lower, upper] tolerance.
	ErrPriceBound = errors.New("resulting price outside caller bounds")

	// ErrReentrant rejects a state-mutating call made while the venue's
	// lock is already held.
	ErrReentrant = errors.New("reentrant call")

	// ErrUnauthorized rejects a payment-obligation claim that does not
	// originate from the registered venue for the claimed pair.
	ErrUnauthorized = errors.New("caller is not the registered venue")

	// ErrTransferFailed rejects ownership transfers that would leave
	// sender or receiver chunk state inconsistent.
	ErrTransferFailed = errors.New("position transfer failed")
)

// rejectReason maps an operation error onto the bounded label set used
// by the rejection counter.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrZeroSize):
		return "zero_size"
	case errors.Is(err, ErrPoolNotRegistered):
		return "pool_not_registered"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrPriceBound):
		return "price_bound"
	case errors.Is(err, ErrReentrant):
		return "reentrant"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, position.ErrInvalidTokenID):
		return "invalid_token_id"
	case errors.Is(err, position.ErrZeroLiquidity):
		return "zero_liquidity"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrInsufficientAccountLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, fpmath.ErrOverflow):
		return "overflow"
	default:
		return "other"
	}
}
