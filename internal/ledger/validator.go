package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InvariantValidator checks liquidity conservation over the tracker.
type InvariantValidator struct {
	tracker *LiquidityTracker
}

func NewInvariantValidator(tracker *LiquidityTracker) *InvariantValidator {
	return &InvariantValidator{tracker: tracker}
}

// ValidateChunkConservation verifies, exactly, that for one chunk
// sum(net) + sum(removed) across owners equals lifetime deposits minus
// lifetime withdrawals.
func (v *InvariantValidator) ValidateChunkConservation(chunk ChunkKey) error {
	sumNet, sumRemoved, deposited, withdrawn := v.tracker.ChunkTotals(chunk)

	held := new(uint256.Int).Add(sumNet, sumRemoved)
	if withdrawn.Gt(deposited) {
		return fmt.Errorf("chunk %+v withdrawn %s exceeds deposited %s", chunk, withdrawn, deposited)
	}
	outstanding := new(uint256.Int).Sub(deposited, withdrawn)
	if !held.Eq(outstanding) {
		return fmt.Errorf("chunk %+v liquidity not conserved: held=%s outstanding=%s", chunk, held, outstanding)
	}
	return nil
}

// ValidateAll runs the conservation check over every chunk with lifetime
// activity.
func (v *InvariantValidator) ValidateAll() error {
	for _, chunk := range v.tracker.Chunks() {
		if err := v.ValidateChunkConservation(chunk); err != nil {
			return err
		}
	}
	return nil
}
