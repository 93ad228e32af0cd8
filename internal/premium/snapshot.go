package premium

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeLedger/internal/ledger"
	"RangeLedger/internal/position"
)

// AccountState is the serializable form of one premium accumulator.
// All fixed-point values are hex strings.
type AccountState struct {
	PoolID    uint64 `json:"pool_id"`
	TokenType uint8  `json:"token_type"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Owner     string `json:"owner"`

	InsideLast0 string `json:"inside_last0"`
	InsideLast1 string `json:"inside_last1"`
	LastTick    int32  `json:"last_tick"`

	FeesBase0 string `json:"fees_base0"`
	FeesBase1 string `json:"fees_base1"`

	Owed0  string `json:"owed0_x64"`
	Owed1  string `json:"owed1_x64"`
	Gross0 string `json:"gross0_x64"`
	Gross1 string `json:"gross1_x64"`

	BaseOwed0  string `json:"base_owed0_x64"`
	BaseOwed1  string `json:"base_owed1_x64"`
	BaseGross0 string `json:"base_gross0_x64"`
	BaseGross1 string `json:"base_gross1_x64"`
}

// Export serializes every accumulator in deterministic order.
func (e *Engine) Export() []AccountState {
	out := make([]AccountState, 0, len(e.accounts))
	for key, acc := range e.accounts {
		out = append(out, AccountState{
			PoolID:      key.Chunk.PoolID,
			TokenType:   uint8(key.Chunk.TokenType),
			TickLower:   key.Chunk.TickLower,
			TickUpper:   key.Chunk.TickUpper,
			Owner:       key.Owner.String(),
			InsideLast0: acc.insideLast0.Hex(),
			InsideLast1: acc.insideLast1.Hex(),
			LastTick:    acc.lastTick,
			FeesBase0:   acc.feesBase0.Hex(),
			FeesBase1:   acc.feesBase1.Hex(),
			Owed0:       acc.owed0X64.Hex(),
			Owed1:       acc.owed1X64.Hex(),
			Gross0:      acc.gross0X64.Hex(),
			Gross1:      acc.gross1X64.Hex(),
			BaseOwed0:   acc.baseOwed0X64.Hex(),
			BaseOwed1:   acc.baseOwed1X64.Hex(),
			BaseGross0:  acc.baseGross0X64.Hex(),
			BaseGross1:  acc.baseGross1X64.Hex(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PoolID != out[j].PoolID {
			return out[i].PoolID < out[j].PoolID
		}
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].TickLower < out[j].TickLower
	})
	return out
}

// Restore replaces all accumulators with the snapshot contents.
func (e *Engine) Restore(states []AccountState) error {
	e.accounts = make(map[ledger.AccountKey]*accumulator, len(states))
	for _, s := range states {
		owner, err := uuid.Parse(s.Owner)
		if err != nil {
			return fmt.Errorf("premium owner: %w", err)
		}
		acc := &accumulator{lastTick: s.LastTick}
		for _, f := range []struct {
			dst **uint256.Int
			hex string
		}{
			{&acc.insideLast0, s.InsideLast0},
			{&acc.insideLast1, s.InsideLast1},
			{&acc.feesBase0, s.FeesBase0},
			{&acc.feesBase1, s.FeesBase1},
			{&acc.owed0X64, s.Owed0},
			{&acc.owed1X64, s.Owed1},
			{&acc.gross0X64, s.Gross0},
			{&acc.gross1X64, s.Gross1},
			{&acc.baseOwed0X64, s.BaseOwed0},
			{&acc.baseOwed1X64, s.BaseOwed1},
			{&acc.baseGross0X64, s.BaseGross0},
			{&acc.baseGross1X64, s.BaseGross1},
		} {
			v, err := uint256.FromHex(f.hex)
			if err != nil {
				return fmt.Errorf("premium accumulator value %q: %w", f.hex, err)
			}
			*f.dst = v
		}

		key := ledger.AccountKey{
			Chunk: ledger.ChunkKey{
				PoolID:    s.PoolID,
				TokenType: position.TokenType(s.TokenType),
				TickLower: s.TickLower,
				TickUpper: s.TickUpper,
			},
			Owner: owner,
		}
		e.accounts[key] = acc
	}
	return nil
}
