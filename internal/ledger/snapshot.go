package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeLedger/internal/position"
)

// AccountSnapshot is the serializable form of one account's liquidity
// state. Amounts are decimal strings.
type AccountSnapshot struct {
	PoolID    uint64 `json:"pool_id"`
	TokenType uint8  `json:"token_type"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Owner     string `json:"owner"`
	Net       string `json:"net"`
	Removed   string `json:"removed"`
}

// ChunkTotalSnapshot is the serializable lifetime deposit/withdraw
// state of one chunk.
type ChunkTotalSnapshot struct {
	PoolID    uint64 `json:"pool_id"`
	TokenType uint8  `json:"token_type"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Deposited string `json:"deposited"`
	Withdrawn string `json:"withdrawn"`
}

// BalanceSnapshot is one fungible position balance.
type BalanceSnapshot struct {
	Owner   string `json:"owner"`
	TokenID string `json:"token_id"` // hex wire form
	Amount  string `json:"amount"`
}

// Export serializes the tracker's full state in deterministic order.
func (lt *LiquidityTracker) Export() ([]AccountSnapshot, []ChunkTotalSnapshot) {
	accounts := make([]AccountSnapshot, 0, len(lt.accounts))
	for key, acct := range lt.accounts {
		accounts = append(accounts, AccountSnapshot{
			PoolID:    key.Chunk.PoolID,
			TokenType: uint8(key.Chunk.TokenType),
			TickLower: key.Chunk.TickLower,
			TickUpper: key.Chunk.TickUpper,
			Owner:     key.Owner.String(),
			Net:       acct.Net.Dec(),
			Removed:   acct.Removed.Dec(),
		})
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].PoolID != accounts[j].PoolID {
			return accounts[i].PoolID < accounts[j].PoolID
		}
		if accounts[i].Owner != accounts[j].Owner {
			return accounts[i].Owner < accounts[j].Owner
		}
		return accounts[i].TickLower < accounts[j].TickLower
	})

	totals := make([]ChunkTotalSnapshot, 0, len(lt.deposited))
	for chunk := range lt.deposited {
		deposited := lt.deposited[chunk]
		withdrawn := new(uint256.Int)
		if v, ok := lt.withdrawn[chunk]; ok {
			withdrawn.Set(v)
		}
		totals = append(totals, ChunkTotalSnapshot{
			PoolID:    chunk.PoolID,
			TokenType: uint8(chunk.TokenType),
			TickLower: chunk.TickLower,
			TickUpper: chunk.TickUpper,
			Deposited: deposited.Dec(),
			Withdrawn: withdrawn.Dec(),
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].PoolID != totals[j].PoolID {
			return totals[i].PoolID < totals[j].PoolID
		}
		return totals[i].TickLower < totals[j].TickLower
	})
	return accounts, totals
}

// Restore replaces the tracker's state with the snapshot contents.
func (lt *LiquidityTracker) Restore(accounts []AccountSnapshot, totals []ChunkTotalSnapshot) error {
	lt.accounts = make(map[AccountKey]*AccountLiquidity, len(accounts))
	lt.deposited = make(map[ChunkKey]*uint256.Int, len(totals))
	lt.withdrawn = make(map[ChunkKey]*uint256.Int, len(totals))

	for _, a := range accounts {
		owner, err := uuid.Parse(a.Owner)
		if err != nil {
			return fmt.Errorf("account owner: %w", err)
		}
		net, err := uint256.FromDecimal(a.Net)
		if err != nil {
			return fmt.Errorf("account net: %w", err)
		}
		removed, err := uint256.FromDecimal(a.Removed)
		if err != nil {
			return fmt.Errorf("account removed: %w", err)
		}
		key := AccountKey{
			Chunk: ChunkKey{
				PoolID:    a.PoolID,
				TokenType: position.TokenType(a.TokenType),
				TickLower: a.TickLower,
				TickUpper: a.TickUpper,
			},
			Owner: owner,
		}
		lt.accounts[key] = &AccountLiquidity{Net: net, Removed: removed}
	}

	for _, t := range totals {
		deposited, err := uint256.FromDecimal(t.Deposited)
		if err != nil {
			return fmt.Errorf("chunk deposited: %w", err)
		}
		withdrawn, err := uint256.FromDecimal(t.Withdrawn)
		if err != nil {
			return fmt.Errorf("chunk withdrawn: %w", err)
		}
		chunk := ChunkKey{
			PoolID:    t.PoolID,
			TokenType: position.TokenType(t.TokenType),
			TickLower: t.TickLower,
			TickUpper: t.TickUpper,
		}
		lt.deposited[chunk] = deposited
		lt.withdrawn[chunk] = withdrawn
	}
	return nil
}

// Export serializes every balance in deterministic order.
func (pl *PositionLedger) Export() []BalanceSnapshot {
	out := make([]BalanceSnapshot, 0, len(pl.balances))
	for k, bal := range pl.balances {
		id := new(uint256.Int).SetBytes(k.ID[:])
		out = append(out, BalanceSnapshot{
			Owner:   k.Owner.String(),
			TokenID: id.Hex(),
			Amount:  bal.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].TokenID < out[j].TokenID
	})
	return out
}

// Restore replaces all balances with the snapshot contents.
func (pl *PositionLedger) Restore(balances []BalanceSnapshot) error {
	pl.balances = make(map[balanceKey]*big.Int, len(balances))
	for _, b := range balances {
		owner, err := uuid.Parse(b.Owner)
		if err != nil {
			return fmt.Errorf("balance owner: %w", err)
		}
		id, err := uint256.FromHex(b.TokenID)
		if err != nil {
			return fmt.Errorf("balance token id: %w", err)
		}
		amount, ok := new(big.Int).SetString(b.Amount, 10)
		if !ok {
			return fmt.Errorf("balance amount %q", b.Amount)
		}
		pl.balances[key(owner, id)] = amount
	}
	return nil
}
