package persist

import (
	"context"
	"fmt"
)

// TokenBalance represents what a holder owns of one token. Fungible and
// count-based tokens keep one row per (token, holder) with an amount.
// Enumerable tokens keep one row per owned token ID with a null amount.
type TokenBalance struct {
	ID           DBID            `json:"id"`
	CreationTime CreationTime    `json:"created_at"`
	LastUpdated  LastUpdatedTime `json:"last_updated"`

	TokenDBID DBID    `json:"token"`
	Holder    Address `json:"holder"`

	TokenID Uint256 `json:"token_id"`
	Amount  Uint256 `json:"amount"`

	TrackedBy DBID `json:"tracked_by"`
}

// BalanceRepository represents a repository for interacting with persisted balances
type BalanceRepository interface {
	GetOrCreate(context.Context, DBID, Address, DBID) (TokenBalance, error)
	Save(context.Context, TokenBalance) error
	ListOwnedTokenIDs(context.Context, DBID, Address) ([]Uint256, error)
	CreateTokenIDRows(context.Context, DBID, Address, []Uint256, DBID) error
	DeleteTokenIDRows(context.Context, DBID, Address, []Uint256) error
	ListByHolder(context.Context, Address) ([]TokenBalance, error)
	CountTrackedByIndexer(context.Context) (map[string]int64, error)
}

// ErrBalanceNotFoundByID is returned when a balance row is not found by its ID
type ErrBalanceNotFoundByID struct {
	ID DBID
}

func (e ErrBalanceNotFoundByID) Error() string {
	return fmt.Sprintf("balance not found by ID: %s", e.ID)
}
