package persist

import (
	"context"
	"fmt"
)

// TokenTransfer represents a single persisted transfer of a watched token.
// Exactly one of Amount and TokenID is set for fungible and non-fungible
// transfers; multi-token transfers carry both plus an operator.
type TokenTransfer struct {
	ID           DBID            `json:"id"`
	CreationTime CreationTime    `json:"created_at"`
	LastUpdated  LastUpdatedTime `json:"last_updated"`

	TokenDBID DBID    `json:"token"`
	TokenID   Uint256 `json:"token_id"`
	Amount    Uint256 `json:"amount"`

	Operator  Address `json:"operator"`
	Sender    Address `json:"sender"`
	Recipient Address `json:"recipient"`

	TxHash    TxHash `json:"tx_hash"`
	FetchedBy DBID   `json:"fetched_by"`
}

// TransferListQuery narrows and bounds a transfer listing
type TransferListQuery struct {
	Sender     Address
	Recipient  Address
	TokenDBIDs []DBID
	Limit      int
}

// TransferRepository represents a repository for interacting with persisted transfers
type TransferRepository interface {
	Create(context.Context, TokenTransfer) (DBID, error)
	ExistsByTxHash(context.Context, TxHash) (bool, error)
	GetByTxHash(context.Context, TxHash) (TokenTransfer, error)
	List(context.Context, TransferListQuery) ([]TokenTransfer, error)
	DistinctParticipants(context.Context, DBID) ([]Address, error)
	Count(context.Context) (int64, error)
	CountByIndexer(context.Context) (map[string]int64, error)
}

// ErrTransferNotFoundByTxHash is returned when a transfer is not found by its transaction hash
type ErrTransferNotFoundByTxHash struct {
	TxHash TxHash
}

// ErrTransferAlreadyExists is returned when an insert loses the race against
// the tx_hash unique constraint
type ErrTransferAlreadyExists struct {
	TxHash TxHash
}

func (e ErrTransferNotFoundByTxHash) Error() string {
	return fmt.Sprintf("transfer not found by tx hash: %s", e.TxHash)
}

func (e ErrTransferAlreadyExists) Error() string {
	return fmt.Sprintf("transfer already exists for tx hash: %s", e.TxHash)
}
