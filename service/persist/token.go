package persist

import (
	"context"
	"database/sql/driver"
	"fmt"
)

const (
	// TokenTypeNative is the type of a network's built-in currency
	TokenTypeNative TokenType = "native"
	// TokenTypeERC20 is the type of an ERC-20 token
	TokenTypeERC20 TokenType = "erc20"
	// TokenTypeERC721 is the type of an ERC-721 token
	TokenTypeERC721 TokenType = "erc721"
	// TokenTypeERC721Enumerable is the type of an ERC-721 token implementing the
	// enumerable extension, tracked per owned token ID
	TokenTypeERC721Enumerable TokenType = "erc721enumerable"
	// TokenTypeERC777 is the type of an ERC-777 token
	TokenTypeERC777 TokenType = "erc777"
	// TokenTypeERC1155 is the type of an ERC-1155 token
	TokenTypeERC1155 TokenType = "erc1155"
)

const (
	// FetchingStrategyEvent fetches transfers from contract event logs
	FetchingStrategyEvent FetchingStrategy = "event_based_transfer"
	// FetchingStrategyReceipt fetches transfers from transaction receipts
	FetchingStrategyReceipt FetchingStrategy = "receipt_based_transfer"
)

// TokenType represents the contract specification of a token
type TokenType string

// FetchingStrategy represents where a token's transfers are read from
type FetchingStrategy string

// Token represents a single tracked asset on a network
type Token struct {
	ID           DBID            `json:"id"`
	CreationTime CreationTime    `json:"created_at"`
	LastUpdated  LastUpdatedTime `json:"last_updated"`

	Name     string           `json:"name"`
	Address  Address          `json:"address"`
	Type     TokenType        `json:"type"`
	Strategy FetchingStrategy `json:"strategy"`

	NetworkID DBID `json:"network_id"`

	TotalSupply Uint256 `json:"total_supply"`
	Volume      Uint256 `json:"volume"`
}

// TokenRepository represents a repository for interacting with persisted tokens
type TokenRepository interface {
	Create(context.Context, Token) (DBID, error)
	GetByID(context.Context, DBID) (Token, error)
	GetByAddress(context.Context, Address) ([]Token, error)
	GetByNetwork(context.Context, DBID) ([]Token, error)
	GetByName(context.Context, string) ([]Token, error)
	GetAll(context.Context) ([]Token, error)
}

// ErrTokenNotFoundByID is returned when a token is not found by its ID
type ErrTokenNotFoundByID struct {
	ID DBID
}

// ErrTokenNotFoundByAddress is returned when no token matches a contract address
type ErrTokenNotFoundByAddress struct {
	Address Address
}

func (e ErrTokenNotFoundByID) Error() string {
	return fmt.Sprintf("token not found by ID: %s", e.ID)
}

func (e ErrTokenNotFoundByAddress) Error() string {
	return fmt.Sprintf("token not found by address: %s", e.Address)
}

// IsNative returns true for a network's built-in currency
func (t TokenType) IsNative() bool {
	return t == TokenTypeNative
}

// IsFungible returns true for token types whose transfers carry an amount
func (t TokenType) IsFungible() bool {
	switch t {
	case TokenTypeNative, TokenTypeERC20, TokenTypeERC777:
		return true
	}
	return false
}

// IsNonFungible returns true for token types whose transfers carry a token ID
func (t TokenType) IsNonFungible() bool {
	switch t {
	case TokenTypeERC721, TokenTypeERC721Enumerable:
		return true
	}
	return false
}

// IsMultiToken returns true for token types whose transfers carry both a token ID and an amount
func (t TokenType) IsMultiToken() bool {
	return t == TokenTypeERC1155
}

func (t TokenType) String() string {
	return string(t)
}

// Value implements the driver.Valuer interface for the TokenType type
func (t TokenType) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements the sql.Scanner interface for the TokenType type
func (t *TokenType) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	*t = TokenType(src.(string))
	return nil
}

func (s FetchingStrategy) String() string {
	return string(s)
}

// Value implements the driver.Valuer interface for the FetchingStrategy type
func (s FetchingStrategy) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements the sql.Scanner interface for the FetchingStrategy type
func (s *FetchingStrategy) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	*s = FetchingStrategy(src.(string))
	return nil
}
