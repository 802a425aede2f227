package persist

import (
	"context"
	"database/sql/driver"
	"fmt"
)

const (
	// NetworkTypeFilterable represents a node that supports the eth_newFilter API
	NetworkTypeFilterable NetworkType = "filterable"
	// NetworkTypeNoFilters represents a node that only supports plain eth_getLogs
	NetworkTypeNoFilters NetworkType = "no_filters"
)

// NetworkType represents how logs can be pulled from a network's nodes
type NetworkType string

// ChainID represents an EVM chain ID
type ChainID uint64

// Network represents a single EVM network and how to reach it
type Network struct {
	ID           DBID            `json:"id"`
	CreationTime CreationTime    `json:"created_at"`
	LastUpdated  LastUpdatedTime `json:"last_updated"`

	Name        string      `json:"name"`
	ChainID     ChainID     `json:"chain_id"`
	RPCURL      string      `json:"rpc_url"`
	MaxStep     BlockNumber `json:"max_step"`
	Type        NetworkType `json:"type"`
	NeedPOA     bool        `json:"need_poa"`
	ExplorerURL NullString  `json:"explorer_url"`
}

// NetworkRepository represents a repository for interacting with persisted networks
type NetworkRepository interface {
	Create(context.Context, Network) (DBID, error)
	GetByID(context.Context, DBID) (Network, error)
	GetByChainID(context.Context, ChainID) (Network, error)
	GetAll(context.Context) ([]Network, error)
}

// ErrNetworkNotFoundByID is returned when a network is not found by its ID
type ErrNetworkNotFoundByID struct {
	ID DBID
}

// ErrNetworkNotFoundByChainID is returned when a network is not found by its chain ID
type ErrNetworkNotFoundByChainID struct {
	ChainID ChainID
}

func (e ErrNetworkNotFoundByID) Error() string {
	return fmt.Sprintf("network not found by ID: %s", e.ID)
}

func (e ErrNetworkNotFoundByChainID) Error() string {
	return fmt.Sprintf("network not found by chain ID: %d", e.ChainID)
}

func (t NetworkType) String() string {
	return string(t)
}

// Value implements the driver.Valuer interface for the NetworkType type
func (t NetworkType) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements the sql.Scanner interface for the NetworkType type
func (t *NetworkType) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	*t = NetworkType(src.(string))
	return nil
}

// Uint64 returns the chain ID as a uint64
func (c ChainID) Uint64() uint64 {
	return uint64(c)
}

func (c ChainID) String() string {
	return fmt.Sprintf("%d", c.Uint64())
}

// Value implements the driver.Valuer interface for the ChainID type
func (c ChainID) Value() (driver.Value, error) {
	return int64(c), nil
}

// Scan implements the sql.Scanner interface for the ChainID type
func (c *ChainID) Scan(src interface{}) error {
	if src == nil {
		*c = ChainID(0)
		return nil
	}
	*c = ChainID(src.(int64))
	return nil
}
