package persist

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// IndexerTypeTransfer is an indexer that tails transfer records from a chain
	IndexerTypeTransfer IndexerType = "transfer_indexer"
	// IndexerTypeBalance is an indexer that polls holder balances
	IndexerTypeBalance IndexerType = "balance_indexer"
)

const (
	// IndexerStrategyRecipient keeps transfers sent to a configured recipient
	IndexerStrategyRecipient IndexerStrategy = "recipient"
	// IndexerStrategySender keeps transfers sent from a configured sender
	IndexerStrategySender IndexerStrategy = "sender"
	// IndexerStrategyTokenScan keeps every transfer of the watched tokens
	IndexerStrategyTokenScan IndexerStrategy = "token_scan"
	// IndexerStrategySpecifiedHolders polls balances for a configured holder list
	IndexerStrategySpecifiedHolders IndexerStrategy = "specified_holders"
	// IndexerStrategyTransfersParticipants polls balances for every address seen
	// in the token's persisted transfers
	IndexerStrategyTransfersParticipants IndexerStrategy = "transfers_participants"
)

const (
	// IndexerStatusOn marks an indexer with a live worker container
	IndexerStatusOn IndexerStatus = "on"
	// IndexerStatusOff marks an indexer with no worker container
	IndexerStatusOff IndexerStatus = "off"
)

// Defaults applied when an indexer or network row is created without overrides
const (
	DefaultMaxStep           BlockNumber = 1000
	DefaultLastBlock         BlockNumber = 0
	DefaultShortSleepSeconds             = 1
	DefaultLongSleepSeconds              = 5
)

// IndexerType represents what a worker extracts from its network
type IndexerType string

// IndexerStrategy represents how a worker filters records or picks holders
type IndexerStrategy string

// IndexerStatus represents whether a worker container should be running
type IndexerStatus string

// StrategyParams represents the free-form JSON parameters of an indexer's strategy
type StrategyParams map[string]interface{}

// Indexer represents a single worker's configuration and progress
type Indexer struct {
	ID           DBID            `json:"id"`
	CreationTime CreationTime    `json:"created_at"`
	LastUpdated  LastUpdatedTime `json:"last_updated"`

	Name      string          `json:"name"`
	NetworkID DBID            `json:"network_id"`
	Type      IndexerType     `json:"type"`
	Strategy  IndexerStrategy `json:"strategy"`
	Params    StrategyParams  `json:"strategy_params"`

	LastBlock         BlockNumber `json:"last_block"`
	ShortSleepSeconds int         `json:"short_sleep_seconds"`
	LongSleepSeconds  int         `json:"long_sleep_seconds"`

	Status IndexerStatus `json:"status"`
}

// IndexerRepository represents a repository for interacting with persisted indexers
type IndexerRepository interface {
	Create(context.Context, Indexer) (DBID, error)
	GetByID(context.Context, DBID) (Indexer, error)
	GetByName(context.Context, string) (Indexer, error)
	GetAll(context.Context) ([]Indexer, error)
	GetByStatus(context.Context, IndexerStatus) ([]Indexer, error)
	GetWatchedTokens(context.Context, DBID) ([]Token, error)
	AddWatchedToken(context.Context, DBID, DBID) error
	UpdateLastBlock(context.Context, DBID, BlockNumber) error
	UpdateStatus(context.Context, DBID, IndexerStatus) error
	CountByStatus(context.Context, IndexerStatus) (int64, error)
}

// ErrIndexerNotFoundByName is returned when an indexer is not found by its name
type ErrIndexerNotFoundByName struct {
	Name string
}

// ErrIndexerNotFoundByID is returned when an indexer is not found by its ID
type ErrIndexerNotFoundByID struct {
	ID DBID
}

func (e ErrIndexerNotFoundByName) Error() string {
	return fmt.Sprintf("indexer not found by name: %s", e.Name)
}

func (e ErrIndexerNotFoundByID) Error() string {
	return fmt.Sprintf("indexer not found by ID: %s", e.ID)
}

// ShortSleep returns the duration a worker idles at the top of every cycle
func (i Indexer) ShortSleep() time.Duration {
	return time.Duration(i.ShortSleepSeconds) * time.Second
}

// LongSleep returns the duration a worker idles when it has caught up with the chain
func (i Indexer) LongSleep() time.Duration {
	return time.Duration(i.LongSleepSeconds) * time.Second
}

// ValidFor reports whether the strategy is admissible for the given indexer type
func (s IndexerStrategy) ValidFor(t IndexerType) bool {
	switch s {
	case IndexerStrategyRecipient, IndexerStrategySender, IndexerStrategyTokenScan:
		return t == IndexerTypeTransfer
	case IndexerStrategySpecifiedHolders, IndexerStrategyTransfersParticipants:
		return t == IndexerTypeBalance
	}
	return false
}

func (t IndexerType) String() string {
	return string(t)
}

// Value implements the driver.Valuer interface for the IndexerType type
func (t IndexerType) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements the sql.Scanner interface for the IndexerType type
func (t *IndexerType) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	*t = IndexerType(src.(string))
	return nil
}

func (s IndexerStrategy) String() string {
	return string(s)
}

// Value implements the driver.Valuer interface for the IndexerStrategy type
func (s IndexerStrategy) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements the sql.Scanner interface for the IndexerStrategy type
func (s *IndexerStrategy) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	*s = IndexerStrategy(src.(string))
	return nil
}

func (s IndexerStatus) String() string {
	return string(s)
}

// Value implements the driver.Valuer interface for the IndexerStatus type
func (s IndexerStatus) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements the sql.Scanner interface for the IndexerStatus type
func (s *IndexerStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	*s = IndexerStatus(src.(string))
	return nil
}

// String extracts a single string-valued parameter
func (p StrategyParams) String(key string) (string, bool) {
	it, ok := p[key].(string)
	if !ok || it == "" {
		return "", false
	}
	return it, true
}

// StringList extracts a list-of-strings parameter
func (p StrategyParams) StringList(key string) ([]string, bool) {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, it := range raw {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Value implements the driver.Valuer interface for the StrategyParams type
func (p StrategyParams) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(StrategyParams{})
	}
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for the StrategyParams type
func (p *StrategyParams) Scan(src interface{}) error {
	if src == nil {
		*p = StrategyParams{}
		return nil
	}
	return json.Unmarshal(src.([]uint8), p)
}
