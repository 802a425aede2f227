package indexer

import (
	"context"
	"math/big"

	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/sirupsen/logrus"
)

// balanceReader is the slice of the RPC client the balance callers need
type balanceReader interface {
	BalanceAt(ctx context.Context, pHolder persist.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, pContract, pHolder persist.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, pContract, pHolder persist.Address, pIndex *big.Int) (*big.Int, error)
}

// BalanceCaller polls one holder's position in one watched token and persists
// whatever changed, returning the written rows. RPC failures are logged and
// produce an empty delta so a flaky node never causes a partial write.
type BalanceCaller interface {
	GetBalance(ctx context.Context, pHolder persist.Address) ([]persist.TokenBalance, error)
}

// NewBalanceCaller builds the caller for one watched token. Multi tokens and
// ERC-777 have no holder-only balance call, so they cannot be balance indexed.
func NewBalanceCaller(pToken persist.Token, pTrackedBy persist.DBID, chain balanceReader, balanceRepo persist.BalanceRepository) (BalanceCaller, error) {
	switch pToken.Type {
	case persist.TokenTypeNative:
		return &amountBalanceCaller{
			token: pToken, trackedBy: pTrackedBy, balanceRepo: balanceRepo,
			read: func(ctx context.Context, pHolder persist.Address) (*big.Int, error) {
				return chain.BalanceAt(ctx, pHolder)
			},
		}, nil
	case persist.TokenTypeERC20, persist.TokenTypeERC721:
		return &amountBalanceCaller{
			token: pToken, trackedBy: pTrackedBy, balanceRepo: balanceRepo,
			read: func(ctx context.Context, pHolder persist.Address) (*big.Int, error) {
				return chain.BalanceOf(ctx, pToken.Address, pHolder)
			},
		}, nil
	case persist.TokenTypeERC721Enumerable:
		return &enumerableBalanceCaller{token: pToken, trackedBy: pTrackedBy, chain: chain, balanceRepo: balanceRepo}, nil
	default:
		return nil, ConfigError{Reason: "token type " + pToken.Type.String() + " cannot be balance indexed"}
	}
}

// amountBalanceCaller keeps one row per (token, holder) and writes only when
// the chain amount differs from the stored one. Covers the native currency,
// ERC-20 balances and ERC-721 counts, which all reduce to a single uint256.
type amountBalanceCaller struct {
	token       persist.Token
	trackedBy   persist.DBID
	balanceRepo persist.BalanceRepository
	read        func(ctx context.Context, pHolder persist.Address) (*big.Int, error)
}

func (c *amountBalanceCaller) GetBalance(ctx context.Context, pHolder persist.Address) ([]persist.TokenBalance, error) {
	current, err := c.read(ctx, pHolder)
	if err != nil {
		logger.For(ctx).WithError(err).WithFields(logrus.Fields{"token": c.token.Name, "holder": pHolder}).Warn("failed to read balance")
		return nil, nil
	}

	row, err := c.balanceRepo.GetOrCreate(ctx, c.token.ID, pHolder, c.trackedBy)
	if err != nil {
		return nil, err
	}

	amount := persist.Uint256FromBig(current)
	if row.Amount == amount {
		return nil, nil
	}

	row.Amount = amount
	row.TrackedBy = c.trackedBy
	if err := c.balanceRepo.Save(ctx, row); err != nil {
		return nil, err
	}
	return []persist.TokenBalance{row}, nil
}

// enumerableBalanceCaller keeps one row per owned (token, holder, token ID)
// and reconciles by set diff against the holder's on-chain enumeration. Rows
// are only created and deleted, never updated in place.
type enumerableBalanceCaller struct {
	token       persist.Token
	trackedBy   persist.DBID
	chain       balanceReader
	balanceRepo persist.BalanceRepository
}

func (c *enumerableBalanceCaller) GetBalance(ctx context.Context, pHolder persist.Address) ([]persist.TokenBalance, error) {
	current, ok := c.enumerateOwnedIDs(ctx, pHolder)
	if !ok {
		return nil, nil
	}

	stored, err := c.balanceRepo.ListOwnedTokenIDs(ctx, c.token.ID, pHolder)
	if err != nil {
		return nil, err
	}

	storedSet := make(map[persist.Uint256]bool, len(stored))
	for _, id := range stored {
		storedSet[id] = true
	}

	toCreate := []persist.Uint256{}
	for _, id := range current {
		if !storedSet[id] {
			toCreate = append(toCreate, id)
		}
	}

	currentSet := make(map[persist.Uint256]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}

	toDelete := []persist.Uint256{}
	for _, id := range stored {
		if !currentSet[id] {
			toDelete = append(toDelete, id)
		}
	}

	if len(toCreate) == 0 && len(toDelete) == 0 {
		return nil, nil
	}

	if len(toDelete) > 0 {
		if err := c.balanceRepo.DeleteTokenIDRows(ctx, c.token.ID, pHolder, toDelete); err != nil {
			return nil, err
		}
	}
	if len(toCreate) > 0 {
		if err := c.balanceRepo.CreateTokenIDRows(ctx, c.token.ID, pHolder, toCreate, c.trackedBy); err != nil {
			return nil, err
		}
	}

	result := make([]persist.TokenBalance, len(toCreate))
	for i, id := range toCreate {
		result[i] = persist.TokenBalance{TokenDBID: c.token.ID, Holder: pHolder, TokenID: id, TrackedBy: c.trackedBy}
	}
	return result, nil
}

// enumerateOwnedIDs walks tokenOfOwnerByIndex over [0, balanceOf(holder)).
// Any RPC failure abandons the whole enumeration so a partial read can never
// be mistaken for the holder having sent tokens away.
func (c *enumerableBalanceCaller) enumerateOwnedIDs(ctx context.Context, pHolder persist.Address) ([]persist.Uint256, bool) {
	count, err := c.chain.BalanceOf(ctx, c.token.Address, pHolder)
	if err != nil {
		logger.For(ctx).WithError(err).WithFields(logrus.Fields{"token": c.token.Name, "holder": pHolder}).Warn("failed to read balance")
		return nil, false
	}
	if !count.IsUint64() {
		logger.For(ctx).WithFields(logrus.Fields{"token": c.token.Name, "holder": pHolder, "count": count.String()}).Warn("implausible balance count")
		return nil, false
	}

	n := count.Uint64()
	result := make([]persist.Uint256, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := c.chain.TokenOfOwnerByIndex(ctx, c.token.Address, pHolder, new(big.Int).SetUint64(i))
		if err != nil {
			logger.For(ctx).WithError(err).WithFields(logrus.Fields{"token": c.token.Name, "holder": pHolder, "index": i}).Warn("failed to enumerate owned token")
			return nil, false
		}
		result = append(result, persist.Uint256FromBig(id))
	}
	return result, true
}
