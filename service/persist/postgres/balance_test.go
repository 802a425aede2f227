package postgres_test

import (
	"context"
	"testing"

	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/stretchr/testify/require"
)

func TestBalanceGetOrCreateAndSave(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	holder := persist.Address("0x0000000000000000000000000000000000001111")

	balance, err := repos.BalanceRepository.GetOrCreate(ctx, tokenID, holder, indexerID)
	require.NoError(t, err)
	a.NotEmpty(balance.ID)
	a.True(balance.Amount.IsNull())
	a.True(balance.TokenID.IsNull())
	a.Equal(indexerID, balance.TrackedBy)

	// a second call returns the same row
	again, err := repos.BalanceRepository.GetOrCreate(ctx, tokenID, holder, indexerID)
	require.NoError(t, err)
	a.Equal(balance.ID, again.ID)

	balance.Amount = "1709210771"
	require.NoError(t, repos.BalanceRepository.Save(ctx, balance))

	saved, err := repos.BalanceRepository.GetOrCreate(ctx, tokenID, holder, indexerID)
	require.NoError(t, err)
	a.Equal(persist.Uint256("1709210771"), saved.Amount)
}

func TestBalanceTokenIDRows(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	holder := persist.Address("0x0000000000000000000000000000000000001111")

	require.NoError(t, repos.BalanceRepository.CreateTokenIDRows(ctx, tokenID, holder, []persist.Uint256{"1", "2", "3"}, indexerID))

	owned, err := repos.BalanceRepository.ListOwnedTokenIDs(ctx, tokenID, holder)
	require.NoError(t, err)
	a.Equal([]persist.Uint256{"1", "2", "3"}, owned)

	require.NoError(t, repos.BalanceRepository.DeleteTokenIDRows(ctx, tokenID, holder, []persist.Uint256{"1"}))
	require.NoError(t, repos.BalanceRepository.CreateTokenIDRows(ctx, tokenID, holder, []persist.Uint256{"5"}, indexerID))

	owned, err = repos.BalanceRepository.ListOwnedTokenIDs(ctx, tokenID, holder)
	require.NoError(t, err)
	a.Equal([]persist.Uint256{"2", "3", "5"}, owned)

	// empty slices are no-ops
	require.NoError(t, repos.BalanceRepository.CreateTokenIDRows(ctx, tokenID, holder, nil, indexerID))
	require.NoError(t, repos.BalanceRepository.DeleteTokenIDRows(ctx, tokenID, holder, nil))
}

func TestBalanceListByHolder(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	holder := persist.Address("0x0000000000000000000000000000000000001111")
	other := persist.Address("0x0000000000000000000000000000000000002222")

	_, err := repos.BalanceRepository.GetOrCreate(ctx, tokenID, holder, indexerID)
	require.NoError(t, err)
	require.NoError(t, repos.BalanceRepository.CreateTokenIDRows(ctx, tokenID, holder, []persist.Uint256{"7"}, indexerID))
	_, err = repos.BalanceRepository.GetOrCreate(ctx, tokenID, other, indexerID)
	require.NoError(t, err)

	rows, err := repos.BalanceRepository.ListByHolder(ctx, holder)
	require.NoError(t, err)
	a.Len(rows, 2)
	for _, row := range rows {
		a.True(row.Holder.Equals(holder))
	}

	tracked, err := repos.BalanceRepository.CountTrackedByIndexer(ctx)
	require.NoError(t, err)
	a.Equal(int64(3), tracked["mainnet-transfers"])
}
