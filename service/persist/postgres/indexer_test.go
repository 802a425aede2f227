package postgres_test

import (
	"context"
	"testing"

	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/stretchr/testify/require"
)

func TestIndexerRoundtrip(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	id, err := repos.IndexerRepository.Create(ctx, persist.Indexer{
		Name:      "mainnet-recipient",
		NetworkID: networkID,
		Type:      persist.IndexerTypeTransfer,
		Strategy:  persist.IndexerStrategyRecipient,
		Params:    persist.StrategyParams{"recipient": "0x0000000000000000000000000000000000001111"},
	})
	require.NoError(t, err)

	indexer, err := repos.IndexerRepository.GetByID(ctx, id)
	require.NoError(t, err)
	a.Equal("mainnet-recipient", indexer.Name)
	a.Equal(persist.IndexerStrategyRecipient, indexer.Strategy)
	a.Equal(persist.IndexerStatusOff, indexer.Status)
	a.Equal(persist.DefaultShortSleepSeconds, indexer.ShortSleepSeconds)
	a.Equal(persist.DefaultLongSleepSeconds, indexer.LongSleepSeconds)

	recipient, ok := indexer.Params.String("recipient")
	a.True(ok)
	a.Equal("0x0000000000000000000000000000000000001111", recipient)

	byName, err := repos.IndexerRepository.GetByName(ctx, "mainnet-recipient")
	require.NoError(t, err)
	a.Equal(id, byName.ID)

	_, err = repos.IndexerRepository.GetByName(ctx, "no-such-indexer")
	a.ErrorAs(err, &persist.ErrIndexerNotFoundByName{})
}

func TestIndexerWatchedTokens(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	require.NoError(t, repos.IndexerRepository.AddWatchedToken(ctx, indexerID, tokenID))

	// watching the same token twice is a no-op
	require.NoError(t, repos.IndexerRepository.AddWatchedToken(ctx, indexerID, tokenID))

	watched, err := repos.IndexerRepository.GetWatchedTokens(ctx, indexerID)
	require.NoError(t, err)
	require.Len(t, watched, 1)
	a.Equal(tokenID, watched[0].ID)
}

func TestIndexerWatermark(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	indexerID := createTestIndexer(t, repos, networkID)

	require.NoError(t, repos.IndexerRepository.UpdateLastBlock(ctx, indexerID, 18000000))

	indexer, err := repos.IndexerRepository.GetByID(ctx, indexerID)
	require.NoError(t, err)
	a.Equal(persist.BlockNumber(18000000), indexer.LastBlock)
}

func TestIndexerStatusAndCounts(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	indexerID := createTestIndexer(t, repos, networkID)

	off, err := repos.IndexerRepository.CountByStatus(ctx, persist.IndexerStatusOff)
	require.NoError(t, err)
	a.Equal(int64(1), off)

	require.NoError(t, repos.IndexerRepository.UpdateStatus(ctx, indexerID, persist.IndexerStatusOn))

	on, err := repos.IndexerRepository.GetByStatus(ctx, persist.IndexerStatusOn)
	require.NoError(t, err)
	require.Len(t, on, 1)
	a.Equal(indexerID, on[0].ID)

	count, err := repos.IndexerRepository.CountByStatus(ctx, persist.IndexerStatusOn)
	require.NoError(t, err)
	a.Equal(int64(1), count)
}
