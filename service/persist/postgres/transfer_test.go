package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/stretchr/testify/require"
)

func testTxHash(n int) persist.TxHash {
	return persist.TxHash(fmt.Sprintf("0x%064x", n))
}

func TestTransferRoundtrip(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	id, err := repos.TransferRepository.Create(ctx, persist.TokenTransfer{
		TokenDBID: tokenID,
		TokenID:   "14176665",
		Sender:    persist.ZeroAddress,
		Recipient: "0x0000000000000000000000000000000000002222",
		TxHash:    testTxHash(1),
		FetchedBy: indexerID,
	})
	require.NoError(t, err)

	transfer, err := repos.TransferRepository.GetByTxHash(ctx, testTxHash(1))
	require.NoError(t, err)
	a.Equal(id, transfer.ID)
	a.Equal(persist.Uint256("14176665"), transfer.TokenID)
	a.True(transfer.Amount.IsNull())
	a.Equal(indexerID, transfer.FetchedBy)

	exists, err := repos.TransferRepository.ExistsByTxHash(ctx, testTxHash(1))
	require.NoError(t, err)
	a.True(exists)

	exists, err = repos.TransferRepository.ExistsByTxHash(ctx, testTxHash(99))
	require.NoError(t, err)
	a.False(exists)
}

func TestTransferDuplicateTxHash(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	transfer := persist.TokenTransfer{
		TokenDBID: tokenID,
		TokenID:   "1",
		Sender:    "0x0000000000000000000000000000000000001111",
		Recipient: "0x0000000000000000000000000000000000002222",
		TxHash:    testTxHash(1),
		FetchedBy: indexerID,
	}

	_, err := repos.TransferRepository.Create(ctx, transfer)
	require.NoError(t, err)

	_, err = repos.TransferRepository.Create(ctx, transfer)
	a.ErrorAs(err, &persist.ErrTransferAlreadyExists{})
}

func TestTransferList(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	sender := persist.Address("0x0000000000000000000000000000000000001111")
	other := persist.Address("0x0000000000000000000000000000000000003333")

	for i := 0; i < 3; i++ {
		from := sender
		if i == 2 {
			from = other
		}
		_, err := repos.TransferRepository.Create(ctx, persist.TokenTransfer{
			TokenDBID: tokenID,
			TokenID:   persist.Uint256(fmt.Sprintf("%d", i+1)),
			Sender:    from,
			Recipient: "0x0000000000000000000000000000000000002222",
			TxHash:    testTxHash(i + 1),
			FetchedBy: indexerID,
		})
		require.NoError(t, err)
	}

	all, err := repos.TransferRepository.List(ctx, persist.TransferListQuery{})
	require.NoError(t, err)
	a.Len(all, 3)

	bySender, err := repos.TransferRepository.List(ctx, persist.TransferListQuery{Sender: sender})
	require.NoError(t, err)
	a.Len(bySender, 2)

	byToken, err := repos.TransferRepository.List(ctx, persist.TransferListQuery{TokenDBIDs: []persist.DBID{tokenID}, Limit: 2})
	require.NoError(t, err)
	a.Len(byToken, 2)

	counted, err := repos.TransferRepository.Count(ctx)
	require.NoError(t, err)
	a.Equal(int64(3), counted)

	perIndexer, err := repos.TransferRepository.CountByIndexer(ctx)
	require.NoError(t, err)
	a.Equal(int64(3), perIndexer["mainnet-transfers"])
}

func TestTransferDistinctParticipants(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	networkID := createTestNetwork(t, repos)
	tokenID := createTestToken(t, repos, networkID)
	indexerID := createTestIndexer(t, repos, networkID)

	sender := persist.Address("0x0000000000000000000000000000000000001111")
	recipient := persist.Address("0x0000000000000000000000000000000000002222")

	// a mint from the zero address and a regular transfer
	for i, it := range []struct {
		from, to persist.Address
	}{{persist.ZeroAddress, recipient}, {sender, recipient}} {
		_, err := repos.TransferRepository.Create(ctx, persist.TokenTransfer{
			TokenDBID: tokenID,
			TokenID:   persist.Uint256(fmt.Sprintf("%d", i+1)),
			Sender:    it.from,
			Recipient: it.to,
			TxHash:    testTxHash(i + 1),
			FetchedBy: indexerID,
		})
		require.NoError(t, err)
	}

	participants, err := repos.TransferRepository.DistinctParticipants(ctx, tokenID)
	require.NoError(t, err)
	a.ElementsMatch([]persist.Address{sender, recipient}, participants)
}
