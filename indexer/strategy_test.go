package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransferIndexer(pStrategy persist.IndexerStrategy, pParams persist.StrategyParams) persist.Indexer {
	return persist.Indexer{
		ID:       "indexer-1",
		Name:     "test-indexer",
		Type:     persist.IndexerTypeTransfer,
		Strategy: pStrategy,
		Params:   pParams,
	}
}

func recordsWithRecipients(pRecipients ...persist.Address) []TransferRecord {
	hashes := []persist.TxHash{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1",
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa2",
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa3",
	}
	records := make([]TransferRecord, len(pRecipients))
	for i, recipient := range pRecipients {
		records[i] = NonFungibleTransfer{
			Sender:    testSender,
			Recipient: recipient,
			TokenID:   big.NewInt(int64(i + 1)),
			TxHash:    hashes[i],
		}
	}
	return records
}

func TestRecipientStrategyFiltersAndStaysIdempotent(t *testing.T) {
	holderA := persist.Address("0x000000000000000000000000000000000000aaaa")
	holderB := persist.Address("0x000000000000000000000000000000000000bbbb")

	repo := newFakeTransferRepo()
	strategy, err := NewTransferStrategy(testTransferIndexer(persist.IndexerStrategyRecipient, persist.StrategyParams{"recipient": holderA.String()}), repo)
	require.NoError(t, err)

	records := recordsWithRecipients(holderA, holderB, holderA)
	require.NoError(t, strategy.Start(context.Background(), testToken(persist.TokenTypeERC721), records))
	assert.Len(t, repo.inserted, 2)
	for _, transfer := range repo.inserted {
		assert.True(t, transfer.Recipient.Equals(holderA))
		assert.Equal(t, persist.DBID("indexer-1"), transfer.FetchedBy)
	}

	// re-running the same range persists nothing new
	require.NoError(t, strategy.Start(context.Background(), testToken(persist.TokenTypeERC721), records))
	assert.Len(t, repo.inserted, 2)
}

func TestSenderStrategyFilters(t *testing.T) {
	other := persist.Address("0x000000000000000000000000000000000000bbbb")

	repo := newFakeTransferRepo()
	strategy, err := NewTransferStrategy(testTransferIndexer(persist.IndexerStrategySender, persist.StrategyParams{"sender": other.String()}), repo)
	require.NoError(t, err)

	records := recordsWithRecipients(testRecipient, testRecipient)
	require.NoError(t, strategy.Start(context.Background(), testToken(persist.TokenTypeERC721), records))
	assert.Empty(t, repo.inserted)
}

func TestTokenScanStrategyKeepsEverything(t *testing.T) {
	repo := newFakeTransferRepo()
	strategy, err := NewTransferStrategy(testTransferIndexer(persist.IndexerStrategyTokenScan, nil), repo)
	require.NoError(t, err)

	records := recordsWithRecipients(testRecipient, testSender, testRecipient)
	require.NoError(t, strategy.Start(context.Background(), testToken(persist.TokenTypeERC721), records))
	assert.Len(t, repo.inserted, 3)
}

func TestTransferSaverTreatsLostRaceAsSeen(t *testing.T) {
	repo := newFakeTransferRepo()
	records := recordsWithRecipients(testRecipient)
	transfer := records[0].ToTokenTransfer(testToken(persist.TokenTypeERC721), "indexer-1")
	repo.transfers[transfer.TxHash] = []persist.TokenTransfer{transfer}

	racing := &racingTransferRepo{fakeTransferRepo: repo}
	saver := transferSaver{fetchedBy: "indexer-1", transferRepo: racing}
	require.NoError(t, saver.save(context.Background(), testToken(persist.TokenTypeERC721), records))
	assert.Empty(t, repo.inserted)
}

// racingTransferRepo simulates a second worker inserting between the
// existence check and the insert by never admitting the row exists
type racingTransferRepo struct {
	*fakeTransferRepo
}

func (r *racingTransferRepo) ExistsByTxHash(ctx context.Context, pTxHash persist.TxHash) (bool, error) {
	return false, nil
}

func TestNewTransferStrategy_ConfigErrors(t *testing.T) {
	repo := newFakeTransferRepo()

	_, err := NewTransferStrategy(testTransferIndexer(persist.IndexerStrategyRecipient, nil), repo)
	assert.True(t, IsConfigError(err))

	_, err = NewTransferStrategy(testTransferIndexer(persist.IndexerStrategyRecipient, persist.StrategyParams{"recipient": "not-an-address"}), repo)
	assert.True(t, IsConfigError(err))

	_, err = NewTransferStrategy(testTransferIndexer(persist.IndexerStrategySpecifiedHolders, nil), repo)
	assert.True(t, IsConfigError(err))
}

func TestNewBalanceStrategy_SpecifiedHolders(t *testing.T) {
	repo := newFakeTransferRepo()

	holders := []interface{}{testSender.String(), testRecipient.String()}
	strategy, err := NewBalanceStrategy(testTransferIndexer(persist.IndexerStrategySpecifiedHolders, persist.StrategyParams{"holders": holders}), repo)
	require.NoError(t, err)

	got, err := strategy.Start(context.Background(), testToken(persist.TokenTypeERC20))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equals(testSender))
	assert.True(t, got[1].Equals(testRecipient))

	_, err = NewBalanceStrategy(testTransferIndexer(persist.IndexerStrategySpecifiedHolders, persist.StrategyParams{"holders": []interface{}{}}), repo)
	assert.True(t, IsConfigError(err))

	_, err = NewBalanceStrategy(testTransferIndexer(persist.IndexerStrategySpecifiedHolders, persist.StrategyParams{"holders": []interface{}{"nope"}}), repo)
	assert.True(t, IsConfigError(err))
}

func TestNewBalanceStrategy_TransfersParticipants(t *testing.T) {
	repo := newFakeTransferRepo()
	records := recordsWithRecipients(testRecipient)
	_, err := repo.Create(context.Background(), records[0].ToTokenTransfer(testToken(persist.TokenTypeERC721), "indexer-1"))
	require.NoError(t, err)

	strategy, err := NewBalanceStrategy(testTransferIndexer(persist.IndexerStrategyTransfersParticipants, nil), repo)
	require.NoError(t, err)

	holders, err := strategy.Start(context.Background(), testToken(persist.TokenTypeERC721))
	require.NoError(t, err)
	assert.ElementsMatch(t, []persist.Address{testSender, testRecipient}, holders)
}

func TestStrategyTypeMismatch(t *testing.T) {
	repo := newFakeTransferRepo()

	_, err := NewTransferStrategy(testTransferIndexer(persist.IndexerStrategySpecifiedHolders, nil), repo)
	assert.True(t, IsConfigError(err))

	_, err = NewBalanceStrategy(testTransferIndexer(persist.IndexerStrategyTokenScan, nil), repo)
	assert.True(t, IsConfigError(err))
}
