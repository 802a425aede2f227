package indexer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/service/rpc"
)

var (
	testSender    = persist.Address("0x000000000000000000000000000000000000af76")
	testRecipient = persist.Address("0x000000000000000000000000000000000000cccf")
	testContract  = persist.Address("0x0c2ee19b2a89943066c2dc7f1bddcc907f614033")
	testTxHash    = persist.TxHash("0xa35cfd24689b8911232eeb7a6433fca222363e7fc9a3e1feebf72a54311cdebd")
)

func testToken(pType persist.TokenType) persist.Token {
	token := persist.Token{
		ID:       "token-1",
		Name:     "test token",
		Type:     pType,
		Strategy: persist.FetchingStrategyEvent,
	}
	if pType == persist.TokenTypeNative {
		token.Strategy = persist.FetchingStrategyReceipt
		return token
	}
	token.Address = testContract
	return token
}

func addressTopic(pAddress persist.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(pAddress.Address().Bytes(), 32))
}

func uint256Topic(i int64) common.Hash {
	return common.BigToHash(big.NewInt(i))
}

func uint256Word(i int64) []byte {
	return common.LeftPadBytes(big.NewInt(i).Bytes(), 32)
}

// transferLog builds a Transfer(address,address,uint256) log. The third
// argument lands in topics[3] when indexed is set, in the data section
// otherwise.
func transferLog(pSender, pRecipient persist.Address, pValue int64, pIndexed bool) types.Log {
	log := types.Log{
		Address: testContract.Address(),
		Topics: []common.Hash{
			common.HexToHash(string(transferEventHash)),
			addressTopic(pSender),
			addressTopic(pRecipient),
		},
		TxHash: common.HexToHash(string(testTxHash)),
	}
	if pIndexed {
		log.Topics = append(log.Topics, uint256Topic(pValue))
	} else {
		log.Data = uint256Word(pValue)
	}
	return log
}

// transferBatchLog builds a standard TransferBatch log with its two dynamic
// arrays packed behind head offsets
func transferBatchLog(pOperator, pSender, pRecipient persist.Address, pIDs, pValues []int64) types.Log {
	data := []byte{}
	data = append(data, uint256Word(64)...)                          // ids head offset
	data = append(data, uint256Word(int64(96+32*len(pIDs)))...)      // values head offset
	data = append(data, uint256Word(int64(len(pIDs)))...)
	for _, id := range pIDs {
		data = append(data, uint256Word(id)...)
	}
	data = append(data, uint256Word(int64(len(pValues)))...)
	for _, v := range pValues {
		data = append(data, uint256Word(v)...)
	}

	return types.Log{
		Address: testContract.Address(),
		Topics: []common.Hash{
			common.HexToHash(string(transferBatchEventHash)),
			addressTopic(pOperator),
			addressTopic(pSender),
			addressTopic(pRecipient),
		},
		Data:   data,
		TxHash: common.HexToHash(string(testTxHash)),
	}
}

// fakeChain is an in-memory node for engine tests. It serves the same logs
// through the filter API and plain eth_getLogs, narrowing by topic zero the
// way a real node would.
type fakeChain struct {
	head     persist.BlockNumber
	logs     []types.Log
	blocks   map[persist.BlockNumber]rpc.Block
	receipts map[persist.TxHash]rpc.Receipt

	nativeBalances map[persist.Address]*big.Int
	tokenBalances  map[persist.Address]*big.Int
	ownedIDs       map[persist.Address][]*big.Int

	getLogsErr    error
	receiptErrs   map[persist.TxHash]error
	enumerateErrs map[persist.Address]error

	filterSigs  map[string]common.Hash
	uninstalled []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:         map[persist.BlockNumber]rpc.Block{},
		receipts:       map[persist.TxHash]rpc.Receipt{},
		nativeBalances: map[persist.Address]*big.Int{},
		tokenBalances:  map[persist.Address]*big.Int{},
		ownedIDs:       map[persist.Address][]*big.Int{},
		receiptErrs:    map[persist.TxHash]error{},
		enumerateErrs:  map[persist.Address]error{},
		filterSigs:     map[string]common.Hash{},
	}
}

func (c *fakeChain) BlockNumber(ctx context.Context) (persist.BlockNumber, error) {
	return c.head, nil
}

func (c *fakeChain) GetLogs(ctx context.Context, pFrom, pTo persist.BlockNumber, pContract persist.Address) ([]types.Log, error) {
	if c.getLogsErr != nil {
		return nil, c.getLogsErr
	}
	return c.logs, nil
}

func (c *fakeChain) NewTransferFilter(ctx context.Context, pFrom, pTo persist.BlockNumber, pContract persist.Address, pEventSig common.Hash) (string, error) {
	id := fmt.Sprintf("filter-%d", len(c.filterSigs))
	c.filterSigs[id] = pEventSig
	return id, nil
}

func (c *fakeChain) GetFilterLogs(ctx context.Context, pFilterID string) ([]types.Log, error) {
	sig, ok := c.filterSigs[pFilterID]
	if !ok {
		return nil, fmt.Errorf("no filter installed with id %s", pFilterID)
	}
	matched := []types.Log{}
	for _, log := range c.logs {
		if len(log.Topics) > 0 && log.Topics[0] == sig {
			matched = append(matched, log)
		}
	}
	return matched, nil
}

func (c *fakeChain) UninstallFilter(ctx context.Context, pFilterID string) (bool, error) {
	c.uninstalled = append(c.uninstalled, pFilterID)
	return true, nil
}

func (c *fakeChain) BlockWithTransactions(ctx context.Context, pNumber persist.BlockNumber) (rpc.Block, error) {
	block, ok := c.blocks[pNumber]
	if !ok {
		return rpc.Block{}, fmt.Errorf("block %d not found", pNumber)
	}
	return block, nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, pTxHash persist.TxHash) (rpc.Receipt, error) {
	if err := c.receiptErrs[pTxHash]; err != nil {
		return rpc.Receipt{}, err
	}
	receipt, ok := c.receipts[pTxHash]
	if !ok {
		return rpc.Receipt{}, fmt.Errorf("no receipt found for tx %s", pTxHash)
	}
	return receipt, nil
}

func (c *fakeChain) BalanceAt(ctx context.Context, pHolder persist.Address) (*big.Int, error) {
	if it, ok := c.nativeBalances[pHolder]; ok {
		return it, nil
	}
	return big.NewInt(0), nil
}

func (c *fakeChain) BalanceOf(ctx context.Context, pContract, pHolder persist.Address) (*big.Int, error) {
	if it, ok := c.tokenBalances[pHolder]; ok {
		return it, nil
	}
	return big.NewInt(int64(len(c.ownedIDs[pHolder]))), nil
}

func (c *fakeChain) TokenOfOwnerByIndex(ctx context.Context, pContract, pHolder persist.Address, pIndex *big.Int) (*big.Int, error) {
	if err := c.enumerateErrs[pHolder]; err != nil {
		return nil, err
	}
	owned := c.ownedIDs[pHolder]
	if !pIndex.IsUint64() || pIndex.Uint64() >= uint64(len(owned)) {
		return nil, fmt.Errorf("index %s out of range", pIndex)
	}
	return owned[pIndex.Uint64()], nil
}

// fakeTransferRepo keeps transfers keyed by tx hash and enforces the same
// uniqueness the real table does
type fakeTransferRepo struct {
	persist.TransferRepository

	transfers map[persist.TxHash][]persist.TokenTransfer
	inserted  []persist.TokenTransfer
}

func newFakeTransferRepo() *fakeTransferRepo {
	return &fakeTransferRepo{transfers: map[persist.TxHash][]persist.TokenTransfer{}}
}

func (r *fakeTransferRepo) Create(ctx context.Context, pTransfer persist.TokenTransfer) (persist.DBID, error) {
	if len(r.transfers[pTransfer.TxHash]) > 0 {
		return "", persist.ErrTransferAlreadyExists{TxHash: pTransfer.TxHash}
	}
	pTransfer.ID = persist.GenerateID()
	r.transfers[pTransfer.TxHash] = append(r.transfers[pTransfer.TxHash], pTransfer)
	r.inserted = append(r.inserted, pTransfer)
	return pTransfer.ID, nil
}

func (r *fakeTransferRepo) ExistsByTxHash(ctx context.Context, pTxHash persist.TxHash) (bool, error) {
	return len(r.transfers[pTxHash]) > 0, nil
}

func (r *fakeTransferRepo) DistinctParticipants(ctx context.Context, pTokenDBID persist.DBID) ([]persist.Address, error) {
	seen := map[persist.Address]bool{}
	result := []persist.Address{}
	for _, transfers := range r.transfers {
		for _, transfer := range transfers {
			for _, addr := range []persist.Address{transfer.Sender, transfer.Recipient} {
				if addr == "" || addr == persist.ZeroAddress || seen[addr] {
					continue
				}
				seen[addr] = true
				result = append(result, addr)
			}
		}
	}
	return result, nil
}

// fakeBalanceRepo keeps amount rows and owned-id rows in memory and records
// every mutation for assertions
type fakeBalanceRepo struct {
	persist.BalanceRepository

	amountRows map[persist.Address]persist.TokenBalance
	ownedRows  map[persist.Address][]persist.Uint256

	created []persist.Uint256
	deleted []persist.Uint256
	saved   []persist.TokenBalance
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{
		amountRows: map[persist.Address]persist.TokenBalance{},
		ownedRows:  map[persist.Address][]persist.Uint256{},
	}
}

func (r *fakeBalanceRepo) GetOrCreate(ctx context.Context, pTokenDBID persist.DBID, pHolder persist.Address, pTrackedBy persist.DBID) (persist.TokenBalance, error) {
	if row, ok := r.amountRows[pHolder]; ok {
		return row, nil
	}
	row := persist.TokenBalance{ID: persist.GenerateID(), TokenDBID: pTokenDBID, Holder: pHolder, TrackedBy: pTrackedBy}
	r.amountRows[pHolder] = row
	return row, nil
}

func (r *fakeBalanceRepo) Save(ctx context.Context, pBalance persist.TokenBalance) error {
	r.amountRows[pBalance.Holder] = pBalance
	r.saved = append(r.saved, pBalance)
	return nil
}

func (r *fakeBalanceRepo) ListOwnedTokenIDs(ctx context.Context, pTokenDBID persist.DBID, pHolder persist.Address) ([]persist.Uint256, error) {
	return r.ownedRows[pHolder], nil
}

func (r *fakeBalanceRepo) CreateTokenIDRows(ctx context.Context, pTokenDBID persist.DBID, pHolder persist.Address, pTokenIDs []persist.Uint256, pTrackedBy persist.DBID) error {
	r.ownedRows[pHolder] = append(r.ownedRows[pHolder], pTokenIDs...)
	r.created = append(r.created, pTokenIDs...)
	return nil
}

func (r *fakeBalanceRepo) DeleteTokenIDRows(ctx context.Context, pTokenDBID persist.DBID, pHolder persist.Address, pTokenIDs []persist.Uint256) error {
	drop := map[persist.Uint256]bool{}
	for _, id := range pTokenIDs {
		drop[id] = true
	}
	kept := []persist.Uint256{}
	for _, id := range r.ownedRows[pHolder] {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	r.ownedRows[pHolder] = kept
	r.deleted = append(r.deleted, pTokenIDs...)
	return nil
}

// fakeIndexerRepo serves one indexer row and records watermark movements
type fakeIndexerRepo struct {
	persist.IndexerRepository

	indexer    persist.Indexer
	watched    []persist.Token
	lastBlocks []persist.BlockNumber
}

func (r *fakeIndexerRepo) GetByID(ctx context.Context, pID persist.DBID) (persist.Indexer, error) {
	return r.indexer, nil
}

func (r *fakeIndexerRepo) GetByName(ctx context.Context, pName string) (persist.Indexer, error) {
	if pName != r.indexer.Name {
		return persist.Indexer{}, persist.ErrIndexerNotFoundByName{Name: pName}
	}
	return r.indexer, nil
}

func (r *fakeIndexerRepo) GetWatchedTokens(ctx context.Context, pID persist.DBID) ([]persist.Token, error) {
	return r.watched, nil
}

func (r *fakeIndexerRepo) UpdateLastBlock(ctx context.Context, pID persist.DBID, pBlock persist.BlockNumber) error {
	r.indexer.LastBlock = pBlock
	r.lastBlocks = append(r.lastBlocks, pBlock)
	return nil
}
