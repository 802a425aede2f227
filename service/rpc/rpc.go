package rpc

import (
	"context"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mikeydub/go-indexer/service/persist"
)

//go:embed abi/erc20.json
var erc20JSON string

//go:embed abi/erc721.json
var erc721JSON string

//go:embed abi/erc1155.json
var erc1155JSON string

var (
	// ERC20ABI is the contract ABI shared by ERC-20 and ERC-777 tokens
	ERC20ABI = mustParseABI(erc20JSON)
	// ERC721ABI is the contract ABI for ERC-721 tokens, including the enumerable extension
	ERC721ABI = mustParseABI(erc721JSON)
	// ERC1155ABI is the contract ABI for ERC-1155 multi tokens
	ERC1155ABI = mustParseABI(erc1155JSON)
)

const dialTimeout = 10 * time.Second

// Block is a block with full transaction bodies, reduced to the fields the
// indexer reads
type Block struct {
	Number       persist.BlockNumber
	Transactions []Transaction
}

// Transaction is a transaction inside a fetched block
type Transaction struct {
	Hash  persist.TxHash
	Value *big.Int
}

// Receipt is a transaction receipt. Receipts are always decoded from the raw
// RPC response because the sender and recipient only exist on the wire, not
// on geth's receipt type.
type Receipt struct {
	Status uint64
	From   persist.Address
	To     persist.Address
}

// EthClient wraps a JSON-RPC connection to one network's node. When the
// network needs POA handling, blocks are decoded through lenient raw structs
// so oversized extraData headers cannot fail strict geth decoding.
type EthClient struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	needPOA bool
}

// Dial connects to the network's RPC endpoint
func Dial(ctx context.Context, pNetwork persist.Network) (*EthClient, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, pNetwork.RPCURL)
	if err != nil {
		return nil, err
	}

	return &EthClient{
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		needPOA: pNetwork.NeedPOA,
	}, nil
}

// Close releases the underlying RPC connection
func (c *EthClient) Close() {
	c.rpc.Close()
}

// BlockNumber returns the latest block number
func (c *EthClient) BlockNumber(ctx context.Context) (persist.BlockNumber, error) {
	it, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return persist.BlockNumber(it), nil
}

// GetLogs retrieves every log emitted by the contract in the inclusive block
// range, with no topic narrowing
func (c *EthClient) GetLogs(ctx context.Context, pFrom, pTo persist.BlockNumber, pContract persist.Address) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: pFrom.BigInt(),
		ToBlock:   pTo.BigInt(),
		Addresses: []common.Address{pContract.Address()},
	})
}

type filterParams struct {
	FromBlock string          `json:"fromBlock"`
	ToBlock   string          `json:"toBlock"`
	Address   common.Address  `json:"address"`
	Topics    [][]common.Hash `json:"topics,omitempty"`
}

// NewTransferFilter installs a server-side filter for the contract's logs
// with the given event signature as topic zero, returning the filter ID
func (c *EthClient) NewTransferFilter(ctx context.Context, pFrom, pTo persist.BlockNumber, pContract persist.Address, pEventSig common.Hash) (string, error) {
	var filterID string
	err := c.rpc.CallContext(ctx, &filterID, "eth_newFilter", filterParams{
		FromBlock: "0x" + pFrom.Hex(),
		ToBlock:   "0x" + pTo.Hex(),
		Address:   pContract.Address(),
		Topics:    [][]common.Hash{{pEventSig}},
	})
	if err != nil {
		return "", err
	}
	return filterID, nil
}

// GetFilterLogs drains all logs matching an installed filter
func (c *EthClient) GetFilterLogs(ctx context.Context, pFilterID string) ([]types.Log, error) {
	var logs []types.Log
	err := c.rpc.CallContext(ctx, &logs, "eth_getFilterLogs", pFilterID)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// UninstallFilter removes a server-side filter. Failures are not fatal; nodes
// expire idle filters on their own.
func (c *EthClient) UninstallFilter(ctx context.Context, pFilterID string) (bool, error) {
	var removed bool
	err := c.rpc.CallContext(ctx, &removed, "eth_uninstallFilter", pFilterID)
	if err != nil {
		return false, err
	}
	return removed, nil
}

type rawTransaction struct {
	Hash  common.Hash  `json:"hash"`
	Value *hexutil.Big `json:"value"`
}

type rawBlock struct {
	Number       *hexutil.Big     `json:"number"`
	Transactions []rawTransaction `json:"transactions"`
}

type rawReceipt struct {
	Status *hexutil.Big    `json:"status"`
	From   common.Address  `json:"from"`
	To     *common.Address `json:"to"`
}

// BlockWithTransactions fetches one block with full transaction bodies
func (c *EthClient) BlockWithTransactions(ctx context.Context, pNumber persist.BlockNumber) (Block, error) {
	if c.needPOA {
		var raw rawBlock
		err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", "0x"+pNumber.Hex(), true)
		if err != nil {
			return Block{}, err
		}
		if raw.Number == nil {
			return Block{}, fmt.Errorf("block %d not found", pNumber)
		}
		block := Block{Number: persist.BlockNumber(raw.Number.ToInt().Uint64()), Transactions: make([]Transaction, len(raw.Transactions))}
		for i, tx := range raw.Transactions {
			block.Transactions[i] = Transaction{Hash: persist.TxHash(tx.Hash.Hex()), Value: tx.Value.ToInt()}
		}
		return block, nil
	}

	it, err := c.eth.BlockByNumber(ctx, pNumber.BigInt())
	if err != nil {
		return Block{}, err
	}
	block := Block{Number: persist.BlockNumber(it.NumberU64()), Transactions: make([]Transaction, len(it.Transactions()))}
	for i, tx := range it.Transactions() {
		block.Transactions[i] = Transaction{Hash: persist.TxHash(tx.Hash().Hex()), Value: tx.Value()}
	}
	return block, nil
}

// TransactionReceipt fetches the receipt for a transaction
func (c *EthClient) TransactionReceipt(ctx context.Context, pTxHash persist.TxHash) (Receipt, error) {
	var raw rawReceipt
	err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionReceipt", pTxHash.Hash())
	if err != nil {
		return Receipt{}, err
	}
	if raw.Status == nil {
		return Receipt{}, fmt.Errorf("no receipt found for tx %s", pTxHash)
	}
	receipt := Receipt{Status: raw.Status.ToInt().Uint64(), From: persist.Address(raw.From.Hex())}
	if raw.To != nil {
		receipt.To = persist.Address(raw.To.Hex())
	}
	return receipt, nil
}

// BalanceAt returns the native currency balance of the holder at the latest block
func (c *EthClient) BalanceAt(ctx context.Context, pHolder persist.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, pHolder.Address(), nil)
}

// BalanceOf calls balanceOf(address) on the contract. ERC-20, ERC-721 and
// ERC-777 share the selector.
func (c *EthClient) BalanceOf(ctx context.Context, pContract, pHolder persist.Address) (*big.Int, error) {
	return c.callUint256(ctx, pContract, ERC721ABI, "balanceOf", pHolder.Address())
}

// TokenOfOwnerByIndex calls the ERC-721 enumerable extension for the token ID
// at the given index of the holder's enumeration
func (c *EthClient) TokenOfOwnerByIndex(ctx context.Context, pContract, pHolder persist.Address, pIndex *big.Int) (*big.Int, error) {
	return c.callUint256(ctx, pContract, ERC721ABI, "tokenOfOwnerByIndex", pHolder.Address(), pIndex)
}

func (c *EthClient) callUint256(ctx context.Context, pContract persist.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	to := pContract.Address()
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	out, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s output arity: %d", method, len(out))
	}
	it, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output type: %T", method, out[0])
	}
	return it, nil
}

// ABIForTokenType returns the contract ABI a token's transfer events decode
// with. ERC-777 emits the ERC-20 Transfer shape; the enumerable extension
// shares the ERC-721 ABI.
func ABIForTokenType(pTokenType persist.TokenType) (abi.ABI, error) {
	switch pTokenType {
	case persist.TokenTypeERC20, persist.TokenTypeERC777:
		return ERC20ABI, nil
	case persist.TokenTypeERC721, persist.TokenTypeERC721Enumerable:
		return ERC721ABI, nil
	case persist.TokenTypeERC1155:
		return ERC1155ABI, nil
	default:
		return abi.ABI{}, fmt.Errorf("no ABI for token type: %s", pTokenType)
	}
}

func mustParseABI(raw string) abi.ABI {
	it, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return it
}
