package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/service/rpc"
	"github.com/sirupsen/logrus"
)

// chainReader is the slice of the RPC client the fetchers need. Kept small so
// engine tests run against an in-memory chain.
type chainReader interface {
	GetLogs(ctx context.Context, pFrom, pTo persist.BlockNumber, pContract persist.Address) ([]types.Log, error)
	NewTransferFilter(ctx context.Context, pFrom, pTo persist.BlockNumber, pContract persist.Address, pEventSig common.Hash) (string, error)
	GetFilterLogs(ctx context.Context, pFilterID string) ([]types.Log, error)
	UninstallFilter(ctx context.Context, pFilterID string) (bool, error)
	BlockWithTransactions(ctx context.Context, pNumber persist.BlockNumber) (rpc.Block, error)
	TransactionReceipt(ctx context.Context, pTxHash persist.TxHash) (rpc.Receipt, error)
}

// TransferFetcher retrieves one watched token's transfers over an inclusive
// block range
type TransferFetcher interface {
	GetTransfers(ctx context.Context, pFrom, pTo persist.BlockNumber) ([]TransferRecord, error)
}

// NewTransferFetcher builds the fetcher for one watched token: event based
// for anything that emits transfer logs, receipt based for the native
// currency
func NewTransferFetcher(pToken persist.Token, pNetworkType persist.NetworkType, chain chainReader) (TransferFetcher, error) {
	switch pToken.Strategy {
	case persist.FetchingStrategyReceipt:
		if pToken.Type != persist.TokenTypeNative {
			return nil, ConfigError{Reason: "receipt based fetching only applies to native tokens"}
		}
		return &receiptFetcher{chain: chain}, nil
	case persist.FetchingStrategyEvent:
		if pToken.Type == persist.TokenTypeNative {
			return nil, ConfigError{Reason: "native tokens emit no transfer events"}
		}
		contractABI, err := rpc.ABIForTokenType(pToken.Type)
		if err != nil {
			return nil, ConfigError{Reason: err.Error()}
		}
		decoder, err := decoderForTokenType(pToken.Type)
		if err != nil {
			return nil, err
		}
		return &eventFetcher{
			contract:    pToken.Address,
			contractABI: contractABI,
			eventNames:  transferEventNames(pToken.Type),
			decoder:     decoder,
			useFilters:  pNetworkType == persist.NetworkTypeFilterable,
			chain:       chain,
		}, nil
	default:
		return nil, ConfigError{Reason: "unknown fetching strategy: " + string(pToken.Strategy)}
	}
}

func transferEventNames(pTokenType persist.TokenType) []string {
	if pTokenType.IsMultiToken() {
		return []string{"TransferSingle", "TransferBatch"}
	}
	return []string{"Transfer"}
}

// eventFetcher reads a contract's transfer logs. On filterable networks it
// installs one server-side filter per event signature and drains it; elsewhere
// it falls back to a single eth_getLogs over the range and matches topic zero
// locally.
type eventFetcher struct {
	contract    persist.Address
	contractABI abi.ABI
	eventNames  []string
	decoder     recordDecoder
	useFilters  bool
	chain       chainReader
}

func (f *eventFetcher) GetTransfers(ctx context.Context, pFrom, pTo persist.BlockNumber) ([]TransferRecord, error) {
	if !f.useFilters {
		logs, err := f.chain.GetLogs(ctx, pFrom, pTo, f.contract)
		if err != nil {
			return nil, RPCError{Op: "eth_getLogs", Err: err}
		}
		result := []TransferRecord{}
		for _, log := range logs {
			result = append(result, f.decoder.fromRawLog(ctx, log)...)
		}
		return result, nil
	}

	result := []TransferRecord{}
	for _, eventName := range f.eventNames {
		records, err := f.drainEventFilter(ctx, pFrom, pTo, eventName)
		if err != nil {
			return nil, err
		}
		result = append(result, records...)
	}
	return result, nil
}

func (f *eventFetcher) drainEventFilter(ctx context.Context, pFrom, pTo persist.BlockNumber, pEventName string) ([]TransferRecord, error) {
	event, ok := f.contractABI.Events[pEventName]
	if !ok {
		return nil, ConfigError{Reason: "no event named " + pEventName + " in contract ABI"}
	}

	filterID, err := f.chain.NewTransferFilter(ctx, pFrom, pTo, f.contract, event.ID)
	if err != nil {
		return nil, RPCError{Op: "eth_newFilter", Err: err}
	}
	defer func() {
		if _, err := f.chain.UninstallFilter(ctx, filterID); err != nil {
			logger.For(ctx).WithError(err).WithField("filterID", filterID).Warn("failed to uninstall filter")
		}
	}()

	logs, err := f.chain.GetFilterLogs(ctx, filterID)
	if err != nil {
		return nil, RPCError{Op: "eth_getFilterLogs", Err: err}
	}

	result := []TransferRecord{}
	for _, log := range logs {
		entry, err := decodeLogEntry(f.contractABI, pEventName, log)
		if err != nil {
			// Non-conforming contracts index arguments the standard leaves in
			// the data section. The raw decoders handle those shapes.
			logger.For(ctx).WithError(err).WithFields(logrus.Fields{"event": pEventName, "tx": log.TxHash.Hex()}).Debug("falling back to raw log decoding")
			result = append(result, f.decoder.fromRawLog(ctx, log)...)
			continue
		}
		result = append(result, f.decoder.fromEventEntry(ctx, entry)...)
	}
	return result, nil
}

// decodeLogEntry unpacks one log's indexed topics and data section into named
// arguments per the event's ABI definition
func decodeLogEntry(contractABI abi.ABI, pEventName string, pLog types.Log) (decodedLog, error) {
	event := contractABI.Events[pEventName]

	args := map[string]interface{}{}

	indexed := make(abi.Arguments, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, pLog.Topics[1:]); err != nil {
		return decodedLog{}, err
	}

	if len(event.Inputs.NonIndexed()) > 0 {
		if err := contractABI.UnpackIntoMap(args, pEventName, pLog.Data); err != nil {
			return decodedLog{}, err
		}
	}

	return decodedLog{eventName: pEventName, args: args, txHash: txHashOf(pLog)}, nil
}

// receiptFetcher walks blocks for native currency movements: every
// transaction with a nonzero value whose receipt succeeded becomes one
// transfer, with the sender and recipient read off the receipt
type receiptFetcher struct {
	chain chainReader
}

func (f *receiptFetcher) GetTransfers(ctx context.Context, pFrom, pTo persist.BlockNumber) ([]TransferRecord, error) {
	result := []TransferRecord{}
	for n := pFrom; n <= pTo; n++ {
		block, err := f.chain.BlockWithTransactions(ctx, n)
		if err != nil {
			return nil, RPCError{Op: "eth_getBlockByNumber", Err: err}
		}
		for _, tx := range block.Transactions {
			if tx.Value == nil || tx.Value.Sign() == 0 {
				continue
			}
			receipt, err := f.chain.TransactionReceipt(ctx, tx.Hash)
			if err != nil {
				logger.For(ctx).WithError(err).WithField("tx", tx.Hash).Warn("failed to fetch receipt, skipping transaction")
				continue
			}
			if receipt.Status == 0 {
				continue
			}
			result = append(result, NativeTransfer{
				Sender:    receipt.From,
				Recipient: receipt.To,
				Amount:    tx.Value,
				TxHash:    tx.Hash,
			})
		}
	}
	return result, nil
}
