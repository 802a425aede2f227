package indexer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/sirupsen/logrus"
)

// eventHash represents an event keccak256 hash
type eventHash string

const (
	// transferEventHash represents the keccak256 hash of Transfer(address,address,uint256)
	transferEventHash eventHash = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	// transferSingleEventHash represents the keccak256 hash of TransferSingle(address,address,address,uint256,uint256)
	transferSingleEventHash eventHash = "0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62"
	// transferBatchEventHash represents the keccak256 hash of TransferBatch(address,address,address,uint256[],uint256[])
	transferBatchEventHash eventHash = "0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb"
)

func (e eventHash) matches(topic types.Log) bool {
	if len(topic.Topics) == 0 {
		return false
	}
	return topic.Topics[0].Hex() == string(e)
}

// decodedLog is the internal shape of a log entry after the RPC boundary:
// the event it matched, its named arguments from ABI unpacking, and the
// transaction that emitted it.
type decodedLog struct {
	eventName string
	args      map[string]interface{}
	txHash    persist.TxHash
}

// TransferRecord is one decoded movement of a watched token, ready to be
// filtered by a strategy and flattened into a persisted TokenTransfer
type TransferRecord interface {
	TransferSender() persist.Address
	TransferRecipient() persist.Address
	TransactionHash() persist.TxHash
	ToTokenTransfer(token persist.Token, fetchedBy persist.DBID) persist.TokenTransfer
}

// NativeTransfer is a movement of a network's built-in currency
type NativeTransfer struct {
	Sender    persist.Address
	Recipient persist.Address
	Amount    *big.Int
	TxHash    persist.TxHash
}

// FungibleTransfer is an ERC-20 or ERC-777 movement
type FungibleTransfer struct {
	Sender    persist.Address
	Recipient persist.Address
	Amount    *big.Int
	TxHash    persist.TxHash
}

// NonFungibleTransfer is an ERC-721 movement
type NonFungibleTransfer struct {
	Sender    persist.Address
	Recipient persist.Address
	TokenID   *big.Int
	TxHash    persist.TxHash
}

// MultiTokenTransfer is a single (id, amount) movement of an ERC-1155 token;
// a TransferBatch event decodes into one record per id
type MultiTokenTransfer struct {
	Operator  persist.Address
	Sender    persist.Address
	Recipient persist.Address
	TokenID   *big.Int
	Amount    *big.Int
	TxHash    persist.TxHash
}

func (t NativeTransfer) TransferSender() persist.Address    { return t.Sender }
func (t NativeTransfer) TransferRecipient() persist.Address { return t.Recipient }
func (t NativeTransfer) TransactionHash() persist.TxHash    { return t.TxHash }

// ToTokenTransfer maps the record to its persisted form: amount set, token ID
// and operator null
func (t NativeTransfer) ToTokenTransfer(pToken persist.Token, pFetchedBy persist.DBID) persist.TokenTransfer {
	return persist.TokenTransfer{
		TokenDBID: pToken.ID,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Amount:    persist.Uint256FromBig(t.Amount),
		TxHash:    t.TxHash,
		FetchedBy: pFetchedBy,
	}
}

func (t FungibleTransfer) TransferSender() persist.Address    { return t.Sender }
func (t FungibleTransfer) TransferRecipient() persist.Address { return t.Recipient }
func (t FungibleTransfer) TransactionHash() persist.TxHash    { return t.TxHash }

// ToTokenTransfer maps the record to its persisted form: amount set, token ID null
func (t FungibleTransfer) ToTokenTransfer(pToken persist.Token, pFetchedBy persist.DBID) persist.TokenTransfer {
	return persist.TokenTransfer{
		TokenDBID: pToken.ID,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Amount:    persist.Uint256FromBig(t.Amount),
		TxHash:    t.TxHash,
		FetchedBy: pFetchedBy,
	}
}

func (t NonFungibleTransfer) TransferSender() persist.Address    { return t.Sender }
func (t NonFungibleTransfer) TransferRecipient() persist.Address { return t.Recipient }
func (t NonFungibleTransfer) TransactionHash() persist.TxHash    { return t.TxHash }

// ToTokenTransfer maps the record to its persisted form: token ID set, amount null
func (t NonFungibleTransfer) ToTokenTransfer(pToken persist.Token, pFetchedBy persist.DBID) persist.TokenTransfer {
	return persist.TokenTransfer{
		TokenDBID: pToken.ID,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		TokenID:   persist.Uint256FromBig(t.TokenID),
		TxHash:    t.TxHash,
		FetchedBy: pFetchedBy,
	}
}

func (t MultiTokenTransfer) TransferSender() persist.Address    { return t.Sender }
func (t MultiTokenTransfer) TransferRecipient() persist.Address { return t.Recipient }
func (t MultiTokenTransfer) TransactionHash() persist.TxHash    { return t.TxHash }

// ToTokenTransfer maps the record to its persisted form: token ID, amount and
// operator all set
func (t MultiTokenTransfer) ToTokenTransfer(pToken persist.Token, pFetchedBy persist.DBID) persist.TokenTransfer {
	return persist.TokenTransfer{
		TokenDBID: pToken.ID,
		Operator:  t.Operator,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		TokenID:   persist.Uint256FromBig(t.TokenID),
		Amount:    persist.Uint256FromBig(t.Amount),
		TxHash:    t.TxHash,
		FetchedBy: pFetchedBy,
	}
}

// recordDecoder binds one token family's two decode paths: ABI-parsed event
// entries from the filter API, and raw logs from plain eth_getLogs
type recordDecoder struct {
	fromEventEntry func(ctx context.Context, entry decodedLog) []TransferRecord
	fromRawLog     func(ctx context.Context, log types.Log) []TransferRecord
}

// decoderForTokenType selects the decode family for a non-native token
func decoderForTokenType(pTokenType persist.TokenType) (recordDecoder, error) {
	switch {
	case pTokenType == persist.TokenTypeNative:
		return recordDecoder{}, ConfigError{Reason: "native tokens have no log decoders"}
	case pTokenType.IsFungible():
		return recordDecoder{fromEventEntry: fungibleFromEventEntry, fromRawLog: fungibleFromRawLog}, nil
	case pTokenType.IsNonFungible():
		return recordDecoder{fromEventEntry: nonFungibleFromEventEntry, fromRawLog: nonFungibleFromRawLog}, nil
	case pTokenType.IsMultiToken():
		return recordDecoder{fromEventEntry: multiTokenFromEventEntry, fromRawLog: multiTokenFromRawLog}, nil
	default:
		return recordDecoder{}, ConfigError{Reason: "unknown token type: " + pTokenType.String()}
	}
}

func fungibleFromEventEntry(ctx context.Context, entry decodedLog) []TransferRecord {
	from, fromOK := argAddress(entry.args, "from")
	to, toOK := argAddress(entry.args, "to")
	value, valueOK := argBigInt(entry.args, "value")
	if !fromOK || !toOK || !valueOK {
		logger.For(ctx).WithField("tx", entry.txHash).Warn("dropping malformed Transfer event entry")
		return nil
	}
	return []TransferRecord{FungibleTransfer{Sender: from, Recipient: to, Amount: value, TxHash: entry.txHash}}
}

func nonFungibleFromEventEntry(ctx context.Context, entry decodedLog) []TransferRecord {
	from, fromOK := argAddress(entry.args, "from")
	to, toOK := argAddress(entry.args, "to")
	tokenID, idOK := argBigInt(entry.args, "tokenId")
	if !fromOK || !toOK || !idOK {
		logger.For(ctx).WithField("tx", entry.txHash).Warn("dropping malformed Transfer event entry")
		return nil
	}
	return []TransferRecord{NonFungibleTransfer{Sender: from, Recipient: to, TokenID: tokenID, TxHash: entry.txHash}}
}

func multiTokenFromEventEntry(ctx context.Context, entry decodedLog) []TransferRecord {
	operator, opOK := argAddress(entry.args, "operator")
	from, fromOK := argAddress(entry.args, "from")
	to, toOK := argAddress(entry.args, "to")
	if !opOK || !fromOK || !toOK {
		logger.For(ctx).WithField("tx", entry.txHash).Warnf("dropping malformed %s event entry", entry.eventName)
		return nil
	}

	switch entry.eventName {
	case "TransferSingle":
		id, idOK := argBigInt(entry.args, "id")
		value, valueOK := argBigInt(entry.args, "value")
		if !idOK || !valueOK {
			logger.For(ctx).WithField("tx", entry.txHash).Warn("dropping malformed TransferSingle event entry")
			return nil
		}
		return []TransferRecord{MultiTokenTransfer{Operator: operator, Sender: from, Recipient: to, TokenID: id, Amount: value, TxHash: entry.txHash}}
	case "TransferBatch":
		ids, idsOK := argBigInts(entry.args, "ids")
		values, valuesOK := argBigInts(entry.args, "values")
		if !idsOK || !valuesOK {
			logger.For(ctx).WithField("tx", entry.txHash).Warn("dropping malformed TransferBatch event entry")
			return nil
		}
		return batchToRecords(ctx, operator, from, to, ids, values, entry.txHash)
	default:
		logger.For(ctx).WithFields(logrus.Fields{"tx": entry.txHash, "event": entry.eventName}).Warn("unexpected multi-token event")
		return nil
	}
}

func fungibleFromRawLog(ctx context.Context, log types.Log) []TransferRecord {
	amount, sender, recipient, ok := transferFromRawLog(log)
	if !ok {
		return nil
	}
	return []TransferRecord{FungibleTransfer{Sender: sender, Recipient: recipient, Amount: amount, TxHash: txHashOf(log)}}
}

func nonFungibleFromRawLog(ctx context.Context, log types.Log) []TransferRecord {
	tokenID, sender, recipient, ok := transferFromRawLog(log)
	if !ok {
		return nil
	}
	return []TransferRecord{NonFungibleTransfer{Sender: sender, Recipient: recipient, TokenID: tokenID, TxHash: txHashOf(log)}}
}

// transferFromRawLog decodes the shared Transfer(address,address,uint256)
// layout: the third argument sits in topics[3] when it is indexed, otherwise
// in the first data word
func transferFromRawLog(log types.Log) (*big.Int, persist.Address, persist.Address, bool) {
	if !transferEventHash.matches(log) || len(log.Topics) < 3 {
		return nil, "", "", false
	}

	sender := wordToAddress(log.Topics[1].Bytes())
	recipient := wordToAddress(log.Topics[2].Bytes())

	var value *big.Int
	if len(log.Topics) >= 4 {
		value = wordToUint256(log.Topics[3].Bytes())
	} else {
		value = wordToUint256(log.Data)
	}
	if value == nil {
		return nil, "", "", false
	}
	return value, sender, recipient, true
}

func multiTokenFromRawLog(ctx context.Context, log types.Log) []TransferRecord {
	switch {
	case transferSingleEventHash.matches(log):
		return transferSingleFromRawLog(ctx, log)
	case transferBatchEventHash.matches(log):
		return transferBatchFromRawLog(ctx, log)
	default:
		return nil
	}
}

func transferSingleFromRawLog(ctx context.Context, log types.Log) []TransferRecord {
	if len(log.Topics) < 4 {
		return nil
	}

	operator := wordToAddress(log.Topics[1].Bytes())
	sender := wordToAddress(log.Topics[2].Bytes())
	recipient := wordToAddress(log.Topics[3].Bytes())

	// Standard form carries id and value as the two data words. Some
	// non-conforming contracts index them as topics 4 and 5 instead.
	var id, value *big.Int
	if len(log.Topics) >= 6 {
		id = wordToUint256(log.Topics[4].Bytes())
		value = wordToUint256(log.Topics[5].Bytes())
	} else {
		id = wordToUint256(log.Data)
		if len(log.Data) >= 2*wordSize {
			value = wordToUint256(log.Data[wordSize:])
		}
	}
	if id == nil || value == nil {
		return nil
	}

	return []TransferRecord{MultiTokenTransfer{Operator: operator, Sender: sender, Recipient: recipient, TokenID: id, Amount: value, TxHash: txHashOf(log)}}
}

func transferBatchFromRawLog(ctx context.Context, log types.Log) []TransferRecord {
	if len(log.Topics) < 4 || len(log.Data) < 2*wordSize {
		return nil
	}

	operator := wordToAddress(log.Topics[1].Bytes())
	sender := wordToAddress(log.Topics[2].Bytes())
	recipient := wordToAddress(log.Topics[3].Bytes())

	idsOffset := wordToUint256(log.Data)
	valuesOffset := wordToUint256(log.Data[wordSize:])
	if idsOffset == nil || valuesOffset == nil || !idsOffset.IsUint64() || !valuesOffset.IsUint64() {
		return nil
	}

	ids := decodeUint256Array(log.Data, idsOffset.Uint64())
	values := decodeUint256Array(log.Data, valuesOffset.Uint64())
	if ids == nil || values == nil {
		return nil
	}

	return batchToRecords(ctx, operator, sender, recipient, ids, values, txHashOf(log))
}

// batchToRecords fans a TransferBatch out into one record per id, preserving
// order. A batch whose ids and values differ in length is dropped whole.
func batchToRecords(ctx context.Context, operator, sender, recipient persist.Address, ids, values []*big.Int, txHash persist.TxHash) []TransferRecord {
	if len(ids) != len(values) {
		logger.For(ctx).WithFields(logrus.Fields{"tx": txHash, "ids": len(ids), "values": len(values)}).Warn("dropping TransferBatch with mismatched ids and values")
		return nil
	}

	result := make([]TransferRecord, len(ids))
	for i := range ids {
		result[i] = MultiTokenTransfer{Operator: operator, Sender: sender, Recipient: recipient, TokenID: ids[i], Amount: values[i], TxHash: txHash}
	}
	return result
}

func txHashOf(log types.Log) persist.TxHash {
	return persist.TxHash(log.TxHash.Hex())
}

func argAddress(args map[string]interface{}, key string) (persist.Address, bool) {
	it, ok := args[key].(interface{ Hex() string })
	if !ok {
		return "", false
	}
	return persist.Address(it.Hex()), true
}

func argBigInt(args map[string]interface{}, key string) (*big.Int, bool) {
	it, ok := args[key].(*big.Int)
	return it, ok
}

func argBigInts(args map[string]interface{}, key string) ([]*big.Int, bool) {
	it, ok := args[key].([]*big.Int)
	return it, ok
}
