package indexer

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/sirupsen/logrus"
)

// TransferStrategy decides which fetched records a transfer indexer keeps and
// persists them idempotently
type TransferStrategy interface {
	Start(ctx context.Context, pToken persist.Token, pRecords []TransferRecord) error
}

// BalanceStrategy decides which holders a balance indexer polls for one token
type BalanceStrategy interface {
	Start(ctx context.Context, pToken persist.Token) ([]persist.Address, error)
}

// NewTransferStrategy builds the indexer's configured transfer strategy,
// validating its parameters before any record is touched
func NewTransferStrategy(pIndexer persist.Indexer, transferRepo persist.TransferRepository) (TransferStrategy, error) {
	saver := transferSaver{fetchedBy: pIndexer.ID, transferRepo: transferRepo}

	switch pIndexer.Strategy {
	case persist.IndexerStrategyTokenScan:
		return &tokenScanStrategy{saver: saver}, nil
	case persist.IndexerStrategyRecipient:
		match, err := requiredAddressParam(pIndexer.Params, "recipient")
		if err != nil {
			return nil, err
		}
		return &recipientStrategy{match: match, saver: saver}, nil
	case persist.IndexerStrategySender:
		match, err := requiredAddressParam(pIndexer.Params, "sender")
		if err != nil {
			return nil, err
		}
		return &senderStrategy{match: match, saver: saver}, nil
	default:
		return nil, ConfigError{Reason: "strategy " + pIndexer.Strategy.String() + " is not a transfer strategy"}
	}
}

// NewBalanceStrategy builds the indexer's configured balance strategy
func NewBalanceStrategy(pIndexer persist.Indexer, transferRepo persist.TransferRepository) (BalanceStrategy, error) {
	switch pIndexer.Strategy {
	case persist.IndexerStrategySpecifiedHolders:
		raw, ok := pIndexer.Params.StringList("holders")
		if !ok || len(raw) == 0 {
			return nil, ConfigError{Reason: "specified_holders strategy requires a non-empty holders param"}
		}
		holders := make([]persist.Address, len(raw))
		for i, it := range raw {
			if !common.IsHexAddress(it) {
				return nil, ConfigError{Reason: "holders param contains an invalid address: " + it}
			}
			holders[i] = persist.Address(it)
		}
		return &specifiedHoldersStrategy{holders: holders}, nil
	case persist.IndexerStrategyTransfersParticipants:
		return &transfersParticipantsStrategy{transferRepo: transferRepo}, nil
	default:
		return nil, ConfigError{Reason: "strategy " + pIndexer.Strategy.String() + " is not a balance strategy"}
	}
}

func requiredAddressParam(pParams persist.StrategyParams, pKey string) (persist.Address, error) {
	it, ok := pParams.String(pKey)
	if !ok {
		return "", ConfigError{Reason: pKey + " strategy requires a " + pKey + " param"}
	}
	if !common.IsHexAddress(it) {
		return "", ConfigError{Reason: pKey + " param is not a valid address: " + it}
	}
	return persist.Address(it), nil
}

// transferSaver persists records one at a time, treating a duplicate tx hash
// as an already-seen transfer rather than an error. The unique constraint on
// tx_hash is the final authority when two workers race on the same range.
type transferSaver struct {
	fetchedBy    persist.DBID
	transferRepo persist.TransferRepository
}

func (s transferSaver) save(ctx context.Context, pToken persist.Token, pRecords []TransferRecord) error {
	for _, record := range pRecords {
		exists, err := s.transferRepo.ExistsByTxHash(ctx, record.TransactionHash())
		if err != nil {
			return err
		}
		if exists {
			logger.For(ctx).WithField("tx", record.TransactionHash()).Info("transfer already persisted, skipping")
			continue
		}

		if _, err := s.transferRepo.Create(ctx, record.ToTokenTransfer(pToken, s.fetchedBy)); err != nil {
			var dup persist.ErrTransferAlreadyExists
			if errors.As(err, &dup) {
				logger.For(ctx).WithField("tx", record.TransactionHash()).Info("lost insert race, transfer already persisted")
				continue
			}
			return err
		}
	}
	return nil
}

// tokenScanStrategy keeps everything the fetchers produce
type tokenScanStrategy struct {
	saver transferSaver
}

func (s *tokenScanStrategy) Start(ctx context.Context, pToken persist.Token, pRecords []TransferRecord) error {
	return s.saver.save(ctx, pToken, pRecords)
}

// recipientStrategy keeps only transfers received by the configured address
type recipientStrategy struct {
	match persist.Address
	saver transferSaver
}

func (s *recipientStrategy) Start(ctx context.Context, pToken persist.Token, pRecords []TransferRecord) error {
	kept := []TransferRecord{}
	for _, record := range pRecords {
		if record.TransferRecipient().Equals(s.match) {
			kept = append(kept, record)
		}
	}
	return s.saver.save(ctx, pToken, kept)
}

// senderStrategy keeps only transfers sent by the configured address
type senderStrategy struct {
	match persist.Address
	saver transferSaver
}

func (s *senderStrategy) Start(ctx context.Context, pToken persist.Token, pRecords []TransferRecord) error {
	kept := []TransferRecord{}
	for _, record := range pRecords {
		if record.TransferSender().Equals(s.match) {
			kept = append(kept, record)
		}
	}
	return s.saver.save(ctx, pToken, kept)
}

// specifiedHoldersStrategy polls a fixed operator-configured holder list
type specifiedHoldersStrategy struct {
	holders []persist.Address
}

func (s *specifiedHoldersStrategy) Start(ctx context.Context, pToken persist.Token) ([]persist.Address, error) {
	result := make([]persist.Address, len(s.holders))
	copy(result, s.holders)
	return result, nil
}

// transfersParticipantsStrategy polls every address seen as a sender or
// recipient in the token's persisted transfers
type transfersParticipantsStrategy struct {
	transferRepo persist.TransferRepository
}

func (s *transfersParticipantsStrategy) Start(ctx context.Context, pToken persist.Token) ([]persist.Address, error) {
	participants, err := s.transferRepo.DistinctParticipants(ctx, pToken.ID)
	if err != nil {
		return nil, err
	}
	logger.For(ctx).WithFields(logrus.Fields{"token": pToken.Name, "holders": len(participants)}).Debug("derived holders from transfer participants")
	return participants, nil
}
