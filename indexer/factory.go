package indexer

import (
	"context"

	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/service/rpc"
)

// Deps holds the persistence ports a worker reads and writes through
type Deps struct {
	NetworkRepo  persist.NetworkRepository
	IndexerRepo  persist.IndexerRepository
	TransferRepo persist.TransferRepository
	BalanceRepo  persist.BalanceRepository
}

// chainClient is the full RPC surface a worker can touch. *rpc.EthClient
// satisfies it; tests substitute an in-memory chain.
type chainClient interface {
	blockHeightReader
	chainReader
	balanceReader
}

// NewWorker loads the named indexer's configuration, dials its network and
// assembles the matching control loop. Any misconfiguration surfaces as a
// ConfigError before the loop starts.
func NewWorker(ctx context.Context, pName string, deps Deps) (Worker, error) {
	indexer, err := deps.IndexerRepo.GetByName(ctx, pName)
	if err != nil {
		return nil, err
	}

	network, err := deps.NetworkRepo.GetByID(ctx, indexer.NetworkID)
	if err != nil {
		return nil, err
	}

	chain, err := rpc.Dial(ctx, network)
	if err != nil {
		return nil, err
	}

	return buildWorker(ctx, indexer, network, chain, deps)
}

func buildWorker(ctx context.Context, pIndexer persist.Indexer, pNetwork persist.Network, chain chainClient, deps Deps) (Worker, error) {
	if pNetwork.Type != persist.NetworkTypeFilterable && pNetwork.Type != persist.NetworkTypeNoFilters {
		return nil, ConfigError{Reason: "unknown network type: " + pNetwork.Type.String()}
	}
	if !pIndexer.Strategy.ValidFor(pIndexer.Type) {
		return nil, ConfigError{Reason: "strategy " + pIndexer.Strategy.String() + " is not valid for " + pIndexer.Type.String()}
	}

	tokens, err := deps.IndexerRepo.GetWatchedTokens(ctx, pIndexer.ID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ConfigError{Reason: "indexer " + pIndexer.Name + " watches no tokens"}
	}

	switch pIndexer.Type {
	case persist.IndexerTypeTransfer:
		return buildTransferWorker(pIndexer, pNetwork, tokens, chain, deps)
	case persist.IndexerTypeBalance:
		return buildBalanceWorker(pIndexer, pNetwork, tokens, chain, deps)
	default:
		return nil, ConfigError{Reason: "unknown indexer type: " + pIndexer.Type.String()}
	}
}

func buildTransferWorker(pIndexer persist.Indexer, pNetwork persist.Network, pTokens []persist.Token, chain chainClient, deps Deps) (Worker, error) {
	strategy, err := NewTransferStrategy(pIndexer, deps.TransferRepo)
	if err != nil {
		return nil, err
	}

	fetchers := make([]tokenFetcher, len(pTokens))
	for i, token := range pTokens {
		fetcher, err := NewTransferFetcher(token, pNetwork.Type, chain)
		if err != nil {
			return nil, err
		}
		fetchers[i] = tokenFetcher{token: token, fetcher: fetcher}
	}

	return &transferWorker{
		indexer:     pIndexer,
		network:     pNetwork,
		indexerRepo: deps.IndexerRepo,
		chain:       chain,
		fetchers:    fetchers,
		strategy:    strategy,
	}, nil
}

func buildBalanceWorker(pIndexer persist.Indexer, pNetwork persist.Network, pTokens []persist.Token, chain chainClient, deps Deps) (Worker, error) {
	strategy, err := NewBalanceStrategy(pIndexer, deps.TransferRepo)
	if err != nil {
		return nil, err
	}

	callers := make([]tokenBalanceCaller, len(pTokens))
	for i, token := range pTokens {
		caller, err := NewBalanceCaller(token, pIndexer.ID, chain, deps.BalanceRepo)
		if err != nil {
			return nil, err
		}
		callers[i] = tokenBalanceCaller{token: token, caller: caller}
	}

	return &balanceWorker{
		indexer:     pIndexer,
		network:     pNetwork,
		indexerRepo: deps.IndexerRepo,
		callers:     callers,
		strategy:    strategy,
	}, nil
}
