package indexer

import (
	"context"
	"time"

	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/sirupsen/logrus"
)

// holderPause throttles balance polling between holders
const holderPause = time.Second

// Worker is one indexer's control loop. Run blocks until the context is
// canceled; a cycle that fails logs and moves on, it never kills the loop.
type Worker interface {
	Run(ctx context.Context) error
}

// blockHeightReader reports the chain head
type blockHeightReader interface {
	BlockNumber(ctx context.Context) (persist.BlockNumber, error)
}

// tokenFetcher pairs a watched token with its bound transfer fetcher
type tokenFetcher struct {
	token   persist.Token
	fetcher TransferFetcher
}

// tokenBalanceCaller pairs a watched token with its bound balance caller
type tokenBalanceCaller struct {
	token  persist.Token
	caller BalanceCaller
}

// transferWorker tails a block range per cycle, fanning it out to one fetcher
// per watched token. The last_block watermark advances per fetcher: a fetcher
// that fails leaves the range to be re-attempted next cycle while the others
// move on.
type transferWorker struct {
	indexer     persist.Indexer
	network     persist.Network
	indexerRepo persist.IndexerRepository
	chain       blockHeightReader
	fetchers    []tokenFetcher
	strategy    TransferStrategy
}

func (w *transferWorker) Run(ctx context.Context) error {
	ctx = logger.NewContextWithFields(ctx, logrus.Fields{"indexer": w.indexer.Name, "network": w.network.Name})
	logger.For(ctx).Info("transfer indexer starting")

	for {
		if err := sleepCtx(ctx, w.indexer.ShortSleep()); err != nil {
			return err
		}

		reloaded, err := w.indexerRepo.GetByID(ctx, w.indexer.ID)
		if err != nil {
			logger.For(ctx).WithError(err).Error("failed to reload indexer row")
			continue
		}
		w.indexer = reloaded

		latest, err := w.chain.BlockNumber(ctx)
		if err != nil {
			logger.For(ctx).WithError(err).Warn("failed to read chain head")
			continue
		}

		from, to, ok := nextRange(w.indexer.LastBlock, w.network.MaxStep, latest)
		if !ok {
			if err := sleepCtx(ctx, w.indexer.LongSleep()); err != nil {
				return err
			}
			continue
		}

		w.runRange(ctx, from, to)
	}
}

// nextRange picks the block range for one cycle. ok is false when there is
// nothing new to index, including a lagging node reporting a head behind the
// watermark; last_block only ever moves forward.
func nextRange(pLast, pMaxStep, pLatest persist.BlockNumber) (from, to persist.BlockNumber, ok bool) {
	from = pLast
	to = from + pMaxStep
	if to > pLatest {
		to = pLatest
	}
	if to <= from {
		return 0, 0, false
	}
	return from, to, true
}

func (w *transferWorker) runRange(ctx context.Context, pFrom, pTo persist.BlockNumber) {
	for _, tf := range w.fetchers {
		ctx := logger.NewContextWithFields(ctx, logrus.Fields{"token": tf.token.Name, "from": pFrom, "to": pTo})

		records, err := tf.fetcher.GetTransfers(ctx, pFrom, pTo)
		if err != nil {
			logger.For(ctx).WithError(err).Warn("failed to fetch transfers, range will be re-attempted")
			continue
		}

		if len(records) > 0 {
			if err := w.strategy.Start(ctx, tf.token, records); err != nil {
				logger.For(ctx).WithError(err).Error("strategy failed, range will be re-attempted")
				continue
			}
			logger.For(ctx).WithField("records", len(records)).Info("processed transfers")
		}

		if err := w.indexerRepo.UpdateLastBlock(ctx, w.indexer.ID, pTo); err != nil {
			logger.For(ctx).WithError(err).Error("failed to advance watermark")
		}
	}
}

// balanceWorker polls holder balances for its watched tokens. No watermark
// applies; every cycle re-derives its holder set from the strategy.
type balanceWorker struct {
	indexer     persist.Indexer
	network     persist.Network
	indexerRepo persist.IndexerRepository
	callers     []tokenBalanceCaller
	strategy    BalanceStrategy
}

func (w *balanceWorker) Run(ctx context.Context) error {
	ctx = logger.NewContextWithFields(ctx, logrus.Fields{"indexer": w.indexer.Name, "network": w.network.Name})
	logger.For(ctx).Info("balance indexer starting")

	for {
		if err := sleepCtx(ctx, w.indexer.ShortSleep()); err != nil {
			return err
		}

		reloaded, err := w.indexerRepo.GetByID(ctx, w.indexer.ID)
		if err != nil {
			logger.For(ctx).WithError(err).Error("failed to reload indexer row")
			continue
		}
		w.indexer = reloaded

		for _, tc := range w.callers {
			if err := w.pollToken(ctx, tc); err != nil {
				return err
			}
		}
	}
}

func (w *balanceWorker) pollToken(ctx context.Context, tc tokenBalanceCaller) error {
	ctx = logger.NewContextWithFields(ctx, logrus.Fields{"token": tc.token.Name})

	holders, err := w.strategy.Start(ctx, tc.token)
	if err != nil {
		logger.For(ctx).WithError(err).Warn("failed to derive holders")
		return nil
	}

	for i, holder := range holders {
		if i > 0 {
			if err := sleepCtx(ctx, holderPause); err != nil {
				return err
			}
		}
		written, err := tc.caller.GetBalance(ctx, holder)
		if err != nil {
			logger.For(ctx).WithError(err).WithField("holder", holder).Error("failed to persist balance")
			continue
		}
		if len(written) > 0 {
			logger.For(ctx).WithFields(logrus.Fields{"holder": holder, "rows": len(written)}).Info("balance changed")
		}
	}
	return nil
}

// sleepCtx sleeps for the duration unless the context ends first
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
