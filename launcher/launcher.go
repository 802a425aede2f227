package launcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
)

// logTailLines is how much of a worker's log the operator surface shows
const logTailLines = 100

// bulkWorkers bounds how many containers the launcher touches at once
const bulkWorkers = 4

// ContainerRuntime is the container backend the launcher drives. The Docker
// implementation is the only production one; tests substitute a recorder.
type ContainerRuntime interface {
	StartWorker(ctx context.Context, pIndexer persist.Indexer) error
	StopWorker(ctx context.Context, pName string) error
	WorkerLogs(ctx context.Context, pName string, pTail int) (string, error)
}

// Launcher drives worker containers and keeps each indexer row's status in
// step with whether its container is running
type Launcher struct {
	runtime     ContainerRuntime
	indexerRepo persist.IndexerRepository
}

// New creates a launcher over a container runtime
func New(runtime ContainerRuntime, indexerRepo persist.IndexerRepository) *Launcher {
	return &Launcher{runtime: runtime, indexerRepo: indexerRepo}
}

// Create starts a worker container for the indexer and flips its status on
func (l *Launcher) Create(pCtx context.Context, pIndexerID persist.DBID) error {
	indexer, err := l.indexerRepo.GetByID(pCtx, pIndexerID)
	if err != nil {
		return err
	}

	if err := l.runtime.StartWorker(pCtx, indexer); err != nil {
		return err
	}

	return l.indexerRepo.UpdateStatus(pCtx, indexer.ID, persist.IndexerStatusOn)
}

// Restart stops any running container for the indexer and starts a fresh one
func (l *Launcher) Restart(pCtx context.Context, pIndexerID persist.DBID) error {
	indexer, err := l.indexerRepo.GetByID(pCtx, pIndexerID)
	if err != nil {
		return err
	}

	if err := l.runtime.StopWorker(pCtx, indexer.Name); err != nil {
		return err
	}
	if err := l.runtime.StartWorker(pCtx, indexer); err != nil {
		return err
	}

	return l.indexerRepo.UpdateStatus(pCtx, indexer.ID, persist.IndexerStatusOn)
}

// Remove stops the indexer's container and flips its status off
func (l *Launcher) Remove(pCtx context.Context, pIndexerID persist.DBID) error {
	indexer, err := l.indexerRepo.GetByID(pCtx, pIndexerID)
	if err != nil {
		return err
	}

	if err := l.runtime.StopWorker(pCtx, indexer.Name); err != nil {
		return err
	}

	return l.indexerRepo.UpdateStatus(pCtx, indexer.ID, persist.IndexerStatusOff)
}

// Logs returns the last pTail lines of the indexer's container log. A
// non-positive tail falls back to the default.
func (l *Launcher) Logs(pCtx context.Context, pIndexerID persist.DBID, pTail int) (string, error) {
	indexer, err := l.indexerRepo.GetByID(pCtx, pIndexerID)
	if err != nil {
		return "", err
	}
	if pTail <= 0 {
		pTail = logTailLines
	}
	return l.runtime.WorkerLogs(pCtx, indexer.Name, pTail)
}

// StartAll creates a worker for every indexer currently off
func (l *Launcher) StartAll(pCtx context.Context) error {
	indexers, err := l.indexerRepo.GetByStatus(pCtx, persist.IndexerStatusOff)
	if err != nil {
		return err
	}
	return l.bulk(pCtx, indexers, "start", l.Create)
}

// StopAll removes the worker of every indexer currently on
func (l *Launcher) StopAll(pCtx context.Context) error {
	indexers, err := l.indexerRepo.GetByStatus(pCtx, persist.IndexerStatusOn)
	if err != nil {
		return err
	}
	return l.bulk(pCtx, indexers, "stop", l.Remove)
}

func (l *Launcher) bulk(pCtx context.Context, pIndexers []persist.Indexer, pVerb string, f func(context.Context, persist.DBID) error) error {
	wp := workerpool.New(bulkWorkers)

	var mu sync.Mutex
	failed := 0

	for _, indexer := range pIndexers {
		indexer := indexer
		wp.Submit(func() {
			if err := f(pCtx, indexer.ID); err != nil {
				logger.For(pCtx).WithError(err).WithField("indexer", indexer.Name).Errorf("failed to %s worker", pVerb)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		})
	}

	wp.StopWait()

	if failed > 0 {
		return fmt.Errorf("failed to %s %d of %d workers", pVerb, failed, len(pIndexers))
	}
	return nil
}
