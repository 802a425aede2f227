package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsQueryTimeout = 10 * time.Second

func metricsHandler(repos Repos) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newStoreCollector(repos))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// storeCollector derives gauges from the store on every scrape instead of
// keeping counters in process, so the numbers stay right across worker
// restarts and multiple API replicas.
type storeCollector struct {
	repos Repos

	indexersOn       *prometheus.Desc
	indexersOff      *prometheus.Desc
	indexersTotal    *prometheus.Desc
	transfersTotal   *prometheus.Desc
	transfersFetched *prometheus.Desc
	balancesTracked  *prometheus.Desc
}

func newStoreCollector(repos Repos) *storeCollector {
	return &storeCollector{
		repos:            repos,
		indexersOn:       prometheus.NewDesc("indexers_on", "Number of indexers with a running worker", nil, nil),
		indexersOff:      prometheus.NewDesc("indexers_off", "Number of indexers without a worker", nil, nil),
		indexersTotal:    prometheus.NewDesc("indexers_total", "Number of configured indexers", nil, nil),
		transfersTotal:   prometheus.NewDesc("transfers_fetched_total", "Total persisted transfers", nil, nil),
		transfersFetched: prometheus.NewDesc("transfers_fetched", "Persisted transfers per indexer", []string{"indexer"}, nil),
		balancesTracked:  prometheus.NewDesc("balances_tracked", "Tracked balance rows per indexer", []string{"indexer"}, nil),
	}
}

func (s *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.indexersOn
	ch <- s.indexersOff
	ch <- s.indexersTotal
	ch <- s.transfersTotal
	ch <- s.transfersFetched
	ch <- s.balancesTracked
}

func (s *storeCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), metricsQueryTimeout)
	defer cancel()

	on, onErr := s.repos.IndexerRepo.CountByStatus(ctx, persist.IndexerStatusOn)
	if onErr != nil {
		logger.For(ctx).WithError(onErr).Warn("failed to count running indexers")
	} else {
		ch <- prometheus.MustNewConstMetric(s.indexersOn, prometheus.GaugeValue, float64(on))
	}

	off, offErr := s.repos.IndexerRepo.CountByStatus(ctx, persist.IndexerStatusOff)
	if offErr != nil {
		logger.For(ctx).WithError(offErr).Warn("failed to count stopped indexers")
	} else {
		ch <- prometheus.MustNewConstMetric(s.indexersOff, prometheus.GaugeValue, float64(off))
	}

	if onErr == nil && offErr == nil {
		ch <- prometheus.MustNewConstMetric(s.indexersTotal, prometheus.GaugeValue, float64(on+off))
	}

	transfers, err := s.repos.TransferRepo.Count(ctx)
	if err != nil {
		logger.For(ctx).WithError(err).Warn("failed to count transfers")
	} else {
		ch <- prometheus.MustNewConstMetric(s.transfersTotal, prometheus.GaugeValue, float64(transfers))
	}

	perIndexer, err := s.repos.TransferRepo.CountByIndexer(ctx)
	if err != nil {
		logger.For(ctx).WithError(err).Warn("failed to count transfers per indexer")
	} else {
		for name, count := range perIndexer {
			ch <- prometheus.MustNewConstMetric(s.transfersFetched, prometheus.GaugeValue, float64(count), name)
		}
	}

	tracked, err := s.repos.BalanceRepo.CountTrackedByIndexer(ctx)
	if err != nil {
		logger.For(ctx).WithError(err).Warn("failed to count tracked balances")
	} else {
		for name, count := range tracked {
			ch <- prometheus.MustNewConstMetric(s.balancesTracked, prometheus.GaugeValue, float64(count), name)
		}
	}
}
