package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/discovery"
	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/fetcher"
	"github.com/sells-group/cutoff-ingest/internal/ingest"
	"github.com/sells-group/cutoff-ingest/internal/lock"
	"github.com/sells-group/cutoff-ingest/internal/metrics"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/plugin/all"
	"github.com/sells-group/cutoff-ingest/internal/prober"
	"github.com/sells-group/cutoff-ingest/internal/store"
)

// env holds the shared dependencies of the commands that touch the network.
type env struct {
	Store   *store.Store
	Plugins *plugin.Registry
	Fetcher *fetcher.HTTPFetcher
	Metrics *metrics.Metrics
	Locker  lock.Locker

	closeLock func() error
}

func initStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	plugins, err := all.Registry()
	if err != nil {
		st.Close()
		return nil, eris.Wrap(err, "build plugin registry")
	}

	locker, closeLock, err := lock.FromConfig(cfg.Lock, st.Pool())
	if err != nil {
		st.Close()
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	})

	return &env{
		Store:     st,
		Plugins:   plugins,
		Fetcher:   f,
		Metrics:   metrics.New(prometheus.DefaultRegisterer),
		Locker:    locker,
		closeLock: closeLock,
	}, nil
}

func (e *env) Scanner() *discovery.Scanner {
	return discovery.New(e.Store.Pool(), e.Plugins, e.Fetcher, prober.New(e.Fetcher, cfg.Fetch.ProbeBytes), e.Locker, e.Metrics, cfg.Scan.Concurrency)
}

func (e *env) Orchestrator() (*ingest.Orchestrator, error) {
	ex, err := doctable.NewExtractor(cfg.Extract)
	if err != nil {
		return nil, eris.Wrap(err, "init extractor")
	}
	return ingest.New(e.Store.Pool(), e.Plugins, e.Fetcher, ex, e.Metrics, cfg.Ingest), nil
}

// Close releases the lock backend and the pool.
func (e *env) Close() {
	if e.closeLock != nil {
		if err := e.closeLock(); err != nil {
			zap.L().Warn("close lock backend", zap.Error(err))
		}
	}
	e.Store.Close()
}
