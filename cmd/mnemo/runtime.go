package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai"
	"github.com/hrygo/mnemo/ai/agents/tools"
	"github.com/hrygo/mnemo/ai/cache"
	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/ai/memory/worker"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/ai/observability/logging"
	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
	"github.com/hrygo/mnemo/store/db"
)

const (
	queryCacheSize = 512
	queryCacheTTL  = 10 * time.Minute
)

// engine holds the wired memory engine of one process.
type engine struct {
	profile  *profile.Profile
	logger   *slog.Logger
	store    *store.Store
	metrics  *metrics.PrometheusExporter
	embedder ai.EmbeddingService
	service  *memory.Service
	searcher *memory.Searcher
	ingestor memory.Ingestor
	tools    *tools.Registry
}

func newEngine(ctx context.Context, p *profile.Profile) (*engine, error) {
	logger := logging.Setup(p.Mode, p.LogLevel)

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		printDatabaseError(err, p)
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	st := store.New(dbDriver, p)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}

	e := &engine{
		profile: p,
		logger:  logger,
		store:   st,
		metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
	}
	opts := memory.Options{Logger: logger, Metrics: e.metrics}
	e.service = memory.NewService(st, opts)

	aiConfig := ai.NewConfigFromProfile(p)
	if err := aiConfig.Validate(); err != nil {
		logger.Warn("Embedding config invalid, semantic search disabled", "error", err)
	} else if aiConfig.Enabled {
		embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			logger.Warn("Failed to initialize embedding service", "provider", aiConfig.Embedding.Provider, "error", err)
		} else {
			e.embedder = embedder
			logger.Info("Embedding service initialized",
				"provider", aiConfig.Embedding.Provider,
				"model", embedder.Model(),
				"dimensions", embedder.Dimensions())
		}
	} else {
		logger.Info("Embedding provider not configured, semantic search disabled",
			"provider", p.EmbeddingProvider)
	}

	if e.embedder != nil {
		e.searcher = memory.NewSearcher(st, e.embedder,
			cache.NewVectorCache(e.embedder.Model(), queryCacheSize, queryCacheTTL),
			memory.SearcherConfig{
				Limit:               p.SearchLimit,
				Timeout:             p.SearchTimeout,
				SimilarityThreshold: p.SimilarityThreshold,
			}, opts)
	}
	e.ingestor = memory.NewIngestor(e.service, p.AutoIngest, p.IngestQueueSize, opts)

	registry, err := tools.NewMemoryRegistry(e.service, e.searcher, e.metrics)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	e.tools = registry
	return e, nil
}

// newWorker returns the embedding worker, or an error when this process cannot embed.
func (e *engine) newWorker() (*worker.Worker, error) {
	if e.embedder == nil {
		return nil, errors.New("no embedding provider configured")
	}
	if !e.store.Capabilities().EmbeddingQueue {
		return nil, store.Unsupported(e.profile.Driver, "embedding queue")
	}
	p := e.profile
	return worker.New(e.store, e.embedder, worker.Config{
		PollInterval: p.WorkerPollInterval,
		BatchSize:    p.WorkerBatchSize,
		Concurrency:  p.WorkerConcurrency,
		MaxAttempts:  p.WorkerMaxAttempts,
		LeaseTimeout: p.WorkerLeaseTimeout,
		EmbedTimeout: p.WorkerEmbedTimeout,
		BackoffBase:  p.WorkerBackoffBase,
		BackoffMax:   p.WorkerBackoffMax,
	}, memory.Options{Logger: e.logger, Metrics: e.metrics}), nil
}

// close drains the ingestor and closes the store.
func (e *engine) close() {
	if err := e.ingestor.Close(5 * time.Second); err != nil {
		e.logger.Warn("Ingestor did not drain in time", "error", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("failed to close store", "error", err)
	}
}
