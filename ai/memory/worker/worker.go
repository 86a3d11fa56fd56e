// Package worker drains the embedding queue: it claims jobs, embeds the target entries and
// writes the vectors back, retrying failures with exponential backoff.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/mnemo/ai/internal/strutil"
	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/store"
)

// Config configures the embedding worker.
type Config struct {
	// PollInterval is how often the queue is polled.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poll.
	BatchSize int

	// Concurrency bounds the jobs embedded in parallel within a batch.
	Concurrency int

	// MaxAttempts is the number of failures after which a job is dead.
	MaxAttempts int

	// LeaseTimeout is how long a claim is held before another worker may reclaim it.
	// It is raised to cover a whole batch, see minLease.
	LeaseTimeout time.Duration

	// EmbedTimeout bounds a single provider call.
	EmbedTimeout time.Duration

	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		BatchSize:    10,
		Concurrency:  4,
		MaxAttempts:  5,
		LeaseTimeout: 30 * time.Second,
		EmbedTimeout: 20 * time.Second,
		BackoffBase:  2 * time.Second,
		BackoffMax:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = def.LeaseTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = def.EmbedTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = def.BackoffMax
	}
	if floor := c.minLease(); c.LeaseTimeout < floor {
		c.LeaseTimeout = floor
	}
	return c
}

// minLease is the time the last job of a full batch may need: jobs run in
// ceil(BatchSize/Concurrency) waves, each bounded by EmbedTimeout.
func (c Config) minLease() time.Duration {
	waves := (c.BatchSize + c.Concurrency - 1) / c.Concurrency
	return time.Duration(waves) * c.EmbedTimeout
}

// maxJobErrorLen bounds the provider error kept on a job row.
const maxJobErrorLen = 1024

// BatchResult counts the outcomes of one poll.
type BatchResult struct {
	Claimed   int
	Done      int
	Stale     int
	Duplicate int
	Retried   int
	Dead      int
	LeaseLost int
}

func (r *BatchResult) add(outcome string) {
	switch outcome {
	case metrics.OutcomeDone:
		r.Done++
	case metrics.OutcomeStale:
		r.Stale++
	case metrics.OutcomeDuplicate:
		r.Duplicate++
	case metrics.OutcomeRetry:
		r.Retried++
	case metrics.OutcomeDead:
		r.Dead++
	case metrics.OutcomeLeaseLost:
		r.LeaseLost++
	}
}

// Worker polls the embedding queue.
type Worker struct {
	store    *store.Store
	embedder memory.Embedder
	config   Config
	logger   *slog.Logger
	metrics  *metrics.PrometheusExporter
	now      func() time.Time

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

// New creates a worker. It does not start polling until Start is called.
func New(st *store.Store, embedder memory.Embedder, cfg Config, opts memory.Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	config := cfg.withDefaults()
	if cfg.LeaseTimeout > 0 && config.LeaseTimeout != cfg.LeaseTimeout {
		logger.Warn("Worker: lease timeout raised to cover a full batch",
			"configured", cfg.LeaseTimeout,
			"lease_timeout", config.LeaseTimeout,
			"batch_size", config.BatchSize,
			"concurrency", config.Concurrency,
			"embed_timeout", config.EmbedTimeout)
	}
	return &Worker{
		store:    st,
		embedder: embedder,
		config:   config,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins polling in the background. Polling stops when ctx is cancelled or Stop
// is called.
func (w *Worker) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return // Already running
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
	w.logger.Info("Worker: started",
		"interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize,
		"concurrency", w.config.Concurrency)
}

// Stop stops polling and waits for the in-flight batch to finish. On timeout the batch
// is cancelled and context.DeadlineExceeded is returned.
func (w *Worker) Stop(timeout time.Duration) error {
	if !w.running.Load() {
		return nil
	}
	w.once.Do(func() {
		close(w.stopCh)
	})

	select {
	case <-w.doneCh:
		w.logger.Info("Worker: stopped")
		return nil
	case <-time.After(timeout):
		w.cancel()
		w.logger.Warn("Worker: shutdown timeout, in-flight jobs will be reclaimed after their lease")
		return context.DeadlineExceeded
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.cancel()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx)

		select {
		case <-ticker.C:
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	result, err := w.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Worker: poll failed", "error", err)
		}
		return
	}
	if result.Claimed > 0 {
		w.logger.Debug("Worker: batch processed",
			"claimed", result.Claimed,
			"done", result.Done,
			"retried", result.Retried,
			"dead", result.Dead)
	}
}

// RunOnce claims and processes a single batch.
func (w *Worker) RunOnce(ctx context.Context) (*BatchResult, error) {
	token := uuid.NewString()
	jobs, err := w.store.ClaimEmbeddingJobs(ctx, &store.ClaimEmbeddingJobs{
		Limit:        w.config.BatchSize,
		Now:          w.now(),
		LeaseTimeout: w.config.LeaseTimeout,
		Token:        token,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim embedding jobs")
	}

	result := &BatchResult{Claimed: len(jobs)}
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(w.config.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			outcome := w.process(ctx, job, token)
			w.metrics.RecordJob(outcome)
			mu.Lock()
			result.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	w.publishQueueDepth(ctx)
	return result, nil
}

func (w *Worker) process(ctx context.Context, job *store.EmbeddingJob, token string) string {
	logger := w.logger.With(
		"job_id", job.ID,
		"target_id", job.TargetID,
		"category", job.Category,
		"version", job.TargetVersion)

	entry, err := w.store.GetMemoryEntry(ctx, job.SessionKey, job.Category, job.TargetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("Worker: target entry gone, completing job")
			return w.complete(ctx, job, token, metrics.OutcomeStale)
		}
		return w.fail(ctx, logger, job, token, nil, err)
	}
	if entry.Version != job.TargetVersion {
		logger.Debug("Worker: stale job, entry has moved on", "entry_version", entry.Version)
		return w.complete(ctx, job, token, metrics.OutcomeStale)
	}
	if entry.EmbeddingStatus == store.EmbeddingEmbedded && entry.EmbeddedVersion >= job.TargetVersion {
		logger.Debug("Worker: entry already embedded")
		return w.complete(ctx, job, token, metrics.OutcomeDuplicate)
	}

	embedCtx, cancel := context.WithTimeout(ctx, w.config.EmbedTimeout)
	start := time.Now()
	vector, err := w.embedder.Embed(embedCtx, memory.EmbeddingText(entry))
	w.metrics.RecordEmbedLatency("worker", time.Since(start))
	cancel()
	if err != nil {
		return w.fail(ctx, logger, job, token, entry, errors.Wrap(err, "embedding failed"))
	}

	applied, err := w.store.WriteEmbedding(ctx, &store.WriteEmbedding{
		Category:  entry.Category,
		ID:        entry.ID,
		Version:   job.TargetVersion,
		Embedding: vector,
	})
	if err != nil {
		return w.fail(ctx, logger, job, token, entry, err)
	}
	if !applied {
		logger.Debug("Worker: embedding write skipped, entry changed concurrently")
	}
	return w.complete(ctx, job, token, metrics.OutcomeDone)
}

func (w *Worker) complete(ctx context.Context, job *store.EmbeddingJob, token, outcome string) string {
	if err := w.store.CompleteEmbeddingJob(ctx, job.ID, token); err != nil {
		if errors.Is(err, store.ErrLeaseLost) {
			w.logger.Warn("Worker: lease lost before completion", "job_id", job.ID)
			return metrics.OutcomeLeaseLost
		}
		// The lease will expire and the job will be redelivered; processing is idempotent.
		w.logger.Error("Worker: failed to complete job", "job_id", job.ID, "error", err)
		return metrics.OutcomeRetry
	}
	return outcome
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, job *store.EmbeddingJob, token string, entry *store.MemoryEntry, cause error) string {
	attempts := job.Attempts + 1
	dead := attempts >= w.config.MaxAttempts
	now := w.now()

	err := w.store.FailEmbeddingJob(ctx, &store.FailEmbeddingJob{
		ID:      job.ID,
		Token:   token,
		Error:   strutil.Truncate(cause.Error(), maxJobErrorLen),
		Dead:    dead,
		RetryAt: now.Add(Backoff(w.config.BackoffBase, w.config.BackoffMax, attempts)),
		Now:     now,
	})
	if err != nil {
		if errors.Is(err, store.ErrLeaseLost) {
			logger.Warn("Worker: lease lost before failure was recorded", "error", cause)
			return metrics.OutcomeLeaseLost
		}
		logger.Error("Worker: failed to record job failure", "error", err, "cause", cause)
		return metrics.OutcomeRetry
	}

	if !dead {
		logger.Warn("Worker: job failed, will retry",
			"attempts", attempts,
			"max_attempts", w.config.MaxAttempts,
			"error", cause)
		return metrics.OutcomeRetry
	}

	logger.Error("Worker: job exhausted its attempts",
		"attempts", attempts,
		"error", cause)
	if entry != nil {
		if err := w.store.MarkEmbeddingFailed(ctx, entry.Category, entry.ID, job.TargetVersion); err != nil {
			logger.Error("Worker: failed to mark entry as failed", "error", err)
		}
	}
	return metrics.OutcomeDead
}

func (w *Worker) publishQueueDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	counts, err := w.store.CountEmbeddingJobs(ctx)
	if err != nil {
		w.logger.Debug("Worker: failed to count jobs", "error", err)
		return
	}
	depth := make(map[string]int, len(counts))
	for status, n := range counts {
		depth[string(status)] = n
	}
	w.metrics.SetQueueDepth(depth)
}
