package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/mnemo/ai/cache"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/store"
)

// Search defaults.
const (
	DefaultSearchLimit         = 10
	DefaultSearchTimeout       = 5 * time.Second
	DefaultSimilarityThreshold = 0.3
)

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchRequest is a semantic search over one session.
type SearchRequest struct {
	SessionKey string
	Query      string
	// Categories defaults to every category the driver can serve.
	Categories []store.Category
	// Limit defaults to the searcher's configured limit.
	Limit int
}

// SearchResult is one ranked entry.
type SearchResult struct {
	Entry *store.MemoryEntry
	Score float32
}

// Line renders the result as "- [category (date) sim=0.xx] content".
func (r *SearchResult) Line() string {
	return fmt.Sprintf("- [%s (%s) sim=%.2f] %s", r.Entry.Category, recency(r.Entry).UTC().Format(time.DateOnly), r.Score, r.Entry.Content)
}

// FormatResults renders results one per line.
func FormatResults(results []*SearchResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Line())
	}
	return strings.Join(lines, "\n")
}

// SearcherConfig configures a Searcher.
type SearcherConfig struct {
	Timeout             time.Duration
	Limit               int
	SimilarityThreshold float64
}

// DefaultSearcherConfig returns the default search configuration.
func DefaultSearcherConfig() SearcherConfig {
	return SearcherConfig{
		Timeout:             DefaultSearchTimeout,
		Limit:               DefaultSearchLimit,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Searcher ranks embedded memory entries by similarity to a query.
type Searcher struct {
	store    *store.Store
	embedder Embedder
	cache    *cache.VectorCache
	config   SearcherConfig
	logger   *slog.Logger
	metrics  *metrics.PrometheusExporter
}

// NewSearcher creates a searcher. A nil embedder or vector cache is allowed; without an
// embedder every search returns no results.
func NewSearcher(st *store.Store, embedder Embedder, vectors *cache.VectorCache, cfg SearcherConfig, opts Options) *Searcher {
	opts = opts.withDefaults()
	def := DefaultSearcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	return &Searcher{
		store:    st,
		embedder: embedder,
		cache:    vectors,
		config:   cfg,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Search embeds the query and merges the best matches of every requested category.
// A query that cannot be embedded within the timeout yields no results and no error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]*SearchResult, error) {
	if req.SessionKey == "" {
		return nil, invalidf("session key is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, invalidf("query is required")
	}
	if req.Limit < 0 {
		return nil, invalidf("limit cannot be negative: %d", req.Limit)
	}
	if req.Limit > store.MaxSearchLimit {
		return nil, invalidf("limit too large (max %d): %d", store.MaxSearchLimit, req.Limit)
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.config.Limit
	}

	caps := s.store.Capabilities()
	if !caps.VectorSearch || s.embedder == nil {
		return nil, nil
	}
	categories, err := s.categories(req.Categories, caps)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, nil
	}

	start := time.Now()
	vector, err := s.queryVector(ctx, req.Query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Warn("Memory: query embedding timed out, skipping semantic search",
				"session_key", req.SessionKey,
				"timeout", s.config.Timeout)
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to embed query")
	}

	perCategory := make([][]*store.MemoryEntryWithScore, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		g.Go(func() error {
			found, err := s.store.VectorSearch(gctx, &store.VectorSearchOptions{
				SessionKey: req.SessionKey,
				Vector:     vector,
				Categories: []store.Category{category},
				Limit:      limit,
				MinScore:   float32(s.config.SimilarityThreshold),
			})
			if err != nil {
				return wrapBackend(err, "failed to search "+string(category)+" memory")
			}
			perCategory[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []*store.MemoryEntryWithScore
	for _, found := range perCategory {
		merged = append(merged, found...)
	}
	store.SortByScore(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	results := make([]*SearchResult, 0, len(merged))
	for _, m := range merged {
		results = append(results, &SearchResult{Entry: m.Entry, Score: m.Score})
	}
	s.metrics.RecordSearch(time.Since(start), len(results))
	return results, nil
}

func (s *Searcher) categories(requested []store.Category, caps store.Capabilities) ([]store.Category, error) {
	if len(requested) == 0 {
		requested = store.AllCategories
	}
	categories := make([]store.Category, 0, len(requested))
	seen := make(map[store.Category]bool, len(requested))
	for _, c := range requested {
		if !c.Valid() {
			return nil, invalidf("invalid category: %q", c)
		}
		if seen[c] || (c == store.CategoryConversation && !caps.Conversation) {
			continue
		}
		seen[c] = true
		categories = append(categories, c)
	}
	return categories, nil
}

func (s *Searcher) queryVector(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := s.cache.Get(query); ok {
		s.metrics.RecordCacheHit("query_vector")
		return vec, nil
	}
	s.metrics.RecordCacheMiss("query_vector")

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	s.metrics.RecordEmbedLatency("search", time.Since(start))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(context.DeadlineExceeded, err.Error())
		}
		return nil, err
	}
	s.cache.Set(query, vec)
	return vec, nil
}
