package memory

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/ai/cache"
	"github.com/hrygo/mnemo/internal/testutil"
	"github.com/hrygo/mnemo/store"
)

func newTestSearcher(st *store.Store, emb Embedder, cfg SearcherConfig) *Searcher {
	return NewSearcher(st, emb, cache.NewVectorCache("hash", 100, time.Minute), cfg, Options{})
}

func TestSearcher_PendingEntriesExcluded(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	svc := newTestService(t, st, nil)
	emb := testutil.NewHashEmbedder(testDims)
	searcher := newTestSearcher(st, emb, DefaultSearcherConfig())

	_, err := svc.AppendDaily(ctx, "alice", "User prefers dark mode")
	require.NoError(t, err)

	results, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
	require.NoError(t, err)
	assert.Empty(t, results, "pending entries are not searchable")

	entries, err := svc.Read(ctx, "alice", ReadRequest{Scope: ScopeToday})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "pending entries are readable")

	embedPending(t, st, emb)

	results, err = searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "User prefers dark mode", results[0].Entry.Content)
	assert.Greater(t, results[0].Score, float32(0.3))
}

func TestSearcher_MergesCategories(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	svc := newTestService(t, st, nil)
	emb := testutil.NewHashEmbedder(testDims)
	searcher := newTestSearcher(st, emb, SearcherConfig{SimilarityThreshold: 0.45})

	_, err := svc.ReplaceLongTerm(ctx, "alice", "Editor theme: dark mode everywhere")
	require.NoError(t, err)
	_, err = svc.AppendDaily(ctx, "alice", "dark mode")
	require.NoError(t, err)
	_, err = svc.AppendConversation(ctx, "alice", RoleUser, "please enable dark mode")
	require.NoError(t, err)
	_, err = svc.AppendDaily(ctx, "alice", "lunch with Sam")
	require.NoError(t, err)
	_, err = svc.AppendDaily(ctx, "bob", "dark mode")
	require.NoError(t, err)
	embedPending(t, st, emb)

	results, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "dark mode", results[0].Entry.Content, "exact match ranks first")
	for i, r := range results {
		assert.Equal(t, "alice", r.Entry.SessionKey)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}

	results, err = searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = searcher.Search(ctx, SearchRequest{
		SessionKey: "alice",
		Query:      "dark mode",
		Categories: []store.Category{store.CategoryLongTerm},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, store.CategoryLongTerm, results[0].Entry.Category)

	_, err = searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "x", Categories: []store.Category{"weekly"}})
	assert.True(t, IsInvalidInput(err))
}

func TestSearcher_LimitTooLarge(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	emb := testutil.NewHashEmbedder(testDims)
	searcher := newTestSearcher(st, emb, DefaultSearcherConfig())

	_, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode", Limit: 5000})
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
	assert.False(t, IsTransient(err))
	assert.Zero(t, emb.Calls())

	results, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode", Limit: store.MaxSearchLimit})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWrapBackend_StoreValidationIsNotTransient(t *testing.T) {
	err := (&store.VectorSearchOptions{SessionKey: "alice", Vector: []float32{1}, Limit: 5000}).Validate()
	require.Error(t, err)

	wrapped := wrapBackend(err, "failed to search daily memory")
	assert.True(t, IsInvalidInput(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.Contains(t, wrapped.Error(), "limit too large")

	assert.True(t, IsTransient(wrapBackend(errors.New("connection refused"), "failed to search")))
}

func TestSearcher_CachesQueryVectors(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	emb := testutil.NewHashEmbedder(testDims)
	searcher := newTestSearcher(st, emb, DefaultSearcherConfig())

	for i := 0; i < 3; i++ {
		_, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), emb.Calls())
}

func TestSearcher_EmbedTimeoutReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	emb := testutil.NewStubEmbedder(testDims)
	emb.SetDelay(time.Second)
	searcher := newTestSearcher(st, emb, SearcherConfig{Timeout: 20 * time.Millisecond})

	results, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearcher_ProviderError(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewSQLiteStore(t, testDims)
	emb := testutil.NewStubEmbedder(testDims)
	emb.FailWith(errors.New("provider unavailable"), -1)
	searcher := newTestSearcher(st, emb, DefaultSearcherConfig())

	_, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
}

func TestSearcher_WithoutVectorSearch(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewFileStore(t)
	emb := testutil.NewHashEmbedder(testDims)
	searcher := newTestSearcher(st, emb, DefaultSearcherConfig())

	results, err := searcher.Search(ctx, SearchRequest{SessionKey: "alice", Query: "dark mode"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, emb.Calls(), "no provider call when nothing can be searched")

	_, err = searcher.Search(ctx, SearchRequest{SessionKey: "alice"})
	assert.True(t, IsInvalidInput(err))
}

func TestSearchResult_Line(t *testing.T) {
	r := &SearchResult{
		Entry: &store.MemoryEntry{
			Category:  store.CategoryDaily,
			Content:   "User prefers dark mode",
			CreatedAt: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		},
		Score: 0.8731,
	}
	assert.Equal(t, "- [daily (2026-03-15) sim=0.87] User prefers dark mode", r.Line())
}
