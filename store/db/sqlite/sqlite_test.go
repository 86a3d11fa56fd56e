package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	prof := &profile.Profile{Mode: "dev", Driver: profile.DriverSQLite, DSN: ":memory:", EmbeddingDimensions: 3}
	driver, err := NewDB(prof)
	require.NoError(t, err)
	s := store.New(driver, prof)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Running twice is a no-op.
	require.NoError(t, s.Migrate(ctx))

	db := s.GetDriver().(*DB).GetDB()
	_, err := db.ExecContext(ctx, `UPDATE memory_meta SET value = '99.0.0' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	err = s.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestCapabilities(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Capabilities().Degraded())
	assert.Equal(t, profile.DriverSQLite, s.GetDriver().Name())
}

func TestMemoryEntry_ListOrderingAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		_, err := s.CreateMemoryEntry(ctx, &store.MemoryEntry{
			SessionKey: "alice",
			Category:   store.CategoryDaily,
			Content:    content,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.CreateMemoryEntry(ctx, &store.MemoryEntry{
		SessionKey: "bob",
		Category:   store.CategoryDaily,
		Content:    "not alice",
		CreatedAt:  base,
	})
	require.NoError(t, err)

	newest, err := s.ListMemoryEntries(ctx, &store.FindMemoryEntry{SessionKey: "alice", Category: store.CategoryDaily})
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, "third", newest[0].Content)
	assert.Equal(t, "first", newest[2].Content)

	oldest, err := s.ListMemoryEntries(ctx, &store.FindMemoryEntry{SessionKey: "alice", Category: store.CategoryDaily, OldestFirst: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, "first", oldest[0].Content)
	assert.Equal(t, store.EmbeddingPending, oldest[0].EmbeddingStatus)
	assert.Equal(t, int64(1), oldest[0].Version)

	after := base.Add(time.Minute)
	ranged, err := s.ListMemoryEntries(ctx, &store.FindMemoryEntry{SessionKey: "alice", Category: store.CategoryDaily, CreatedAfter: &after})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	got, err := s.GetMemoryEntry(ctx, "bob", "", ranged[0].ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, got)

	got, err = s.GetMemoryEntry(ctx, "alice", "", ranged[0].ID)
	require.NoError(t, err)
	assert.Equal(t, store.CategoryDaily, got.Category)
}

func TestCreateMemoryEntry_RejectsLongTerm(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateMemoryEntry(context.Background(), &store.MemoryEntry{
		SessionKey: "alice",
		Category:   store.CategoryLongTerm,
		Content:    "x",
	})
	require.Error(t, err)
}

func TestUpsertLongTermMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.UpsertLongTermMemory(ctx, &store.UpsertLongTermMemory{SessionKey: "alice", Content: "v1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	applied, err := s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: store.CategoryLongTerm, ID: first.ID, Version: 1, Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	require.True(t, applied)

	second, err := s.UpsertLongTermMemory(ctx, &store.UpsertLongTermMemory{SessionKey: "alice", Content: "v2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "replacement keeps the row")
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, store.EmbeddingPending, second.EmbeddingStatus)
	assert.Nil(t, second.Embedding)
	assert.Equal(t, int64(0), second.EmbeddedVersion)

	current, err := s.GetLongTermMemory(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", current.Content)

	none, err := s.GetLongTermMemory(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpsertLongTermMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpsertLongTermMemory(ctx, &store.UpsertLongTermMemory{SessionKey: "alice", Content: fmt.Sprintf("v%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := s.ListMemoryEntries(ctx, &store.FindMemoryEntry{SessionKey: "alice", Category: store.CategoryLongTerm})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(n), list[0].Version)
}

func TestWriteEmbedding_Conditional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry, err := s.CreateMemoryEntry(ctx, &store.MemoryEntry{SessionKey: "alice", Category: store.CategoryConversation, Role: "user", Content: "hi"})
	require.NoError(t, err)

	applied, err := s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: store.CategoryConversation, ID: entry.ID, Version: 1, Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.True(t, applied)

	// Re-delivery must not touch the stored vector.
	applied, err = s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: store.CategoryConversation, ID: entry.ID, Version: 1, Embedding: []float32{0, 1, 0}})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetMemoryEntry(ctx, "alice", store.CategoryConversation, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Embedding)
	assert.Equal(t, "user", got.Role)
	assert.True(t, got.Searchable())

	// Stale version.
	applied, err = s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: store.CategoryConversation, ID: entry.ID, Version: 2, Embedding: []float32{0, 1, 0}})
	require.NoError(t, err)
	assert.False(t, applied)

	// Wrong dimension.
	_, err = s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: store.CategoryConversation, ID: entry.ID, Version: 1, Embedding: []float32{1}})
	require.Error(t, err)
}

func TestMarkEmbeddingFailed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry, err := s.CreateMemoryEntry(ctx, &store.MemoryEntry{SessionKey: "alice", Category: store.CategoryDaily, Content: "x"})
	require.NoError(t, err)
	require.NoError(t, s.MarkEmbeddingFailed(ctx, store.CategoryDaily, entry.ID, 1))

	got, err := s.GetMemoryEntry(ctx, "alice", store.CategoryDaily, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EmbeddingFailed, got.EmbeddingStatus)
}

func TestVectorSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	embed := func(category store.Category, content string, vec []float32) *store.MemoryEntry {
		entry, err := s.CreateMemoryEntry(ctx, &store.MemoryEntry{SessionKey: "alice", Category: category, Content: content})
		require.NoError(t, err)
		if vec != nil {
			_, err = s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: category, ID: entry.ID, Version: 1, Embedding: vec})
			require.NoError(t, err)
		}
		return entry
	}

	embed(store.CategoryDaily, "exact", []float32{1, 0, 0})
	embed(store.CategoryConversation, "close", []float32{0.9, 0.1, 0})
	embed(store.CategoryDaily, "orthogonal", []float32{0, 1, 0})
	embed(store.CategoryDaily, "pending", nil)

	results, err := s.VectorSearch(ctx, &store.VectorSearchOptions{
		SessionKey: "alice",
		Vector:     []float32{1, 0, 0},
		MinScore:   0.3,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Entry.Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "close", results[1].Entry.Content)
	assert.Equal(t, store.CategoryConversation, results[1].Entry.Category)

	dailyOnly, err := s.VectorSearch(ctx, &store.VectorSearchOptions{
		SessionKey: "alice",
		Vector:     []float32{1, 0, 0},
		Categories: []store.Category{store.CategoryDaily},
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, dailyOnly, 1)
	assert.Equal(t, "exact", dailyOnly[0].Entry.Content)

	other, err := s.VectorSearch(ctx, &store.VectorSearchOptions{SessionKey: "bob", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Empty(t, other)
}
