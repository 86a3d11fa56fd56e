package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

// Integration tests need a PostgreSQL server with the vector extension available.
// Each test uses its own session key so runs do not interfere.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("MNEMO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MNEMO_TEST_POSTGRES_DSN not set")
	}
	prof := &profile.Profile{Mode: "dev", Driver: profile.DriverPostgres, DSN: dsn, EmbeddingDimensions: 3}
	driver, err := NewDB(prof)
	require.NoError(t, err)
	s := store.New(driver, prof)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTableNames(t *testing.T) {
	d := &DB{dims: 1536}
	table, err := d.entryTable(store.CategoryLongTerm)
	require.NoError(t, err)
	assert.Equal(t, "memory_long_term_dim1536", table)
	assert.Equal(t, "memory_embedding_job_dim1536", d.jobTable())

	_, err = d.entryTable("episodic")
	require.Error(t, err)

	assert.Equal(t, "$1, $2, $3", placeholders(3))
	assert.Equal(t, "j.id, j.status", prefixed("j.", "id,\n\tstatus"))
}

func TestNewDB_Validation(t *testing.T) {
	_, err := NewDB(&profile.Profile{EmbeddingDimensions: 3})
	require.Error(t, err)
	_, err = NewDB(&profile.Profile{DSN: "postgres://localhost/x"})
	require.Error(t, err)
}

func TestPostgres_LongTermAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	session := "pg-" + uuid.NewString()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpsertLongTermMemory(ctx, &store.UpsertLongTermMemory{SessionKey: session, Content: fmt.Sprintf("v%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	lt, err := s.GetLongTermMemory(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, lt)
	assert.Equal(t, int64(n), lt.Version)

	applied, err := s.WriteEmbedding(ctx, &store.WriteEmbedding{Category: store.CategoryLongTerm, ID: lt.ID, Version: lt.Version, Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.True(t, applied)

	daily, err := s.CreateMemoryEntry(ctx, &store.MemoryEntry{SessionKey: session, Category: store.CategoryDaily, Content: "pending"})
	require.NoError(t, err)

	results, err := s.VectorSearch(ctx, &store.VectorSearchOptions{SessionKey: session, Vector: []float32{1, 0, 0}, MinScore: 0.3})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, lt.ID, results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.NotEqual(t, daily.ID, results[0].Entry.ID)
}

func TestPostgres_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	target := uuid.NewString()

	v1, err := s.EnqueueEmbeddingJob(ctx, &store.EmbeddingJob{TargetID: target, Category: store.CategoryLongTerm, SessionKey: "pg", TargetVersion: 1})
	require.NoError(t, err)
	v2, err := s.EnqueueEmbeddingJob(ctx, &store.EmbeddingJob{TargetID: target, Category: store.CategoryLongTerm, SessionKey: "pg", TargetVersion: 2})
	require.NoError(t, err)
	assert.NotEqual(t, v1.ID, v2.ID)

	late, err := s.EnqueueEmbeddingJob(ctx, &store.EmbeddingJob{TargetID: target, Category: store.CategoryLongTerm, SessionKey: "pg", TargetVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, late.ID)

	token := uuid.NewString()
	claimed, err := s.ClaimEmbeddingJobs(ctx, &store.ClaimEmbeddingJobs{Token: token, LeaseTimeout: time.Minute, Limit: 1000})
	require.NoError(t, err)

	// Other jobs in a shared database are left to their lease expiry.
	var mine *store.EmbeddingJob
	for _, job := range claimed {
		if job.ID == v2.ID {
			mine = job
		}
	}
	require.NotNil(t, mine)
	require.ErrorIs(t, s.CompleteEmbeddingJob(ctx, mine.ID, "someone-else"), store.ErrLeaseLost)
	require.NoError(t, s.CompleteEmbeddingJob(ctx, mine.ID, token))
}
