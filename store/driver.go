package store

import (
	"context"
	"time"
)

// Capabilities describes which optional operations a driver can serve.
type Capabilities struct {
	Conversation   bool
	VectorSearch   bool
	EmbeddingQueue bool
}

// Degraded reports whether any optional capability is missing.
func (c Capabilities) Degraded() bool {
	return !c.Conversation || !c.VectorSearch || !c.EmbeddingQueue
}

// Driver is the storage backend of the memory engine.
// Operations outside a driver's Capabilities return an error wrapping ErrCapabilityUnsupported.
type Driver interface {
	Name() string
	Capabilities() Capabilities
	Migrate(ctx context.Context) error
	Close() error

	// MemoryEntry model related methods.
	CreateMemoryEntry(ctx context.Context, create *MemoryEntry) (*MemoryEntry, error)
	ListMemoryEntries(ctx context.Context, find *FindMemoryEntry) ([]*MemoryEntry, error)
	UpsertLongTermMemory(ctx context.Context, upsert *UpsertLongTermMemory) (*MemoryEntry, error)
	WriteEmbedding(ctx context.Context, write *WriteEmbedding) (bool, error)
	MarkEmbeddingFailed(ctx context.Context, category Category, id string, version int64) error
	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryEntryWithScore, error)

	// EmbeddingJob model related methods.
	EnqueueEmbeddingJob(ctx context.Context, job *EmbeddingJob) (*EmbeddingJob, error)
	ClaimEmbeddingJobs(ctx context.Context, claim *ClaimEmbeddingJobs) ([]*EmbeddingJob, error)
	CompleteEmbeddingJob(ctx context.Context, id, token string, now time.Time) error
	FailEmbeddingJob(ctx context.Context, fail *FailEmbeddingJob) error
	CountEmbeddingJobs(ctx context.Context) (map[JobStatus]int, error)
}
