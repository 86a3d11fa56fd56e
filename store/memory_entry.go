package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Category is one of the three memory categories.
type Category string

const (
	CategoryConversation Category = "conversation"
	CategoryDaily        Category = "daily"
	CategoryLongTerm     Category = "long_term"
)

// AllCategories lists every category in search order.
var AllCategories = []Category{CategoryLongTerm, CategoryDaily, CategoryConversation}

func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryConversation, CategoryDaily, CategoryLongTerm:
		return true
	default:
		return false
	}
}

// ParseCategory parses a category name, accepting "long-term" as an alias.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !c.Valid() {
		return "", invalidArgf("unknown memory category: %q", s)
	}
	return c, nil
}

// EmbeddingStatus tracks whether an entry has a usable vector.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingEmbedded EmbeddingStatus = "embedded"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// MemoryEntry is one row in any of the memory categories.
type MemoryEntry struct {
	ID         string
	SessionKey string
	Category   Category
	// Role is only set for conversation entries.
	Role    string
	Content string

	CreatedAt time.Time
	UpdatedAt time.Time

	Embedding       []float32
	EmbeddingStatus EmbeddingStatus
	// Version starts at 1 and is bumped by every long-term replacement.
	Version int64
	// EmbeddedVersion is the Version the stored vector was computed from.
	EmbeddedVersion int64
}

// Date returns the UTC calendar date partition of the entry (YYYY-MM-DD).
func (e *MemoryEntry) Date() string {
	return e.CreatedAt.UTC().Format(time.DateOnly)
}

// Searchable reports whether the entry may appear in vector search results.
func (e *MemoryEntry) Searchable() bool {
	return e.EmbeddingStatus == EmbeddingEmbedded && len(e.Embedding) > 0 && e.EmbeddedVersion == e.Version
}

// FindMemoryEntry is the find condition for memory entries.
type FindMemoryEntry struct {
	SessionKey string
	Category   Category
	ID         *string

	// CreatedAfter is inclusive, CreatedBefore exclusive.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	Limit int
	// OldestFirst returns insertion order; default is newest first.
	OldestFirst bool
}

// Validate validates the FindMemoryEntry.
func (f *FindMemoryEntry) Validate() error {
	if f.SessionKey == "" {
		return invalidArgf("session key is required")
	}
	if !f.Category.Valid() {
		return invalidArgf("invalid category: %q", f.Category)
	}
	if f.Limit < 0 {
		return invalidArgf("limit cannot be negative: %d", f.Limit)
	}
	return nil
}

// UpsertLongTermMemory replaces the single long-term entry of a session.
type UpsertLongTermMemory struct {
	SessionKey string
	Content    string
	UpdatedAt  time.Time
}

// WriteEmbedding stores a computed vector for an entry at a given version.
type WriteEmbedding struct {
	Category  Category
	ID        string
	Version   int64
	Embedding []float32
}

func (w *WriteEmbedding) Validate() error {
	if !w.Category.Valid() {
		return invalidArgf("invalid category: %q", w.Category)
	}
	if w.ID == "" {
		return invalidArgf("entry id is required")
	}
	if w.Version <= 0 {
		return invalidArgf("invalid version: %d", w.Version)
	}
	if len(w.Embedding) == 0 {
		return invalidArgf("embedding cannot be empty")
	}
	return nil
}

// CreateMemoryEntry appends a conversation or daily entry.
func (s *Store) CreateMemoryEntry(ctx context.Context, create *MemoryEntry) (*MemoryEntry, error) {
	if create.SessionKey == "" {
		return nil, invalidArgf("session key is required")
	}
	switch create.Category {
	case CategoryConversation, CategoryDaily:
	case CategoryLongTerm:
		return nil, invalidArgf("long-term memory is replaced, not appended; use UpsertLongTermMemory")
	default:
		return nil, invalidArgf("invalid category: %q", create.Category)
	}
	if create.CreatedAt.IsZero() {
		create.CreatedAt = time.Now()
	}
	create.CreatedAt = create.CreatedAt.UTC()
	create.UpdatedAt = create.CreatedAt
	create.Version = 1
	create.EmbeddingStatus = EmbeddingPending
	return s.driver.CreateMemoryEntry(ctx, create)
}

// GetMemoryEntry gets an entry by id. An empty category searches every category.
func (s *Store) GetMemoryEntry(ctx context.Context, sessionKey string, category Category, id string) (*MemoryEntry, error) {
	categories := AllCategories
	if category != "" {
		categories = []Category{category}
	}
	for _, c := range categories {
		if c == CategoryConversation && !s.driver.Capabilities().Conversation {
			continue
		}
		list, err := s.driver.ListMemoryEntries(ctx, &FindMemoryEntry{
			SessionKey: sessionKey,
			Category:   c,
			ID:         &id,
			Limit:      1,
		})
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			return list[0], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "memory entry %s", id)
}

// ListMemoryEntries lists entries of one category within a session.
func (s *Store) ListMemoryEntries(ctx context.Context, find *FindMemoryEntry) ([]*MemoryEntry, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListMemoryEntries(ctx, find)
}

// GetLongTermMemory returns the session's long-term entry, or nil if none was written yet.
func (s *Store) GetLongTermMemory(ctx context.Context, sessionKey string) (*MemoryEntry, error) {
	list, err := s.ListMemoryEntries(ctx, &FindMemoryEntry{
		SessionKey: sessionKey,
		Category:   CategoryLongTerm,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpsertLongTermMemory atomically replaces the long-term content and bumps its version.
func (s *Store) UpsertLongTermMemory(ctx context.Context, upsert *UpsertLongTermMemory) (*MemoryEntry, error) {
	if upsert.SessionKey == "" {
		return nil, invalidArgf("session key is required")
	}
	if upsert.UpdatedAt.IsZero() {
		upsert.UpdatedAt = time.Now()
	}
	upsert.UpdatedAt = upsert.UpdatedAt.UTC()
	return s.driver.UpsertLongTermMemory(ctx, upsert)
}

// WriteEmbedding stores a vector. It reports false when the write was skipped because the
// entry is already embedded at this version or has moved on to a newer one.
func (s *Store) WriteEmbedding(ctx context.Context, write *WriteEmbedding) (bool, error) {
	if err := write.Validate(); err != nil {
		return false, err
	}
	return s.driver.WriteEmbedding(ctx, write)
}

// MarkEmbeddingFailed flags an entry version as permanently unembeddable.
func (s *Store) MarkEmbeddingFailed(ctx context.Context, category Category, id string, version int64) error {
	return s.driver.MarkEmbeddingFailed(ctx, category, id, version)
}
