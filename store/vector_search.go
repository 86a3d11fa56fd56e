package store

import (
	"context"
	"sort"
)

// MemoryEntryWithScore represents a vector search result with similarity score.
type MemoryEntryWithScore struct {
	Entry *MemoryEntry
	Score float32 // Cosine similarity, higher is more similar
}

// VectorSearchOptions represents the options for memory vector search.
type VectorSearchOptions struct {
	SessionKey string
	Vector     []float32
	Categories []Category
	Limit      int
	// MinScore drops candidates below this cosine similarity.
	MinScore float32
}

// Validate validates the VectorSearchOptions.
func (o *VectorSearchOptions) Validate() error {
	if o.SessionKey == "" {
		return invalidArgf("session key is required")
	}
	if len(o.Vector) == 0 {
		return invalidArgf("vector cannot be empty")
	}
	if o.Limit < 0 {
		return invalidArgf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10 // Default limit
	}
	if o.Limit > MaxSearchLimit {
		return invalidArgf("limit too large (max %d): %d", MaxSearchLimit, o.Limit)
	}
	if len(o.Categories) == 0 {
		o.Categories = AllCategories
	}
	for _, c := range o.Categories {
		if !c.Valid() {
			return invalidArgf("invalid category: %q", c)
		}
	}
	return nil
}

// SortByScore orders results by descending score; ties go to the newest entry.
func SortByScore(results []*MemoryEntryWithScore) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.CreatedAt.After(results[j].Entry.CreatedAt)
	})
}

// VectorSearch performs cosine similarity search over embedded entries.
func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryEntryWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.VectorSearch(ctx, opts)
}
