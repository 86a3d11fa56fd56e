package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSearchOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    *VectorSearchOptions
		wantErr bool
		errMsg  string
	}{
		{"valid defaults", &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{0.1}}, false, ""},
		{"empty SessionKey", &VectorSearchOptions{Vector: []float32{0.1}}, true, "session key is required"},
		{"empty Vector", &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{}}, true, "vector cannot be empty"},
		{"nil Vector", &VectorSearchOptions{SessionKey: "cli:1", Vector: nil}, true, "vector cannot be empty"},
		{"Limit negative", &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{0.1}, Limit: -1}, true, "limit cannot be negative"},
		{"Limit > 1000", &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{0.1}, Limit: 1001}, true, "limit too large"},
		{"Limit == 1000", &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{0.1}, Limit: 1000}, false, ""},
		{"unknown category", &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{0.1}, Categories: []Category{"episodic"}}, true, "invalid category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidArgument(err))
				assert.True(t, strings.Contains(err.Error(), tt.errMsg),
					"expected error to contain %q, got %q", tt.errMsg, err.Error())
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestVectorSearchOptions_Validate_SetsDefaults(t *testing.T) {
	opts := &VectorSearchOptions{SessionKey: "cli:1", Vector: []float32{0.1}}

	require.NoError(t, opts.Validate())

	assert.Equal(t, 10, opts.Limit, "Limit should be set to default value 10")
	assert.Equal(t, AllCategories, opts.Categories, "empty category set means every category")
}

func TestSortByScore_TiesGoToNewest(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &MemoryEntryWithScore{Entry: &MemoryEntry{ID: "older", CreatedAt: base}, Score: 0.8}
	newer := &MemoryEntryWithScore{Entry: &MemoryEntry{ID: "newer", CreatedAt: base.Add(time.Hour)}, Score: 0.8}
	best := &MemoryEntryWithScore{Entry: &MemoryEntry{ID: "best", CreatedAt: base.Add(-time.Hour)}, Score: 0.95}

	results := []*MemoryEntryWithScore{older, best, newer}
	SortByScore(results)

	ids := []string{results[0].Entry.ID, results[1].Entry.ID, results[2].Entry.ID}
	assert.Equal(t, []string{"best", "newer", "older"}, ids)
}
