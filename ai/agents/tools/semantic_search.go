package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/store"
)

// SemanticSearchTool finds memories by meaning rather than exact words.
type SemanticSearchTool struct {
	searcher *memory.Searcher
}

// NewSemanticSearchTool creates a new semantic search tool. searcher may be nil when no
// embedding provider is configured.
func NewSemanticSearchTool(searcher *memory.Searcher) *SemanticSearchTool {
	return &SemanticSearchTool{searcher: searcher}
}

// Name returns the name of the tool.
func (t *SemanticSearchTool) Name() string {
	return "semantic_search"
}

// Description returns a description of what the tool does.
func (t *SemanticSearchTool) Description() string {
	return `Search all memories (long-term, daily notes, past conversations) by meaning.

Use this to recall facts when you do not know the exact words or date.
Recently saved memories may take a few seconds to become searchable.

INPUT FORMAT:
{"query": "what to look for", "k": 5}

OUTPUT:
- One line per match: "- [category (date) sim=0.87] content"`
}

// SemanticSearchInput represents the input for a semantic search.
type SemanticSearchInput struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// InputType returns the JSON schema for the input.
func (t *SemanticSearchTool) InputType() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to look for",
			},
			"k": map[string]interface{}{
				"type":        "integer",
				"default":     memory.DefaultSearchLimit,
				"description": "Maximum number of results",
			},
		},
		"required": []string{"query"},
	}
}

// Run executes the semantic search tool.
func (t *SemanticSearchTool) Run(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ToolExecutionTimeout)
	defer cancel()

	var in SemanticSearchInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", inputErrorf("invalid JSON input: %v", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", inputErrorf("query is required and cannot be empty")
	}
	if in.K < 0 {
		return "", inputErrorf("k cannot be negative: %d", in.K)
	}
	if in.K > store.MaxSearchLimit {
		return "", inputErrorf("k too large (max %d): %d", store.MaxSearchLimit, in.K)
	}

	key, err := sessionKey(ctx)
	if err != nil {
		return "", err
	}
	if t.searcher == nil {
		return "(Semantic search is not available)", nil
	}
	results, err := t.searcher.Search(ctx, memory.SearchRequest{
		SessionKey: key,
		Query:      in.Query,
		Limit:      in.K,
	})
	if err != nil {
		return "", fmt.Errorf("semantic search failed: %w", err)
	}
	if len(results) == 0 {
		return "(No matching memories)", nil
	}
	return memory.FormatResults(results), nil
}
