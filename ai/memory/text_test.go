package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemo/store"
)

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name  string
		entry *store.MemoryEntry
		want  string
	}{
		{
			name:  "plain daily note",
			entry: &store.MemoryEntry{Category: store.CategoryDaily, Content: "User prefers dark mode"},
			want:  "User prefers dark mode",
		},
		{
			name:  "markdown long-term memory",
			entry: &store.MemoryEntry{Category: store.CategoryLongTerm, Content: "## Profile\n- Name: **Ryan**\n- Company: [X](https://x.example)"},
			want:  "Profile\nName: Ryan\nCompany: X",
		},
		{
			name:  "conversation turn",
			entry: &store.MemoryEntry{Category: store.CategoryConversation, Role: "user", Content: "Use `go test` please"},
			want:  "user: Use go test please",
		},
		{
			name:  "html only falls back to raw content",
			entry: &store.MemoryEntry{Category: store.CategoryDaily, Content: "<br>"},
			want:  "<br>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmbeddingText(tt.entry))
		})
	}
}

func TestFlattenMarkdown_CodeBlock(t *testing.T) {
	out := flattenMarkdown("Run this:\n\n```sh\nmake build\n```\n")
	assert.Equal(t, "Run this:\nmake build", out)
}
