package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hrygo/mnemo/store"
)

// Section headers of the memory context.
const (
	headerLongTerm = "## Long-term Memory"
	headerSemantic = "## Relevant Memories (semantic)"
	headerToday    = "## Today's Notes"
)

// ContextBuilder assembles the memory section of an agent prompt.
type ContextBuilder struct {
	service  *Service
	searcher *Searcher
	logger   *slog.Logger
}

// NewContextBuilder creates a context builder. The searcher may be nil.
func NewContextBuilder(service *Service, searcher *Searcher, logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{
		service:  service,
		searcher: searcher,
		logger:   logger,
	}
}

// Build returns long-term memory followed by today's notes. It is empty when the session
// has neither.
func (b *ContextBuilder) Build(ctx context.Context, sessionKey string) (string, error) {
	longTerm, today, err := b.load(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	return joinSections(section(headerLongTerm, longTerm), section(headerToday, today)), nil
}

// BuildSemantic adds the entries most similar to query between long-term memory and
// today's notes. It falls back to Build when search fails or finds nothing.
func (b *ContextBuilder) BuildSemantic(ctx context.Context, sessionKey, query string) (string, error) {
	if b.searcher == nil || strings.TrimSpace(query) == "" {
		return b.Build(ctx, sessionKey)
	}

	results, err := b.searcher.Search(ctx, SearchRequest{SessionKey: sessionKey, Query: query})
	if err != nil {
		b.logger.Warn("Memory: semantic search failed, falling back",
			"session_key", sessionKey,
			"error", err)
		return b.Build(ctx, sessionKey)
	}
	if len(results) == 0 {
		return b.Build(ctx, sessionKey)
	}

	longTerm, today, err := b.load(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	return joinSections(
		section(headerLongTerm, longTerm),
		section(headerSemantic, FormatResults(results)),
		section(headerToday, today),
	), nil
}

func (b *ContextBuilder) load(ctx context.Context, sessionKey string) (longTerm, today string, err error) {
	entries, err := b.service.Read(ctx, sessionKey, ReadRequest{Scope: ScopeLongTerm})
	if err != nil {
		return "", "", err
	}
	if len(entries) > 0 {
		longTerm = entries[0].Content
	}

	entries, err = b.service.Read(ctx, sessionKey, ReadRequest{Scope: ScopeToday})
	if err != nil {
		return "", "", err
	}
	return longTerm, JoinContents(Chronological(entries)), nil
}

// Chronological returns a copy of newest-first entries in insertion order.
func Chronological(entries []*store.MemoryEntry) []*store.MemoryEntry {
	out := make([]*store.MemoryEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// JoinContents joins entry contents with newlines.
func JoinContents(entries []*store.MemoryEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Content)
	}
	return strings.Join(parts, "\n")
}

func section(header, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return header + "\n" + body
}

func joinSections(sections ...string) string {
	parts := sections[:0]
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
