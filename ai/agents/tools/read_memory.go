package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/store"
)

// ReadMemoryTool reads notes and long-term memory of the current session.
type ReadMemoryTool struct {
	service *memory.Service
}

// NewReadMemoryTool creates a new read memory tool.
func NewReadMemoryTool(service *memory.Service) *ReadMemoryTool {
	return &ReadMemoryTool{service: service}
}

// Name returns the name of the tool.
func (t *ReadMemoryTool) Name() string {
	return "read_memory"
}

// Description returns a description of what the tool does.
func (t *ReadMemoryTool) Description() string {
	return `Read memories.

Scopes:
- "today": today's notes (default)
- "long_term": the consolidated long-term memory
- "recent": notes from the last N days including today, grouped by date

INPUT FORMAT:
{"scope": "today|long_term|recent", "days": 7, "keyword": "optional filter"}

OUTPUT:
- The stored notes as markdown, or a short message when there are none.`
}

// ReadMemoryInput represents the input for reading memories.
type ReadMemoryInput struct {
	Scope   string `json:"scope"`
	Days    int    `json:"days"`
	Keyword string `json:"keyword"`
}

// InputType returns the JSON schema for the input.
func (t *ReadMemoryTool) InputType() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"scope": map[string]interface{}{
				"type":        "string",
				"enum":        []string{memory.ScopeToday, memory.ScopeLongTerm, memory.ScopeRecent},
				"default":     memory.ScopeToday,
				"description": "Which memories to read",
			},
			"days": map[string]interface{}{
				"type":        "integer",
				"default":     memory.DefaultRecentDays,
				"description": "Number of days to read, today included (for 'recent' scope)",
			},
			"keyword": map[string]interface{}{
				"type":        "string",
				"description": "Only return entries containing this text (case-insensitive)",
			},
		},
	}
}

// Run executes the read memory tool.
func (t *ReadMemoryTool) Run(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ToolExecutionTimeout)
	defer cancel()

	var in ReadMemoryInput
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return "", inputErrorf("invalid JSON input: %v", err)
		}
	}
	scope := strings.ToLower(strings.TrimSpace(in.Scope))
	if scope == "" {
		scope = memory.ScopeToday
	}
	switch scope {
	case memory.ScopeToday, memory.ScopeLongTerm, memory.ScopeRecent:
	default:
		return fmt.Sprintf("Error: unknown scope '%s', use 'today', 'long_term', or 'recent'", in.Scope), nil
	}
	days := in.Days
	if days <= 0 {
		days = memory.DefaultRecentDays
	}

	key, err := sessionKey(ctx)
	if err != nil {
		return "", err
	}
	entries, err := t.service.Read(ctx, key, memory.ReadRequest{
		Scope:   scope,
		Days:    days,
		Keyword: in.Keyword,
	})
	if err != nil {
		return "", fmt.Errorf("failed to read memory: %w", err)
	}

	switch scope {
	case memory.ScopeLongTerm:
		if len(entries) == 0 {
			return "(No long-term memory)", nil
		}
		return entries[0].Content, nil
	case memory.ScopeRecent:
		if len(entries) == 0 {
			return fmt.Sprintf("(No memories in the last %d days)", days), nil
		}
		return formatByDate(entries), nil
	default:
		if len(entries) == 0 {
			return "(No notes for today)", nil
		}
		return memory.JoinContents(memory.Chronological(entries)), nil
	}
}

// formatByDate groups newest-first entries into one section per day. Days are newest
// first and entries keep their insertion order within a day.
func formatByDate(entries []*store.MemoryEntry) string {
	var (
		dates  []string
		byDate = make(map[string][]*store.MemoryEntry)
	)
	for _, e := range entries {
		date := e.CreatedAt.UTC().Format("2006-01-02")
		if _, seen := byDate[date]; !seen {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], e)
	}

	sections := make([]string, 0, len(dates))
	for _, date := range dates {
		body := memory.JoinContents(memory.Chronological(byDate[date]))
		sections = append(sections, "# "+date+"\n\n"+body)
	}
	return strings.Join(sections, "\n\n---\n\n")
}
