package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/mnemo/ai/memory"
)

// UpdateLongTermMemoryTool replaces the session's long-term memory.
type UpdateLongTermMemoryTool struct {
	service *memory.Service
}

// NewUpdateLongTermMemoryTool creates a new long-term memory tool.
func NewUpdateLongTermMemoryTool(service *memory.Service) *UpdateLongTermMemoryTool {
	return &UpdateLongTermMemoryTool{service: service}
}

// Name returns the name of the tool.
func (t *UpdateLongTermMemoryTool) Name() string {
	return "update_long_term_memory"
}

// Description returns a description of what the tool does.
func (t *UpdateLongTermMemoryTool) Description() string {
	return `Update the long-term memory with consolidated information.

This REPLACES the entire long-term memory content. Use it to store persistent
facts like user preferences, important context, or summaries.

IMPORTANT: read the current long-term memory first (read_memory with
scope "long_term") and include everything worth keeping. Concurrent updates
are not merged; the last one wins.

INPUT FORMAT:
{"content": "The complete long-term memory content (markdown formatted)"}

OUTPUT:
- Success: "Long-term memory updated successfully. (version N)"`
}

// UpdateLongTermMemoryInput represents the input for replacing long-term memory.
type UpdateLongTermMemoryInput struct {
	Content string `json:"content"`
}

// InputType returns the JSON schema for the input.
func (t *UpdateLongTermMemoryTool) InputType() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The complete long-term memory content (markdown formatted)",
			},
		},
		"required": []string{"content"},
	}
}

// Run executes the long-term memory tool.
func (t *UpdateLongTermMemoryTool) Run(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ToolExecutionTimeout)
	defer cancel()

	var in UpdateLongTermMemoryInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", inputErrorf("invalid JSON input: %v", err)
	}
	if strings.TrimSpace(in.Content) == "" {
		return "", inputErrorf("content is required and cannot be empty")
	}

	key, err := sessionKey(ctx)
	if err != nil {
		return "", err
	}
	version, err := t.service.ReplaceLongTerm(ctx, key, in.Content)
	if err != nil {
		return "", fmt.Errorf("failed to update long-term memory: %w", err)
	}
	return fmt.Sprintf("Long-term memory updated successfully. (version %d)", version), nil
}
