package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/mnemo/ai/memory"
)

// SaveMemoryTool appends a note to today's memory.
type SaveMemoryTool struct {
	service *memory.Service
}

// NewSaveMemoryTool creates a new save memory tool.
func NewSaveMemoryTool(service *memory.Service) *SaveMemoryTool {
	return &SaveMemoryTool{service: service}
}

// Name returns the name of the tool.
func (t *SaveMemoryTool) Name() string {
	return "save_memory"
}

// Description returns a description of what the tool does.
func (t *SaveMemoryTool) Description() string {
	return `Save important information to today's memory notes.

Use this to remember facts, preferences, decisions, or anything worth recalling
in future conversations. Each call appends a new note; earlier notes are kept.

INPUT FORMAT:
{"content": "The information to remember (markdown formatted)"}

OUTPUT:
- Success: "Memory saved successfully."`
}

// SaveMemoryInput represents the input for saving a note.
type SaveMemoryInput struct {
	Content string `json:"content"`
}

// InputType returns the JSON schema for the input.
func (t *SaveMemoryTool) InputType() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The information to remember (markdown formatted)",
			},
		},
		"required": []string{"content"},
	}
}

// Run executes the save memory tool.
func (t *SaveMemoryTool) Run(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ToolExecutionTimeout)
	defer cancel()

	var in SaveMemoryInput
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
	if _, err := t.service.AppendDaily(ctx, key, in.Content); err != nil {
		return "", fmt.Errorf("failed to save memory: %w", err)
	}
	return "Memory saved successfully.", nil
}
