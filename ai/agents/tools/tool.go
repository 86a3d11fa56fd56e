// Package tools exposes the memory engine to an agent as callable tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/ai/metrics"
)

// ToolExecutionTimeout bounds a single tool run.
const ToolExecutionTimeout = 30 * time.Second

// Tool is a function an agent can call with a JSON input.
type Tool interface {
	Name() string
	Description() string
	InputType() map[string]interface{}
	Run(ctx context.Context, input string) (string, error)
}

// ErrToolNotFound is returned by Registry.Run for an unknown tool name.
var ErrToolNotFound = errors.New("tool not found")

// InputError reports a tool input the tool could not accept.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func inputErrorf(format string, args ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// Registry holds the tools available to an agent.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	metrics *metrics.PrometheusExporter
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(exporter *metrics.PrometheusExporter) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		metrics: exporter,
	}
}

// NewMemoryRegistry registers the four memory tools.
func NewMemoryRegistry(service *memory.Service, searcher *memory.Searcher, exporter *metrics.PrometheusExporter) (*Registry, error) {
	r := NewRegistry(exporter)
	for _, tool := range []Tool{
		NewSaveMemoryTool(service),
		NewUpdateLongTermMemoryTool(service),
		NewReadMemoryTool(service),
		NewSemanticSearchTool(searcher),
	} {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool under its name.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})
	return tools
}

// Run executes the named tool for the session in ctx and records the call.
func (r *Registry) Run(ctx context.Context, name, input string) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	output, err := tool.Run(ctx, input)
	r.metrics.RecordToolCall(name, time.Since(start), err == nil)
	return output, err
}

// sessionKey returns the session the tool runs for.
func sessionKey(ctx context.Context) (string, error) {
	key := memory.SessionKeyFrom(ctx)
	if key == "" {
		return "", inputErrorf("session key missing from context")
	}
	return key, nil
}
