// Package v1 serves the memory engine over HTTP.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mnemo/ai/agents/tools"
	"github.com/hrygo/mnemo/ai/memory"
)

// APIV1Service exposes the memory engine under /api/v1.
type APIV1Service struct {
	MemoryService  *memory.Service
	Searcher       *memory.Searcher
	ContextBuilder *memory.ContextBuilder
	Ingestor       memory.Ingestor
	Tools          *tools.Registry

	logger *slog.Logger
}

// NewAPIV1Service creates the API service. A nil searcher disables search and a nil
// ingestor disables turn capture.
func NewAPIV1Service(service *memory.Service, searcher *memory.Searcher, ingestor memory.Ingestor, registry *tools.Registry, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ingestor == nil {
		ingestor = memory.NullIngestor{}
	}
	return &APIV1Service{
		MemoryService:  service,
		Searcher:       searcher,
		ContextBuilder: memory.NewContextBuilder(service, searcher, logger),
		Ingestor:       ingestor,
		Tools:          registry,
		logger:         logger,
	}
}

// RegisterRoutes registers the session-scoped memory routes.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	sessions := echoServer.Group("/api/v1/sessions/:session",
		middleware.CORS(),
		s.requestContext,
	)
	sessions.POST("/memory/daily", s.AppendDaily)
	sessions.PUT("/memory/long-term", s.ReplaceLongTerm)
	sessions.GET("/memory", s.ReadMemory)
	sessions.POST("/search", s.Search)
	sessions.POST("/turns", s.IngestTurn)
	sessions.GET("/context", s.GetContext)
	sessions.POST("/tools/:name", s.RunTool)

	echoServer.GET("/api/v1/tools", s.ListTools)
}

// ListTools describes the registered tools.
func (s *APIV1Service) ListTools(c echo.Context) error {
	type toolInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"input_schema"`
	}
	var out []toolInfo
	if s.Tools != nil {
		for _, tool := range s.Tools.List() {
			out = append(out, toolInfo{
				Name:        tool.Name(),
				Description: tool.Description(),
				InputSchema: tool.InputType(),
			})
		}
	}
	return c.JSON(http.StatusOK, out)
}
