package v1

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/store"
)

// ContentRequest carries a memory body.
type ContentRequest struct {
	Content string `json:"content"`
}

// SearchRequest is the body of a semantic search.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// TurnRequest is one exchange captured by auto-ingest.
type TurnRequest struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Entry is the wire form of a memory entry.
type Entry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
	Status    string    `json:"embedding_status"`
}

// SearchHit is the wire form of a search result.
type SearchHit struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Score     float32   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func convertEntry(e *store.MemoryEntry) Entry {
	return Entry{
		ID:        e.ID,
		Category:  string(e.Category),
		Role:      e.Role,
		Content:   e.Content,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Version:   e.Version,
		Status:    string(e.EmbeddingStatus),
	}
}

// AppendDaily handles POST /memory/daily.
func (s *APIV1Service) AppendDaily(c echo.Context) error {
	var req ContentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body: %v", err)
	}

	id, err := s.MemoryService.AppendDaily(c.Request().Context(), c.Param("session"), req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// ReplaceLongTerm handles PUT /memory/long-term.
func (s *APIV1Service) ReplaceLongTerm(c echo.Context) error {
	var req ContentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body: %v", err)
	}

	version, err := s.MemoryService.ReplaceLongTerm(c.Request().Context(), c.Param("session"), req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"version": version})
}

// ReadMemory handles GET /memory?scope=&days=&keyword=&limit=.
func (s *APIV1Service) ReadMemory(c echo.Context) error {
	days, err := queryInt(c, "days")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	scope := c.QueryParam("scope")
	if scope == "" {
		scope = memory.ScopeToday
	}

	entries, err := s.MemoryService.Read(c.Request().Context(), c.Param("session"), memory.ReadRequest{
		Scope:   scope,
		Days:    days,
		Keyword: c.QueryParam("keyword"),
		Limit:   limit,
	})
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, convertEntry(e))
	}
	return c.JSON(http.StatusOK, out)
}

// Search handles POST /search.
func (s *APIV1Service) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	out := []SearchHit{}
	if s.Searcher == nil {
		if strings.TrimSpace(req.Query) == "" {
			return badRequest("query is required")
		}
		return c.JSON(http.StatusOK, out)
	}

	results, err := s.Searcher.Search(c.Request().Context(), memory.SearchRequest{
		SessionKey: c.Param("session"),
		Query:      req.Query,
		Limit:      req.K,
	})
	if err != nil {
		return toHTTPError(err)
	}
	for _, r := range results {
		out = append(out, SearchHit{
			ID:        r.Entry.ID,
			Category:  string(r.Entry.Category),
			Content:   r.Entry.Content,
			Score:     r.Score,
			CreatedAt: r.Entry.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// IngestTurn handles POST /turns. The turn is queued and written in the background.
func (s *APIV1Service) IngestTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	if strings.TrimSpace(req.User) == "" && strings.TrimSpace(req.Assistant) == "" {
		return badRequest("user or assistant text is required")
	}

	s.Ingestor.Ingest(c.Param("session"), req.User, req.Assistant)
	return c.NoContent(http.StatusAccepted)
}

// GetContext handles GET /context?query=. It returns the memory section of a prompt as
// plain text.
func (s *APIV1Service) GetContext(c echo.Context) error {
	ctx := c.Request().Context()
	session := c.Param("session")

	var (
		text string
		err  error
	)
	if query := c.QueryParam("query"); query != "" {
		text, err = s.ContextBuilder.BuildSemantic(ctx, session, query)
	} else {
		text, err = s.ContextBuilder.Build(ctx, session)
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.String(http.StatusOK, text)
}

// RunTool handles POST /tools/:name. The request body is passed to the tool verbatim.
func (s *APIV1Service) RunTool(c echo.Context) error {
	if s.Tools == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "tools are not enabled")
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return badRequest("failed to read request body: %v", err)
	}

	output, err := s.Tools.Run(c.Request().Context(), c.Param("name"), string(body))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"output": output})
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return n, nil
}
