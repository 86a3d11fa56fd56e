// Package memory is the hybrid memory engine of an agent: it records conversation turns and
// curated notes, keeps them embedded through the background queue and serves reads, semantic
// search and prompt context over them.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/store"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options carries the ambient dependencies shared by the memory components.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.PrometheusExporter
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// conversationSink receives conversation turns.
type conversationSink interface {
	append(ctx context.Context, sessionKey, role, text string) (string, error)
}

// nullSink drops turns when the driver cannot capture conversations.
type nullSink struct{}

func (nullSink) append(context.Context, string, string, string) (string, error) {
	return "", nil
}

type storeSink struct {
	s *Service
}

func (k storeSink) append(ctx context.Context, sessionKey, role, text string) (string, error) {
	return k.s.create(ctx, &store.MemoryEntry{
		SessionKey: sessionKey,
		Category:   store.CategoryConversation,
		Role:       role,
		Content:    text,
	})
}

// Service writes and reads memory entries and keeps the embedding queue fed.
type Service struct {
	store        *store.Store
	caps         store.Capabilities
	conversation conversationSink
	logger       *slog.Logger
	metrics      *metrics.PrometheusExporter
	now          func() time.Time
}

// NewService creates the memory service. A driver missing optional capabilities is
// reported once here; later calls degrade without logging.
func NewService(st *store.Store, opts Options) *Service {
	opts = opts.withDefaults()
	s := &Service{
		store:   st,
		caps:    st.Capabilities(),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}

	if s.caps.Conversation {
		s.conversation = storeSink{s: s}
	} else {
		s.conversation = nullSink{}
	}

	if s.caps.Degraded() {
		s.logger.Warn("Memory: driver running in degraded mode",
			"driver", st.GetDriver().Name(),
			"conversation", s.caps.Conversation,
			"vector_search", s.caps.VectorSearch,
			"embedding_queue", s.caps.EmbeddingQueue)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store {
	return s.store
}

// Capabilities returns the capabilities of the underlying driver.
func (s *Service) Capabilities() store.Capabilities {
	return s.caps
}

// AppendConversation records one conversation turn. Empty text is skipped and, on drivers
// without conversation capture, the turn is discarded; both return an empty id.
func (s *Service) AppendConversation(ctx context.Context, sessionKey, role, text string) (string, error) {
	if sessionKey == "" {
		return "", invalidf("session key is required")
	}
	if role != RoleUser && role != RoleAssistant {
		return "", invalidf("invalid conversation role %q", role)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return s.conversation.append(ctx, sessionKey, role, text)
}

// AppendDaily adds a note to today's daily memory.
func (s *Service) AppendDaily(ctx context.Context, sessionKey, content string) (string, error) {
	if sessionKey == "" {
		return "", invalidf("session key is required")
	}
	if strings.TrimSpace(content) == "" {
		return "", invalidf("content is required")
	}
	return s.create(ctx, &store.MemoryEntry{
		SessionKey: sessionKey,
		Category:   store.CategoryDaily,
		Content:    content,
	})
}

// ReplaceLongTerm overwrites the session's long-term memory and returns the new version.
// Concurrent replacements are applied in commit order; the last one wins.
func (s *Service) ReplaceLongTerm(ctx context.Context, sessionKey, content string) (int64, error) {
	if sessionKey == "" {
		return 0, invalidf("session key is required")
	}
	if strings.TrimSpace(content) == "" {
		return 0, invalidf("content is required")
	}

	entry, err := s.store.UpsertLongTermMemory(ctx, &store.UpsertLongTermMemory{
		SessionKey: sessionKey,
		Content:    content,
		UpdatedAt:  s.now(),
	})
	s.metrics.RecordWrite(string(store.CategoryLongTerm), err == nil)
	if err != nil {
		return 0, wrapBackend(err, "failed to replace long-term memory")
	}

	s.logger.Debug("Memory: long-term memory replaced",
		"session_key", sessionKey,
		"version", entry.Version)
	s.enqueue(ctx, entry)
	return entry.Version, nil
}

func (s *Service) create(ctx context.Context, entry *store.MemoryEntry) (string, error) {
	entry.CreatedAt = s.now()
	created, err := s.store.CreateMemoryEntry(ctx, entry)
	s.metrics.RecordWrite(string(entry.Category), err == nil)
	if err != nil {
		return "", wrapBackend(err, "failed to create memory entry")
	}

	s.logger.Debug("Memory: entry created",
		"session_key", created.SessionKey,
		"category", created.Category,
		"id", created.ID)
	s.enqueue(ctx, created)
	return created.ID, nil
}

// enqueue schedules an embedding job for a committed entry. Failures are logged and
// counted but never fail the write.
func (s *Service) enqueue(ctx context.Context, entry *store.MemoryEntry) {
	if !s.caps.EmbeddingQueue {
		return
	}

	// The entry is already committed; a cancelled request must not lose its job.
	ctx = context.WithoutCancel(ctx)
	job, err := s.store.EnqueueEmbeddingJob(ctx, &store.EmbeddingJob{
		TargetID:      entry.ID,
		Category:      entry.Category,
		SessionKey:    entry.SessionKey,
		TargetVersion: entry.Version,
	})
	if err != nil {
		s.metrics.RecordEnqueueFailure(string(entry.Category))
		s.logger.Warn("Memory: failed to enqueue embedding job",
			"session_key", entry.SessionKey,
			"category", entry.Category,
			"id", entry.ID,
			"version", entry.Version,
			"error", err)
		return
	}

	s.logger.Debug("Memory: embedding job enqueued",
		"job_id", job.ID,
		"target_id", entry.ID,
		"version", job.TargetVersion)
}
