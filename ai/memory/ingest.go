package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/mnemo/ai/internal/strutil"
	"github.com/hrygo/mnemo/ai/metrics"
)

// DefaultIngestQueueSize is the capacity of the auto-ingest channel.
const DefaultIngestQueueSize = 256

const ingestWriteTimeout = 5 * time.Second

// Ingestor captures finished conversation turns without blocking the caller.
type Ingestor interface {
	// Ingest records a user/assistant exchange. It never blocks and never fails.
	Ingest(sessionKey, userText, assistantText string)
	// Close drains pending turns, waiting at most timeout.
	Close(timeout time.Duration) error
}

// NullIngestor discards every turn.
type NullIngestor struct{}

func (NullIngestor) Ingest(string, string, string) {}

func (NullIngestor) Close(time.Duration) error { return nil }

type turn struct {
	sessionKey string
	user       string
	assistant  string
}

// AsyncIngestor writes turns through the memory service from a background goroutine.
type AsyncIngestor struct {
	service *Service
	queue   chan turn
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.PrometheusExporter
	stopCh  chan struct{}
	once    sync.Once

	// mu makes the closed check and the queue send atomic with respect to Close.
	mu     sync.RWMutex
	closed bool
}

// NewIngestor returns an AsyncIngestor, or a NullIngestor when auto-ingest is disabled or
// the driver cannot store conversations.
func NewIngestor(service *Service, enabled bool, queueSize int, opts Options) Ingestor {
	if !enabled || !service.Capabilities().Conversation {
		return NullIngestor{}
	}
	return NewAsyncIngestor(service, queueSize, opts)
}

// NewAsyncIngestor creates and starts an async ingestor.
func NewAsyncIngestor(service *Service, queueSize int, opts Options) *AsyncIngestor {
	opts = opts.withDefaults()
	if queueSize <= 0 {
		queueSize = DefaultIngestQueueSize
	}

	a := &AsyncIngestor{
		service: service,
		queue:   make(chan turn, queueSize),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		stopCh:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.processQueue()
	return a
}

// Ingest queues a turn, dropping it when the queue is full.
func (a *AsyncIngestor) Ingest(sessionKey, userText, assistantText string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("Ingestor: closed, dropping turn", "session_key", sessionKey)
		a.metrics.RecordIngest(true)
		return
	}

	select {
	case a.queue <- turn{sessionKey: sessionKey, user: userText, assistant: assistantText}:
		a.metrics.RecordIngest(false)
	default:
		a.logger.Warn("Ingestor: queue full, dropping turn",
			"session_key", sessionKey,
			"queue_size", len(a.queue),
			"user", strutil.Preview(userText))
		a.metrics.RecordIngest(true)
	}
}

func (a *AsyncIngestor) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case t := <-a.queue:
			a.write(t)
		case <-a.stopCh:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncIngestor) drainQueue() {
	a.logger.Info("Ingestor: draining queue", "remaining", len(a.queue))
	for {
		select {
		case t := <-a.queue:
			a.write(t)
		default:
			return
		}
	}
}

// write stores both sides of a turn. Errors are logged and swallowed.
func (a *AsyncIngestor) write(t turn) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestWriteTimeout)
	defer cancel()

	for _, msg := range []struct{ role, text string }{
		{RoleUser, t.user},
		{RoleAssistant, t.assistant},
	} {
		if _, err := a.service.AppendConversation(ctx, t.sessionKey, msg.role, msg.text); err != nil {
			a.logger.Error("Ingestor: failed to store conversation turn",
				"session_key", t.sessionKey,
				"role", msg.role,
				"transient", IsTransient(err),
				"error", err)
		}
	}
}

// Close stops accepting turns and waits for the queue to drain.
func (a *AsyncIngestor) Close(timeout time.Duration) error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.stopCh)
		a.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("Ingestor: shutdown complete")
		return nil
	case <-time.After(timeout):
		a.logger.Warn("Ingestor: shutdown timeout")
		return context.DeadlineExceeded
	}
}

// QueueSize returns the number of pending turns.
func (a *AsyncIngestor) QueueSize() int {
	return len(a.queue)
}
