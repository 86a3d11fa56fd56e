package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each word is hashed into a
// bucket, so texts sharing words have a high cosine similarity.
type HashEmbedder struct {
	dims  int
	calls atomic.Int64
}

// NewHashEmbedder creates a hash embedder producing vectors of dims.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.calls.Add(1)
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Model() string { return "hash" }

// Calls returns the number of Embed calls.
func (h *HashEmbedder) Calls() int64 { return h.calls.Load() }

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.dims)]++
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// StubEmbedder wraps a HashEmbedder with injectable failures and latency.
type StubEmbedder struct {
	*HashEmbedder

	mu    sync.Mutex
	err   error
	delay time.Duration
	// failures counts the remaining calls that return err; negative means every call.
	failures int
}

// NewStubEmbedder creates a stub embedder that succeeds until told otherwise.
func NewStubEmbedder(dims int) *StubEmbedder {
	return &StubEmbedder{HashEmbedder: NewHashEmbedder(dims)}
}

// FailWith makes the next n calls fail with err; n < 0 fails every call.
func (s *StubEmbedder) FailWith(err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.failures = n
}

// SetDelay makes every call wait d or until its context is done.
func (s *StubEmbedder) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	delay := s.delay
	var err error
	if s.err != nil && s.failures != 0 {
		err = s.err
		if s.failures > 0 {
			s.failures--
		}
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		s.calls.Add(1)
		return nil, err
	}
	return s.HashEmbedder.Embed(ctx, text)
}
