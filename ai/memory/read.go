package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

// Read scopes.
const (
	ScopeToday    = "today"
	ScopeRecent   = "recent"
	ScopeLongTerm = "long_term"
	ScopeAll      = "all"
)

// DefaultRecentDays is the look-back window of the recent scope.
const DefaultRecentDays = 7

// ReadRequest selects entries of one session.
type ReadRequest struct {
	Scope string
	// Days is the look-back window for recent and all; zero means DefaultRecentDays.
	Days int
	// Keyword keeps entries containing it, ignoring case.
	Keyword string
	// Limit caps the number of returned entries; zero means no cap.
	Limit int
}

// Read returns the entries selected by req, newest first.
func (s *Service) Read(ctx context.Context, sessionKey string, req ReadRequest) ([]*store.MemoryEntry, error) {
	if sessionKey == "" {
		return nil, invalidf("session key is required")
	}
	if req.Days < 0 {
		return nil, invalidf("days cannot be negative: %d", req.Days)
	}
	if req.Limit < 0 {
		return nil, invalidf("limit cannot be negative: %d", req.Limit)
	}
	days := req.Days
	if days == 0 {
		days = DefaultRecentDays
	}

	// The window is exactly days calendar days ending today.
	today := startOfDay(s.now())
	cutoff := today.AddDate(0, 0, -(days - 1))
	var (
		entries []*store.MemoryEntry
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(req.Scope)) {
	case ScopeToday:
		end := today.AddDate(0, 0, 1)
		entries, err = s.list(ctx, sessionKey, store.CategoryDaily, &today, &end)
	case ScopeRecent:
		entries, err = s.list(ctx, sessionKey, store.CategoryDaily, &cutoff, nil)
	case ScopeLongTerm:
		entries, err = s.list(ctx, sessionKey, store.CategoryLongTerm, nil, nil)
	case ScopeAll:
		entries, err = s.readAll(ctx, sessionKey, cutoff)
	default:
		return nil, errors.Wrapf(ErrUnknownScope, "%q", req.Scope)
	}
	if err != nil {
		return nil, err
	}

	entries = filterKeyword(entries, req.Keyword)
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

func (s *Service) readAll(ctx context.Context, sessionKey string, cutoff time.Time) ([]*store.MemoryEntry, error) {
	entries, err := s.list(ctx, sessionKey, store.CategoryLongTerm, nil, nil)
	if err != nil {
		return nil, err
	}

	daily, err := s.list(ctx, sessionKey, store.CategoryDaily, &cutoff, nil)
	if err != nil {
		return nil, err
	}
	entries = append(entries, daily...)

	if s.caps.Conversation {
		conversation, err := s.list(ctx, sessionKey, store.CategoryConversation, &cutoff, nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, conversation...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return recency(entries[i]).After(recency(entries[j]))
	})
	return entries, nil
}

func (s *Service) list(ctx context.Context, sessionKey string, category store.Category, after, before *time.Time) ([]*store.MemoryEntry, error) {
	entries, err := s.store.ListMemoryEntries(ctx, &store.FindMemoryEntry{
		SessionKey:    sessionKey,
		Category:      category,
		CreatedAfter:  after,
		CreatedBefore: before,
	})
	if err != nil {
		return nil, wrapBackend(err, "failed to list "+string(category)+" memory")
	}
	return entries, nil
}

// recency orders long-term memory by its last replacement and everything else by creation.
func recency(e *store.MemoryEntry) time.Time {
	if e.Category == store.CategoryLongTerm {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

func filterKeyword(entries []*store.MemoryEntry, keyword string) []*store.MemoryEntry {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return entries
	}
	filtered := entries[:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Content), keyword) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// startOfDay truncates t to midnight UTC, the daily partition boundary.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
