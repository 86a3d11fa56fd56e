package file

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

// A daily file looks like:
//
//	# 2026-05-01
//
//	<!-- entry id=3Gk9... at=2026-05-01T09:00:00.123Z -->
//	Prefers dark mode.
//
// Files without entry markers are read as a single entry dated at midnight.
// Content lines that look like a marker are written with one extra leading
// backslash and unescaped on read, so entry bodies round-trip exactly.
var entryMarker = regexp.MustCompile(`^<!-- entry id=(\S+) at=(\S+) -->$`)

const markerPrefix = "<!-- entry "

func looksLikeMarker(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, `\`), markerPrefix)
}

func escapeContent(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if looksLikeMarker(line) {
			lines[i] = `\` + line
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeLine(line string) string {
	if strings.HasPrefix(line, `\`) && looksLikeMarker(line) {
		return line[1:]
	}
	return line
}

func (d *DB) dailyPath(sessionKey, date string) (string, error) {
	dir, err := d.sessionDir(sessionKey)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, date+dailyFileSuffix), nil
}

func (d *DB) appendDaily(create *store.MemoryEntry) (*store.MemoryEntry, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	date := create.Date()
	path, err := d.dailyPath(create.SessionKey, date)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create session directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open daily file %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat daily file")
	}

	var sb strings.Builder
	if info.Size() == 0 {
		fmt.Fprintf(&sb, "# %s\n", date)
	}
	fmt.Fprintf(&sb, "\n<!-- entry id=%s at=%s -->\n%s\n", create.ID, create.CreatedAt.UTC().Format(time.RFC3339Nano), escapeContent(create.Content))
	if _, err := f.WriteString(sb.String()); err != nil {
		return nil, errors.Wrap(err, "failed to append daily entry")
	}
	return create, nil
}

func (d *DB) listDaily(find *store.FindMemoryEntry) ([]*store.MemoryEntry, error) {
	dir, err := d.sessionDir(find.SessionKey)
	if err != nil {
		return nil, err
	}
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []*store.MemoryEntry{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var dates []string
	for _, f := range files {
		date, ok := strings.CutSuffix(f.Name(), dailyFileSuffix)
		if f.IsDir() || !ok || f.Name() == longTermName {
			continue
		}
		day, err := time.Parse(time.DateOnly, date)
		if err != nil {
			continue
		}
		if find.CreatedAfter != nil && !day.AddDate(0, 0, 1).After(*find.CreatedAfter) {
			continue
		}
		if find.CreatedBefore != nil && !day.Before(*find.CreatedBefore) {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)

	list := []*store.MemoryEntry{}
	for _, date := range dates {
		entries, err := readDailyFile(filepath.Join(dir, date+dailyFileSuffix), find.SessionKey, date)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if find.ID != nil && entry.ID != *find.ID {
				continue
			}
			if find.CreatedAfter != nil && entry.CreatedAt.Before(*find.CreatedAfter) {
				continue
			}
			if find.CreatedBefore != nil && !entry.CreatedAt.Before(*find.CreatedBefore) {
				continue
			}
			list = append(list, entry)
		}
	}

	// File order is insertion order.
	if !find.OldestFirst {
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}
	return list, nil
}

func readDailyFile(path, sessionKey, date string) ([]*store.MemoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read daily file %s", path)
	}
	lines := strings.Split(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var (
		entries []*store.MemoryEntry
		current *store.MemoryEntry
		body    []string
		legacy  []string
	)
	// Each entry is written as "\n<marker>\n<content>\n", so a body that is
	// followed by another marker ends with the blank separator line.
	flush := func(beforeMarker bool) {
		if current != nil {
			if n := len(body); beforeMarker && n > 0 && body[n-1] == "" {
				body = body[:n-1]
			}
			current.Content = strings.Join(body, "\n")
			entries = append(entries, current)
		}
		body = nil
	}

	for i, line := range lines {
		if i == 0 && strings.TrimSpace(line) == "# "+date {
			continue
		}
		if m := entryMarker.FindStringSubmatch(line); m != nil {
			// A marker with an unparseable timestamp was hand-edited; keep it as text.
			if createdAt, err := time.Parse(time.RFC3339Nano, m[2]); err == nil {
				flush(true)
				current = newDailyEntry(m[1], sessionKey, createdAt.UTC())
				continue
			}
		}
		if current == nil {
			legacy = append(legacy, line)
			continue
		}
		body = append(body, unescapeLine(line))
	}
	flush(false)

	if text := strings.TrimSpace(strings.Join(legacy, "\n")); text != "" {
		day, _ := time.Parse(time.DateOnly, date)
		entry := newDailyEntry(date, sessionKey, day.UTC())
		entry.Content = text
		entries = append([]*store.MemoryEntry{entry}, entries...)
	}
	return entries, nil
}

func newDailyEntry(id, sessionKey string, createdAt time.Time) *store.MemoryEntry {
	return &store.MemoryEntry{
		ID:              id,
		SessionKey:      sessionKey,
		Category:        store.CategoryDaily,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		EmbeddingStatus: store.EmbeddingPending,
		Version:         1,
	}
}
