package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/mnemo/store"
)

const frontMatterDelimiter = "---"

// longTermMeta is the YAML front matter of MEMORY.md.
type longTermMeta struct {
	ID        string    `yaml:"id"`
	Version   int64     `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

func (d *DB) longTermPath(sessionKey string) (string, error) {
	dir, err := d.sessionDir(sessionKey)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, longTermName), nil
}

func (d *DB) listLongTerm(find *store.FindMemoryEntry) ([]*store.MemoryEntry, error) {
	entry, err := d.readLongTerm(find.SessionKey)
	if err != nil {
		return nil, err
	}
	if entry == nil || (find.ID != nil && entry.ID != *find.ID) {
		return []*store.MemoryEntry{}, nil
	}
	return []*store.MemoryEntry{entry}, nil
}

// readLongTerm returns nil when the session has no MEMORY.md yet.
func (d *DB) readLongTerm(sessionKey string) (*store.MemoryEntry, error) {
	path, err := d.longTermPath(sessionKey)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	meta, content, err := parseLongTerm(string(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt long-term memory %s", path)
	}
	// A hand-written MEMORY.md has no front matter.
	if meta.Version == 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %s", path)
		}
		meta = longTermMeta{ID: "long_term", Version: 1, CreatedAt: info.ModTime().UTC(), UpdatedAt: info.ModTime().UTC()}
	}

	return &store.MemoryEntry{
		ID:              meta.ID,
		SessionKey:      sessionKey,
		Category:        store.CategoryLongTerm,
		Content:         content,
		CreatedAt:       meta.CreatedAt.UTC(),
		UpdatedAt:       meta.UpdatedAt.UTC(),
		EmbeddingStatus: store.EmbeddingPending,
		Version:         meta.Version,
	}, nil
}

func (d *DB) UpsertLongTermMemory(_ context.Context, upsert *store.UpsertLongTermMemory) (*store.MemoryEntry, error) {
	path, err := d.longTermPath(upsert.SessionKey)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := d.readLongTerm(upsert.SessionKey)
	if err != nil {
		return nil, err
	}
	meta := longTermMeta{
		ID:        shortuuid.New(),
		Version:   1,
		CreatedAt: upsert.UpdatedAt,
		UpdatedAt: upsert.UpdatedAt,
	}
	if current != nil {
		meta.ID = current.ID
		meta.Version = current.Version + 1
		meta.CreatedAt = current.CreatedAt
	}

	data, err := serializeLongTerm(meta, upsert.Content)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, errors.Wrap(err, "failed to replace long-term memory")
	}

	return &store.MemoryEntry{
		ID:              meta.ID,
		SessionKey:      upsert.SessionKey,
		Category:        store.CategoryLongTerm,
		Content:         upsert.Content,
		CreatedAt:       meta.CreatedAt,
		UpdatedAt:       meta.UpdatedAt,
		EmbeddingStatus: store.EmbeddingPending,
		Version:         meta.Version,
	}, nil
}

// parseLongTerm splits optional YAML front matter from the body.
func parseLongTerm(s string) (longTermMeta, string, error) {
	var meta longTermMeta
	if !strings.HasPrefix(s, frontMatterDelimiter+"\n") {
		return meta, s, nil
	}
	rest := s[len(frontMatterDelimiter)+1:]
	idx := strings.Index(rest, "\n"+frontMatterDelimiter)
	if idx == -1 {
		return meta, "", errors.New("unclosed front matter block")
	}
	if err := yaml.Unmarshal([]byte(rest[:idx]), &meta); err != nil {
		return meta, "", errors.Wrap(err, "front matter parse error")
	}
	body := rest[idx+len("\n"+frontMatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	return meta, body, nil
}

func serializeLongTerm(meta longTermMeta, content string) ([]byte, error) {
	header, err := yaml.Marshal(&meta)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize front matter")
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")
	sb.Write(header)
	sb.WriteString(frontMatterDelimiter + "\n\n")
	sb.WriteString(content)
	return []byte(sb.String()), nil
}
