// Package file is the flat Markdown driver. It keeps daily notes and the
// long-term document on disk and serves neither conversation capture, vector
// search nor the embedding queue.
package file

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

const (
	memoryDirName   = "memory"
	longTermName    = "MEMORY.md"
	schemaFileName  = ".schema_version"
	dailyFileSuffix = ".md"
)

var unsafeSessionChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type DB struct {
	root string
	// mu serializes appends and the long-term tmp-file + rename.
	mu sync.Mutex
}

// NewDB roots the driver at <profile.Data>/memory.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.Data == "" {
		return nil, errors.New("data directory required")
	}
	return &DB{root: filepath.Join(profile.Data, memoryDirName)}, nil
}

func (*DB) Name() string {
	return profile.DriverFile
}

func (*DB) Capabilities() store.Capabilities {
	return store.Capabilities{}
}

func (*DB) Close() error {
	return nil
}

func (d *DB) Migrate(_ context.Context) error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return errors.Wrapf(err, "failed to create memory directory %s", d.root)
	}

	path := filepath.Join(d.root, schemaFileName)
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to read schema version")
	}
	stored := strings.TrimSpace(string(raw))
	if err := store.CheckSchemaVersion(stored); err != nil {
		return err
	}
	if stored != store.SchemaVersion {
		if err := os.WriteFile(path, []byte(store.SchemaVersion+"\n"), 0o600); err != nil {
			return errors.Wrap(err, "failed to stamp schema version")
		}
		slog.Info("file store initialized", "root", d.root, "schema", store.SchemaVersion)
	}
	return nil
}

// sessionDir maps a session key to a directory name. Keys that need escaping get a
// hash suffix so that "a/b" and "a_b" do not share a directory.
func (d *DB) sessionDir(sessionKey string) (string, error) {
	if sessionKey == "" {
		return "", errors.New("session key is required")
	}
	name := unsafeSessionChars.ReplaceAllString(sessionKey, "_")
	if name != sessionKey || name == "." || name == ".." {
		h := fnv.New32a()
		_, _ = h.Write([]byte(sessionKey))
		name = fmt.Sprintf("%s-%08x", name, h.Sum32())
	}

	root, err := filepath.Abs(d.root)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve memory directory")
	}
	dir := filepath.Join(root, name)
	if !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", errors.Errorf("path traversal detected for session %q", sessionKey)
	}
	return dir, nil
}

func (d *DB) CreateMemoryEntry(_ context.Context, create *store.MemoryEntry) (*store.MemoryEntry, error) {
	switch create.Category {
	case store.CategoryDaily:
		return d.appendDaily(create)
	case store.CategoryConversation:
		return nil, store.Unsupported(d.Name(), "conversation capture")
	default:
		return nil, errors.Errorf("invalid category for create: %q", create.Category)
	}
}

func (d *DB) ListMemoryEntries(_ context.Context, find *store.FindMemoryEntry) ([]*store.MemoryEntry, error) {
	var (
		list []*store.MemoryEntry
		err  error
	)
	switch find.Category {
	case store.CategoryDaily:
		list, err = d.listDaily(find)
	case store.CategoryLongTerm:
		list, err = d.listLongTerm(find)
	case store.CategoryConversation:
		return nil, store.Unsupported(d.Name(), "conversation capture")
	default:
		return nil, errors.Errorf("invalid category: %q", find.Category)
	}
	if err != nil {
		return nil, err
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *DB) WriteEmbedding(context.Context, *store.WriteEmbedding) (bool, error) {
	return false, store.Unsupported(d.Name(), "embedding storage")
}

func (d *DB) MarkEmbeddingFailed(context.Context, store.Category, string, int64) error {
	return store.Unsupported(d.Name(), "embedding storage")
}

func (d *DB) VectorSearch(context.Context, *store.VectorSearchOptions) ([]*store.MemoryEntryWithScore, error) {
	return nil, store.Unsupported(d.Name(), "vector search")
}

func (d *DB) EnqueueEmbeddingJob(context.Context, *store.EmbeddingJob) (*store.EmbeddingJob, error) {
	return nil, store.Unsupported(d.Name(), "embedding queue")
}

func (d *DB) ClaimEmbeddingJobs(context.Context, *store.ClaimEmbeddingJobs) ([]*store.EmbeddingJob, error) {
	return nil, store.Unsupported(d.Name(), "embedding queue")
}

func (d *DB) CompleteEmbeddingJob(context.Context, string, string, time.Time) error {
	return store.Unsupported(d.Name(), "embedding queue")
}

func (d *DB) FailEmbeddingJob(context.Context, *store.FailEmbeddingJob) error {
	return store.Unsupported(d.Name(), "embedding queue")
}

func (d *DB) CountEmbeddingJobs(context.Context) (map[store.JobStatus]int, error) {
	return nil, store.Unsupported(d.Name(), "embedding queue")
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to rename %s", path)
	}
	return nil
}
