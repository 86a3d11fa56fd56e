package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

// DB is the PostgreSQL + pgvector driver. Tables carry the embedding dimension
// in their name, so switching to a model of another size starts a fresh set
// of tables and leaves the old vectors untouched.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
	dims    int
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	if profile.EmbeddingDimensions <= 0 {
		return nil, errors.Errorf("embedding dimensions must be positive: %d", profile.EmbeddingDimensions)
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)

	return &DB{db: db, profile: profile, dims: profile.EmbeddingDimensions}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (*DB) Name() string {
	return profile.DriverPostgres
}

func (*DB) Capabilities() store.Capabilities {
	return store.Capabilities{
		Conversation:   true,
		VectorSearch:   true,
		EmbeddingQueue: true,
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

// entryTable returns e.g. memory_daily_dim1536.
func (d *DB) entryTable(category store.Category) (string, error) {
	if !category.Valid() {
		return "", errors.Errorf("invalid category: %q", category)
	}
	return fmt.Sprintf("memory_%s_dim%d", category, d.dims), nil
}

func (d *DB) jobTable() string {
	return fmt.Sprintf("memory_embedding_job_dim%d", d.dims)
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	list := strings.Split(columns, ",")
	for i, column := range list {
		list[i] = alias + strings.TrimSpace(column)
	}
	return strings.Join(list, ", ")
}
