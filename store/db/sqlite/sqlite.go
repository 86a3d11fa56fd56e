package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

// ============================================================================
// SQLITE SUPPORT POLICY
// ============================================================================
// SQLite serves single-node deployments and the test suite.
//
// Supported:
// - Every memory category, including conversation capture
// - Vector search (BLOB vectors, cosine similarity computed in Go)
// - The embedding queue (claims are single statements on the one connection)
//
// NOT Supported:
// - Concurrent writers from several processes on the same file
// - ANN indexes: search is a linear scan over the session's embedded rows
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile
	// dims is the expected embedding length; 0 accepts any length.
	dims int
}

// NewDB opens the SQLite database named by profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No foreign key constraints: the schema has none.
	// - Journal mode set to WAL: it's the recommended journal mode for most applications
	// as it prevents locking issues.
	//
	// Notes:
	// - When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	//
	// References:
	// - https://pkg.go.dev/modernc.org/sqlite#Driver.Open
	// - https://www.sqlite.org/pragma.html
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection serializes every write, which is what makes
	// long-term replacement and job claiming race free on SQLite.
	// It also keeps ":memory:" databases alive for the lifetime of the pool.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB, profile: profile, dims: profile.EmbeddingDimensions}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (*DB) Name() string {
	return profile.DriverSQLite
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

// toMillis stores timestamps as unix milliseconds; the zero time maps to 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}
