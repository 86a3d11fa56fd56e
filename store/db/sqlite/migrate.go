package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

func entryTableSchema(table, sessionConstraint string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_key TEXT NOT NULL %s,
	role TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL,
	embedding BLOB,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	version INTEGER NOT NULL DEFAULT 1,
	embedded_version INTEGER NOT NULL DEFAULT 0
)`, table, sessionConstraint)
}

func schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS memory_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
		entryTableSchema("memory_conversation", ""),
		`CREATE INDEX IF NOT EXISTS idx_memory_conversation_session ON memory_conversation (session_key, created_ts)`,
		entryTableSchema("memory_daily", ""),
		`CREATE INDEX IF NOT EXISTS idx_memory_daily_session ON memory_daily (session_key, created_ts)`,
		entryTableSchema("memory_long_term", "UNIQUE"),
		`CREATE TABLE IF NOT EXISTS memory_embedding_job (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	target_id TEXT NOT NULL,
	category TEXT NOT NULL,
	session_key TEXT NOT NULL,
	target_version INTEGER NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	enqueued_ts INTEGER NOT NULL,
	available_ts INTEGER NOT NULL,
	leased_until_ts INTEGER NOT NULL DEFAULT 0,
	claim_token TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	updated_ts INTEGER NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_embedding_job_active
	ON memory_embedding_job (target_id) WHERE status IN ('queued', 'in_flight')`,
		`CREATE INDEX IF NOT EXISTS idx_memory_embedding_job_claim ON memory_embedding_job (status, available_ts)`,
	}
}

// Migrate creates the schema and stamps it with store.SchemaVersion.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema() {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply sqlite schema")
		}
	}

	var stored string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM memory_meta WHERE key = 'schema_version'`).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "failed to read schema version")
	}
	if err := store.CheckSchemaVersion(stored); err != nil {
		return err
	}
	if stored != store.SchemaVersion {
		if _, err := d.db.ExecContext(ctx,
			`INSERT INTO memory_meta (key, value) VALUES ('schema_version', ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`, store.SchemaVersion); err != nil {
			return errors.Wrap(err, "failed to stamp schema version")
		}
		slog.Info("sqlite schema migrated", "from", stored, "to", store.SchemaVersion)
	}
	return nil
}

func tableName(category store.Category) (string, error) {
	switch category {
	case store.CategoryConversation:
		return "memory_conversation", nil
	case store.CategoryDaily:
		return "memory_daily", nil
	case store.CategoryLongTerm:
		return "memory_long_term", nil
	default:
		return "", errors.Errorf("invalid category: %q", category)
	}
}
