package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

// hnswMaxDimensions is the largest vector pgvector can index with HNSW.
const hnswMaxDimensions = 2000

func (d *DB) schema() []string {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memory_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, category := range store.AllCategories {
		table, _ := d.entryTable(category)
		unique := ""
		if category == store.CategoryLongTerm {
			unique = "UNIQUE"
		}
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL PRIMARY KEY,
				id TEXT NOT NULL UNIQUE,
				session_key TEXT NOT NULL %s,
				role TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				embedding vector(%d),
				embedding_status TEXT NOT NULL DEFAULT 'pending',
				version BIGINT NOT NULL DEFAULT 1,
				embedded_version BIGINT NOT NULL DEFAULT 0
			)`, table, unique, d.dims),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_session_idx ON %s (session_key, created_at)`, table, table),
		)
		if d.dims <= hnswMaxDimensions {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table))
		}
	}

	jobs := d.jobTable()
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			target_id TEXT NOT NULL,
			category TEXT NOT NULL,
			session_key TEXT NOT NULL,
			target_version BIGINT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			enqueued_at TIMESTAMPTZ NOT NULL,
			available_at TIMESTAMPTZ NOT NULL,
			leased_until TIMESTAMPTZ,
			claim_token TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`, jobs),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_active_idx ON %s (target_id) WHERE status IN ('queued', 'in_flight')`, jobs, jobs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_claim_idx ON %s (status, available_at)`, jobs, jobs),
	)
	return stmts
}

// Migrate creates the dimension-specific tables and stamps store.SchemaVersion.
func (d *DB) Migrate(ctx context.Context) error {
	if d.dims > hnswMaxDimensions {
		slog.Warn("embedding dimension exceeds HNSW limit, vector search will scan sequentially",
			"dimensions", d.dims, "limit", hnswMaxDimensions)
	}
	for _, stmt := range d.schema() {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply postgres schema")
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
			`INSERT INTO memory_meta (key, value) VALUES ('schema_version', $1)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, store.SchemaVersion); err != nil {
			return errors.Wrap(err, "failed to stamp schema version")
		}
		slog.Info("postgres schema migrated", "from", stored, "to", store.SchemaVersion, "dimensions", d.dims)
	}
	return nil
}
