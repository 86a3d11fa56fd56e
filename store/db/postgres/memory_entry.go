package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

const entryColumns = `id, session_key, role, content, created_at, updated_at, embedding, embedding_status, version, embedded_version`

// scanMemoryEntry scans entryColumns plus any extra destinations (e.g. a score).
func scanMemoryEntry(row scanner, category store.Category, extra ...any) (*store.MemoryEntry, error) {
	var (
		entry  store.MemoryEntry
		raw    []byte
		status string
	)
	dest := []any{
		&entry.ID,
		&entry.SessionKey,
		&entry.Role,
		&entry.Content,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&raw,
		&status,
		&entry.Version,
		&entry.EmbeddedVersion,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	entry.Category = category
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	entry.EmbeddingStatus = store.EmbeddingStatus(status)

	// The column is nullable until the worker writes a vector.
	if raw != nil {
		var vector pgvector.Vector
		if err := vector.Scan(raw); err != nil {
			return nil, errors.Wrapf(err, "failed to decode embedding of entry %s", entry.ID)
		}
		entry.Embedding = vector.Slice()
	}
	return &entry, nil
}

func (d *DB) CreateMemoryEntry(ctx context.Context, create *store.MemoryEntry) (*store.MemoryEntry, error) {
	table, err := d.entryTable(create.Category)
	if err != nil {
		return nil, err
	}
	if create.ID == "" {
		create.ID = uuid.New().String()
	}

	stmt := `INSERT INTO ` + table + ` (id, session_key, role, content, created_at, updated_at, embedding_status, version, embedded_version)
		VALUES (` + placeholders(9) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.SessionKey,
		create.Role,
		create.Content,
		create.CreatedAt,
		create.UpdatedAt,
		string(create.EmbeddingStatus),
		create.Version,
		0,
	); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s memory entry", create.Category)
	}
	return create, nil
}

func (d *DB) ListMemoryEntries(ctx context.Context, find *store.FindMemoryEntry) ([]*store.MemoryEntry, error) {
	table, err := d.entryTable(find.Category)
	if err != nil {
		return nil, err
	}

	where, args := []string{"session_key = " + placeholder(1)}, []any{find.SessionKey}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_at >= "+placeholder(len(args)+1)), append(args, *find.CreatedAfter)
	}
	if find.CreatedBefore != nil {
		where, args = append(where, "created_at < "+placeholder(len(args)+1)), append(args, *find.CreatedBefore)
	}

	query := `SELECT ` + entryColumns + ` FROM ` + table + ` WHERE ` + strings.Join(where, " AND ")
	if find.OldestFirst {
		query += " ORDER BY created_at ASC, seq ASC"
	} else {
		query += " ORDER BY created_at DESC, seq DESC"
	}
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s memory entries", find.Category)
	}
	defer rows.Close()

	list := []*store.MemoryEntry{}
	for rows.Next() {
		entry, err := scanMemoryEntry(rows, find.Category)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan memory entry")
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// UpsertLongTermMemory serializes concurrent replacements on the session_key row lock.
func (d *DB) UpsertLongTermMemory(ctx context.Context, upsert *store.UpsertLongTermMemory) (*store.MemoryEntry, error) {
	table, _ := d.entryTable(store.CategoryLongTerm)
	stmt := `INSERT INTO ` + table + ` AS lt (id, session_key, role, content, created_at, updated_at, embedding, embedding_status, version, embedded_version)
		VALUES ($1, $2, '', $3, $4, $4, NULL, 'pending', 1, 0)
		ON CONFLICT (session_key) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at,
			embedding = NULL,
			embedding_status = 'pending',
			version = lt.version + 1,
			embedded_version = 0
		RETURNING ` + entryColumns

	row := d.db.QueryRowContext(ctx, stmt, uuid.New().String(), upsert.SessionKey, upsert.Content, upsert.UpdatedAt)
	entry, err := scanMemoryEntry(row, store.CategoryLongTerm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert long-term memory")
	}
	return entry, nil
}

func (d *DB) WriteEmbedding(ctx context.Context, write *store.WriteEmbedding) (bool, error) {
	table, err := d.entryTable(write.Category)
	if err != nil {
		return false, err
	}
	if len(write.Embedding) != d.dims {
		return false, errors.Errorf("invalid vector dimension: got %d, want %d", len(write.Embedding), d.dims)
	}

	stmt := `UPDATE ` + table + ` SET embedding = $1, embedding_status = 'embedded', embedded_version = $2
		WHERE id = $3 AND version = $2 AND NOT (embedding_status = 'embedded' AND embedded_version >= $2)`
	result, err := d.db.ExecContext(ctx, stmt, pgvector.NewVector(write.Embedding), write.Version, write.ID)
	if err != nil {
		return false, errors.Wrap(err, "failed to write embedding")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to write embedding")
	}
	return n > 0, nil
}

func (d *DB) MarkEmbeddingFailed(ctx context.Context, category store.Category, id string, version int64) error {
	table, err := d.entryTable(category)
	if err != nil {
		return err
	}
	stmt := `UPDATE ` + table + ` SET embedding_status = 'failed'
		WHERE id = $1 AND version = $2 AND embedding_status = 'pending'`
	if _, err := d.db.ExecContext(ctx, stmt, id, version); err != nil {
		return errors.Wrap(err, "failed to mark embedding failed")
	}
	return nil
}

// VectorSearch performs vector similarity search using pgvector.
// The <=> operator computes cosine distance, so the score is 1 - distance.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryEntryWithScore, error) {
	vector := pgvector.NewVector(opts.Vector)
	results := []*store.MemoryEntryWithScore{}

	for _, category := range opts.Categories {
		table, err := d.entryTable(category)
		if err != nil {
			return nil, err
		}
		query := `SELECT ` + entryColumns + `, 1 - (embedding <=> $2) AS score
			FROM ` + table + `
			WHERE session_key = $1
				AND embedding_status = 'embedded'
				AND embedded_version = version
				AND 1 - (embedding <=> $2) >= $3
			ORDER BY embedding <=> $2
			LIMIT $4`

		rows, err := d.db.QueryContext(ctx, query, opts.SessionKey, vector, opts.MinScore, opts.Limit)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to search %s memory", category)
		}
		for rows.Next() {
			var score float64
			entry, err := scanMemoryEntry(rows, category, &score)
			if err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "failed to scan memory entry")
			}
			results = append(results, &store.MemoryEntryWithScore{Entry: entry, Score: float32(score)})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	store.SortByScore(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}
