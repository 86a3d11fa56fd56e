package sqlite

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

const entryColumns = `id, session_key, role, content, created_ts, updated_ts, embedding, embedding_status, version, embedded_version`

func scanMemoryEntry(row scanner, category store.Category) (*store.MemoryEntry, error) {
	var (
		entry                store.MemoryEntry
		createdTs, updatedTs int64
		blob                 []byte
		status               string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.SessionKey,
		&entry.Role,
		&entry.Content,
		&createdTs,
		&updatedTs,
		&blob,
		&status,
		&entry.Version,
		&entry.EmbeddedVersion,
	); err != nil {
		return nil, err
	}
	entry.Category = category
	entry.CreatedAt = fromMillis(createdTs)
	entry.UpdatedAt = fromMillis(updatedTs)
	entry.EmbeddingStatus = store.EmbeddingStatus(status)
	if blob != nil {
		vec, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt embedding for entry %s", entry.ID)
		}
		entry.Embedding = vec
	}
	return &entry, nil
}

func (d *DB) CreateMemoryEntry(ctx context.Context, create *store.MemoryEntry) (*store.MemoryEntry, error) {
	table, err := tableName(create.Category)
	if err != nil {
		return nil, err
	}
	if create.ID == "" {
		create.ID = uuid.New().String()
	}

	stmt := `INSERT INTO ` + table + ` (id, session_key, role, content, created_ts, updated_ts, embedding_status, version, embedded_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.SessionKey,
		create.Role,
		create.Content,
		toMillis(create.CreatedAt),
		toMillis(create.UpdatedAt),
		string(create.EmbeddingStatus),
		create.Version,
	); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s memory entry", create.Category)
	}
	return create, nil
}

func (d *DB) ListMemoryEntries(ctx context.Context, find *store.FindMemoryEntry) ([]*store.MemoryEntry, error) {
	table, err := tableName(find.Category)
	if err != nil {
		return nil, err
	}

	where, args := []string{"session_key = ?"}, []any{find.SessionKey}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_ts >= ?"), append(args, toMillis(*find.CreatedAfter))
	}
	if find.CreatedBefore != nil {
		where, args = append(where, "created_ts < ?"), append(args, toMillis(*find.CreatedBefore))
	}

	query := `SELECT ` + entryColumns + ` FROM ` + table + ` WHERE ` + strings.Join(where, " AND ")
	if find.OldestFirst {
		query += " ORDER BY created_ts ASC, seq ASC"
	} else {
		query += " ORDER BY created_ts DESC, seq DESC"
	}
	if find.Limit > 0 {
		query += " LIMIT ?"
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

// UpsertLongTermMemory relies on the single connection to serialize concurrent replacements.
func (d *DB) UpsertLongTermMemory(ctx context.Context, upsert *store.UpsertLongTermMemory) (*store.MemoryEntry, error) {
	stmt := `INSERT INTO memory_long_term (id, session_key, role, content, created_ts, updated_ts, embedding, embedding_status, version, embedded_version)
		VALUES (?, ?, '', ?, ?, ?, NULL, 'pending', 1, 0)
		ON CONFLICT (session_key) DO UPDATE SET
			content = excluded.content,
			updated_ts = excluded.updated_ts,
			embedding = NULL,
			embedding_status = 'pending',
			version = memory_long_term.version + 1,
			embedded_version = 0
		RETURNING ` + entryColumns

	now := toMillis(upsert.UpdatedAt)
	row := d.db.QueryRowContext(ctx, stmt, uuid.New().String(), upsert.SessionKey, upsert.Content, now, now)
	entry, err := scanMemoryEntry(row, store.CategoryLongTerm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert long-term memory")
	}
	return entry, nil
}

func (d *DB) WriteEmbedding(ctx context.Context, write *store.WriteEmbedding) (bool, error) {
	table, err := tableName(write.Category)
	if err != nil {
		return false, err
	}
	blob, err := float32ArrayToBLOB(write.Embedding, d.dims)
	if err != nil {
		return false, errors.Wrap(err, "failed to convert embedding vector to BLOB")
	}

	stmt := `UPDATE ` + table + ` SET embedding = ?, embedding_status = 'embedded', embedded_version = ?
		WHERE id = ? AND version = ? AND NOT (embedding_status = 'embedded' AND embedded_version >= ?)`
	result, err := d.db.ExecContext(ctx, stmt, blob, write.Version, write.ID, write.Version, write.Version)
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
	table, err := tableName(category)
	if err != nil {
		return err
	}
	stmt := `UPDATE ` + table + ` SET embedding_status = 'failed'
		WHERE id = ? AND version = ? AND embedding_status = 'pending'`
	if _, err := d.db.ExecContext(ctx, stmt, id, version); err != nil {
		return errors.Wrap(err, "failed to mark embedding failed")
	}
	return nil
}

// VectorSearch scans the session's embedded rows of each category and ranks them in Go.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryEntryWithScore, error) {
	results := []*store.MemoryEntryWithScore{}
	for _, category := range opts.Categories {
		table, err := tableName(category)
		if err != nil {
			return nil, err
		}
		scored, err := d.scanCandidates(ctx, table, category, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, scored...)
	}

	store.SortByScore(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (d *DB) scanCandidates(ctx context.Context, table string, category store.Category, opts *store.VectorSearchOptions) ([]*store.MemoryEntryWithScore, error) {
	query := `SELECT ` + entryColumns + ` FROM ` + table + `
		WHERE session_key = ? AND embedding_status = 'embedded' AND embedded_version = version AND embedding IS NOT NULL`
	rows, err := d.db.QueryContext(ctx, query, opts.SessionKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search %s memory", category)
	}
	defer rows.Close()

	var scored []*store.MemoryEntryWithScore
	for rows.Next() {
		entry, err := scanMemoryEntry(rows, category)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan memory entry")
		}
		score := cosineSimilarity(opts.Vector, entry.Embedding)
		if score < opts.MinScore {
			continue
		}
		scored = append(scored, &store.MemoryEntryWithScore{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scored, nil
}
