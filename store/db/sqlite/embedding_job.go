package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

const jobColumns = `id, target_id, category, session_key, target_version, status, attempts,
	enqueued_ts, available_ts, leased_until_ts, claim_token, last_error, updated_ts`

func scanEmbeddingJob(row scanner) (*store.EmbeddingJob, error) {
	var (
		job                                      store.EmbeddingJob
		category, status                         string
		enqueuedTs, availableTs, leasedTs, updTs int64
	)
	if err := row.Scan(
		&job.ID,
		&job.TargetID,
		&category,
		&job.SessionKey,
		&job.TargetVersion,
		&status,
		&job.Attempts,
		&enqueuedTs,
		&availableTs,
		&leasedTs,
		&job.ClaimToken,
		&job.LastError,
		&updTs,
	); err != nil {
		return nil, err
	}
	job.Category = store.Category(category)
	job.Status = store.JobStatus(status)
	job.EnqueuedAt = fromMillis(enqueuedTs)
	job.AvailableAt = fromMillis(availableTs)
	job.LeasedUntil = fromMillis(leasedTs)
	job.UpdatedAt = fromMillis(updTs)
	return &job, nil
}

// EnqueueEmbeddingJob runs in a transaction so the supersede check, the cancel and the
// insert are observed atomically by concurrent enqueues for the same target.
func (d *DB) EnqueueEmbeddingJob(ctx context.Context, job *store.EmbeddingJob) (*store.EmbeddingJob, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin enqueue transaction")
	}
	defer tx.Rollback()

	existing, err := scanEmbeddingJob(tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM memory_embedding_job
		WHERE target_id = ? AND status IN ('queued', 'in_flight') AND target_version >= ?
		LIMIT 1`, job.TargetID, job.TargetVersion))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "failed to commit enqueue transaction")
		}
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, errors.Wrap(err, "failed to look up active embedding job")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_embedding_job SET status = 'cancelled', claim_token = '', updated_ts = ?
		WHERE target_id = ? AND status IN ('queued', 'in_flight') AND target_version < ?`,
		toMillis(job.EnqueuedAt), job.TargetID, job.TargetVersion); err != nil {
		return nil, errors.Wrap(err, "failed to cancel superseded embedding jobs")
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_embedding_job (id, target_id, category, session_key, target_version, status, attempts,
			enqueued_ts, available_ts, leased_until_ts, claim_token, last_error, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, 0, '', '', ?)`,
		job.ID,
		job.TargetID,
		string(job.Category),
		job.SessionKey,
		job.TargetVersion,
		string(job.Status),
		toMillis(job.EnqueuedAt),
		toMillis(job.AvailableAt),
		toMillis(job.UpdatedAt),
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert embedding job")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit enqueue transaction")
	}
	return job, nil
}

// ClaimEmbeddingJobs leases due jobs and expired in-flight jobs in one UPDATE ... RETURNING.
func (d *DB) ClaimEmbeddingJobs(ctx context.Context, claim *store.ClaimEmbeddingJobs) ([]*store.EmbeddingJob, error) {
	now := toMillis(claim.Now)
	stmt := `UPDATE memory_embedding_job
		SET status = 'in_flight', claim_token = ?, leased_until_ts = ?, updated_ts = ?
		WHERE id IN (
			SELECT id FROM memory_embedding_job
			WHERE (status = 'queued' AND available_ts <= ?)
				OR (status = 'in_flight' AND leased_until_ts <= ?)
			ORDER BY available_ts ASC, seq ASC
			LIMIT ?
		)
		RETURNING ` + jobColumns

	rows, err := d.db.QueryContext(ctx, stmt, claim.Token, toMillis(claim.LeasedUntil()), now, now, now, claim.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim embedding jobs")
	}
	defer rows.Close()

	list := []*store.EmbeddingJob{}
	for rows.Next() {
		job, err := scanEmbeddingJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding job")
		}
		list = append(list, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not follow the subquery order.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].AvailableAt.Before(list[j].AvailableAt)
	})
	return list, nil
}

func (d *DB) CompleteEmbeddingJob(ctx context.Context, id, token string, now time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE memory_embedding_job SET status = 'done', claim_token = '', leased_until_ts = 0, updated_ts = ?
		WHERE id = ? AND claim_token = ? AND status = 'in_flight'`,
		toMillis(now), id, token)
	if err != nil {
		return errors.Wrap(err, "failed to complete embedding job")
	}
	return checkLease(result, id)
}

func (d *DB) FailEmbeddingJob(ctx context.Context, fail *store.FailEmbeddingJob) error {
	status := store.JobQueued
	if fail.Dead {
		status = store.JobDead
	}
	result, err := d.db.ExecContext(ctx,
		`UPDATE memory_embedding_job
		SET status = ?, attempts = attempts + 1, available_ts = ?, leased_until_ts = 0, claim_token = '', last_error = ?, updated_ts = ?
		WHERE id = ? AND claim_token = ? AND status = 'in_flight'`,
		string(status), toMillis(fail.RetryAt), fail.Error, toMillis(fail.Now), fail.ID, fail.Token)
	if err != nil {
		return errors.Wrap(err, "failed to fail embedding job")
	}
	return checkLease(result, fail.ID)
}

func (d *DB) CountEmbeddingJobs(ctx context.Context) (map[store.JobStatus]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM memory_embedding_job GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count embedding jobs")
	}
	defer rows.Close()

	counts := map[store.JobStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[store.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func checkLease(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrapf(store.ErrLeaseLost, "job %s", id)
	}
	return nil
}
