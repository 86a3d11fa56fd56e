package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

const jobColumns = `id, target_id, category, session_key, target_version, status, attempts,
	enqueued_at, available_at, leased_until, claim_token, last_error, updated_at`

var activeStatuses = pq.Array([]string{string(store.JobQueued), string(store.JobInFlight)})

func scanEmbeddingJob(row scanner) (*store.EmbeddingJob, error) {
	var (
		job              store.EmbeddingJob
		category, status string
		leasedUntil      sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&job.TargetID,
		&category,
		&job.SessionKey,
		&job.TargetVersion,
		&status,
		&job.Attempts,
		&job.EnqueuedAt,
		&job.AvailableAt,
		&leasedUntil,
		&job.ClaimToken,
		&job.LastError,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Category = store.Category(category)
	job.Status = store.JobStatus(status)
	job.EnqueuedAt = job.EnqueuedAt.UTC()
	job.AvailableAt = job.AvailableAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if leasedUntil.Valid {
		job.LeasedUntil = leasedUntil.Time.UTC()
	}
	return &job, nil
}

// EnqueueEmbeddingJob takes a transaction-scoped advisory lock on the target so
// concurrent enqueues for the same entry serialize before the partial unique index is hit.
func (d *DB) EnqueueEmbeddingJob(ctx context.Context, job *store.EmbeddingJob) (*store.EmbeddingJob, error) {
	jobs := d.jobTable()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin enqueue transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, job.TargetID); err != nil {
		return nil, errors.Wrap(err, "failed to lock embedding target")
	}

	existing, err := scanEmbeddingJob(tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM `+jobs+`
		WHERE target_id = $1 AND status = ANY($2) AND target_version >= $3
		LIMIT 1`, job.TargetID, activeStatuses, job.TargetVersion))
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
		`UPDATE `+jobs+` SET status = 'cancelled', claim_token = '', updated_at = $1
		WHERE target_id = $2 AND status = ANY($3) AND target_version < $4`,
		job.EnqueuedAt, job.TargetID, activeStatuses, job.TargetVersion); err != nil {
		return nil, errors.Wrap(err, "failed to cancel superseded embedding jobs")
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+jobs+` (id, target_id, category, session_key, target_version, status, attempts, enqueued_at, available_at, updated_at)
		VALUES (`+placeholders(10)+`)`,
		job.ID,
		job.TargetID,
		string(job.Category),
		job.SessionKey,
		job.TargetVersion,
		string(job.Status),
		0,
		job.EnqueuedAt,
		job.AvailableAt,
		job.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert embedding job")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit enqueue transaction")
	}
	return job, nil
}

// ClaimEmbeddingJobs leases due and lease-expired jobs. SKIP LOCKED lets several
// workers poll the same table without claiming a row twice.
func (d *DB) ClaimEmbeddingJobs(ctx context.Context, claim *store.ClaimEmbeddingJobs) ([]*store.EmbeddingJob, error) {
	jobs := d.jobTable()
	stmt := `WITH due AS (
			SELECT id FROM ` + jobs + `
			WHERE (status = 'queued' AND available_at <= $1)
				OR (status = 'in_flight' AND leased_until <= $1)
			ORDER BY available_at ASC, seq ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ` + jobs + ` j
		SET status = 'in_flight', claim_token = $3, leased_until = $4, updated_at = $1
		FROM due
		WHERE j.id = due.id
		RETURNING ` + prefixed("j.", jobColumns)

	rows, err := d.db.QueryContext(ctx, stmt, claim.Now, claim.Limit, claim.Token, claim.LeasedUntil())
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
	return list, nil
}

func (d *DB) CompleteEmbeddingJob(ctx context.Context, id, token string, now time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE `+d.jobTable()+` SET status = 'done', claim_token = '', leased_until = NULL, updated_at = $1
		WHERE id = $2 AND claim_token = $3 AND status = 'in_flight'`,
		now, id, token)
	if err != nil {
		return errors.Wrap(err, "failed to complete embedding job")
	}
	return checkLease(result, id)
}

func (d *DB) FailEmbeddingJob(ctx context.Context, fail *store.FailEmbeddingJob) error {
	status := store.JobQueued
	availableAt := fail.RetryAt
	if fail.Dead {
		status = store.JobDead
		availableAt = fail.Now
	}
	result, err := d.db.ExecContext(ctx,
		`UPDATE `+d.jobTable()+`
		SET status = $1, attempts = attempts + 1, available_at = $2, leased_until = NULL, claim_token = '', last_error = $3, updated_at = $4
		WHERE id = $5 AND claim_token = $6 AND status = 'in_flight'`,
		string(status), availableAt, fail.Error, fail.Now, fail.ID, fail.Token)
	if err != nil {
		return errors.Wrap(err, "failed to fail embedding job")
	}
	return checkLease(result, fail.ID)
}

func (d *DB) CountEmbeddingJobs(ctx context.Context) (map[store.JobStatus]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM `+d.jobTable()+` GROUP BY status`)
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
