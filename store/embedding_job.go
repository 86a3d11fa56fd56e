package store

import (
	"context"
	"time"
)

// JobStatus is the state of an embedding job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobInFlight JobStatus = "in_flight"
	JobDone     JobStatus = "done"
	JobDead     JobStatus = "dead"
	// JobCancelled marks a job superseded by a newer long-term version.
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job will never run again.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobDead || s == JobCancelled
}

// EmbeddingJob records that an entry version needs a vector.
type EmbeddingJob struct {
	ID            string
	TargetID      string
	Category      Category
	SessionKey    string
	TargetVersion int64

	Status   JobStatus
	Attempts int

	EnqueuedAt time.Time
	// AvailableAt is the earliest time the job may be claimed (retry backoff).
	AvailableAt time.Time
	// LeasedUntil is when an in-flight claim becomes reclaimable.
	LeasedUntil time.Time
	ClaimToken  string
	LastError   string
	UpdatedAt   time.Time
}

// ClaimEmbeddingJobs is the claim request of one worker poll cycle.
type ClaimEmbeddingJobs struct {
	Limit        int
	Now          time.Time
	LeaseTimeout time.Duration
	// Token identifies this claim; complete/fail must present it.
	Token string
}

// Validate validates the claim and fills defaults.
func (c *ClaimEmbeddingJobs) Validate() error {
	if c.Token == "" {
		return invalidArgf("claim token is required")
	}
	if c.Limit < 0 {
		return invalidArgf("limit cannot be negative: %d", c.Limit)
	}
	if c.Limit == 0 {
		c.Limit = 10
	}
	if c.Limit > MaxSearchLimit {
		return invalidArgf("limit too large (max %d): %d", MaxSearchLimit, c.Limit)
	}
	if c.LeaseTimeout <= 0 {
		return invalidArgf("lease timeout must be positive: %s", c.LeaseTimeout)
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	c.Now = c.Now.UTC()
	return nil
}

// LeasedUntil returns the lease expiry for this claim.
func (c *ClaimEmbeddingJobs) LeasedUntil() time.Time {
	return c.Now.Add(c.LeaseTimeout)
}

// FailEmbeddingJob reports a failed attempt.
type FailEmbeddingJob struct {
	ID    string
	Token string
	Error string
	// Dead terminates the job; otherwise it is requeued at RetryAt.
	Dead    bool
	RetryAt time.Time
	Now     time.Time
}

// EnqueueEmbeddingJob queues a job for an entry version. Non-terminal jobs for older versions
// of the same target are cancelled; if a job for this or a newer version is already pending,
// that job is returned unchanged.
func (s *Store) EnqueueEmbeddingJob(ctx context.Context, job *EmbeddingJob) (*EmbeddingJob, error) {
	if job.TargetID == "" {
		return nil, invalidArgf("target id is required")
	}
	if !job.Category.Valid() {
		return nil, invalidArgf("invalid category: %q", job.Category)
	}
	if job.TargetVersion <= 0 {
		job.TargetVersion = 1
	}
	now := time.Now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = job.EnqueuedAt
	}
	job.Status = JobQueued
	job.UpdatedAt = job.EnqueuedAt
	return s.driver.EnqueueEmbeddingJob(ctx, job)
}

// ClaimEmbeddingJobs leases up to claim.Limit claimable jobs.
func (s *Store) ClaimEmbeddingJobs(ctx context.Context, claim *ClaimEmbeddingJobs) ([]*EmbeddingJob, error) {
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ClaimEmbeddingJobs(ctx, claim)
}

// CompleteEmbeddingJob marks a claimed job done.
func (s *Store) CompleteEmbeddingJob(ctx context.Context, id, token string) error {
	return s.driver.CompleteEmbeddingJob(ctx, id, token, time.Now().UTC())
}

// FailEmbeddingJob requeues or kills a claimed job.
func (s *Store) FailEmbeddingJob(ctx context.Context, fail *FailEmbeddingJob) error {
	if fail.ID == "" || fail.Token == "" {
		return invalidArgf("job id and claim token are required")
	}
	if fail.Now.IsZero() {
		fail.Now = time.Now()
	}
	fail.Now = fail.Now.UTC()
	if !fail.Dead && fail.RetryAt.IsZero() {
		fail.RetryAt = fail.Now
	}
	fail.RetryAt = fail.RetryAt.UTC()
	return s.driver.FailEmbeddingJob(ctx, fail)
}

// CountEmbeddingJobs returns the number of jobs per status.
func (s *Store) CountEmbeddingJobs(ctx context.Context) (map[JobStatus]int, error) {
	return s.driver.CountEmbeddingJobs(ctx)
}
