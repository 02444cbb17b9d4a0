// Package queue implements the durable, at-least-once job queue that
// sequences Pulse's asynchronous work: named lanes backed by a PostgreSQL
// table claimed with FOR UPDATE SKIP LOCKED, per-lane worker concurrency,
// retry with exponential backoff, idempotent enqueue by job ID, stuck-job
// recovery, and cron-style repeatable triggers.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luminlabs/pulse/internal/domain"
)

// DefaultMaxAttempts is the retry cap for lanes without an override.
const DefaultMaxAttempts = 3

// Queue is the durable job queue over PostgreSQL. All methods are safe for
// concurrent use; the table is the shared state, so workers may run on
// separate hosts.
type Queue struct {
	db *sql.DB
}

// New creates a queue over the given database.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a job to a lane. jobID, when non-empty, makes the enqueue
// idempotent: if a job with the same (lane, jobID) is already queued or
// active, the call is a no-op. The payload is JSON-encoded.
func (q *Queue) Enqueue(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}) error {
	return q.enqueue(ctx, lane, name, jobID, payload, 0, time.Now())
}

// EnqueueAt is Enqueue with an explicit earliest run time.
func (q *Queue) EnqueueAt(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}, runAt time.Time) error {
	return q.enqueue(ctx, lane, name, jobID, payload, 0, runAt)
}

// EnqueueWithAttempts is Enqueue with an explicit retry cap for the job.
func (q *Queue) EnqueueWithAttempts(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}, maxAttempts int) error {
	return q.enqueue(ctx, lane, name, jobID, payload, maxAttempts, time.Now())
}

func (q *Queue) enqueue(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}, maxAttempts int, runAt time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", name, err)
	}

	var jid sql.NullString
	if jobID != "" {
		jid = sql.NullString{String: jobID, Valid: true}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO pulse_jobs (id, lane, name, job_id, payload, status, max_attempts, run_at)
		VALUES ($1, $2, $3, $4, $5, 'queued', $6, $7)
		ON CONFLICT (lane, job_id) WHERE status IN ('queued', 'active') DO NOTHING
	`, uuid.New(), string(lane), name, jid, data, maxAttempts, runAt)
	if err != nil {
		return fmt.Errorf("enqueue %s on %s: %w", name, lane, err)
	}
	return nil
}

// Claim atomically claims the oldest runnable job on the lane for the given
// worker. Returns (nil, nil) when the lane is empty. Claiming increments
// attempts_made, so a claimed job counts as one delivery attempt.
func (q *Queue) Claim(ctx context.Context, lane domain.Lane, workerID string) (*domain.Job, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE pulse_jobs
		SET status = 'active',
		    claimed_at = NOW(),
		    worker_id = $2,
		    attempts_made = attempts_made + 1
		WHERE id = (
			SELECT id FROM pulse_jobs
			WHERE lane = $1 AND status = 'queued' AND run_at <= NOW()
			ORDER BY run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, COALESCE(job_id, ''), payload, attempts_made, max_attempts, created_at
	`, string(lane), workerID)

	job := &domain.Job{Lane: lane, Status: domain.JobActive}
	var jobID string
	err := row.Scan(&job.ID, &job.Name, &jobID, &job.Payload, &job.AttemptsMade, &job.MaxAttempts, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim on %s: %w", lane, err)
	}
	if jobID != "" {
		job.JobID = &jobID
	}
	return job, nil
}

// Complete marks an active job as successfully finished.
func (q *Queue) Complete(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pulse_jobs SET status = 'completed', updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records a failed attempt. Under the attempt cap the job is requeued
// with exponential backoff (baseDelay * 2^(attempts-1)); past the cap it is
// moved to dead_letter with the final error kept for operator visibility.
// Returns true when the job was dead-lettered (the failure is terminal).
func (q *Queue) Fail(ctx context.Context, job *domain.Job, jobErr error, baseDelay time.Duration) (bool, error) {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	shift := job.AttemptsMade - 1
	if shift < 0 {
		shift = 0
	}
	return q.FailAfter(ctx, job, jobErr, baseDelay<<shift)
}

// FailAfter is Fail with an explicit requeue delay, used when the failing
// call supplied its own retry hint (a Retry-After header on a 429).
func (q *Queue) FailAfter(ctx context.Context, job *domain.Job, jobErr error, delay time.Duration) (bool, error) {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}

	if job.AttemptsMade >= job.MaxAttempts {
		_, err := q.db.ExecContext(ctx, `
			UPDATE pulse_jobs
			SET status = 'dead_letter', last_error = $2, updated_at = NOW()
			WHERE id = $1
		`, job.ID, msg)
		if err != nil {
			return false, fmt.Errorf("dead-letter job %s: %w", job.ID, err)
		}
		return true, nil
	}

	if delay < 0 {
		delay = 0
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE pulse_jobs
		SET status = 'queued',
		    worker_id = NULL,
		    claimed_at = NULL,
		    last_error = $2,
		    run_at = NOW() + $3::interval,
		    updated_at = NOW()
		WHERE id = $1
	`, job.ID, msg, delay.String())
	if err != nil {
		return false, fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	return false, nil
}

// Yield returns a claimed job to the queue and undoes the claim's attempt
// increment. Used when the handler could not run the job at all, as opposed
// to running it and failing.
func (q *Queue) Yield(ctx context.Context, job *domain.Job, reason error, delay time.Duration) error {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	if delay < 0 {
		delay = 0
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE pulse_jobs
		SET status = 'queued',
		    worker_id = NULL,
		    claimed_at = NULL,
		    attempts_made = GREATEST(attempts_made - 1, 0),
		    last_error = $2,
		    run_at = NOW() + $3::interval,
		    updated_at = NOW()
		WHERE id = $1
	`, job.ID, msg, delay.String())
	if err != nil {
		return fmt.Errorf("yield job %s: %w", job.ID, err)
	}
	return nil
}

// Depth returns the number of queued jobs on a lane.
func (q *Queue) Depth(ctx context.Context, lane domain.Lane) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pulse_jobs WHERE lane = $1 AND status = 'queued'
	`, string(lane)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth for %s: %w", lane, err)
	}
	return n, nil
}

// DeadLetters lists terminally failed jobs on a lane, newest first.
func (q *Queue) DeadLetters(ctx context.Context, lane domain.Lane, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(job_id, ''), payload, attempts_made, max_attempts,
		       COALESCE(last_error, ''), created_at
		FROM pulse_jobs
		WHERE lane = $1 AND status = 'dead_letter'
		ORDER BY updated_at DESC
		LIMIT $2
	`, string(lane), limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters for %s: %w", lane, err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j := domain.Job{Lane: lane, Status: domain.JobDeadLetter}
		var jobID string
		if err := rows.Scan(&j.ID, &j.Name, &jobID, &j.Payload, &j.AttemptsMade, &j.MaxAttempts, &j.LastError, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if jobID != "" {
			j.JobID = &jobID
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
