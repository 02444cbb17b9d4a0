package queue

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

// Without periodic cleanup, completed jobs, delivery attempts, and dedup rows
// accumulate indefinitely and bloat the database. RetentionWorker deletes
// them in batches to avoid long-running transactions that could lock tables.

// retentionBatchSize limits each DELETE to avoid table-level locks.
const retentionBatchSize = 10000

// RetentionPolicy holds the age thresholds for each cleaned table.
type RetentionPolicy struct {
	CompletedJobAge    time.Duration
	DeadLetterAge      time.Duration
	DeliveryAttemptAge time.Duration
	DedupWindowAge     time.Duration
}

// DefaultRetentionPolicy keeps completed jobs a day, dead letters a week,
// delivery attempts a month, and dedup rows two days (twice the 24h cooldown).
var DefaultRetentionPolicy = RetentionPolicy{
	CompletedJobAge:    24 * time.Hour,
	DeadLetterAge:      7 * 24 * time.Hour,
	DeliveryAttemptAge: 30 * 24 * time.Hour,
	DedupWindowAge:     48 * time.Hour,
}

// RetentionWorker removes old operational data. It runs on the retention
// lane, driven by the scheduler's hourly trigger, so exactly one host cleans
// at a time.
type RetentionWorker struct {
	db     *sql.DB
	policy RetentionPolicy
}

// NewRetentionWorker creates a retention worker. Zero policy fields use the
// defaults.
func NewRetentionWorker(db *sql.DB, policy RetentionPolicy) *RetentionWorker {
	if policy.CompletedJobAge <= 0 {
		policy.CompletedJobAge = DefaultRetentionPolicy.CompletedJobAge
	}
	if policy.DeadLetterAge <= 0 {
		policy.DeadLetterAge = DefaultRetentionPolicy.DeadLetterAge
	}
	if policy.DeliveryAttemptAge <= 0 {
		policy.DeliveryAttemptAge = DefaultRetentionPolicy.DeliveryAttemptAge
	}
	if policy.DedupWindowAge <= 0 {
		policy.DedupWindowAge = DefaultRetentionPolicy.DedupWindowAge
	}
	return &RetentionWorker{db: db, policy: policy}
}

// HandleJob runs one cleanup cycle. The job payload carries no data; the
// trigger's deterministic job ID already collapses duplicate firings.
func (rw *RetentionWorker) HandleJob(ctx context.Context, _ *domain.Job) error {
	rw.cleanup(ctx)
	return nil
}

func (rw *RetentionWorker) cleanup(ctx context.Context) {
	start := time.Now()

	rw.batchDelete(ctx, "completed jobs", `
		DELETE FROM pulse_jobs
		WHERE id IN (
			SELECT id FROM pulse_jobs
			WHERE status = 'completed' AND updated_at < NOW() - $2::interval
			LIMIT $1
		)
	`, rw.policy.CompletedJobAge)

	rw.batchDelete(ctx, "dead-letter jobs", `
		DELETE FROM pulse_jobs
		WHERE id IN (
			SELECT id FROM pulse_jobs
			WHERE status = 'dead_letter' AND updated_at < NOW() - $2::interval
			LIMIT $1
		)
	`, rw.policy.DeadLetterAge)

	rw.batchDelete(ctx, "delivery attempts", `
		DELETE FROM pulse_delivery_attempts
		WHERE id IN (
			SELECT id FROM pulse_delivery_attempts
			WHERE created_at < NOW() - $2::interval
			LIMIT $1
		)
	`, rw.policy.DeliveryAttemptAge)

	rw.batchDelete(ctx, "notification dedup rows", `
		DELETE FROM pulse_notification_dedup
		WHERE (organization_id, account_id, kind, window_start) IN (
			SELECT organization_id, account_id, kind, window_start
			FROM pulse_notification_dedup
			WHERE window_start < NOW() - $2::interval
			LIMIT $1
		)
	`, rw.policy.DedupWindowAge)

	log.Printf("[Retention] cleanup cycle completed in %s", time.Since(start).Round(time.Millisecond))
}

// batchDelete repeats the delete until a batch comes back short, so one cycle
// can clear an arbitrarily large backlog without a single huge transaction.
func (rw *RetentionWorker) batchDelete(ctx context.Context, what, query string, age time.Duration) {
	var total int64
	for {
		queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		res, err := rw.db.ExecContext(queryCtx, query, retentionBatchSize, age.String())
		cancel()
		if err != nil {
			log.Printf("[Retention] delete error for %s: %v", what, err)
			return
		}
		n, _ := res.RowsAffected()
		total += n
		if n < retentionBatchSize {
			break
		}
		if ctx.Err() != nil {
			return
		}
	}
	if total > 0 {
		log.Printf("[Retention] removed %d %s", total, what)
	}
}
