package queue

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// If a lane worker crashes mid-job, the row stays 'active' forever and its
// lane slot is effectively leaked. RecoveryWorker periodically requeues such
// rows (under the attempt cap) or dead-letters them (past it).

const (
	// DefaultRecoveryInterval is how often we scan for stuck jobs.
	DefaultRecoveryInterval = 2 * time.Minute

	// DefaultStaleAge is how long a job can be active before we consider
	// its worker crashed.
	DefaultStaleAge = 5 * time.Minute
)

// RecoveryWorker reclaims stuck jobs. Implements the Supervisor's Runnable.
type RecoveryWorker struct {
	db       *sql.DB
	interval time.Duration
	staleAge time.Duration
}

// NewRecoveryWorker creates a recovery worker. Non-positive durations use
// the defaults.
func NewRecoveryWorker(db *sql.DB, interval, staleAge time.Duration) *RecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &RecoveryWorker{db: db, interval: interval, staleAge: staleAge}
}

// Run scans on the configured interval until ctx is cancelled.
func (rw *RecoveryWorker) Run(ctx context.Context) {
	log.Printf("[QueueRecovery] starting (interval=%s, stale_age=%s)", rw.interval, rw.staleAge)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[QueueRecovery] stopping")
			return
		case <-ticker.C:
			rw.recoverStuckJobs(ctx)
		}
	}
}

// recoverStuckJobs runs two passes: requeue stale active jobs that still have
// attempts left, then dead-letter the ones that don't.
func (rw *RecoveryWorker) recoverStuckJobs(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := rw.db.ExecContext(queryCtx, `
		UPDATE pulse_jobs
		SET status = 'queued',
		    worker_id = NULL,
		    claimed_at = NULL,
		    last_error = 'reclaimed from crashed worker',
		    updated_at = NOW()
		WHERE status = 'active'
		  AND claimed_at < NOW() - $1::interval
		  AND attempts_made < max_attempts
	`, rw.staleAge.String())
	if err != nil {
		log.Printf("[QueueRecovery] requeue error: %v", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[QueueRecovery] requeued %d stuck jobs", n)
	}

	res, err = rw.db.ExecContext(queryCtx, `
		UPDATE pulse_jobs
		SET status = 'dead_letter',
		    last_error = 'exceeded max attempts after worker crash',
		    updated_at = NOW()
		WHERE status = 'active'
		  AND claimed_at < NOW() - $1::interval
		  AND attempts_made >= max_attempts
	`, rw.staleAge.String())
	if err != nil {
		log.Printf("[QueueRecovery] dead-letter error: %v", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[QueueRecovery] moved %d jobs to dead_letter", n)
	}
}
