package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/pkg/distlock"
)

// Trigger is a repeatable schedule that enqueues one fan-out job per firing.
// The job ID is derived from the firing time truncated to the interval, so
// overlapping firings from multiple hosts (or a host restart) dedupe against
// the queue's existing-job check.
type Trigger struct {
	Name     string
	Lane     domain.Lane
	JobName  string
	Interval time.Duration
}

// jobID returns the deterministic idempotency key for a firing at t.
func (t Trigger) jobID(at time.Time) string {
	return fmt.Sprintf("%s-%d", t.Name, at.Truncate(t.Interval).Unix())
}

// Scheduler fires repeatable triggers. Each firing takes a short distributed
// lock so only one host enqueues, then inserts a scheduled-fanout job; the
// lane's handler does the actual tenant enumeration. This keeps "how often we
// check" decoupled from "how many tenants exist".
type Scheduler struct {
	queue    *Queue
	redis    *redis.Client // optional; nil falls back to PG advisory locks
	db       *sql.DB
	triggers []Trigger
	now      func() time.Time
}

// NewScheduler creates a scheduler. redisClient may be nil.
func NewScheduler(q *Queue, redisClient *redis.Client, db *sql.DB) *Scheduler {
	return &Scheduler{queue: q, redis: redisClient, db: db, now: time.Now}
}

// AddTrigger registers a repeatable trigger. Must be called before Run.
func (s *Scheduler) AddTrigger(t Trigger) {
	if t.Interval <= 0 {
		t.Interval = time.Hour
	}
	s.triggers = append(s.triggers, t)
}

// Run fires all triggers on their intervals until ctx is cancelled.
// Implements the Supervisor's Runnable.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[Scheduler] starting with %d triggers", len(s.triggers))

	done := make(chan struct{})
	for _, t := range s.triggers {
		go s.runTrigger(ctx, t, done)
	}
	<-ctx.Done()
	log.Println("[Scheduler] stopping")
	for range s.triggers {
		<-done
	}
}

func (s *Scheduler) runTrigger(ctx context.Context, t Trigger, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	// Fire once at startup so a fresh deploy doesn't wait a full interval.
	s.fire(ctx, t)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, t)
		}
	}
}

// fire enqueues one scheduled-fanout job for the trigger. The lock is
// best-effort single-flight: losing it means another host is firing this
// trigger right now, and the deterministic job ID dedupes anyway.
func (s *Scheduler) fire(ctx context.Context, t Trigger) {
	lock := distlock.NewLock(s.redis, s.db, "scheduler:"+t.Name, 30*time.Second)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Scheduler] lock error for %s: %v", t.Name, err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Scheduler] lock release error for %s: %v", t.Name, err)
		}
	}()

	payload := TaskPayload{Kind: KindScheduledFanout}
	if err := s.queue.Enqueue(ctx, t.Lane, t.JobName, t.jobID(s.now()), payload); err != nil {
		log.Printf("[Scheduler] enqueue error for %s: %v", t.Name, err)
		return
	}
	log.Printf("[Scheduler] fired %s on %s", t.Name, t.Lane)
}

// FanoutJobID builds the deterministic per-tenant job ID used when a fan-out
// handler enqueues concrete tenant tasks, e.g. "anomaly-scan-org42-1718013600".
// Bucketing the timestamp to the trigger interval means a re-run of the same
// firing enqueues nothing new while the original jobs are still queued.
func FanoutJobID(prefix, orgID string, at time.Time, interval time.Duration) string {
	if interval <= 0 {
		interval = time.Hour
	}
	return fmt.Sprintf("%s-%s-%d", prefix, orgID, at.Truncate(interval).Unix())
}

// ScoreJobID builds the idempotency key for an account's score-recomputation
// job. The minute bucket coalesces a burst of signals into one queued job,
// while a signal landing after that job went active (its snapshot already
// read) still gets a fresh recomputation in the next bucket instead of being
// swallowed by the live-job dedupe.
func ScoreJobID(orgID, accountID string, at time.Time) string {
	return fmt.Sprintf("score:%s:%s:%d", orgID, accountID, at.Truncate(time.Minute).Unix())
}
