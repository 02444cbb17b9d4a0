package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

// Handler processes one claimed job. Returning an error triggers the lane's
// retry policy; returning nil completes the job.
type Handler func(ctx context.Context, job *domain.Job) error

// LaneConfig binds a lane to its handler and tuning.
type LaneConfig struct {
	Lane        domain.Lane
	Handler     Handler
	Concurrency int           // worker goroutines for this lane (default 1)
	BaseDelay   time.Duration // retry backoff base (default 1s)
}

// Runnable is a long-running background component owned by the Supervisor
// (scheduler, recovery worker, retention worker). Run must block until ctx
// is cancelled.
type Runnable interface {
	Run(ctx context.Context)
}

// Supervisor owns the worker pools and background components for one worker
// process. It replaces ad-hoc global registries: the process entry point
// constructs it, registers lanes, and holds the Start/Stop handle.
type Supervisor struct {
	queue        *Queue
	pollInterval time.Duration
	workerID     string

	lanes     []LaneConfig
	runnables []Runnable

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor over the queue. pollInterval controls
// how often idle lane workers check for new jobs (default 1s).
func NewSupervisor(q *Queue, pollInterval time.Duration) *Supervisor {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	hostname, _ := os.Hostname()
	return &Supervisor{
		queue:        q,
		pollInterval: pollInterval,
		workerID:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

// RegisterLane adds a lane worker pool. Must be called before Start.
func (s *Supervisor) RegisterLane(cfg LaneConfig) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	s.lanes = append(s.lanes, cfg)
}

// RegisterRunnable adds a background component started with the supervisor.
func (s *Supervisor) RegisterRunnable(r Runnable) {
	s.runnables = append(s.runnables, r)
}

// Start launches all lane workers and background components.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, lane := range s.lanes {
		log.Printf("[Supervisor] starting lane %s with concurrency %d", lane.Lane, lane.Concurrency)
		for i := 0; i < lane.Concurrency; i++ {
			s.wg.Add(1)
			go s.laneWorker(ctx, lane, i)
		}
	}
	for _, r := range s.runnables {
		s.wg.Add(1)
		go func(r Runnable) {
			defer s.wg.Done()
			r.Run(ctx)
		}(r)
	}
	return nil
}

// Stop cancels all workers and waits for in-flight jobs to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	log.Println("[Supervisor] stopping")
	cancel()
	s.wg.Wait()
	log.Println("[Supervisor] stopped")
}

// laneWorker is one polling worker goroutine for a lane.
func (s *Supervisor) laneWorker(ctx context.Context, cfg LaneConfig, n int) {
	defer s.wg.Done()
	workerID := fmt.Sprintf("%s-%s-%d", s.workerID, cfg.Lane, n)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain the lane before going back to sleep.
		for {
			if ctx.Err() != nil {
				return
			}
			job, err := s.queue.Claim(ctx, cfg.Lane, workerID)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[Supervisor] claim error on %s: %v", cfg.Lane, err)
				}
				break
			}
			if job == nil {
				break
			}
			s.process(ctx, cfg, job)
		}
	}
}

func (s *Supervisor) process(ctx context.Context, cfg LaneConfig, job *domain.Job) {
	err := cfg.Handler(ctx, job)
	if err == nil {
		if cerr := s.queue.Complete(ctx, job.ID); cerr != nil {
			log.Printf("[Supervisor] complete error for %s job %s: %v", cfg.Lane, job.ID, cerr)
		}
		return
	}

	var ye *YieldError
	if errors.As(err, &ye) {
		if yerr := s.queue.Yield(ctx, job, err, ye.After); yerr != nil {
			log.Printf("[Supervisor] yield error for %s job %s: %v", cfg.Lane, job.ID, yerr)
		} else {
			log.Printf("[Supervisor] %s job %s (%s) yielded for %s: %v",
				cfg.Lane, job.ID, job.Name, ye.After, err)
		}
		return
	}

	var terminal bool
	var ferr error
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		shift := job.AttemptsMade - 1
		if shift < 0 {
			shift = 0
		}
		delay := cfg.BaseDelay << shift
		if ra.After > delay {
			delay = ra.After
		}
		terminal, ferr = s.queue.FailAfter(ctx, job, err, delay)
	} else {
		terminal, ferr = s.queue.Fail(ctx, job, err, cfg.BaseDelay)
	}
	if ferr != nil {
		log.Printf("[Supervisor] fail-record error for %s job %s: %v", cfg.Lane, job.ID, ferr)
		return
	}
	if terminal {
		log.Printf("[Supervisor] %s job %s (%s) dead-lettered after %d attempts: %v",
			cfg.Lane, job.ID, job.Name, job.AttemptsMade, err)
	} else {
		log.Printf("[Supervisor] %s job %s (%s) failed attempt %d/%d, requeued: %v",
			cfg.Lane, job.ID, job.Name, job.AttemptsMade, job.MaxAttempts, err)
	}
}
