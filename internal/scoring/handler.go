package scoring

import (
	"context"
	"fmt"
	"log"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// Lock is one distributed lock instance.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds a lock for a key. Nil disables locking.
type LockFactory func(key string) Lock

// JobHandler runs score-computation lane jobs. Recomputation is serialized
// per account with a best-effort distributed lock: a contended lock sends the
// job back through the queue's retry path instead of racing the upsert.
type JobHandler struct {
	engine *Engine
	locks  LockFactory
}

// NewJobHandler creates the score-computation lane handler.
func NewJobHandler(engine *Engine, locks LockFactory) *JobHandler {
	return &JobHandler{engine: engine, locks: locks}
}

// HandleJob recomputes the score for the job's account.
func (h *JobHandler) HandleJob(ctx context.Context, job *domain.Job) error {
	p, err := queue.ParseTask(job.Payload)
	if err != nil {
		return fmt.Errorf("score job payload: %w", err)
	}
	if p.Kind != queue.KindTenantTask || p.AccountID == "" {
		return fmt.Errorf("score job requires a tenant task with accountId")
	}

	if h.locks != nil {
		lock := h.locks(fmt.Sprintf("score:%s:%s", p.OrganizationID, p.AccountID))
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			// Lock backend trouble must not stall scoring. The upsert is
			// last-write-wins either way.
			log.Printf("[ScoringHandler] lock error for %s/%s, proceeding unlocked: %v",
				p.OrganizationID, p.AccountID, err)
		} else if !acquired {
			return fmt.Errorf("account %s/%s is being scored elsewhere", p.OrganizationID, p.AccountID)
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					log.Printf("[ScoringHandler] lock release error: %v", err)
				}
			}()
		}
	}

	_, err = h.engine.ComputeScore(ctx, p.OrganizationID, p.AccountID)
	return err
}
