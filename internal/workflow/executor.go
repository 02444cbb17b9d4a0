// Package workflow runs the fixed follow-up actions triggered by scoring
// events on the signal-processing lane. There is no generic workflow DSL;
// the event set is closed and each event dispatches to registered runners.
package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// ScoreChangedEvent is the payload handed to runners when an account's score
// changed.
type ScoreChangedEvent struct {
	OrganizationID string
	AccountID      string
	NewScore       int
	OldScore       *int
	OccurredAt     time.Time
}

// Runner executes one follow-up action for a score change. External systems
// (sequence enrollment, CRM sync) plug in here.
type Runner interface {
	Name() string
	RunScoreChanged(ctx context.Context, ev ScoreChangedEvent) error
}

// Executor consumes signal-processing lane jobs and dispatches them to the
// registered runners.
type Executor struct {
	runners []Runner
	now     func() time.Time
}

// NewExecutor creates an executor over the given runners.
func NewExecutor(runners ...Runner) *Executor {
	return &Executor{runners: runners, now: time.Now}
}

// HandleJob dispatches one workflow job. Runner failures are logged and
// skipped so one integration cannot starve the others; the job itself
// succeeds once every runner has been offered the event.
func (e *Executor) HandleJob(ctx context.Context, job *domain.Job) error {
	switch job.Name {
	case "workflow.score_changed":
		p, err := queue.ParseTask(job.Payload)
		if err != nil {
			return fmt.Errorf("workflow payload: %w", err)
		}
		if p.Kind != queue.KindTenantTask || p.AccountID == "" || p.NewScore == nil {
			return fmt.Errorf("workflow.score_changed requires a tenant task with accountId and newScore")
		}
		ev := ScoreChangedEvent{
			OrganizationID: p.OrganizationID,
			AccountID:      p.AccountID,
			NewScore:       *p.NewScore,
			OldScore:       p.OldScore,
			OccurredAt:     e.now().UTC(),
		}
		for _, r := range e.runners {
			if err := r.RunScoreChanged(ctx, ev); err != nil {
				log.Printf("[Workflow] runner %s failed for %s/%s: %v",
					r.Name(), ev.OrganizationID, ev.AccountID, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown workflow job %q", job.Name)
	}
}

// LogRunner is the built-in runner: it records the event in the process log.
// Deployments without external integrations still get an audit trail.
type LogRunner struct{}

// Name implements Runner.
func (LogRunner) Name() string { return "log" }

// RunScoreChanged implements Runner.
func (LogRunner) RunScoreChanged(_ context.Context, ev ScoreChangedEvent) error {
	old := "none"
	if ev.OldScore != nil {
		old = fmt.Sprintf("%d", *ev.OldScore)
	}
	log.Printf("[Workflow] score changed for %s/%s: %s -> %d",
		ev.OrganizationID, ev.AccountID, old, ev.NewScore)
	return nil
}
