package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// SignalSource reads an account's signal history.
type SignalSource interface {
	// SignalsInWindow returns all signals for the account at or after since.
	SignalsInWindow(ctx context.Context, orgID, accountID string, since time.Time) ([]domain.Signal, error)
	// LastSignalAt returns the timestamp of the most recent signal ever
	// recorded for the account, or nil when the account has none.
	LastSignalAt(ctx context.Context, orgID, accountID string) (*time.Time, error)
}

// FactsSource resolves firmographic and contact facts for an account.
type FactsSource interface {
	AccountFacts(ctx context.Context, orgID, accountID string) (domain.AccountFacts, error)
}

// ScoreStore persists computed account scores.
type ScoreStore interface {
	// Get returns the stored score for the account, or (nil, nil) when the
	// account has never been scored.
	Get(ctx context.Context, orgID, accountID string) (*domain.AccountScore, error)
	// Upsert writes the score, creating or replacing the account's row.
	Upsert(ctx context.Context, score *domain.AccountScore) error
}

// EventPublisher fans an event out to the organization's webhook
// subscriptions (by enqueuing delivery jobs).
type EventPublisher interface {
	Publish(ctx context.Context, orgID, event string, payload map[string]interface{}) error
}

// Broadcaster pushes realtime updates to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, orgID, event string, payload interface{}) error
}

// Notifier creates in-product notifications.
type Notifier interface {
	Create(ctx context.Context, n domain.Notification) error
}

// JobEnqueuer enqueues follow-up work on the job queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}) error
}

// Config holds the scoring parameters for an Engine.
type Config struct {
	HalfLives  *HalfLives
	WindowDays int
	Tiers      domain.TierThresholds
}

// Engine recomputes account scores from signal history and fires the
// downstream side effects. Each invocation is idempotent: it recomputes from
// current persisted state, so out-of-order executions converge. Two
// concurrent recomputations race on the upsert with last-write-wins, which is
// acceptable because the score is a pure function of current signal state.
type Engine struct {
	signals SignalSource
	facts   FactsSource
	scores  ScoreStore
	cfg     Config

	// Side-effect ports, all optional. A nil port skips that effect.
	events    EventPublisher
	broadcast Broadcaster
	notifier  Notifier
	jobs      JobEnqueuer

	now func() time.Time
}

// NewEngine creates a scoring engine. signals, facts, and scores are
// required; side-effect ports are wired with the Set* methods.
func NewEngine(signals SignalSource, facts FactsSource, scores ScoreStore, cfg Config) *Engine {
	if cfg.HalfLives == nil {
		cfg.HalfLives = NewHalfLives(nil, 0)
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 90
	}
	if cfg.Tiers == (domain.TierThresholds{}) {
		cfg.Tiers = domain.DefaultTierThresholds
	}
	return &Engine{
		signals: signals,
		facts:   facts,
		scores:  scores,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetEventPublisher wires the webhook event publisher.
func (e *Engine) SetEventPublisher(p EventPublisher) { e.events = p }

// SetBroadcaster wires the realtime broadcaster.
func (e *Engine) SetBroadcaster(b Broadcaster) { e.broadcast = b }

// SetNotifier wires the notification creator.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetJobEnqueuer wires the job queue for follow-up tasks.
func (e *Engine) SetJobEnqueuer(j JobEnqueuer) { e.jobs = j }

// ComputeScore recomputes and persists the account's engagement score, then
// fires side effects. Side-effect failures are logged individually and never
// fail the computation or roll back the score write.
func (e *Engine) ComputeScore(ctx context.Context, orgID, accountID string) (*domain.AccountScore, error) {
	now := e.now()

	previous, err := e.scores.Get(ctx, orgID, accountID)
	if err != nil {
		return nil, fmt.Errorf("read previous score: %w", err)
	}

	since := now.AddDate(0, 0, -e.cfg.WindowDays)
	signals, err := e.signals.SignalsInWindow(ctx, orgID, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}

	lastAt, err := e.signals.LastSignalAt(ctx, orgID, accountID)
	if err != nil {
		return nil, fmt.Errorf("load last signal: %w", err)
	}

	// Missing facts degrade to defaults (firmographic fit 5, no seniority),
	// they never fail the computation.
	facts, err := e.facts.AccountFacts(ctx, orgID, accountID)
	if err != nil {
		log.Printf("[ScoringEngine] facts lookup failed for account %s, using defaults: %v", accountID, err)
		facts = domain.AccountFacts{}
	}

	factors := ComputeFactors(signals, lastAt, facts, e.cfg.HalfLives, now)
	score := ScoreFromFactors(factors)

	var prevScore *int
	if previous != nil {
		prevScore = &previous.Score
	}

	actors := map[string]struct{}{}
	for _, s := range signals {
		if s.ActorID != nil && *s.ActorID != "" {
			actors[*s.ActorID] = struct{}{}
		}
	}

	result := &domain.AccountScore{
		OrganizationID: orgID,
		AccountID:      accountID,
		Score:          score,
		Tier:           e.cfg.Tiers.TierFor(score),
		Trend:          TrendFor(prevScore, score),
		Factors:        factors,
		SignalCount:    len(signals),
		UserCount:      len(actors),
		LastSignalAt:   lastAt,
		ComputedAt:     now,
	}

	if err := e.scores.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("upsert score: %w", err)
	}

	e.fireSideEffects(ctx, previous, result)
	return result, nil
}

// fireSideEffects runs all downstream reactions to a score write. Every
// effect is guarded individually: a failure is logged and the rest proceed.
func (e *Engine) fireSideEffects(ctx context.Context, previous, current *domain.AccountScore) {
	orgID, accountID := current.OrganizationID, current.AccountID

	scoreChanged := previous == nil || previous.Score != current.Score
	tierChanged := previous != nil && previous.Tier != current.Tier
	enteredHot := current.Tier == domain.TierHot && (previous == nil || previous.Tier != domain.TierHot)

	if scoreChanged {
		if e.events != nil {
			payload := map[string]interface{}{
				"account_id": accountID,
				"score":      current.Score,
				"tier":       current.Tier,
				"trend":      current.Trend,
			}
			if previous != nil {
				payload["previous_score"] = previous.Score
			}
			if err := e.events.Publish(ctx, orgID, "score.changed", payload); err != nil {
				log.Printf("[ScoringEngine] score.changed webhook publish failed for %s: %v", accountID, err)
			}
		}
		if e.broadcast != nil {
			if err := e.broadcast.Broadcast(ctx, orgID, "score.changed", current); err != nil {
				log.Printf("[ScoringEngine] score broadcast failed for %s: %v", accountID, err)
			}
		}
	}

	if tierChanged {
		if e.broadcast != nil {
			if err := e.broadcast.Broadcast(ctx, orgID, "tier.changed", map[string]interface{}{
				"account_id": accountID,
				"from":       previous.Tier,
				"to":         current.Tier,
				"score":      current.Score,
			}); err != nil {
				log.Printf("[ScoringEngine] tier broadcast failed for %s: %v", accountID, err)
			}
		}
		if e.notifier != nil {
			if err := e.notifier.Create(ctx, tierChangeNotification(previous, current)); err != nil {
				log.Printf("[ScoringEngine] tier notification failed for %s: %v", accountID, err)
			}
		}
		if e.jobs != nil {
			payload := queue.TaskPayload{
				Kind:           queue.KindTenantTask,
				OrganizationID: orgID,
				AccountID:      accountID,
				NewScore:       &current.Score,
			}
			if err := e.jobs.Enqueue(ctx, domain.LaneSignalProcessing, "workflow.score_changed", "", payload); err != nil {
				log.Printf("[ScoringEngine] workflow enqueue failed for %s: %v", accountID, err)
			}
		}
	}

	// A brand-new account can land in HOT on its first computation, which has
	// no tier transition to react to. The entry alert fires either way.
	if enteredHot && e.notifier != nil {
		if err := e.notifier.Create(ctx, hotEntryNotification(current)); err != nil {
			log.Printf("[ScoringEngine] hot-entry notification failed for %s: %v", accountID, err)
		}
	}

	// Alert rules always see the transition, even when nothing changed; a
	// rule may have been created since the last evaluation.
	if e.jobs != nil {
		payload := queue.TaskPayload{
			Kind:           queue.KindTenantTask,
			OrganizationID: orgID,
			AccountID:      accountID,
			NewScore:       &current.Score,
		}
		if previous != nil {
			payload.OldScore = &previous.Score
		}
		if err := e.jobs.Enqueue(ctx, domain.LaneAlertEvaluation, "alert.evaluate", "", payload); err != nil {
			log.Printf("[ScoringEngine] alert-evaluation enqueue failed for %s: %v", accountID, err)
		}
	}
}

func tierChangeNotification(previous, current *domain.AccountScore) domain.Notification {
	body, _ := json.Marshal(map[string]interface{}{
		"account_id":  current.AccountID,
		"from":        previous.Tier,
		"to":          current.Tier,
		"score":       current.Score,
		"trend":       current.Trend,
		"description": fmt.Sprintf("Account moved from %s to %s (score %d, %s)", previous.Tier, current.Tier, current.Score, current.Trend),
	})
	return domain.Notification{
		OrganizationID: current.OrganizationID,
		Type:           domain.NotificationTierChange,
		EntityType:     "company",
		EntityID:       current.AccountID,
		Title:          fmt.Sprintf("Account tier changed to %s", current.Tier),
		Body:           string(body),
	}
}

func hotEntryNotification(current *domain.AccountScore) domain.Notification {
	body, _ := json.Marshal(map[string]interface{}{
		"account_id":  current.AccountID,
		"score":       current.Score,
		"tier":        current.Tier,
		"description": fmt.Sprintf("Account is now HOT with score %d, time to reach out", current.Score),
	})
	return domain.Notification{
		OrganizationID: current.OrganizationID,
		Type:           domain.NotificationScoreAlert,
		EntityType:     "company",
		EntityID:       current.AccountID,
		Title:          "Account entered HOT tier",
		Body:           string(body),
	}
}
