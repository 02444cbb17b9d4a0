// Package alerts evaluates per-organization alert rules against score
// transitions and runs the periodic inactivity check.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// inactivityAge is how long an account with a positive score can go without
// a signal before the alert-check lane flags it as going quiet.
const inactivityAge = 14 * 24 * time.Hour

// RuleStore reads alert rules.
type RuleStore interface {
	RulesForOrg(ctx context.Context, orgID string) ([]domain.AlertRule, error)
	// OrgsWithEnabledRules enumerates tenants eligible for the alert-check
	// fan-out.
	OrgsWithEnabledRules(ctx context.Context) ([]string, error)
}

// ScoreReader reads stored scores for the inactivity check.
type ScoreReader interface {
	// StaleAccounts returns scored accounts (score > 0) whose last signal
	// predates the cutoff.
	StaleAccounts(ctx context.Context, orgID string, cutoff time.Time) ([]domain.AccountScore, error)
}

// Notifier creates deduplicated notifications.
type Notifier interface {
	CreateDeduped(ctx context.Context, n domain.Notification, accountID, kind string) (bool, error)
}

// JobEnqueuer enqueues per-tenant check jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}) error
}

// Service handles the alert-evaluation and alert-check lanes.
type Service struct {
	rules    RuleStore
	scores   ScoreReader
	notifier Notifier
	jobs     JobEnqueuer
	tiers    domain.TierThresholds

	checkInterval time.Duration
	now           func() time.Time
}

// NewService creates the alerts service. checkInterval buckets the
// alert-check fan-out job IDs and should match the trigger interval.
func NewService(rules RuleStore, scores ScoreReader, notifier Notifier, jobs JobEnqueuer, tiers domain.TierThresholds, checkInterval time.Duration) *Service {
	if tiers == (domain.TierThresholds{}) {
		tiers = domain.DefaultTierThresholds
	}
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	return &Service{
		rules:         rules,
		scores:        scores,
		notifier:      notifier,
		jobs:          jobs,
		tiers:         tiers,
		checkInterval: checkInterval,
		now:           time.Now,
	}
}

// HandleEvaluateJob processes one alert-evaluation job: it runs every
// enabled rule of the organization against the score transition. A missing
// old score is treated as 0 for threshold crossings.
func (s *Service) HandleEvaluateJob(ctx context.Context, job *domain.Job) error {
	payload, err := queue.ParseTask(job.Payload)
	if err != nil {
		return err
	}
	if payload.Kind != queue.KindTenantTask || payload.NewScore == nil {
		return fmt.Errorf("alert-evaluation job %s has malformed payload", job.ID)
	}

	rules, err := s.rules.RulesForOrg(ctx, payload.OrganizationID)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	newScore := *payload.NewScore
	oldScore := 0
	hadOld := payload.OldScore != nil
	if hadOld {
		oldScore = *payload.OldScore
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !s.triggered(rule, oldScore, newScore, hadOld) {
			continue
		}
		n := s.ruleNotification(rule, payload.AccountID, oldScore, newScore)
		created, err := s.notifier.CreateDeduped(ctx, n, payload.AccountID, "alert:"+rule.ID)
		if err != nil {
			// Rule isolation: one rule's failure doesn't silence the rest.
			log.Printf("[Alerts] notification failed for rule %s: %v", rule.ID, err)
			continue
		}
		if created {
			log.Printf("[Alerts] rule %s (%s) fired for account %s", rule.ID, rule.Kind, payload.AccountID)
		}
	}
	return nil
}

// triggered reports whether the rule fires on the transition. Rules fire on
// crossings, not levels, so a score sitting above a threshold doesn't
// re-alert on every recomputation.
func (s *Service) triggered(rule domain.AlertRule, oldScore, newScore int, hadOld bool) bool {
	switch rule.Kind {
	case domain.AlertScoreAbove:
		return oldScore < rule.Threshold && newScore >= rule.Threshold
	case domain.AlertScoreBelow:
		return hadOld && oldScore > rule.Threshold && newScore <= rule.Threshold
	case domain.AlertTierEntry:
		newTier := s.tiers.TierFor(newScore)
		if newTier != rule.Tier {
			return false
		}
		return !hadOld || s.tiers.TierFor(oldScore) != rule.Tier
	default:
		return false
	}
}

func (s *Service) ruleNotification(rule domain.AlertRule, accountID string, oldScore, newScore int) domain.Notification {
	var description string
	switch rule.Kind {
	case domain.AlertScoreAbove:
		description = fmt.Sprintf("Score crossed above %d (from %d to %d)", rule.Threshold, oldScore, newScore)
	case domain.AlertScoreBelow:
		description = fmt.Sprintf("Score dropped below %d (from %d to %d)", rule.Threshold, oldScore, newScore)
	case domain.AlertTierEntry:
		description = fmt.Sprintf("Account entered tier %s with score %d", rule.Tier, newScore)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"rule_id":     rule.ID,
		"rule_kind":   rule.Kind,
		"account_id":  accountID,
		"old_score":   oldScore,
		"new_score":   newScore,
		"description": description,
	})
	return domain.Notification{
		OrganizationID: rule.OrganizationID,
		Type:           domain.NotificationScoreAlert,
		EntityType:     "company",
		EntityID:       accountID,
		Title:          fmt.Sprintf("Alert: %s", description),
		Body:           string(body),
	}
}

// HandleCheckJob processes one alert-check lane job. The scheduled fan-out
// enqueues a tenant task per organization with enabled rules; the tenant
// task flags accounts that have gone quiet.
func (s *Service) HandleCheckJob(ctx context.Context, job *domain.Job) error {
	payload, err := queue.ParseTask(job.Payload)
	if err != nil {
		return err
	}

	switch payload.Kind {
	case queue.KindScheduledFanout:
		return s.fanOut(ctx)
	case queue.KindTenantTask:
		return s.checkInactivity(ctx, payload.OrganizationID)
	default:
		return fmt.Errorf("unhandled payload kind %q", payload.Kind)
	}
}

func (s *Service) fanOut(ctx context.Context) error {
	orgs, err := s.rules.OrgsWithEnabledRules(ctx)
	if err != nil {
		return fmt.Errorf("list orgs with rules: %w", err)
	}
	for _, orgID := range orgs {
		jobID := queue.FanoutJobID("alert-check", orgID, s.now(), s.checkInterval)
		payload := queue.TaskPayload{Kind: queue.KindTenantTask, OrganizationID: orgID}
		if err := s.jobs.Enqueue(ctx, domain.LaneAlertCheck, "alert.check", jobID, payload); err != nil {
			log.Printf("[Alerts] fan-out enqueue failed for org %s: %v", orgID, err)
		}
	}
	return nil
}

// checkInactivity notifies once per day per account that had engagement but
// has stopped sending signals.
func (s *Service) checkInactivity(ctx context.Context, orgID string) error {
	cutoff := s.now().Add(-inactivityAge)
	stale, err := s.scores.StaleAccounts(ctx, orgID, cutoff)
	if err != nil {
		return fmt.Errorf("list stale accounts: %w", err)
	}

	for _, score := range stale {
		description := fmt.Sprintf("No signals for %d+ days from an account scored %d (%s)",
			int(inactivityAge.Hours()/24), score.Score, score.Tier)
		body, _ := json.Marshal(map[string]interface{}{
			"account_id":     score.AccountID,
			"score":          score.Score,
			"tier":           score.Tier,
			"last_signal_at": score.LastSignalAt,
			"description":    description,
		})
		n := domain.Notification{
			OrganizationID: orgID,
			Type:           domain.NotificationScoreAlert,
			EntityType:     "company",
			EntityID:       score.AccountID,
			Title:          "Engaged account going quiet",
			Body:           string(body),
		}
		if _, err := s.notifier.CreateDeduped(ctx, n, score.AccountID, "inactivity"); err != nil {
			log.Printf("[Alerts] inactivity notification failed for account %s: %v", score.AccountID, err)
		}
	}
	return nil
}
