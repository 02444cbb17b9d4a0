// Package notify creates in-product notifications with a structured
// cooldown: repeat notifications for the same (organization, account, kind)
// within a 24h window are suppressed by a uniqueness-constrained side table,
// not by inspecting previously written bodies.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

// Store persists notifications and dedup window claims.
type Store interface {
	Insert(ctx context.Context, n *domain.Notification) error
	// ClaimDedupWindow atomically claims the (org, account, kind, window)
	// slot. Returns false when the slot is already claimed, meaning an
	// equivalent notification was already created in this window.
	ClaimDedupWindow(ctx context.Context, orgID, accountID, kind string, windowStart time.Time) (bool, error)
}

// Service creates notifications.
type Service struct {
	store Store
	slack *SlackSink
	now   func() time.Time
}

// NewService creates a notification service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetSlackSink wires an optional Slack mirror for created notifications.
func (s *Service) SetSlackSink(sink *SlackSink) { s.slack = sink }

// Create inserts a notification without cooldown (tier changes, HOT entry).
func (s *Service) Create(ctx context.Context, n domain.Notification) error {
	if err := s.store.Insert(ctx, &n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	s.mirrorToSlack(ctx, n)
	return nil
}

// mirrorToSlack is best-effort: a Slack failure never fails the caller.
func (s *Service) mirrorToSlack(ctx context.Context, n domain.Notification) {
	if s.slack == nil || !s.slack.Enabled() {
		return
	}
	if err := s.slack.Post(ctx, n); err != nil {
		log.Printf("[Notify] slack mirror failed for %s: %v", n.Title, err)
	}
}

// CreateDeduped inserts a notification unless the (org, account, kind) slot
// for the current 24h window is already claimed. Returns whether the
// notification was created.
func (s *Service) CreateDeduped(ctx context.Context, n domain.Notification, accountID, kind string) (bool, error) {
	window := s.now().UTC().Truncate(24 * time.Hour)
	claimed, err := s.store.ClaimDedupWindow(ctx, n.OrganizationID, accountID, kind, window)
	if err != nil {
		return false, fmt.Errorf("claim dedup window: %w", err)
	}
	if !claimed {
		return false, nil
	}
	if err := s.store.Insert(ctx, &n); err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	s.mirrorToSlack(ctx, n)
	return true, nil
}

// NotifyAnomaly materializes an anomaly result as a signal_anomaly
// notification, subject to the per-(org, account, type) cooldown.
func (s *Service) NotifyAnomaly(ctx context.Context, orgID string, res *domain.AnomalyResult) (bool, error) {
	var title, description string
	if res.AnomalyType == domain.AnomalySpike {
		title = "Unusual signal spike detected"
		description = fmt.Sprintf("%d signals today vs expected %d-%d (z-score %.2f, %s)",
			res.TodayCount, res.ExpectedMin, res.ExpectedMax, res.ZScore, res.Severity)
	} else {
		title = "Unusual signal drop detected"
		description = fmt.Sprintf("only %d signals today vs expected %d-%d (z-score %.2f, %s)",
			res.TodayCount, res.ExpectedMin, res.ExpectedMax, res.ZScore, res.Severity)
	}

	body, err := json.Marshal(struct {
		domain.AnomalyResult
		Description string `json:"description"`
	}{*res, description})
	if err != nil {
		return false, fmt.Errorf("encode anomaly body: %w", err)
	}

	n := domain.Notification{
		OrganizationID: orgID,
		Type:           domain.NotificationSignalAnomaly,
		EntityType:     "company",
		EntityID:       res.AccountID,
		Title:          title,
		Body:           string(body),
	}
	return s.CreateDeduped(ctx, n, res.AccountID, string(res.AnomalyType))
}
