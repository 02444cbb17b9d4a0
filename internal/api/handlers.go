package api

import (
	"context"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

// SignalStore persists ingested signals.
type SignalStore interface {
	// Insert appends a signal, returning false when an idempotency key
	// collision made it a no-op.
	Insert(ctx context.Context, s *domain.Signal) (bool, error)
}

// ScoreReader reads materialized account scores.
type ScoreReader interface {
	Get(ctx context.Context, orgID, accountID string) (*domain.AccountScore, error)
	ListForOrg(ctx context.Context, orgID string, limit int) ([]domain.AccountScore, error)
}

// NotificationReader reads and updates in-product notifications.
type NotificationReader interface {
	ListForOrg(ctx context.Context, orgID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, orgID, id string) error
}

// SubscriptionStore manages webhook subscriptions.
type SubscriptionStore interface {
	Create(ctx context.Context, s *domain.WebhookSubscription) error
	Get(ctx context.Context, id string) (*domain.WebhookSubscription, error)
	ListForOrg(ctx context.Context, orgID string) ([]domain.WebhookSubscription, error)
	Delete(ctx context.Context, orgID, id string) error
	AttemptsForSubscription(ctx context.Context, subID string, limit int) ([]domain.DeliveryAttempt, error)
}

// AlertRuleStore manages alert rules.
type AlertRuleStore interface {
	Create(ctx context.Context, rule *domain.AlertRule) error
	RulesForOrg(ctx context.Context, orgID string) ([]domain.AlertRule, error)
	SetEnabled(ctx context.Context, orgID, id string, enabled bool) error
	Delete(ctx context.Context, orgID, id string) error
}

// JobQueue is the queue surface the API touches: enqueuing score work on
// ingestion and the admin depth/dead-letter views.
type JobQueue interface {
	Enqueue(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}) error
	Depth(ctx context.Context, lane domain.Lane) (int64, error)
	DeadLetters(ctx context.Context, lane domain.Lane, limit int) ([]domain.Job, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	signals       SignalStore
	scores        ScoreReader
	notifications NotificationReader
	subscriptions SubscriptionStore
	rules         AlertRuleStore
	queue         JobQueue
	now           func() time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(signals SignalStore, scores ScoreReader, notifications NotificationReader,
	subscriptions SubscriptionStore, rules AlertRuleStore, queue JobQueue) *Handlers {
	return &Handlers{
		signals:       signals,
		scores:        scores,
		notifications: notifications,
		subscriptions: subscriptions,
		rules:         rules,
		queue:         queue,
		now:           time.Now,
	}
}
