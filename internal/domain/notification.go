package domain

import "time"

// NotificationType enumerates the notification kinds Pulse produces.
type NotificationType string

const (
	NotificationSignalAnomaly NotificationType = "signal_anomaly"
	NotificationScoreAlert    NotificationType = "score_alert"
	NotificationTierChange    NotificationType = "tier_change"
)

// Notification is an in-product message for an organization, typically
// projected from an anomaly result or a score/tier change.
type Notification struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	Type           NotificationType `json:"type"`
	EntityType     string           `json:"entity_type"`
	EntityID       string           `json:"entity_id"`
	Title          string           `json:"title"`
	Body           string           `json:"body"` // JSON: event fields + description
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AlertRuleKind enumerates the supported alert rule triggers.
type AlertRuleKind string

const (
	AlertScoreAbove AlertRuleKind = "score_above"
	AlertScoreBelow AlertRuleKind = "score_below"
	AlertTierEntry  AlertRuleKind = "tier_entry"
)

// AlertRule is a per-organization rule evaluated after each score change.
type AlertRule struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Kind           AlertRuleKind `json:"kind"`
	Threshold      int           `json:"threshold"`
	Tier           Tier          `json:"tier,omitempty"`
	Enabled        bool          `json:"enabled"`
	CreatedAt      time.Time     `json:"created_at"`
}
