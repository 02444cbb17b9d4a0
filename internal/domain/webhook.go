package domain

import "time"

// SubscriptionStatus is the delivery health state of a webhook subscription.
// HEALTHY -> FAILING when a delivery exhausts all attempts without success;
// FAILING -> HEALTHY on any subsequent successful delivery.
type SubscriptionStatus string

const (
	SubscriptionHealthy SubscriptionStatus = "HEALTHY"
	SubscriptionFailing SubscriptionStatus = "FAILING"
)

// WebhookSubscription registers an outbound HTTP destination for org events.
type WebhookSubscription struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	TargetURL      string             `json:"target_url"`
	Secret         string             `json:"-"`
	Events         []string           `json:"events"`
	Status         SubscriptionStatus `json:"status"`
	LastSuccessAt  *time.Time         `json:"last_success_at,omitempty"`
	LastFailureAt  *time.Time         `json:"last_failure_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// WantsEvent reports whether the subscription is registered for the event.
// An empty event list subscribes to everything.
func (s *WebhookSubscription) WantsEvent(event string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// DeliveryAttempt records one outbound webhook HTTP attempt, success or not.
type DeliveryAttempt struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	JobID          string    `json:"job_id"`
	Event          string    `json:"event"`
	StatusCode     int       `json:"status_code"`
	Response       string    `json:"response"`
	Success        bool      `json:"success"`
	Attempt        int       `json:"attempt"`
	MaxAttempts    int       `json:"max_attempts"`
	CreatedAt      time.Time `json:"created_at"`
}
