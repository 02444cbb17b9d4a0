package queue

import (
	"encoding/json"
	"fmt"
)

// PayloadKind discriminates scheduled fan-out jobs from concrete per-tenant
// work on the same lane. A fan-out job tells the lane's handler to enumerate
// eligible tenants and enqueue one tenant task per tenant; it never does the
// lane's normal work directly.
type PayloadKind string

const (
	KindScheduledFanout PayloadKind = "scheduled-fanout"
	KindTenantTask      PayloadKind = "tenant-task"
)

// TaskPayload is the payload shape shared by the scoring, anomaly, and alert
// lanes. Fields beyond Kind are set only for tenant tasks.
type TaskPayload struct {
	Kind           PayloadKind `json:"kind"`
	OrganizationID string      `json:"organizationId,omitempty"`
	AccountID      string      `json:"accountId,omitempty"`
	NewScore       *int        `json:"newScore,omitempty"`
	OldScore       *int        `json:"oldScore,omitempty"`
}

// Validate checks the payload's internal consistency.
func (p TaskPayload) Validate() error {
	switch p.Kind {
	case KindScheduledFanout:
		return nil
	case KindTenantTask:
		if p.OrganizationID == "" {
			return fmt.Errorf("tenant task requires organizationId")
		}
		return nil
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

// ParseTask decodes and validates a TaskPayload from raw job bytes.
func ParseTask(data []byte) (TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode task payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// WebhookDeliveryPayload is the payload for the webhook-delivery lane.
type WebhookDeliveryPayload struct {
	OrganizationID string                 `json:"organizationId"`
	Event          string                 `json:"event"`
	Payload        map[string]interface{} `json:"payload"`
	SubscriptionID string                 `json:"subscriptionId,omitempty"`
	TargetURL      string                 `json:"targetUrl,omitempty"`
	Secret         string                 `json:"secret,omitempty"`
}

// ParseWebhookDelivery decodes a WebhookDeliveryPayload from raw job bytes.
func ParseWebhookDelivery(data []byte) (WebhookDeliveryPayload, error) {
	var p WebhookDeliveryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode webhook payload: %w", err)
	}
	if p.Event == "" {
		return p, fmt.Errorf("webhook payload requires event")
	}
	return p, nil
}
