package domain

import (
	"fmt"
	"time"
)

// Signal represents a single product-usage event for an account.
// Signals are append-only: created by ingestion, never mutated, and only
// removed by tenant teardown.
type Signal struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	SourceID       string                 `json:"source_id"`
	Type           string                 `json:"type"`
	ActorID        *string                `json:"actor_id,omitempty"`
	AccountID      *string                `json:"account_id,omitempty"`
	AnonymousID    *string                `json:"anonymous_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey *string                `json:"idempotency_key,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Validate checks the required fields for signal ingestion.
func (s *Signal) Validate() error {
	if s.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if s.Type == "" {
		return fmt.Errorf("type is required")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// DailyCount is one day of a signal-volume series for an account.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}
