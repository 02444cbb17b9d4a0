package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/luminlabs/pulse/internal/domain"
)

// SubscriptionRepo stores webhook subscriptions, their delivery health, and
// the per-attempt audit log.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscription repository.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Create stores a new subscription with status HEALTHY.
func (r *SubscriptionRepo) Create(ctx context.Context, s *domain.WebhookSubscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.Status = domain.SubscriptionHealthy
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_subscriptions
			(id, organization_id, target_url, secret, events, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.OrganizationID, s.TargetURL, s.Secret, pq.Array(s.Events),
		s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Get returns the subscription by ID.
func (r *SubscriptionRepo) Get(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	s := domain.WebhookSubscription{ID: id}
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, target_url, secret, events, status,
		       last_success_at, last_failure_at, created_at, updated_at
		FROM pulse_subscriptions
		WHERE id = $1
	`, id).Scan(&s.OrganizationID, &s.TargetURL, &s.Secret, pq.Array(&s.Events),
		&s.Status, &s.LastSuccessAt, &s.LastFailureAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return &s, nil
}

// ListForOrg returns the organization's subscriptions, oldest first.
func (r *SubscriptionRepo) ListForOrg(ctx context.Context, orgID string) ([]domain.WebhookSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, target_url, secret, events, status,
		       last_success_at, last_failure_at, created_at, updated_at
		FROM pulse_subscriptions
		WHERE organization_id = $1
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookSubscription
	for rows.Next() {
		s := domain.WebhookSubscription{OrganizationID: orgID}
		if err := rows.Scan(&s.ID, &s.TargetURL, &s.Secret, pq.Array(&s.Events),
			&s.Status, &s.LastSuccessAt, &s.LastFailureAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the subscription. Its delivery attempts are kept for audit
// until retention cleans them up.
func (r *SubscriptionRepo) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM pulse_subscriptions WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkHealthy sets status HEALTHY and stamps last_success_at.
func (r *SubscriptionRepo) MarkHealthy(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pulse_subscriptions
		SET status = $2, last_success_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, domain.SubscriptionHealthy)
	if err != nil {
		return fmt.Errorf("mark subscription healthy: %w", err)
	}
	return nil
}

// MarkFailing sets status FAILING and stamps last_failure_at.
func (r *SubscriptionRepo) MarkFailing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pulse_subscriptions
		SET status = $2, last_failure_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, domain.SubscriptionFailing)
	if err != nil {
		return fmt.Errorf("mark subscription failing: %w", err)
	}
	return nil
}

// RecordAttempt appends one delivery attempt row.
func (r *SubscriptionRepo) RecordAttempt(ctx context.Context, a *domain.DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_delivery_attempts
			(id, subscription_id, job_id, event, status_code, response,
			 success, attempt, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.SubscriptionID, a.JobID, a.Event, a.StatusCode, a.Response,
		a.Success, a.Attempt, a.MaxAttempts, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

// AttemptsForSubscription returns recent delivery attempts, newest first.
func (r *SubscriptionRepo) AttemptsForSubscription(ctx context.Context, subID string, limit int) ([]domain.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, event, status_code, response, success,
		       attempt, max_attempts, created_at
		FROM pulse_delivery_attempts
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, subID, limit)
	if err != nil {
		return nil, fmt.Errorf("query delivery attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryAttempt
	for rows.Next() {
		a := domain.DeliveryAttempt{SubscriptionID: subID}
		if err := rows.Scan(&a.ID, &a.JobID, &a.Event, &a.StatusCode, &a.Response,
			&a.Success, &a.Attempt, &a.MaxAttempts, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
