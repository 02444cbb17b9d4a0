package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luminlabs/pulse/internal/domain"
)

// AlertRuleRepo stores per-organization alert rules.
type AlertRuleRepo struct{ db *sql.DB }

// NewAlertRuleRepo creates a Postgres-backed alert rule repository.
func NewAlertRuleRepo(db *sql.DB) *AlertRuleRepo { return &AlertRuleRepo{db: db} }

// Create stores a new rule.
func (r *AlertRuleRepo) Create(ctx context.Context, rule *domain.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_alert_rules
			(id, organization_id, kind, threshold, tier, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rule.ID, rule.OrganizationID, rule.Kind, rule.Threshold, rule.Tier,
		rule.Enabled, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

// RulesForOrg returns the organization's enabled rules.
func (r *AlertRuleRepo) RulesForOrg(ctx context.Context, orgID string) ([]domain.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, threshold, tier, enabled, created_at
		FROM pulse_alert_rules
		WHERE organization_id = $1 AND enabled
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRule
	for rows.Next() {
		rule := domain.AlertRule{OrganizationID: orgID}
		if err := rows.Scan(&rule.ID, &rule.Kind, &rule.Threshold, &rule.Tier,
			&rule.Enabled, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// OrgsWithEnabledRules enumerates tenants with at least one enabled rule.
func (r *AlertRuleRepo) OrgsWithEnabledRules(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT organization_id FROM pulse_alert_rules WHERE enabled
	`)
	if err != nil {
		return nil, fmt.Errorf("query orgs with rules: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetEnabled toggles a rule.
func (r *AlertRuleRepo) SetEnabled(ctx context.Context, orgID, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pulse_alert_rules SET enabled = $3
		WHERE organization_id = $1 AND id = $2
	`, orgID, id, enabled)
	if err != nil {
		return fmt.Errorf("update alert rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a rule.
func (r *AlertRuleRepo) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM pulse_alert_rules WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
