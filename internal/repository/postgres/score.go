package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

// ScoreRepo stores materialized account scores, one row per
// (organization, account).
type ScoreRepo struct{ db *sql.DB }

// NewScoreRepo creates a Postgres-backed score repository.
func NewScoreRepo(db *sql.DB) *ScoreRepo { return &ScoreRepo{db: db} }

// Get returns the stored score for the account, or (nil, nil) when the
// account has never been scored.
func (r *ScoreRepo) Get(ctx context.Context, orgID, accountID string) (*domain.AccountScore, error) {
	s := domain.AccountScore{OrganizationID: orgID, AccountID: accountID}
	var factors []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT score, tier, trend, factors, signal_count, user_count,
		       last_signal_at, computed_at
		FROM pulse_account_scores
		WHERE organization_id = $1 AND account_id = $2
	`, orgID, accountID).Scan(&s.Score, &s.Tier, &s.Trend, &factors,
		&s.SignalCount, &s.UserCount, &s.LastSignalAt, &s.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account score: %w", err)
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &s.Factors); err != nil {
			return nil, fmt.Errorf("unmarshal score factors: %w", err)
		}
	}
	return &s, nil
}

// Upsert writes the score, creating or replacing the account's row.
func (r *ScoreRepo) Upsert(ctx context.Context, s *domain.AccountScore) error {
	factors, err := json.Marshal(s.Factors)
	if err != nil {
		return fmt.Errorf("marshal score factors: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pulse_account_scores
			(organization_id, account_id, score, tier, trend, factors,
			 signal_count, user_count, last_signal_at, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id, account_id) DO UPDATE SET
			score = EXCLUDED.score,
			tier = EXCLUDED.tier,
			trend = EXCLUDED.trend,
			factors = EXCLUDED.factors,
			signal_count = EXCLUDED.signal_count,
			user_count = EXCLUDED.user_count,
			last_signal_at = EXCLUDED.last_signal_at,
			computed_at = EXCLUDED.computed_at
	`, s.OrganizationID, s.AccountID, s.Score, s.Tier, s.Trend, factors,
		s.SignalCount, s.UserCount, s.LastSignalAt, s.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert account score: %w", err)
	}
	return nil
}

// ListForOrg returns the organization's scores, highest first.
func (r *ScoreRepo) ListForOrg(ctx context.Context, orgID string, limit int) ([]domain.AccountScore, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, score, tier, trend, factors, signal_count,
		       user_count, last_signal_at, computed_at
		FROM pulse_account_scores
		WHERE organization_id = $1
		ORDER BY score DESC, account_id
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("query account scores: %w", err)
	}
	defer rows.Close()
	return scanScores(rows, orgID)
}

// StaleAccounts returns scored accounts (score > 0) whose last signal
// predates the cutoff.
func (r *ScoreRepo) StaleAccounts(ctx context.Context, orgID string, cutoff time.Time) ([]domain.AccountScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, score, tier, trend, factors, signal_count,
		       user_count, last_signal_at, computed_at
		FROM pulse_account_scores
		WHERE organization_id = $1 AND score > 0
		  AND last_signal_at IS NOT NULL AND last_signal_at < $2
		ORDER BY last_signal_at
	`, orgID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale accounts: %w", err)
	}
	defer rows.Close()
	return scanScores(rows, orgID)
}

func scanScores(rows *sql.Rows, orgID string) ([]domain.AccountScore, error) {
	var out []domain.AccountScore
	for rows.Next() {
		s := domain.AccountScore{OrganizationID: orgID}
		var factors []byte
		if err := rows.Scan(&s.AccountID, &s.Score, &s.Tier, &s.Trend, &factors,
			&s.SignalCount, &s.UserCount, &s.LastSignalAt, &s.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan account score: %w", err)
		}
		if len(factors) > 0 {
			if err := json.Unmarshal(factors, &s.Factors); err != nil {
				return nil, fmt.Errorf("unmarshal score factors: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
