package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luminlabs/pulse/internal/domain"
)

// SignalRepo stores and queries the append-only signal record.
type SignalRepo struct{ db *sql.DB }

// NewSignalRepo creates a Postgres-backed signal repository.
func NewSignalRepo(db *sql.DB) *SignalRepo { return &SignalRepo{db: db} }

// Insert appends a signal. When the signal carries an idempotency key and a
// signal with the same (organization, key) already exists, the insert is a
// no-op and Insert returns false. Signals without a key are always inserted.
func (r *SignalRepo) Insert(ctx context.Context, s *domain.Signal) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	metadata := []byte("{}")
	if s.Metadata != nil {
		var err error
		metadata, err = json.Marshal(s.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshal signal metadata: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_signals
			(id, organization_id, source_id, type, actor_id, account_id,
			 anonymous_id, metadata, idempotency_key, ts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (organization_id, idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING
	`, s.ID, s.OrganizationID, s.SourceID, s.Type, s.ActorID, s.AccountID,
		s.AnonymousID, metadata, s.IdempotencyKey, s.Timestamp, s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SignalsInWindow returns the account's signals at or after since, oldest
// first.
func (r *SignalRepo) SignalsInWindow(ctx context.Context, orgID, accountID string, since time.Time) ([]domain.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, type, actor_id, account_id, ts
		FROM pulse_signals
		WHERE organization_id = $1 AND account_id = $2 AND ts >= $3
		ORDER BY ts
	`, orgID, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		s := domain.Signal{OrganizationID: orgID}
		if err := rows.Scan(&s.ID, &s.SourceID, &s.Type, &s.ActorID, &s.AccountID, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastSignalAt returns the timestamp of the account's most recent signal
// ever, or nil when the account has none.
func (r *SignalRepo) LastSignalAt(ctx context.Context, orgID, accountID string) (*time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT ts FROM pulse_signals
		WHERE organization_id = $1 AND account_id = $2
		ORDER BY ts DESC
		LIMIT 1
	`, orgID, accountID).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last signal: %w", err)
	}
	return &ts, nil
}

// DailyCounts returns per-day signal counts for days in [from, to).
// Days with no signals are omitted; callers zero-fill.
func (r *SignalRepo) DailyCounts(ctx context.Context, orgID, accountID string, from, to time.Time) ([]domain.DailyCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc('day', ts AT TIME ZONE 'UTC') AS day, COUNT(*)
		FROM pulse_signals
		WHERE organization_id = $1 AND account_id = $2 AND ts >= $3 AND ts < $4
		GROUP BY day
		ORDER BY day
	`, orgID, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyCount
	for rows.Next() {
		var c domain.DailyCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountOn returns the account's signal count on the given UTC day.
func (r *SignalRepo) CountOn(ctx context.Context, orgID, accountID string, day time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pulse_signals
		WHERE organization_id = $1 AND account_id = $2 AND ts >= $3 AND ts < $4
	`, orgID, accountID, day, day.Add(24*time.Hour)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query today count: %w", err)
	}
	return n, nil
}

// ActiveAccountsOn returns account IDs with at least one signal on the day.
func (r *SignalRepo) ActiveAccountsOn(ctx context.Context, orgID string, day time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT account_id FROM pulse_signals
		WHERE organization_id = $1 AND account_id IS NOT NULL
		  AND ts >= $2 AND ts < $3
	`, orgID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query active accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ActiveOrganizations returns organization IDs with at least one signal on
// the day.
func (r *SignalRepo) ActiveOrganizations(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT organization_id FROM pulse_signals
		WHERE ts >= $1 AND ts < $2
	`, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query active organizations: %w", err)
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
