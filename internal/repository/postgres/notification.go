package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luminlabs/pulse/internal/domain"
)

// NotificationRepo stores in-product notifications and dedup window claims.
type NotificationRepo struct{ db *sql.DB }

// NewNotificationRepo creates a Postgres-backed notification repository.
func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Insert stores a notification, assigning an ID when the caller left it
// empty.
func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_notifications
			(id, organization_id, type, entity_type, entity_id, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.OrganizationID, n.Type, n.EntityType, n.EntityID, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ClaimDedupWindow atomically claims the (org, account, kind, window) slot.
// Returns false when the slot was already claimed this window.
func (r *NotificationRepo) ClaimDedupWindow(ctx context.Context, orgID, accountID, kind string, windowStart time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_notification_dedup
			(organization_id, account_id, kind, window_start)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, account_id, kind, window_start) DO NOTHING
	`, orgID, accountID, kind, windowStart)
	if err != nil {
		return false, fmt.Errorf("claim dedup window: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListForOrg returns the organization's notifications, newest first.
func (r *NotificationRepo) ListForOrg(ctx context.Context, orgID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, entity_type, entity_id, title, body, read_at, created_at
		FROM pulse_notifications
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n := domain.Notification{OrganizationID: orgID}
		if err := rows.Scan(&n.ID, &n.Type, &n.EntityType, &n.EntityID,
			&n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps read_at on the notification if it is unread.
func (r *NotificationRepo) MarkRead(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pulse_notifications SET read_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND read_at IS NULL
	`, orgID, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
