package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func TestNotificationInsertAssignsID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO pulse_notifications").
		WithArgs(sqlmock.AnyArg(), "org1", "tier_change", "company", "acct1",
			"Account moved to HOT", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewNotificationRepo(db)
	n := &domain.Notification{
		OrganizationID: "org1",
		Type:           domain.NotificationTierChange,
		EntityType:     "company",
		EntityID:       "acct1",
		Title:          "Account moved to HOT",
		Body:           "{}",
	}
	require.NoError(t, repo.Insert(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestClaimDedupWindow(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	window := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	// First claim inserts a row; the conflict makes the second a no-op.
	mock.ExpectExec("INSERT INTO pulse_notification_dedup").
		WithArgs("org1", "acct1", "SPIKE", window).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pulse_notification_dedup").
		WithArgs("org1", "acct1", "SPIKE", window).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewNotificationRepo(db)

	claimed, err := repo.ClaimDedupWindow(context.Background(), "org1", "acct1", "SPIKE", window)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimDedupWindow(context.Background(), "org1", "acct1", "SPIKE", window)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMarkReadNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE pulse_notifications SET read_at").
		WithArgs("org1", "n1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewNotificationRepo(db)
	err := repo.MarkRead(context.Background(), "org1", "n1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListForOrgNewestFirst(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	created := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "type", "entity_type", "entity_id", "title", "body", "read_at", "created_at"}).
		AddRow("n2", "score_alert", "company", "acct1", "Alert", "{}", nil, created.Add(time.Hour)).
		AddRow("n1", "tier_change", "company", "acct1", "Tier", "{}", created, created)
	mock.ExpectQuery("FROM pulse_notifications").
		WithArgs("org1", 50).
		WillReturnRows(rows)

	repo := NewNotificationRepo(db)
	out, err := repo.ListForOrg(context.Background(), "org1", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "n2", out[0].ID)
	assert.Nil(t, out[0].ReadAt)
	require.NotNil(t, out[1].ReadAt)
	assert.Equal(t, "org1", out[0].OrganizationID)
}
