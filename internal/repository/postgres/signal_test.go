package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
)

func strPtr(s string) *string { return &s }

func testSignal() *domain.Signal {
	return &domain.Signal{
		OrganizationID: "org1",
		SourceID:       "src1",
		Type:           "feature_used",
		ActorID:        strPtr("user1"),
		AccountID:      strPtr("acct1"),
		IdempotencyKey: strPtr("evt-42"),
		Timestamp:      time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC),
	}
}

const signalInsertPattern = `(?s)INSERT INTO pulse_signals.*` +
	`ON CONFLICT \(organization_id, idempotency_key\) WHERE idempotency_key IS NOT NULL\s+DO NOTHING`

func TestSignalInsertCreated(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(signalInsertPattern).
		WithArgs(sqlmock.AnyArg(), "org1", "src1", "feature_used", "user1", "acct1",
			nil, []byte("{}"), "evt-42", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSignalRepo(db)
	s := testSignal()
	created, err := repo.Insert(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSignalInsertDuplicateKeyIsNoOp(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// The conflict on (organization_id, idempotency_key) affects zero rows.
	mock.ExpectExec(signalInsertPattern).
		WithArgs(sqlmock.AnyArg(), "org1", "src1", "feature_used", "user1", "acct1",
			nil, []byte("{}"), "evt-42", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewSignalRepo(db)
	created, err := repo.Insert(context.Background(), testSignal())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSignalInsertWithoutKeyAlwaysInserts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(signalInsertPattern).
		WithArgs(sqlmock.AnyArg(), "org1", "src1", "feature_used", "user1", "acct1",
			nil, []byte("{}"), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSignalRepo(db)
	s := testSignal()
	s.IdempotencyKey = nil
	created, err := repo.Insert(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSignalInsertMarshalsMetadata(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(signalInsertPattern).
		WithArgs(sqlmock.AnyArg(), "org1", "src1", "feature_used", "user1", "acct1",
			nil, []byte(`{"plan":"pro"}`), "evt-42", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSignalRepo(db)
	s := testSignal()
	s.Metadata = map[string]interface{}{"plan": "pro"}
	_, err := repo.Insert(context.Background(), s)
	require.NoError(t, err)
}
