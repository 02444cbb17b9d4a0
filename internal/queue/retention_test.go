package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
)

func TestNewRetentionWorkerFillsDefaults(t *testing.T) {
	rw := NewRetentionWorker(nil, RetentionPolicy{CompletedJobAge: time.Hour})

	assert.Equal(t, time.Hour, rw.policy.CompletedJobAge)
	assert.Equal(t, DefaultRetentionPolicy.DeadLetterAge, rw.policy.DeadLetterAge)
	assert.Equal(t, DefaultRetentionPolicy.DeliveryAttemptAge, rw.policy.DeliveryAttemptAge)
	assert.Equal(t, DefaultRetentionPolicy.DedupWindowAge, rw.policy.DedupWindowAge)
}

func TestRetentionCleanupDeletesAllTables(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM pulse_jobs").
		WithArgs(retentionBatchSize, "24h0m0s").
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec("DELETE FROM pulse_jobs").
		WithArgs(retentionBatchSize, "168h0m0s").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM pulse_delivery_attempts").
		WithArgs(retentionBatchSize, "720h0m0s").
		WillReturnResult(sqlmock.NewResult(0, 40))
	mock.ExpectExec("DELETE FROM pulse_notification_dedup").
		WithArgs(retentionBatchSize, "48h0m0s").
		WillReturnResult(sqlmock.NewResult(0, 7))

	rw := NewRetentionWorker(db, RetentionPolicy{})
	require.NoError(t, rw.HandleJob(context.Background(), &domain.Job{ID: "job-1"}))
}

func TestRetentionBatchDeleteDrainsBacklog(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Full batches keep the loop going until a short batch ends it.
	mock.ExpectExec("DELETE FROM pulse_delivery_attempts").
		WillReturnResult(sqlmock.NewResult(0, retentionBatchSize))
	mock.ExpectExec("DELETE FROM pulse_delivery_attempts").
		WillReturnResult(sqlmock.NewResult(0, retentionBatchSize))
	mock.ExpectExec("DELETE FROM pulse_delivery_attempts").
		WillReturnResult(sqlmock.NewResult(0, 131))

	rw := NewRetentionWorker(db, RetentionPolicy{})
	rw.batchDelete(context.Background(), "delivery attempts", `
		DELETE FROM pulse_delivery_attempts
		WHERE id IN (
			SELECT id FROM pulse_delivery_attempts
			WHERE created_at < NOW() - $2::interval
			LIMIT $1
		)
	`, 30*24*time.Hour)
}

func TestRetentionDeleteErrorStopsTableNotCycle(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM pulse_jobs").
		WillReturnError(assert.AnError)
	mock.ExpectExec("DELETE FROM pulse_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM pulse_delivery_attempts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM pulse_notification_dedup").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rw := NewRetentionWorker(db, RetentionPolicy{})
	require.NoError(t, rw.HandleJob(context.Background(), &domain.Job{ID: "job-1"}))
}
