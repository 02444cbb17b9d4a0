package queue

import (
	"context"
	"database/sql"
	"errors"
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

func TestEnqueueInsertsQueuedJob(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO pulse_jobs").
		WithArgs(sqlmock.AnyArg(), "score-computation", "score.compute", "score:org1:acct1",
			[]byte(`{"kind":"tenant-task","organizationId":"org1","accountId":"acct1"}`),
			DefaultMaxAttempts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	payload := TaskPayload{Kind: KindTenantTask, OrganizationID: "org1", AccountID: "acct1"}
	err := q.Enqueue(context.Background(), domain.LaneScoreComputation, "score.compute", "score:org1:acct1", payload)
	require.NoError(t, err)
}

func TestEnqueueWithoutJobIDPassesNull(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO pulse_jobs").
		WithArgs(sqlmock.AnyArg(), "webhook-delivery", "webhook.deliver", nil,
			sqlmock.AnyArg(), DefaultMaxAttempts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	err := q.Enqueue(context.Background(), domain.LaneWebhookDelivery, "webhook.deliver", "", map[string]string{"event": "x"})
	require.NoError(t, err)
}

func TestEnqueueWithAttemptsOverridesCap(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO pulse_jobs").
		WithArgs(sqlmock.AnyArg(), "webhook-delivery", "webhook.deliver", nil,
			sqlmock.AnyArg(), 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	err := q.EnqueueWithAttempts(context.Background(), domain.LaneWebhookDelivery, "webhook.deliver", "",
		map[string]string{"event": "x"}, 5)
	require.NoError(t, err)
}

func TestClaimReturnsNilOnEmptyLane(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE pulse_jobs").
		WithArgs("signal-processing", "worker-1").
		WillReturnError(sql.ErrNoRows)

	q := New(db)
	job, err := q.Claim(context.Background(), domain.LaneSignalProcessing, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimScansJob(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	created := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "job_id", "payload", "attempts_made", "max_attempts", "created_at"}).
		AddRow("11111111-2222-3333-4444-555555555555", "anomaly.scan", "anomaly-scan-org1-1718013600",
			[]byte(`{"kind":"tenant-task","organizationId":"org1"}`), 1, 3, created)
	mock.ExpectQuery("UPDATE pulse_jobs").
		WithArgs("anomaly-detection", "worker-2").
		WillReturnRows(rows)

	q := New(db)
	job, err := q.Claim(context.Background(), domain.LaneAnomalyDetection, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, domain.LaneAnomalyDetection, job.Lane)
	assert.Equal(t, domain.JobActive, job.Status)
	assert.Equal(t, "anomaly.scan", job.Name)
	require.NotNil(t, job.JobID)
	assert.Equal(t, "anomaly-scan-org1-1718013600", *job.JobID)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, 3, job.MaxAttempts)
}

func TestCompleteMarksJobDone(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE pulse_jobs SET status = 'completed'").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	require.NoError(t, q.Complete(context.Background(), "job-1"))
}

func TestFailRequeuesWithExponentialBackoff(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Second attempt of three: backoff is baseDelay * 2^1.
	mock.ExpectExec("SET status = 'queued'").
		WithArgs("job-1", "boom", "2s").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	job := &domain.Job{ID: "job-1", AttemptsMade: 2, MaxAttempts: 3}
	dead, err := q.Fail(context.Background(), job, errors.New("boom"), time.Second)
	require.NoError(t, err)
	assert.False(t, dead)
}

func TestFailDeadLettersAtAttemptCap(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("SET status = 'dead_letter'").
		WithArgs("job-1", "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	job := &domain.Job{ID: "job-1", AttemptsMade: 3, MaxAttempts: 3}
	dead, err := q.Fail(context.Background(), job, errors.New("boom"), time.Second)
	require.NoError(t, err)
	assert.True(t, dead)
}

func TestFailAfterHonorsExplicitDelay(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("SET status = 'queued'").
		WithArgs("job-1", "rate limited", "45s").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	job := &domain.Job{ID: "job-1", AttemptsMade: 1, MaxAttempts: 5}
	dead, err := q.FailAfter(context.Background(), job, errors.New("rate limited"), 45*time.Second)
	require.NoError(t, err)
	assert.False(t, dead)
}

func TestYieldRestoresAttempt(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`attempts_made = GREATEST\(attempts_made - 1, 0\)`).
		WithArgs("job-1", "delivery rate limit reached for hooks.example.com", "1m0s").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := New(db)
	job := &domain.Job{ID: "job-1", AttemptsMade: 1, MaxAttempts: 3}
	err := q.Yield(context.Background(), job,
		errors.New("delivery rate limit reached for hooks.example.com"), time.Minute)
	require.NoError(t, err)
}

func TestDepth(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("webhook-delivery").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	q := New(db)
	n, err := q.Depth(context.Background(), domain.LaneWebhookDelivery)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestDeadLettersKeepsLastError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	created := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "job_id", "payload", "attempts_made", "max_attempts", "last_error", "created_at"}).
		AddRow("job-1", "webhook.deliver", "", []byte(`{}`), 10, 10, "endpoint returned 500", created)
	mock.ExpectQuery("FROM pulse_jobs").
		WithArgs("webhook-delivery", 50).
		WillReturnRows(rows)

	q := New(db)
	jobs, err := q.DeadLetters(context.Background(), domain.LaneWebhookDelivery, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobDeadLetter, jobs[0].Status)
	assert.Equal(t, "endpoint returned 500", jobs[0].LastError)
	assert.Nil(t, jobs[0].JobID)
}
