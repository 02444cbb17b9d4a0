package distlock

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGAdvisoryLockUnlocksOnAcquiringSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, "scheduler:anomaly-scan")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery("SELECT pg_advisory_unlock").
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	require.NotNil(t, lock.conn, "acquired lock must pin its session")

	require.NoError(t, lock.Release(context.Background()))
	assert.Nil(t, lock.conn, "release must return the session to the pool")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLockContendedReleasesConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lock := NewPGAdvisoryLock(db, "score:org1:acct1")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Nil(t, lock.conn)

	// Nothing was acquired, so release must not issue an unlock.
	require.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLockSameKeySameID(t *testing.T) {
	a := NewPGAdvisoryLock(nil, "scheduler:alert-check")
	b := NewPGAdvisoryLock(nil, "scheduler:alert-check")
	c := NewPGAdvisoryLock(nil, "scheduler:retention-cleanup")

	assert.Equal(t, a.lockID, b.lockID)
	assert.NotEqual(t, a.lockID, c.lockID)
}
