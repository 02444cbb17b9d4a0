package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
)

type fakeLock struct {
	acquired   bool
	acquireErr error
	acquires   int
	releases   int
}

func (l *fakeLock) Acquire(_ context.Context) (bool, error) {
	l.acquires++
	return l.acquired, l.acquireErr
}

func (l *fakeLock) Release(_ context.Context) error {
	l.releases++
	return nil
}

func scoreJob() *domain.Job {
	return &domain.Job{
		ID:      "job-1",
		Lane:    domain.LaneScoreComputation,
		Payload: []byte(`{"kind":"tenant-task","organizationId":"org1","accountId":"acct1"}`),
	}
}

func handlerFixture(lock *fakeLock) (*JobHandler, *fakeScoreStore, *string) {
	now := time.Now().UTC()
	signals := &fakeSignalSource{signals: makeSignals(now, 2, 2, 2), lastAt: &now}
	store := &fakeScoreStore{}
	engine := newTestEngine(signals, &fakeFactsSource{}, store)

	var lockedKey string
	var factory LockFactory
	if lock != nil {
		factory = func(key string) Lock {
			lockedKey = key
			return lock
		}
	}
	return NewJobHandler(engine, factory), store, &lockedKey
}

func TestHandleJobScoresUnderLock(t *testing.T) {
	lock := &fakeLock{acquired: true}
	h, store, key := handlerFixture(lock)

	require.NoError(t, h.HandleJob(context.Background(), scoreJob()))

	assert.Equal(t, "score:org1:acct1", *key)
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 1, lock.releases)
	assert.NotNil(t, store.upserted)
}

func TestHandleJobContendedLockRetries(t *testing.T) {
	lock := &fakeLock{acquired: false}
	h, store, _ := handlerFixture(lock)

	// Held elsewhere: the error sends the job through the queue's retry path.
	err := h.HandleJob(context.Background(), scoreJob())
	require.Error(t, err)
	assert.Nil(t, store.upserted)
	assert.Zero(t, lock.releases)
}

func TestHandleJobLockErrorProceedsUnlocked(t *testing.T) {
	lock := &fakeLock{acquireErr: errors.New("redis down")}
	h, store, _ := handlerFixture(lock)

	require.NoError(t, h.HandleJob(context.Background(), scoreJob()))
	assert.NotNil(t, store.upserted)
	assert.Zero(t, lock.releases)
}

func TestHandleJobWithoutLockFactory(t *testing.T) {
	h, store, _ := handlerFixture(nil)
	require.NoError(t, h.HandleJob(context.Background(), scoreJob()))
	assert.NotNil(t, store.upserted)
}

func TestHandleJobRejectsNonTenantPayload(t *testing.T) {
	h, _, _ := handlerFixture(nil)

	job := &domain.Job{Payload: []byte(`{"kind":"scheduled-fanout"}`)}
	assert.Error(t, h.HandleJob(context.Background(), job))

	job = &domain.Job{Payload: []byte(`{"kind":"tenant-task","organizationId":"org1"}`)}
	assert.Error(t, h.HandleJob(context.Background(), job))
}
