package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
)

type fakeRunner struct {
	name   string
	err    error
	events []ScoreChangedEvent
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) RunScoreChanged(_ context.Context, ev ScoreChangedEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

var testNow = time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

func scoreChangedJob(t *testing.T, payload map[string]interface{}) *domain.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Job{
		ID:      "job-1",
		Lane:    domain.LaneSignalProcessing,
		Name:    "workflow.score_changed",
		Payload: raw,
	}
}

func newTestExecutor(runners ...Runner) *Executor {
	e := NewExecutor(runners...)
	e.now = func() time.Time { return testNow }
	return e
}

func TestHandleJobDispatchesToAllRunners(t *testing.T) {
	first := &fakeRunner{name: "first"}
	second := &fakeRunner{name: "second"}
	e := newTestExecutor(first, second)

	job := scoreChangedJob(t, map[string]interface{}{
		"kind":           "tenant-task",
		"organizationId": "org1",
		"accountId":      "acct1",
		"newScore":       72,
		"oldScore":       55,
	})
	require.NoError(t, e.HandleJob(context.Background(), job))

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)

	ev := first.events[0]
	assert.Equal(t, "org1", ev.OrganizationID)
	assert.Equal(t, "acct1", ev.AccountID)
	assert.Equal(t, 72, ev.NewScore)
	require.NotNil(t, ev.OldScore)
	assert.Equal(t, 55, *ev.OldScore)
	assert.Equal(t, testNow, ev.OccurredAt)
}

func TestHandleJobRunnerFailureDoesNotStopOthers(t *testing.T) {
	failing := &fakeRunner{name: "crm", err: errors.New("crm down")}
	healthy := &fakeRunner{name: "log"}
	e := newTestExecutor(failing, healthy)

	job := scoreChangedJob(t, map[string]interface{}{
		"kind":           "tenant-task",
		"organizationId": "org1",
		"accountId":      "acct1",
		"newScore":       40,
	})
	require.NoError(t, e.HandleJob(context.Background(), job))

	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
}

func TestHandleJobFirstScoreHasNoOldScore(t *testing.T) {
	r := &fakeRunner{name: "log"}
	e := newTestExecutor(r)

	job := scoreChangedJob(t, map[string]interface{}{
		"kind":           "tenant-task",
		"organizationId": "org1",
		"accountId":      "acct1",
		"newScore":       30,
	})
	require.NoError(t, e.HandleJob(context.Background(), job))

	require.Len(t, r.events, 1)
	assert.Nil(t, r.events[0].OldScore)
}

func TestHandleJobRejectsInvalidPayloads(t *testing.T) {
	r := &fakeRunner{name: "log"}
	e := newTestExecutor(r)

	cases := map[string]map[string]interface{}{
		"fanout kind": {
			"kind": "scheduled-fanout",
		},
		"missing account": {
			"kind":           "tenant-task",
			"organizationId": "org1",
			"newScore":       10,
		},
		"missing new score": {
			"kind":           "tenant-task",
			"organizationId": "org1",
			"accountId":      "acct1",
		},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			err := e.HandleJob(context.Background(), scoreChangedJob(t, payload))
			assert.Error(t, err)
		})
	}
	assert.Empty(t, r.events)
}

func TestHandleJobUnknownName(t *testing.T) {
	e := newTestExecutor()
	job := &domain.Job{ID: "job-1", Lane: domain.LaneSignalProcessing, Name: "workflow.unknown"}
	err := e.HandleJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow job")
}
