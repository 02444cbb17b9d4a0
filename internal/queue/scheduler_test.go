package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerJobIDDeterministic(t *testing.T) {
	trig := Trigger{Name: "anomaly-scan", Interval: time.Hour}

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	first := trig.jobID(base.Add(5 * time.Minute))
	second := trig.jobID(base.Add(42 * time.Minute))

	// Any firing within the same interval bucket produces the same ID.
	assert.Equal(t, first, second)
	assert.Equal(t, "anomaly-scan-1786788000", first)

	next := trig.jobID(base.Add(time.Hour))
	assert.NotEqual(t, first, next)
}

func TestFanoutJobID(t *testing.T) {
	at := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

	a := FanoutJobID("anomaly-scan", "org1", at, time.Hour)
	b := FanoutJobID("anomaly-scan", "org1", at.Add(20*time.Minute), time.Hour)
	assert.Equal(t, a, b)

	// Distinct tenants never collide.
	assert.NotEqual(t, a, FanoutJobID("anomaly-scan", "org2", at, time.Hour))

	// Non-positive interval falls back to one hour.
	assert.Equal(t, a, FanoutJobID("anomaly-scan", "org1", at, 0))
}

func TestScoreJobIDBucketsByMinute(t *testing.T) {
	at := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

	a := ScoreJobID("org1", "acct1", at)
	assert.Equal(t, "score:org1:acct1:1786789800", a)

	// Same minute coalesces; the next minute schedules fresh work so a
	// signal arriving behind an active job is not swallowed.
	assert.Equal(t, a, ScoreJobID("org1", "acct1", at.Add(45*time.Second)))
	assert.NotEqual(t, a, ScoreJobID("org1", "acct1", at.Add(time.Minute)))

	assert.NotEqual(t, a, ScoreJobID("org1", "acct2", at))
}
