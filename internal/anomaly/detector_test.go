package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
)

type fakeStats struct {
	counts     []domain.DailyCount
	todayCount int
	active     []string
}

func (f *fakeStats) DailyCounts(_ context.Context, _, _ string, _, _ time.Time) ([]domain.DailyCount, error) {
	return f.counts, nil
}

func (f *fakeStats) CountOn(_ context.Context, _, _ string, _ time.Time) (int, error) {
	return f.todayCount, nil
}

func (f *fakeStats) ActiveAccountsOn(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return f.active, nil
}

var testNow = time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

// baseline builds counts for the trailing 30 days from the given per-day
// values, oldest first. Values beyond the slice stay zero-filled.
func baseline(values ...int) []domain.DailyCount {
	today := testNow.Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -30)
	var out []domain.DailyCount
	for i, v := range values {
		if v == 0 {
			continue
		}
		out = append(out, domain.DailyCount{Day: from.AddDate(0, 0, i), Count: v})
	}
	return out
}

// steadyBaseline is ten days each at 8, 12, and 10: mean 10, stddev ~1.63.
func steadyBaseline() []domain.DailyCount {
	values := make([]int, 30)
	for i := 0; i < 10; i++ {
		values[i] = 8
		values[10+i] = 12
		values[20+i] = 10
	}
	return baseline(values...)
}

func newTestDetector(stats *fakeStats) *Detector {
	d := NewDetector(stats)
	d.now = func() time.Time { return testNow }
	return d
}

func TestDetectSpike(t *testing.T) {
	// mean 10, stddev ~1.63: today at 16 gives z ~3.7 -> SPIKE high.
	stats := &fakeStats{counts: steadyBaseline(), todayCount: 16}
	res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.AnomalySpike, res.AnomalyType)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
	assert.Equal(t, 16, res.TodayCount)
	assert.Equal(t, 10.0, res.Mean)
	assert.GreaterOrEqual(t, res.ZScore, 3.0)
	assert.GreaterOrEqual(t, res.ExpectedMin, 0)
	assert.Greater(t, res.ExpectedMax, res.ExpectedMin)
}

func TestDetectModerateSpike(t *testing.T) {
	// today at 14 gives z between 2 and 3 -> SPIKE moderate.
	stats := &fakeStats{counts: steadyBaseline(), todayCount: 14}
	res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.AnomalySpike, res.AnomalyType)
	assert.Equal(t, domain.SeverityModerate, res.Severity)
}

func TestNormalDayNoAnomaly(t *testing.T) {
	stats := &fakeStats{counts: steadyBaseline(), todayCount: 11}
	res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDetectDrop(t *testing.T) {
	stats := &fakeStats{counts: steadyBaseline(), todayCount: 0}
	res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.AnomalyDrop, res.AnomalyType)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
	assert.Negative(t, res.ZScore)
}

func TestDropGatedForQuietAccounts(t *testing.T) {
	// Mean 3 (not above the gate), stddev 1: today at zero is z = -3, which
	// would be a DROP but for the quiet-account gate.
	values := make([]int, 30)
	for i := range values {
		if i%2 == 0 {
			values[i] = 2
		} else {
			values[i] = 4
		}
	}
	stats := &fakeStats{counts: baseline(values...), todayCount: 0}
	res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSuppressions(t *testing.T) {
	t.Run("insufficient history", func(t *testing.T) {
		// Only 5 active days.
		stats := &fakeStats{counts: baseline(50, 50, 50, 50, 50), todayCount: 500}
		res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("mean below one", func(t *testing.T) {
		// 8 active days of 1 signal: mean 8/30 < 1.
		stats := &fakeStats{counts: baseline(1, 1, 1, 1, 1, 1, 1, 1), todayCount: 40}
		res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("constant series", func(t *testing.T) {
		values := make([]int, 30)
		for i := range values {
			values[i] = 5
		}
		stats := &fakeStats{counts: baseline(values...), todayCount: 100}
		res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
		require.NoError(t, err)
		assert.Nil(t, res, "zero stddev is never anomalous")
	})
}

func TestExpectedRangeClampedToZero(t *testing.T) {
	// Mean 2.93 with large stddev: expectedMin would be negative.
	values := make([]int, 30)
	for i := 0; i < 8; i++ {
		values[i] = 11
	}
	stats := &fakeStats{counts: baseline(values...), todayCount: 30}
	res, err := newTestDetector(stats).DetectAccountAnomaly(context.Background(), "org1", "acct1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.ExpectedMin)
}
