// Package anomaly flags statistically abnormal daily signal volume per
// account using a rolling 30-day baseline and z-score thresholds.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

const (
	// baselineDays is the trailing window used for the baseline, exclusive
	// of today.
	baselineDays = 30

	// minActiveDays suppresses detection until the account has this many
	// distinct days with any activity in the window.
	minActiveDays = 7

	// spikeZ and dropZ are the z-score thresholds; highZ upgrades severity.
	spikeZ = 2.0
	dropZ  = -2.0
	highZ  = 3.0

	// dropMeanGate suppresses DROP for naturally quiet accounts: a baseline
	// mean of 3/day or less dropping to zero is noise, not an anomaly.
	dropMeanGate = 3.0
)

// SignalStats supplies daily signal-volume data for detection.
type SignalStats interface {
	// DailyCounts returns per-day signal counts for the account for days in
	// [from, to). Days with no signals may be omitted; the detector
	// zero-fills.
	DailyCounts(ctx context.Context, orgID, accountID string, from, to time.Time) ([]domain.DailyCount, error)
	// CountOn returns the signal count for the account on the given day.
	CountOn(ctx context.Context, orgID, accountID string, day time.Time) (int, error)
	// ActiveAccountsOn returns account IDs with at least one signal on the
	// given day.
	ActiveAccountsOn(ctx context.Context, orgID string, day time.Time) ([]string, error)
}

// Detector computes per-account anomaly results.
type Detector struct {
	stats SignalStats
	now   func() time.Time
}

// NewDetector creates a detector over the given stats source.
func NewDetector(stats SignalStats) *Detector {
	return &Detector{stats: stats, now: time.Now}
}

// DetectAccountAnomaly compares today's signal count against the trailing
// 30-day baseline. Returns (nil, nil) when activity is normal or when one of
// the suppression rules applies: fewer than 7 active days of history, mean
// below 1 (inactive account, noise dominates), or zero standard deviation
// (perfectly constant activity is not anomalous by definition).
func (d *Detector) DetectAccountAnomaly(ctx context.Context, orgID, accountID string) (*domain.AnomalyResult, error) {
	today := d.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -baselineDays)

	counts, err := d.stats.DailyCounts(ctx, orgID, accountID, from, today)
	if err != nil {
		return nil, fmt.Errorf("load daily counts: %w", err)
	}

	// Zero-fill so the series always has exactly baselineDays points.
	series := make([]float64, baselineDays)
	activeDays := 0
	for _, c := range counts {
		idx := int(c.Day.UTC().Truncate(24*time.Hour).Sub(from).Hours() / 24)
		if idx < 0 || idx >= baselineDays {
			continue
		}
		series[idx] = float64(c.Count)
		if c.Count > 0 {
			activeDays++
		}
	}

	if activeDays < minActiveDays {
		return nil, nil
	}

	mean, stddev := meanStdDev(series)
	if mean < 1 || stddev == 0 {
		return nil, nil
	}

	todayCount, err := d.stats.CountOn(ctx, orgID, accountID, today)
	if err != nil {
		return nil, fmt.Errorf("load today count: %w", err)
	}

	z := (float64(todayCount) - mean) / stddev

	var anomalyType domain.AnomalyType
	switch {
	case z >= spikeZ:
		anomalyType = domain.AnomalySpike
	case z <= dropZ && mean > dropMeanGate:
		anomalyType = domain.AnomalyDrop
	default:
		return nil, nil
	}

	severity := domain.SeverityModerate
	if math.Abs(z) >= highZ {
		severity = domain.SeverityHigh
	}

	expectedMin := int(math.Round(mean - 2*stddev))
	if expectedMin < 0 {
		expectedMin = 0
	}

	return &domain.AnomalyResult{
		AccountID:   accountID,
		AnomalyType: anomalyType,
		Severity:    severity,
		TodayCount:  todayCount,
		Mean:        round2(mean),
		StdDev:      round2(stddev),
		ExpectedMin: expectedMin,
		ExpectedMax: int(math.Round(mean + 2*stddev)),
		ZScore:      round2(z),
	}, nil
}

// meanStdDev returns the population mean and standard deviation.
func meanStdDev(series []float64) (float64, float64) {
	n := float64(len(series))
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / n

	var sqDiff float64
	for _, v := range series {
		d := v - mean
		sqDiff += d * d
	}
	return mean, math.Sqrt(sqDiff / n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
