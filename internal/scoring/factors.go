package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
)

// Factor names, in the order they appear in every computed score.
const (
	FactorUserCount       = "user_count"
	FactorUsageVelocity   = "usage_velocity"
	FactorFeatureBreadth  = "feature_breadth"
	FactorRecency         = "engagement_recency"
	FactorFreshness       = "signal_freshness"
	FactorSeniority       = "seniority_signals"
	FactorFirmographicFit = "firmographic_fit"
)

// Factor weights sum to 1.0; each factor's value is capped at weight*100.
const (
	weightUserCount     = 0.20
	weightVelocity      = 0.20
	weightBreadth       = 0.15
	weightRecency       = 0.15
	weightFreshness     = 0.10
	weightSeniority     = 0.10
	weightFirmographics = 0.10
)

// velocityWindow is the "recent" span whose decay-weighted mass is compared
// against the whole window for the usage_velocity factor.
const velocityWindow = 7 * 24 * time.Hour

// firmographicFit maps company size buckets to fit points. Mid-market sizes
// score highest; huge orgs rarely convert through product-led motion.
var firmographicFit = map[domain.CompanySize]float64{
	domain.SizeStartup:    8,
	domain.SizeSmall:      10,
	domain.SizeMedium:     8,
	domain.SizeLarge:      6,
	domain.SizeEnterprise: 4,
}

const firmographicDefault = 5

// seniorTitleMarkers are case-insensitive substrings that mark a contact
// title as senior for the seniority_signals factor.
var seniorTitleMarkers = []string{
	"vp", "director", "head", "cto", "ceo", "founder", "chief", "president",
}

// IsSeniorTitle reports whether a contact title reads as senior
// (substring match, case-insensitive).
func IsSeniorTitle(title string) bool {
	t := strings.ToLower(title)
	for _, m := range seniorTitleMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

// CountSeniorTitles counts titles that IsSeniorTitle matches.
func CountSeniorTitles(titles []string) int {
	n := 0
	for _, t := range titles {
		if IsSeniorTitle(t) {
			n++
		}
	}
	return n
}

// ComputeFactors evaluates the seven score factors for one account.
// signals is the account's history inside the rolling window; lastSignalAt is
// the timestamp of the most recent signal ever recorded (it may predate the
// window), used so recency does not cliff when the window slides past it.
func ComputeFactors(signals []domain.Signal, lastSignalAt *time.Time, facts domain.AccountFacts, hl *HalfLives, now time.Time) []domain.ScoreFactor {
	var (
		actors      = map[string]struct{}{}
		types       = map[string]struct{}{}
		totalMass   float64
		recentMass  float64
		weightSum   float64
		recentSince = now.Add(-velocityWindow)
	)

	for _, s := range signals {
		if s.ActorID != nil && *s.ActorID != "" {
			actors[*s.ActorID] = struct{}{}
		}
		types[s.Type] = struct{}{}

		w := hl.Weight(s.Type, s.Timestamp, now)
		totalMass += w
		weightSum += w
		if s.Timestamp.After(recentSince) {
			recentMass += w
		}
	}

	// user_count: distinct active actors, 4 points each up to 20.
	userCount := math.Min(float64(len(actors))*4, weightUserCount*100)

	// usage_velocity: share of decay-weighted mass in the last 7 days.
	var velocity float64
	if totalMass > 0 {
		velocity = recentMass / totalMass * (weightVelocity * 100)
	}

	// feature_breadth: distinct signal types, 3 points each up to 15.
	breadth := math.Min(float64(len(types))*3, weightBreadth*100)

	// engagement_recency: step function on days since the most recent signal
	// ever, independent of the scoring window.
	var recency float64
	if lastSignalAt != nil {
		days := now.Sub(*lastSignalAt).Hours() / 24
		switch {
		case days <= 1:
			recency = 15
		case days <= 3:
			recency = 12
		case days <= 7:
			recency = 8
		case days <= 14:
			recency = 4
		}
	}

	// signal_freshness: step function on the average per-signal decay weight.
	// Rewards concentration of activity in the recent past even when total
	// volume is flat.
	var freshness float64
	if len(signals) > 0 {
		avg := weightSum / float64(len(signals))
		switch {
		case avg >= 0.8:
			freshness = 10
		case avg >= 0.6:
			freshness = 8
		case avg >= 0.4:
			freshness = 6
		case avg >= 0.2:
			freshness = 3
		}
	}

	// seniority_signals: 5 points per senior contact up to 10.
	seniority := math.Min(float64(facts.SeniorContacts)*5, weightSeniority*100)

	// firmographic_fit: company size bucket lookup, default when unknown.
	fit := float64(firmographicDefault)
	if facts.CompanySize != nil {
		if v, ok := firmographicFit[*facts.CompanySize]; ok {
			fit = v
		}
	}

	return []domain.ScoreFactor{
		{Name: FactorUserCount, Weight: weightUserCount, Value: userCount,
			Description: fmt.Sprintf("%d distinct active users", len(actors))},
		{Name: FactorUsageVelocity, Weight: weightVelocity, Value: round2(velocity),
			Description: "share of decay-weighted activity in the last 7 days"},
		{Name: FactorFeatureBreadth, Weight: weightBreadth, Value: breadth,
			Description: fmt.Sprintf("%d distinct signal types", len(types))},
		{Name: FactorRecency, Weight: weightRecency, Value: recency,
			Description: "days since most recent signal"},
		{Name: FactorFreshness, Weight: weightFreshness, Value: freshness,
			Description: "average decay weight across the window"},
		{Name: FactorSeniority, Weight: weightSeniority, Value: seniority,
			Description: fmt.Sprintf("%d senior contacts", facts.SeniorContacts)},
		{Name: FactorFirmographicFit, Weight: weightFirmographics, Value: fit,
			Description: "company size fit"},
	}
}

// ScoreFromFactors sums factor values, rounds, and clamps to [0,100].
func ScoreFromFactors(factors []domain.ScoreFactor) int {
	var sum float64
	for _, f := range factors {
		sum += f.Value
	}
	score := int(math.Round(sum))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// TrendFor derives the trend from the previous score. A delta of at least
// ±5 points moves the trend; anything smaller, or no previous score, is
// STABLE.
func TrendFor(previous *int, score int) domain.Trend {
	if previous == nil {
		return domain.TrendStable
	}
	delta := score - *previous
	switch {
	case delta >= 5:
		return domain.TrendRising
	case delta <= -5:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
