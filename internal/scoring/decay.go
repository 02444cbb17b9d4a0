// Package scoring turns an account's signal history into a bounded
// engagement score, tier, and trend using exponential recency decay.
package scoring

import (
	"math"
	"time"
)

// DefaultHalfLifeDays applies to signal types without a configured half-life.
const DefaultHalfLifeDays = 14.0

// defaultHalfLives is the built-in half-life table in days. High-intent
// signals (demos, pricing views) decay faster than ambient usage so a stale
// burst of buying interest doesn't prop up a score for weeks.
var defaultHalfLives = map[string]float64{
	"api_call":       21,
	"feature_used":   14,
	"session":        14,
	"doc_view":       10,
	"sdk_install":    30,
	"demo_requested": 7,
	"pricing_view":   7,
	"support_ticket": 10,
}

// HalfLives resolves a signal type to its decay half-life in days.
type HalfLives struct {
	byType     map[string]float64
	defaultDur float64
}

// NewHalfLives builds a lookup from the given overrides. Types not listed
// fall back to the built-in table, then to defaultDays (or
// DefaultHalfLifeDays when defaultDays <= 0).
func NewHalfLives(overrides map[string]float64, defaultDays float64) *HalfLives {
	if defaultDays <= 0 {
		defaultDays = DefaultHalfLifeDays
	}
	byType := make(map[string]float64, len(defaultHalfLives)+len(overrides))
	for k, v := range defaultHalfLives {
		byType[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			byType[k] = v
		}
	}
	return &HalfLives{byType: byType, defaultDur: defaultDays}
}

// For returns the half-life in days for the given signal type.
func (h *HalfLives) For(signalType string) float64 {
	if d, ok := h.byType[signalType]; ok {
		return d
	}
	return h.defaultDur
}

// DecayWeight returns the contribution weight of a signal aged ageDays with
// the given half-life: exp(-ln(2)/halfLife * age), in (0,1]. The weight is
// exactly 0.5 at age == halfLife and strictly decreasing in age. Negative
// ages (clock skew on client-supplied timestamps) are treated as zero.
func DecayWeight(halfLifeDays, ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 / halfLifeDays * ageDays)
}

// Weight returns the decay weight for a signal of the given type observed at
// ts, evaluated at now.
func (h *HalfLives) Weight(signalType string, ts, now time.Time) float64 {
	ageDays := now.Sub(ts).Hours() / 24
	return DecayWeight(h.For(signalType), ageDays)
}
