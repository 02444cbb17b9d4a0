package domain

import "time"

// Tier is the coarse engagement classification derived from a score.
type Tier string

const (
	TierHot      Tier = "HOT"
	TierWarm     Tier = "WARM"
	TierCold     Tier = "COLD"
	TierInactive Tier = "INACTIVE"
)

// Trend describes how an account's score moved relative to the previous
// computation.
type Trend string

const (
	TrendRising  Trend = "RISING"
	TrendStable  Trend = "STABLE"
	TrendFalling Trend = "FALLING"
)

// TierThresholds holds the org-configurable minimum scores per tier.
type TierThresholds struct {
	Hot  int `json:"hot" yaml:"hot"`
	Warm int `json:"warm" yaml:"warm"`
	Cold int `json:"cold" yaml:"cold"`
}

// DefaultTierThresholds are used when an organization has no overrides.
var DefaultTierThresholds = TierThresholds{Hot: 80, Warm: 50, Cold: 20}

// TierFor maps a score to a tier under these thresholds.
func (t TierThresholds) TierFor(score int) Tier {
	switch {
	case score >= t.Hot:
		return TierHot
	case score >= t.Warm:
		return TierWarm
	case score >= t.Cold:
		return TierCold
	default:
		return TierInactive
	}
}

// ScoreFactor is one weighted component of an account score.
type ScoreFactor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// AccountScore is the materialized engagement score for one account.
// One row per (organization, account), upserted on every recomputation.
// Invariant: Score is the rounded sum of factor values, clamped to [0,100].
// Tier and Trend are derived from the score, never independent state.
type AccountScore struct {
	OrganizationID string        `json:"organization_id"`
	AccountID      string        `json:"account_id"`
	Score          int           `json:"score"`
	Tier           Tier          `json:"tier"`
	Trend          Trend         `json:"trend"`
	Factors        []ScoreFactor `json:"factors"`
	SignalCount    int           `json:"signal_count"`
	UserCount      int           `json:"user_count"`
	LastSignalAt   *time.Time    `json:"last_signal_at,omitempty"`
	ComputedAt     time.Time     `json:"computed_at"`
}

// CompanySize buckets firmographic company size for the fit factor.
type CompanySize string

const (
	SizeStartup    CompanySize = "STARTUP"
	SizeSmall      CompanySize = "SMALL"
	SizeMedium     CompanySize = "MEDIUM"
	SizeLarge      CompanySize = "LARGE"
	SizeEnterprise CompanySize = "ENTERPRISE"
)

// AccountFacts carries the ancillary (non-signal) inputs to scoring:
// firmographics and contact seniority. Missing facts degrade to defaults,
// they never fail the computation.
type AccountFacts struct {
	CompanySize    *CompanySize `json:"company_size,omitempty"`
	SeniorContacts int          `json:"senior_contacts"`
}
