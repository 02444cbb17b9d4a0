package domain

// AnomalyType classifies the direction of a daily-volume anomaly.
type AnomalyType string

const (
	AnomalySpike AnomalyType = "SPIKE"
	AnomalyDrop  AnomalyType = "DROP"
)

// AnomalySeverity grades an anomaly by its z-score magnitude.
type AnomalySeverity string

const (
	SeverityModerate AnomalySeverity = "moderate"
	SeverityHigh     AnomalySeverity = "high"
)

// AnomalyResult describes one abnormal day of signal volume for an account.
// It is ephemeral: never persisted directly, only materialized as a
// Notification. All float fields are rounded to 2 decimals for presentation.
type AnomalyResult struct {
	AccountID   string          `json:"account_id"`
	AnomalyType AnomalyType     `json:"anomaly_type"`
	Severity    AnomalySeverity `json:"severity"`
	TodayCount  int             `json:"today_count"`
	Mean        float64         `json:"mean"`
	StdDev      float64         `json:"std_dev"`
	ExpectedMin int             `json:"expected_min"`
	ExpectedMax int             `json:"expected_max"`
	ZScore      float64         `json:"z_score"`
}
