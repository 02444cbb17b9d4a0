package domain

import "time"

// Lane names the durable queues. Each lane runs with its own worker
// concurrency; lanes make no ordering guarantees relative to each other.
type Lane string

const (
	LaneSignalProcessing Lane = "signal-processing"
	LaneScoreComputation Lane = "score-computation"
	LaneWebhookDelivery  Lane = "webhook-delivery"
	LaneAnomalyDetection Lane = "anomaly-detection"
	LaneAlertEvaluation  Lane = "alert-evaluation"
	LaneAlertCheck       Lane = "alert-check"
	LaneRetention        Lane = "retention"
)

// JobStatus is the lifecycle state of a queued job.
// queued -> active -> {completed | queued (retry) | dead_letter}.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobActive     JobStatus = "active"
	JobCompleted  JobStatus = "completed"
	JobDeadLetter JobStatus = "dead_letter"
)

// Job is one unit of work on a lane. JobID, when set, makes enqueue
// idempotent: a second enqueue with the same JobID while the first is still
// queued or active is a no-op.
type Job struct {
	ID           string     `json:"id"`
	Lane         Lane       `json:"lane"`
	Name         string     `json:"name"`
	JobID        *string    `json:"job_id,omitempty"`
	Payload      []byte     `json:"payload"`
	AttemptsMade int        `json:"attempts_made"`
	MaxAttempts  int        `json:"max_attempts"`
	Status       JobStatus  `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	RunAt        time.Time  `json:"run_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
