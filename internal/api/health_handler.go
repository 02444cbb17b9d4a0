package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luminlabs/pulse/internal/domain"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// QueueDepthReader reports the number of pending jobs on a lane.
type QueueDepthReader interface {
	Depth(ctx context.Context, lane domain.Lane) (int64, error)
}

// HealthChecker probes the service's dependencies. Redis may be nil; it is
// then reported as not configured rather than down.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	queue       QueueDepthReader
	startTime   time.Time
}

// NewHealthChecker creates a health checker over the given dependencies.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, queue QueueDepthReader) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		queue:       queue,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// depthWarnThreshold marks the queue check degraded when a lane backs up.
const depthWarnThreshold = 10000

// HandleHealth returns the health of all components. Always 200; the status
// field conveys health. Use /health/ready for probes that need HTTP 503.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	respondJSON(w, http.StatusOK, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 200 only when the service can accept traffic.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}
	respondJSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, 3)

	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"queue", hc.checkQueue(ctx)} }()

	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	if latency > time.Second {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("slow response (%s)", latency),
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkRedis is non-critical: Redis down means no realtime push and PG
// advisory locks instead of Redis locks, not an outage.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "up", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

func (hc *HealthChecker) checkQueue(ctx context.Context) ComponentCheck {
	if hc.queue == nil {
		return ComponentCheck{Status: "up", Message: "not configured"}
	}

	depthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	depth, err := hc.queue.Depth(depthCtx, domain.LaneScoreComputation)
	if err != nil {
		return ComponentCheck{Status: "down", Message: fmt.Sprintf("depth query failed: %v", err)}
	}
	if depth > depthWarnThreshold {
		return ComponentCheck{
			Status:  "degraded",
			Message: fmt.Sprintf("score-computation backlog at %d jobs", depth),
		}
	}
	return ComponentCheck{Status: "up", Message: fmt.Sprintf("%d pending jobs", depth)}
}

// determineOverallStatus: unhealthy when the database is down, degraded when
// any component is degraded or a non-critical one is down.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status != "up" {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%dh%dm%ds", h, m, d/time.Second)
}
