package anomaly

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// OrganizationSource enumerates tenants eligible for a scan.
type OrganizationSource interface {
	// ActiveOrganizations returns organization IDs with at least one signal
	// on the given day.
	ActiveOrganizations(ctx context.Context, day time.Time) ([]string, error)
}

// Notifier materializes anomaly results as notifications, with the 24h
// per-(org, account, type) cooldown enforced by the implementation. The bool
// reports whether a notification was actually created (false = suppressed).
type Notifier interface {
	NotifyAnomaly(ctx context.Context, orgID string, res *domain.AnomalyResult) (bool, error)
}

// JobEnqueuer enqueues the per-tenant scan jobs produced by fan-out.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}) error
}

// Service runs organization-wide anomaly scans and handles the
// anomaly-detection lane's jobs.
type Service struct {
	detector *Detector
	stats    SignalStats
	orgs     OrganizationSource
	notifier Notifier
	jobs     JobEnqueuer

	// fanoutInterval buckets per-tenant job IDs; matches the scan trigger
	// interval so a duplicate scheduler firing enqueues nothing new.
	fanoutInterval time.Duration
	now            func() time.Time
}

// NewService creates the anomaly scan service.
func NewService(detector *Detector, stats SignalStats, orgs OrganizationSource, notifier Notifier, jobs JobEnqueuer, fanoutInterval time.Duration) *Service {
	if fanoutInterval <= 0 {
		fanoutInterval = time.Hour
	}
	return &Service{
		detector:       detector,
		stats:          stats,
		orgs:           orgs,
		notifier:       notifier,
		jobs:           jobs,
		fanoutInterval: fanoutInterval,
		now:            time.Now,
	}
}

// ScanOrganization runs the per-account detector over every account in the
// organization with at least one signal today. A per-account failure is
// logged and skipped; it never aborts the batch.
func (s *Service) ScanOrganization(ctx context.Context, orgID string) ([]domain.AnomalyResult, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)

	accounts, err := s.stats.ActiveAccountsOn(ctx, orgID, today)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	var results []domain.AnomalyResult
	for _, accountID := range accounts {
		res, err := s.detector.DetectAccountAnomaly(ctx, orgID, accountID)
		if err != nil {
			log.Printf("[AnomalyScan] detection failed for account %s in org %s, skipping: %v", accountID, orgID, err)
			continue
		}
		if res == nil {
			continue
		}
		results = append(results, *res)

		created, err := s.notifier.NotifyAnomaly(ctx, orgID, res)
		if err != nil {
			log.Printf("[AnomalyScan] notification failed for account %s in org %s: %v", accountID, orgID, err)
			continue
		}
		if !created {
			log.Printf("[AnomalyScan] %s for account %s suppressed by cooldown", res.AnomalyType, accountID)
		}
	}
	return results, nil
}

// HandleJob processes one anomaly-detection lane job. A scheduled-fanout job
// enqueues one tenant task per active organization with a deterministic job
// ID; a tenant task scans that organization.
func (s *Service) HandleJob(ctx context.Context, job *domain.Job) error {
	payload, err := queue.ParseTask(job.Payload)
	if err != nil {
		return err
	}

	switch payload.Kind {
	case queue.KindScheduledFanout:
		return s.fanOut(ctx)
	case queue.KindTenantTask:
		_, err := s.ScanOrganization(ctx, payload.OrganizationID)
		return err
	default:
		return fmt.Errorf("unhandled payload kind %q", payload.Kind)
	}
}

func (s *Service) fanOut(ctx context.Context) error {
	today := s.now().UTC().Truncate(24 * time.Hour)
	orgs, err := s.orgs.ActiveOrganizations(ctx, today)
	if err != nil {
		return fmt.Errorf("list active organizations: %w", err)
	}

	enqueued := 0
	for _, orgID := range orgs {
		jobID := queue.FanoutJobID("anomaly-scan", orgID, s.now(), s.fanoutInterval)
		payload := queue.TaskPayload{Kind: queue.KindTenantTask, OrganizationID: orgID}
		if err := s.jobs.Enqueue(ctx, domain.LaneAnomalyDetection, "anomaly.scan", jobID, payload); err != nil {
			// Per-tenant isolation: log and keep going.
			log.Printf("[AnomalyScan] fan-out enqueue failed for org %s: %v", orgID, err)
			continue
		}
		enqueued++
	}
	log.Printf("[AnomalyScan] fanned out %d scan jobs across %d organizations", enqueued, len(orgs))
	return nil
}
