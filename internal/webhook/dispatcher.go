// Package webhook delivers organization events to registered HTTP
// destinations with HMAC signing, per-attempt records, per-host rate
// limiting, and a HEALTHY/FAILING health state per subscription.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// maxRecordedResponse bounds the stored response body per attempt.
const maxRecordedResponse = 2048

// SubscriptionStore persists subscriptions, their health state, and attempts.
type SubscriptionStore interface {
	Get(ctx context.Context, id string) (*domain.WebhookSubscription, error)
	ListForOrg(ctx context.Context, orgID string) ([]domain.WebhookSubscription, error)
	// MarkHealthy sets status HEALTHY and stamps last_success_at.
	MarkHealthy(ctx context.Context, id string) error
	// MarkFailing sets status FAILING and stamps last_failure_at.
	MarkFailing(ctx context.Context, id string) error
	RecordAttempt(ctx context.Context, a *domain.DeliveryAttempt) error
}

// JobEnqueuer enqueues delivery jobs with a per-job retry cap.
type JobEnqueuer interface {
	EnqueueWithAttempts(ctx context.Context, lane domain.Lane, name, jobID string, payload interface{}, maxAttempts int) error
}

// Publisher fans an event out to an organization's subscriptions by
// enqueuing one delivery job per matching subscription. Routing side effects
// through the queue gives them the same retry and observability guarantees
// as primary work.
type Publisher struct {
	subs        SubscriptionStore
	jobs        JobEnqueuer
	maxAttempts int
}

// NewPublisher creates an event publisher. maxAttempts caps delivery retries
// per job; non-positive values use the queue default.
func NewPublisher(subs SubscriptionStore, jobs JobEnqueuer, maxAttempts int) *Publisher {
	return &Publisher{subs: subs, jobs: jobs, maxAttempts: maxAttempts}
}

// Publish enqueues one webhook-delivery job per subscription registered for
// the event. A per-subscription enqueue failure is logged and skipped.
func (p *Publisher) Publish(ctx context.Context, orgID, event string, payload map[string]interface{}) error {
	subs, err := p.subs.ListForOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.WantsEvent(event) {
			continue
		}
		job := queue.WebhookDeliveryPayload{
			OrganizationID: orgID,
			Event:          event,
			Payload:        payload,
			SubscriptionID: sub.ID,
		}
		if err := p.jobs.EnqueueWithAttempts(ctx, domain.LaneWebhookDelivery, "webhook.deliver", "", job, p.maxAttempts); err != nil {
			log.Printf("[WebhookPublisher] enqueue failed for subscription %s: %v", sub.ID, err)
		}
	}
	return nil
}

// envelope is the JSON body POSTed to the destination.
type envelope struct {
	Event          string                 `json:"event"`
	OrganizationID string                 `json:"organization_id"`
	Timestamp      time.Time              `json:"timestamp"`
	DeliveryID     string                 `json:"delivery_id"`
	Data           map[string]interface{} `json:"data"`
}

// Dispatcher executes webhook-delivery jobs: one HTTP attempt per job
// execution, with the queue providing retry/backoff between attempts. On the
// final failed attempt the subscription is marked FAILING and the job
// dead-letters; any later success flips it back to HEALTHY.
type Dispatcher struct {
	subs    SubscriptionStore
	client  *http.Client
	limiter *RateLimiter
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. limiter may be nil.
func NewDispatcher(subs SubscriptionStore, timeout time.Duration, limiter *RateLimiter) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		subs:    subs,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		now:     time.Now,
	}
}

// HandleJob processes one webhook-delivery lane job.
func (d *Dispatcher) HandleJob(ctx context.Context, job *domain.Job) error {
	payload, err := queue.ParseWebhookDelivery(job.Payload)
	if err != nil {
		return err
	}

	targetURL, secret := payload.TargetURL, payload.Secret
	var sub *domain.WebhookSubscription
	if payload.SubscriptionID != "" {
		sub, err = d.subs.Get(ctx, payload.SubscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription %s: %w", payload.SubscriptionID, err)
		}
		targetURL, secret = sub.TargetURL, sub.Secret
	}
	if targetURL == "" {
		return fmt.Errorf("delivery job %s has no target", job.ID)
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}
	// A limiter rejection happens before any HTTP attempt, so the job yields
	// back to the queue instead of spending one of its attempts on it.
	if d.limiter != nil && !d.limiter.Allow(ctx, parsed.Host) {
		return &queue.YieldError{
			After: time.Minute,
			Err:   fmt.Errorf("delivery rate limit reached for %s", parsed.Host),
		}
	}

	body, err := json.Marshal(envelope{
		Event:          payload.Event,
		OrganizationID: payload.OrganizationID,
		Timestamp:      d.now().UTC(),
		DeliveryID:     job.ID,
		Data:           payload.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode delivery body: %w", err)
	}

	statusCode, respBody, sendErr := d.send(ctx, targetURL, secret, payload.Event, job.ID, body)

	attempt := &domain.DeliveryAttempt{
		SubscriptionID: payload.SubscriptionID,
		JobID:          job.ID,
		Event:          payload.Event,
		StatusCode:     statusCode,
		Response:       respBody,
		Success:        sendErr == nil,
		Attempt:        job.AttemptsMade,
		MaxAttempts:    job.MaxAttempts,
	}
	// Every attempt is recorded, success or failure, regardless of outcome.
	if err := d.subs.RecordAttempt(ctx, attempt); err != nil {
		log.Printf("[WebhookDispatcher] attempt record failed for job %s: %v", job.ID, err)
	}

	if sendErr == nil {
		if sub != nil {
			if err := d.subs.MarkHealthy(ctx, sub.ID); err != nil {
				log.Printf("[WebhookDispatcher] mark healthy failed for %s: %v", sub.ID, err)
			}
		}
		return nil
	}

	// Final attempt: surface sustained failure on the subscription, then let
	// the job dead-letter. "Retry this delivery" is bounded; "retry forever"
	// is not a thing.
	if sub != nil && job.AttemptsMade >= job.MaxAttempts {
		if err := d.subs.MarkFailing(ctx, sub.ID); err != nil {
			log.Printf("[WebhookDispatcher] mark failing failed for %s: %v", sub.ID, err)
		}
	}

	// sendErr may already be a RetryAfterError (429 with Retry-After); the
	// supervisor unwraps it for the requeue delay.
	return sendErr
}

// send performs one signed HTTP POST. Returns the status code (0 on
// transport error), a truncated response body, and nil on 2xx.
func (d *Dispatcher) send(ctx context.Context, targetURL, secret, event, deliveryID string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDelivery, deliveryID)
	if secret != "" {
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRecordedResponse))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, string(raw), nil
	}

	err = fmt.Errorf("target returned status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			err = &queue.RetryAfterError{After: time.Duration(secs) * time.Second, Err: err}
		}
	}
	return resp.StatusCode, string(raw), err
}
