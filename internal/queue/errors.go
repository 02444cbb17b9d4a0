package queue

import (
	"fmt"
	"time"
)

// RetryAfterError wraps a handler failure that carries its own retry delay,
// typically from a Retry-After header on a rate-limited response. The
// supervisor requeues the job after max(backoff, After).
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// YieldError signals that the handler declined to run the job at all, e.g.
// an outbound rate-limit budget was exhausted before any work happened. The
// supervisor requeues the job after the delay without the execution counting
// against the attempt cap.
type YieldError struct {
	After time.Duration
	Err   error
}

func (e *YieldError) Error() string {
	return fmt.Sprintf("yield for %s: %v", e.After, e.Err)
}

func (e *YieldError) Unwrap() error { return e.Err }
