package provider

import (
	"context"
	"net/http"
	"time"
)

const (
	DefaultMaxTries      = 5
	DefaultRetryInterval = 5 * time.Second
)

// Attempt is one numbered round-trip within a send sequence.
type Attempt struct {
	Number   int
	Response RawResponse
}

// ShouldRetry decides from the last response alone. Transport failures and
// server errors are retried; any 4xx is the caller's fault and is final.
func ShouldRetry(r RawResponse) bool {
	if r.Successful() {
		return false
	}
	return r.StatusCode < http.StatusBadRequest || r.StatusCode >= http.StatusInternalServerError
}

// RetryPolicy retries with a constant delay up to MaxTries attempts.
type RetryPolicy struct {
	MaxTries int
	Interval time.Duration
	// Predicate defaults to ShouldRetry.
	Predicate func(RawResponse) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(Attempt)
}

// Do runs send until the predicate declines a retry, attempts run out or ctx
// is done, and returns the last attempt.
func (p RetryPolicy) Do(
	ctx context.Context,
	sleep func(ctx context.Context, d time.Duration) error,
	send func(ctx context.Context) RawResponse,
) Attempt {
	maxTries := p.MaxTries
	if maxTries < 1 {
		maxTries = 1
	}
	predicate := p.Predicate
	if predicate == nil {
		predicate = ShouldRetry
	}
	if sleep == nil {
		sleep = sleepWithContext
	}

	var last Attempt
	for n := 1; n <= maxTries; n++ {
		last = Attempt{Number: n, Response: send(ctx)}

		if n == maxTries || !predicate(last.Response) {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(last)
		}
		if err := sleep(ctx, p.Interval); err != nil {
			break
		}
	}

	return last
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
