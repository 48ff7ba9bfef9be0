package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter admits sends per recipient within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, recipient string) (Decision, error)
}
