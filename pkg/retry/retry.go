// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds the retries of one operation.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy is used when a zero Policy is given.
var DefaultPolicy = Policy{
	Attempts:  5,
	BaseDelay: time.Second,
	MaxDelay:  30 * time.Second,
}

// Delay returns the wait before retry number attempt (0-based): BaseDelay
// doubled per attempt, capped at MaxDelay, with up to 25% jitter added.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// Do calls fn until it succeeds, returns an error retryable rejects, the
// attempts are exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p = DefaultPolicy
	}

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
