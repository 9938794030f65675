package scraper

import (
	"context"
	"time"
)

const defaultRetryBackoff = 100 * time.Millisecond

// sleeper waits for d or until ctx is done. Tests swap in a recorder.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff returns the wait before retry number attempt (1-based):
// base doubled per attempt and capped at ceiling when one is set.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if base <= 0 {
		base = defaultRetryBackoff
	}
	// guard the shift; anything past this is already over any sane cap
	if attempt > 30 {
		attempt = 30
	}

	delay := base * time.Duration(1<<(attempt-1))
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay
}
