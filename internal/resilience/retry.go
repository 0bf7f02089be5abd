package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff configures exponential backoff with full jitter
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// sleepFunc waits between attempts (injectable for tests)
var sleepFunc = func(ctx context.Context, d time.Duration) error {
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

// Delay returns the jittered delay before retry number attempt (0-based)
func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Base << uint(attempt)
	if b.Max > 0 && (ceiling > b.Max || ceiling <= 0) {
		ceiling = b.Max
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Retry calls fn until it succeeds, returns a non-retryable error, attempts
// run out or ctx is done. The last error is returned.
func Retry(ctx context.Context, b Backoff, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts-1 {
			return err
		}
		if sleepErr := sleepFunc(ctx, b.Delay(attempt)); sleepErr != nil {
			return err
		}
	}
	return err
}
