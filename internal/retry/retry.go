// Package retry runs provider calls with a bounded number of attempts and
// exponential backoff. Only transient failures are retried.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

// Policy bounds one call site. The zero value makes a single attempt.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to common.IsTransient.
	Retryable func(error) bool

	// OnRetry is called before sleeping ahead of attempt n (1-based).
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, the retry
// budget is spent, or ctx is done. Each attempt gets its own timeout when
// AttemptTimeout is set. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = common.IsTransient
	}

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = attemptOnce(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		// a cancelled parent is never retried even if the attempt looked transient
		if ctx.Err() != nil || attempt >= p.MaxRetries || !retryable(err) {
			return err
		}

		delay := Backoff(p.BaseDelay, p.MaxDelay, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

func attemptOnce(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

// Backoff returns the delay before retry n (0-based): base*2^n with up to
// 25% jitter, capped at max.
func Backoff(base, max time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < n && d < max; i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	if jitter := int64(d) / 4; jitter > 0 {
		d += time.Duration(rand.Int64N(jitter))
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
