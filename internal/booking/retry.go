package booking

import (
	"context"
	"time"

	"github.com/example/court-autobook/internal/domain/reservation"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 300 * time.Millisecond
)

// Retrier resubmits a request with exponential backoff: BaseDelay before the
// second attempt, doubling each time after.
//
// Every failure except validation is retried while attempts remain, upstream
// rejections included. RetryOn narrows that when set.
type Retrier struct {
	Submitter   *Submitter
	MaxAttempts int
	BaseDelay   time.Duration
	// RetryOn reports whether a failed attempt may be repeated.
	RetryOn func(*Failure) bool
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// RetryNetworkOnly is a RetryOn policy that never repeats a submission the
// upstream answered.
func RetryNetworkOnly(f *Failure) bool { return f.Class == ClassNetworkFailure }

// Do submits req until it succeeds, a failure is not retryable, or attempts
// run out. The returned outcome is the last attempt's, with Attempts set.
func (r *Retrier) Do(ctx context.Context, req reservation.ReservationRequest) Outcome {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	delay := r.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var out Outcome
	for n := 1; n <= attempts; n++ {
		out = r.Submitter.SubmitRequest(ctx, req)
		if !out.OK && out.Failure.Class == ClassValidation {
			return out
		}
		out.Attempts = n
		if out.OK {
			return out
		}
		if n == attempts || (r.RetryOn != nil && !r.RetryOn(out.Failure)) {
			return out
		}
		if err := sleep(ctx, delay<<(n-1)); err != nil {
			return out
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
