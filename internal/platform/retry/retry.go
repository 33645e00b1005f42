// Package retry holds the fixed-interval polling used wherever the session
// waits on data produced by the network listener.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned by Await when a bounded policy runs out of
// attempts before the condition is met.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy is a fixed-interval polling policy. MaxAttempts <= 0 means unbounded.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration

	// OnWait, if set, is called before each sleep with the attempt number
	// that just failed (1-based).
	OnWait func(attempt int)
}

// Bounded returns a policy that checks at most attempts times.
func Bounded(attempts int, interval time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{MaxAttempts: attempts, Interval: interval}
}

// Unbounded returns a policy that checks until the condition holds or the
// context ends.
func Unbounded(interval time.Duration) Policy {
	return Policy{Interval: interval}
}

// Condition reports whether the awaited state has been reached. A non-nil
// error stops polling immediately and is returned by Await as is.
type Condition func(ctx context.Context) (done bool, err error)

// Await evaluates cond once right away and then once per Interval.
func Await(ctx context.Context, p Policy, cond Condition) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return ErrAttemptsExhausted
		}
		if p.OnWait != nil {
			p.OnWait(attempt)
		}

		if timer == nil {
			timer = time.NewTimer(p.Interval)
		} else {
			timer.Reset(p.Interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
