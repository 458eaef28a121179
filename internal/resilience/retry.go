package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff is a bounded exponential retry policy: the wait after attempt n
// (from 1) is Base * 2^(n-1), capped at Max.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	// Sleep replaces the timer wait between attempts. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (b Backoff) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = b.Max
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = backoff.DefaultMaxInterval
	}
	exp.InitialInterval = min(b.Base, exp.MaxInterval)
	if b.Sleep == nil {
		return exp
	}
	return &sleepBackOff{ctx: ctx, next: exp, sleep: b.Sleep}
}

// sleepBackOff waits through an injected sleep and hands Retry a zero
// interval.
type sleepBackOff struct {
	ctx   context.Context
	next  backoff.BackOff
	sleep func(ctx context.Context, d time.Duration) error
}

func (s *sleepBackOff) Reset() { s.next.Reset() }

func (s *sleepBackOff) NextBackOff() time.Duration {
	if err := s.sleep(s.ctx, s.next.NextBackOff()); err != nil {
		return backoff.Stop
	}
	return 0
}

// Do calls fn until it succeeds, returns a backoff.Permanent error, the
// circuit is open, the context ends or the attempts are used up. The last
// error of fn is returned unwrapped.
func (b Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(b.Attempts, 1)

	var (
		attempt int
		last    error
	)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		last = fn(attempt)
		if errors.Is(last, ErrCircuitOpen) {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	},
		backoff.WithBackOff(b.policy(ctx)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return nil
	}
	if last == nil {
		return err
	}
	var perm *backoff.PermanentError
	if errors.As(last, &perm) {
		return perm.Err
	}
	return last
}
