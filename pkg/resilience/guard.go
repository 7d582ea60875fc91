package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/wessley-mechanic/pkg/fn"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("call timed out")
)

// GuardOpts configures a Guard.
type GuardOpts struct {
	Name    string
	Timeout time.Duration
	Breaker BreakerOpts
	// RatePerSec <= 0 disables rate limiting.
	RatePerSec float64
	Burst      int
	Retry      fn.RetryOpts
}

// Guard wraps one collaborator with a deadline, a breaker, an optional
// token-bucket limiter and a retry policy.
type Guard struct {
	name    string
	timeout time.Duration
	breaker *Breaker
	limiter *rate.Limiter
	retry   fn.RetryOpts
}

// NewGuard builds a Guard. A zero Timeout means no per-call deadline.
func NewGuard(opts GuardOpts) *Guard {
	g := &Guard{
		name:    opts.Name,
		timeout: opts.Timeout,
		breaker: NewBreaker(opts.Breaker),
		retry:   opts.Retry,
	}
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	if g.retry.MaxAttempts <= 0 {
		g.retry.MaxAttempts = 1
	}
	if g.retry.Retryable == nil {
		g.retry.Retryable = Retryable
	}
	return g
}

// Name returns the collaborator name the guard protects.
func (g *Guard) Name() string { return g.name }

// Breaker exposes the guard's breaker for health reporting.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Retryable reports whether err is transient. Open circuits, rate limits and
// caller cancellation are not retried.
func Retryable(err error) bool {
	return !errors.Is(err, ErrCircuitOpen) &&
		!errors.Is(err, ErrRateLimited) &&
		!errors.Is(err, context.Canceled)
}

// Do runs f under the guard. Deadline overruns are reported as ErrTimeout.
func Do[T any](ctx context.Context, g *Guard, f func(context.Context) (T, error)) fn.Result[T] {
	return fn.Retry(ctx, g.retry, func(ctx context.Context) fn.Result[T] {
		return attempt(ctx, g, f)
	})
}

func attempt[T any](ctx context.Context, g *Guard, f func(context.Context) (T, error)) fn.Result[T] {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fn.Err[T](fmt.Errorf("%s: %w: %v", g.name, ErrRateLimited, err))
		}
	}
	r := CallResult(g.breaker, ctx, func(ctx context.Context) fn.Result[T] {
		return await(ctx, f)
	})
	if err := r.Cause(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fn.Err[T](fmt.Errorf("%s: %w: %w", g.name, ErrTimeout, err))
		}
		return fn.Err[T](fmt.Errorf("%s: %w", g.name, err))
	}
	return r
}

// await runs f in its own goroutine and stops waiting when ctx is done. A
// result that arrives after that is dropped.
func await[T any](ctx context.Context, f func(context.Context) (T, error)) fn.Result[T] {
	done := make(chan fn.Result[T], 1)
	go func() {
		v, err := f(ctx)
		done <- fn.FromPair(v, err)
	}()
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}
