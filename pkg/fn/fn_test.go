package fn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
	if e.Cause() == nil {
		t.Fatal("Cause should return the error")
	}
}

func TestErrfWraps(t *testing.T) {
	base := errors.New("timeout")
	r := Errf[string]("model: %w", base)
	if !errors.Is(r.Cause(), base) {
		t.Fatal("Errf should honour %w")
	}
}

func TestFromPair(t *testing.T) {
	if !FromPair(1, nil).IsOk() {
		t.Fatal("nil error should be Ok")
	}
	if FromPair(1, errors.New("x")).IsOk() {
		t.Fatal("error should be Err")
	}
}

func TestUnwrapOrAndOrElse(t *testing.T) {
	if Ok(1).UnwrapOr(9) != 1 {
		t.Fatal("should return value")
	}
	if Err[int](errors.New("x")).UnwrapOr(9) != 9 {
		t.Fatal("should return fallback")
	}
	got := Err[string](errors.New("boom")).OrElse(func(err error) string { return "fallback: " + err.Error() })
	if got != "fallback: boom" {
		t.Fatalf("OrElse got %q", got)
	}
	if Ok("v").OrElse(func(error) string { return "no" }) != "v" {
		t.Fatal("OrElse should keep ok value")
	}
}

func TestMapAndMapResult(t *testing.T) {
	if Ok(2).Map(func(v int) int { return v * 3 }).UnwrapOr(0) != 6 {
		t.Fatal("Map failed")
	}
	if Err[int](errors.New("x")).Map(func(v int) int { return v * 3 }).IsOk() {
		t.Fatal("Map on Err should stay Err")
	}
	r := MapResult(Ok(3), func(v int) string { return strings.Repeat("a", v) })
	if r.UnwrapOr("") != "aaa" {
		t.Fatal("MapResult failed")
	}
}

func TestSliceHelpers(t *testing.T) {
	doubled := Map([]int{1, 2}, func(v int) int { return v * 2 })
	if doubled[0] != 2 || doubled[1] != 4 {
		t.Fatalf("Map got %v", doubled)
	}
	even := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if len(even) != 2 {
		t.Fatalf("Filter got %v", even)
	}
	u := Unique([]string{"a", "b", "a"})
	if len(u) != 2 || u[0] != "a" || u[1] != "b" {
		t.Fatalf("Unique got %v", u)
	}
}

// --- Pipeline ---

func TestPipelineShortCircuits(t *testing.T) {
	var ran bool
	p := Pipeline(
		MapStage(func(v int) int { return v + 1 }),
		func(_ context.Context, v int) Result[int] { return Errf[int]("stop at %d", v) },
		func(_ context.Context, v int) Result[int] { ran = true; return Ok(v) },
	)
	r := p(context.Background(), 1)
	if r.IsOk() || ran {
		t.Fatal("pipeline should stop at the failing stage")
	}
	if r.Cause().Error() != "stop at 2" {
		t.Fatalf("unexpected error %v", r.Cause())
	}
}

func TestTapAndTracedStage(t *testing.T) {
	var seen int
	p := Pipeline(
		TracedStage("add", MapStage(func(v int) int { return v + 10 })),
		TapStage(func(_ context.Context, v int) { seen = v }),
	)
	if p(context.Background(), 5).UnwrapOr(0) != 15 || seen != 15 {
		t.Fatal("tap should observe the value")
	}
	failed := TracedStage("fail", func(context.Context, int) Result[int] { return Err[int](errors.New("x")) })
	if failed(context.Background(), 1).IsOk() {
		t.Fatal("traced failure should stay failed")
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	out := FanOut(
		func() int { time.Sleep(5 * time.Millisecond); return 1 },
		func() int { return 2 },
	)
	if out[0] != 1 || out[1] != 2 {
		t.Fatalf("FanOut got %v", out)
	}
}

// --- Retry ---

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		if calls.Add(1) < 3 {
			return Err[string](errors.New("flaky"))
		}
		return Ok("done")
	})
	if r.UnwrapOr("") != "done" || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %v after %d", r.Cause(), calls.Load())
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond, Retryable: func(err error) bool { return !errors.Is(err, permanent) }}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if r.IsOk() || calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 3, InitialWait: time.Second}, func(context.Context) Result[int] {
		return Err[int](errors.New("x"))
	})
	if !errors.Is(r.Cause(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", r.Cause())
	}
}
