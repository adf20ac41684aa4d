package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingProgress struct {
	adds     atomic.Int64
	finishes atomic.Int64
}

func (c *countingProgress) Add(n int) error {
	c.adds.Add(int64(n))

	return nil
}

func (c *countingProgress) Finish() error {
	c.finishes.Add(1)

	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncProgressCountForEveryPoolSize(t *testing.T) {
	const n = 16

	for workers := 1; workers <= n; workers++ {
		var (
			calls    atomic.Int64
			inFlight atomic.Int64
			peak     atomic.Int64
		)

		progress := &countingProgress{}

		err := Sync{Workers: workers}.Run(context.Background(), n,
			func(context.Context, int) error {
				calls.Add(1)

				cur := inFlight.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}

				time.Sleep(time.Millisecond)
				inFlight.Add(-1)

				return nil
			}, progress)
		if err != nil {
			t.Fatalf("workers=%d: Run failed: %v", workers, err)
		}

		if got := progress.adds.Load(); got != n {
			t.Errorf("workers=%d: progress adds = %d, want %d", workers, got, n)
		}
		if got := calls.Load(); got != n {
			t.Errorf("workers=%d: calls = %d, want %d", workers, got, n)
		}
		if got := peak.Load(); got > int64(workers) {
			t.Errorf("workers=%d: peak concurrency = %d", workers, got)
		}
	}
}

func TestSyncSingleWorkerIsSerial(t *testing.T) {
	var inFlight, peak atomic.Int64

	err := Sync{Workers: 1}.Run(context.Background(), 8,
		func(context.Context, int) error {
			if cur := inFlight.Add(1); cur > peak.Load() {
				peak.Store(cur)
			}

			time.Sleep(time.Millisecond)
			inFlight.Add(-1)

			return nil
		}, nopProgress{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}

func TestSyncAbortsOnFailure(t *testing.T) {
	var calls atomic.Int64

	progress := &countingProgress{}
	errBad := errors.New("unexpected success")

	err := Sync{Workers: 1}.Run(context.Background(), 16,
		func(_ context.Context, i int) error {
			calls.Add(1)
			if i == 3 {
				return errBad
			}

			return nil
		}, progress)

	if !errors.Is(err, errBad) {
		t.Fatalf("Run error = %v, want %v", err, errBad)
	}
	if !strings.Contains(err.Error(), "call 3") {
		t.Errorf("error %q does not name the failing call", err)
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
	if progress.adds.Load() != 3 {
		t.Errorf("progress adds = %d, want 3", progress.adds.Load())
	}
}

func TestSyncZeroCalls(t *testing.T) {
	progress := &countingProgress{}

	err := Sync{Workers: 4}.Run(context.Background(), 0,
		func(context.Context, int) error {
			t.Error("call invoked for empty batch")

			return nil
		}, progress)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if progress.adds.Load() != 0 {
		t.Errorf("progress adds = %d, want 0", progress.adds.Load())
	}
}

func TestAsyncJoinsAllUnits(t *testing.T) {
	const n = 16

	var started, done atomic.Int64

	allStarted := make(chan struct{})
	progress := &countingProgress{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Async{}.Run(ctx, n, func(ctx context.Context, _ int) error {
		if started.Add(1) == n {
			close(allStarted)
		}

		// Every unit waits for the last one to start, which only
		// happens if all of them are in flight together.
		select {
		case <-allStarted:
		case <-ctx.Done():
			return ctx.Err()
		}

		time.Sleep(time.Millisecond)
		done.Add(1)

		return nil
	}, progress)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if done.Load() != n {
		t.Errorf("completed units = %d, want %d", done.Load(), n)
	}
	if progress.adds.Load() != n {
		t.Errorf("progress adds = %d, want %d", progress.adds.Load(), n)
	}
}

func TestAsyncWaitsForAllOnFailure(t *testing.T) {
	const n = 8

	var done atomic.Int64

	errBad := errors.New("rate limited")

	err := Async{}.Run(context.Background(), n,
		func(_ context.Context, i int) error {
			if i == 0 {
				return errBad
			}

			time.Sleep(10 * time.Millisecond)
			done.Add(1)

			return nil
		}, nopProgress{})

	if !errors.Is(err, errBad) {
		t.Fatalf("Run error = %v, want %v", err, errBad)
	}
	if done.Load() != n-1 {
		t.Errorf("completed units = %d, want %d", done.Load(), n-1)
	}
}

type countingStrategy struct {
	runs atomic.Int64
}

func (*countingStrategy) Name() string { return "counting" }

func (c *countingStrategy) Run(context.Context, int, CallFunc, Progress) error {
	c.runs.Add(1)

	return nil
}

func steppingClock(start time.Time, step time.Duration) Clock {
	var n atomic.Int64

	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)-1) * step)
	}
}

func TestRunnerZeroSims(t *testing.T) {
	strategy := &countingStrategy{}
	progress := &countingProgress{}

	result, err := NewRunner(strategy, discardLogger()).Run(
		context.Background(), RunConfig{Sims: 0, Progress: progress},
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ElapsedMicros != 0 {
		t.Errorf("elapsed = %d, want 0", result.ElapsedMicros)
	}
	if strategy.runs.Load() != 0 {
		t.Errorf("strategy ran %d times for empty batch", strategy.runs.Load())
	}
	if progress.adds.Load() != 0 || progress.finishes.Load() != 0 {
		t.Error("progress touched for empty batch")
	}
}

func TestRunnerElapsed(t *testing.T) {
	strategy := &countingStrategy{}
	progress := &countingProgress{}

	runner := NewRunner(strategy, discardLogger())
	runner.Clock = steppingClock(time.Unix(1000, 0), 1234567*time.Microsecond)

	result, err := runner.Run(context.Background(), RunConfig{
		Sims:     4,
		Call:     func(context.Context, int) error { return nil },
		Progress: progress,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ElapsedMicros != 1234567 {
		t.Errorf("elapsed = %d, want 1234567", result.ElapsedMicros)
	}
	if result.Strategy != "counting" {
		t.Errorf("strategy = %q, want counting", result.Strategy)
	}
	if progress.finishes.Load() != 1 {
		t.Errorf("progress finishes = %d, want 1", progress.finishes.Load())
	}
}

func TestRunnerClockStepsBackwards(t *testing.T) {
	runner := NewRunner(&countingStrategy{}, discardLogger())
	runner.Clock = steppingClock(time.Unix(1000, 0), -time.Hour)

	result, err := runner.Run(context.Background(), RunConfig{
		Sims: 1,
		Call: func(context.Context, int) error { return nil },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ElapsedMicros != 0 {
		t.Errorf("elapsed = %d, want 0", result.ElapsedMicros)
	}
}

func TestRunnerRecordsLatency(t *testing.T) {
	runner := NewRunner(Sync{Workers: 2}, discardLogger())
	runner.Clock = steppingClock(time.Unix(1000, 0), time.Millisecond)

	result, err := runner.Run(context.Background(), RunConfig{
		Sims: 4,
		Call: func(context.Context, int) error { return nil },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Workers != 2 {
		t.Errorf("workers = %d, want 2", result.Workers)
	}
	if result.Latency.MinMicros < 1000 {
		t.Errorf("min latency = %dus, want at least one clock step",
			result.Latency.MinMicros)
	}
	if result.Latency.MaxMicros < result.Latency.MinMicros {
		t.Errorf("max %d < min %d",
			result.Latency.MaxMicros, result.Latency.MinMicros)
	}
}

func TestRunnerCallTimeout(t *testing.T) {
	runner := NewRunner(Async{}, discardLogger())

	_, err := runner.Run(context.Background(), RunConfig{
		Sims:        2,
		CallTimeout: 10 * time.Millisecond,
		Call: func(ctx context.Context, _ int) error {
			<-ctx.Done()

			return ctx.Err()
		},
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "asynchronous batch failed") {
		t.Errorf("error %q does not name the strategy", err)
	}
}

func TestSummarize(t *testing.T) {
	got := summarize([]time.Duration{
		4 * time.Millisecond,
		1 * time.Millisecond,
		3 * time.Millisecond,
		2 * time.Millisecond,
	})

	want := Latency{
		MinMicros:  1000,
		MeanMicros: 2500,
		P50Micros:  2000,
		MaxMicros:  4000,
	}

	if got != want {
		t.Errorf("summarize = %+v, want %+v", got, want)
	}

	if summarize(nil) != (Latency{}) {
		t.Error("summarize(nil) should be zero")
	}
}
