package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

// CallFunc performs one benchmark call. It returns nil when the call ended
// the way the benchmark expects.
type CallFunc func(ctx context.Context, i int) error

// Strategy dispatches n calls and returns once all of them have finished.
type Strategy interface {
	Name() string
	Run(ctx context.Context, n int, call CallFunc, progress Progress) error
}

// Sync runs calls on a fixed pool of workers, each blocking on one call at
// a time.
type Sync struct {
	Workers int
}

// Name implements Strategy.
func (Sync) Name() string { return "synchronous" }

// Run implements Strategy. The first failing call cancels the batch and
// its error is returned.
func (s Sync) Run(ctx context.Context, n int, call CallFunc, progress Progress) error {
	if n <= 0 {
		return nil
	}

	workers := min(max(s.Workers, 1), n)

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)

		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if err := call(ctx, i); err != nil {
					return fmt.Errorf("call %d: %w", i, err)
				}

				_ = progress.Add(1)
			}

			return nil
		})
	}

	return g.Wait()
}

// Async launches every call at once. Each call parks on the network poller
// while it waits, so no call holds a thread. Run waits for all calls, even
// after one fails, and returns their joined errors.
type Async struct{}

// Name implements Strategy.
func (Async) Name() string { return "asynchronous" }

// Run implements Strategy.
func (Async) Run(ctx context.Context, n int, call CallFunc, progress Progress) error {
	if n <= 0 {
		return nil
	}

	p := pool.New().WithErrors().WithContext(ctx)

	for i := 0; i < n; i++ {
		p.Go(func(ctx context.Context) error {
			if err := call(ctx, i); err != nil {
				return fmt.Errorf("call %d: %w", i, err)
			}

			_ = progress.Add(1)

			return nil
		})
	}

	return p.Wait()
}

// RunConfig holds parameters for a single strategy run.
type RunConfig struct {
	Sims        int
	Call        CallFunc
	Progress    Progress
	CallTimeout time.Duration
}

// Clock reads the current time. Readings must carry the monotonic clock.
type Clock func() time.Time

// Runner times one strategy.
type Runner struct {
	Strategy Strategy
	Logger   *slog.Logger
	Clock    Clock
}

// NewRunner creates a Runner for the given strategy.
func NewRunner(strategy Strategy, logger *slog.Logger) *Runner {
	return &Runner{
		Strategy: strategy,
		Logger:   logger.With(slog.String("strategy", strategy.Name())),
		Clock:    time.Now,
	}
}

// Run dispatches cfg.Sims calls through the strategy and returns the
// measured result. A batch of zero calls is not dispatched and reports
// zero elapsed time.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	result := &Result{
		Strategy: r.Strategy.Name(),
		Sims:     cfg.Sims,
	}

	if s, ok := r.Strategy.(Sync); ok {
		result.Workers = min(max(s.Workers, 1), max(cfg.Sims, 1))
	}

	if cfg.Sims <= 0 {
		return result, nil
	}

	progress := cfg.Progress
	if progress == nil {
		progress = nopProgress{}
	}

	rec := &latencyRecorder{clock: r.Clock}
	call := rec.wrap(withTimeout(cfg.Call, cfg.CallTimeout))

	r.Logger.InfoContext(ctx, "starting batch",
		slog.Int("sims", cfg.Sims),
		slog.Int("workers", result.Workers),
	)

	start := r.Clock()

	if err := r.Strategy.Run(ctx, cfg.Sims, call, progress); err != nil {
		return nil, fmt.Errorf("%s batch failed: %w", r.Strategy.Name(), err)
	}

	elapsed := elapsedSince(start, r.Clock())
	_ = progress.Finish()

	r.Logger.InfoContext(ctx, "batch finished",
		slog.Duration("wall_time", elapsed),
	)

	result.ElapsedMicros = elapsed.Microseconds()
	result.Latency = rec.summary()

	return result, nil
}

func elapsedSince(start, end time.Time) time.Duration {
	if d := end.Sub(start); d > 0 {
		return d
	}

	return 0
}

func withTimeout(call CallFunc, timeout time.Duration) CallFunc {
	if timeout <= 0 {
		return call
	}

	return func(ctx context.Context, i int) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return call(ctx, i)
	}
}

type latencyRecorder struct {
	clock Clock

	mu      sync.Mutex
	samples []time.Duration
}

func (l *latencyRecorder) wrap(call CallFunc) CallFunc {
	return func(ctx context.Context, i int) error {
		start := l.clock()
		err := call(ctx, i)
		d := elapsedSince(start, l.clock())

		l.mu.Lock()
		l.samples = append(l.samples, d)
		l.mu.Unlock()

		return err
	}
}

func (l *latencyRecorder) summary() Latency {
	l.mu.Lock()
	defer l.mu.Unlock()

	return summarize(l.samples)
}
