// Package main provides the CLI entry point for simbench, a benchmark
// comparing blocking worker-pool and fan-out dispatch of Solana
// simulateTransaction calls.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/weiihann/simbench/harness"
	"github.com/weiihann/simbench/report"
	"github.com/weiihann/simbench/simulate"
	"github.com/weiihann/simbench/workload"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	root := newRootCmd(logger)
	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		logFailure(logger, err)
		os.Exit(1)
	}
}

func logFailure(logger *slog.Logger, err error) {
	attrs := []any{slog.String("error", err.Error())}

	var unexpected *simulate.UnexpectedOutcomeError
	if errors.As(err, &unexpected) {
		attrs = append(attrs,
			slog.String("outcome", unexpected.Outcome.String()),
			slog.Int("code", unexpected.Code),
			slog.String("message", unexpected.Message),
		)
	}

	logger.Error("benchmark aborted", attrs...)
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "simbench",
		Short: "Solana simulateTransaction dispatch benchmark",
		Long: `Simbench sends the same batch of intentionally invalid transactions to
a Solana RPC endpoint twice, once through a blocking worker pool and once
with every call in flight at the same time, and compares the wall-clock
time of both batches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newGenCmd(logger))

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Time a synchronous and an asynchronous batch of simulations",
		Long: `Build a batch of unsigned transactions that the validator must reject,
simulate them through a worker pool, wait out the rate-limit cooldown, then
simulate them again with all calls in flight, and report both timings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(cmd.Flags())
			if err != nil {
				return err
			}

			return runBenchmark(
				cmd.Context(), logger, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(),
			)
		},
	}

	addRunFlags(cmd.Flags())

	return cmd
}

func newGenCmd(logger *slog.Logger) *cobra.Command {
	var (
		sims int
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Print a batch of simulation requests as JSONL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen := workload.NewGenerator(workload.Config{Seed: seed})

			summary, err := gen.Generate(cmd.OutOrStdout(), sims)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			logger.InfoContext(cmd.Context(), "requests generated",
				slog.Int("requests", summary.Requests),
				slog.Int("wire_bytes", summary.WireBytes),
			)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&sims, "sims", defaultSims,
		"Number of requests to generate")
	flags.Int64Var(&seed, "seed", 0,
		"Random seed (0 = use current time)")

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
	stdout, stderr io.Writer,
) error {
	logger.InfoContext(ctx, "starting benchmark",
		slog.String("endpoint", cfg.endpoint),
		slog.Int("sims", cfg.sims),
		slog.Int("workers", cfg.workers),
		slog.Duration("cooldown", cfg.cooldown),
		slog.Duration("call_timeout", cfg.callTimeout),
		slog.Float64("rps", cfg.rps),
	)

	gen := workload.NewGenerator(workload.Config{Seed: cfg.seed})

	// One long-lived client per strategy.
	strategies := []harness.Strategy{
		harness.Sync{Workers: cfg.workers},
		harness.Async{},
	}

	clients := make([]*simulate.RPCSimulator, len(strategies))
	for i := range strategies {
		clients[i] = simulate.NewRPCSimulator(cfg.endpoint)
		defer clients[i].Close()
	}

	results := make([]harness.Result, 0, len(strategies))

	for i, strategy := range strategies {
		if i > 0 && cfg.sims > 0 && cfg.cooldown > 0 {
			logger.InfoContext(ctx, "sleeping to wait for rpc rate limits",
				slog.Duration("cooldown", cfg.cooldown),
			)

			if err := sleep(ctx, cfg.cooldown); err != nil {
				return fmt.Errorf("cooldown: %w", err)
			}
		}

		var sim simulate.Simulator = clients[i]
		if cfg.rps > 0 {
			sim = simulate.NewLimited(sim, cfg.rps)
		}

		caller := &simulate.Caller{
			Simulator: sim,
			Next:      gen.Next,
			Expected:  simulate.DefaultExpected,
		}

		runCfg := harness.RunConfig{
			Sims:        cfg.sims,
			Call:        caller.Call,
			CallTimeout: cfg.callTimeout,
		}
		if cfg.sims > 0 {
			runCfg.Progress = harness.NewBar(stderr, cfg.sims, strategy.Name())
		}

		result, err := harness.NewRunner(strategy, logger).Run(ctx, runCfg)
		if err != nil {
			return err
		}

		results = append(results, *result)
	}

	var err error

	switch {
	case cfg.outputJSON:
		err = report.GenerateJSON(stdout, results)
	case cfg.details:
		if err = report.Generate(stdout, results, cfg.locale); err == nil {
			err = report.GenerateTable(stdout, results, cfg.locale)
		}
	default:
		err = report.Generate(stdout, results, cfg.locale)
	}

	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
