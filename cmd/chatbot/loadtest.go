package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"enterprise-chatbot/internal/coordinator"
	"enterprise-chatbot/internal/loadtest"
	"enterprise-chatbot/internal/scaler"
)

func newLoadTestCmd(configPath *string) *cobra.Command {
	var (
		iterations int
		minDelay   time.Duration
		maxDelay   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run the load generator in-process and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				cfg.LoadTest.Iterations = iterations
			}
			if cmd.Flags().Changed("min-delay") {
				cfg.LoadTest.MinDelay = minDelay
			}
			if cmd.Flags().Changed("max-delay") {
				cfg.LoadTest.MaxDelay = maxDelay
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			rep := loadtest.NewDriver(a.loadTestConfig(), a.coordinator, logger).Run(ctx)
			return printLoadTest(os.Stdout, rep, a.coordinator.Stats(), a.scaler.State(10))
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 100, "number of queries to send")
	cmd.Flags().DurationVar(&minDelay, "min-delay", 100*time.Millisecond, "minimum pause between queries")
	cmd.Flags().DurationVar(&maxDelay, "max-delay", 500*time.Millisecond, "maximum pause between queries")
	return cmd
}

func printLoadTest(out io.Writer, rep loadtest.Report, stats coordinator.Stats, st scaler.State) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Queries\t%d/%d\n", rep.Completed, rep.Requested)
	fmt.Fprintf(w, "Stopped early\t%t\n", rep.Stopped)
	fmt.Fprintf(w, "Elapsed\t%s\n", rep.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Optimized\t%d (%.1f%%)\n", stats.OptimizedQueries, stats.OptimizationRate*100)
	fmt.Fprintf(w, "Cache hits\t%d\n", rep.CacheHits)
	fmt.Fprintf(w, "Avg latency\t%.1f ms\n", stats.AverageLatencyMs)
	fmt.Fprintf(w, "Latency buckets\t<%.0fms: %d  >=%.0fms: %d\n",
		stats.BucketBoundaryMs, stats.OptimizedBucket, stats.BucketBoundaryMs, stats.BaselineBucket)
	fmt.Fprintf(w, "Load\t%.1f%%\n", stats.Load)
	fmt.Fprintf(w, "Instances\t%d (min %d, max %d)\n", st.CurrentInstances, st.MinInstances, st.MaxInstances)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(st.Events) == 0 {
		fmt.Fprintln(out, "\nNo scaling events.")
		return nil
	}

	fmt.Fprintf(out, "\nScaling events (last %d of %d):\n", len(st.Events), st.TotalEvents)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDECISION\tLOAD")
	for _, e := range st.Events {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\n", e.Timestamp.Format("15:04:05"), e.Decision, e.Load)
	}
	return w.Flush()
}
