package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"enterprise-chatbot/internal/audit"
)

func newReportCmd(configPath *string) *cobra.Command {
	var (
		dbPath string
		since  time.Duration
		events int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				dbPath = cfg.Audit.DBPath
			}
			if dbPath == "" {
				return errors.New("no audit database: set audit.db_path, AUDIT_DB or --db")
			}

			rec, err := audit.New(dbPath)
			if err != nil {
				return err
			}
			defer rec.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			return printReport(cmd.Context(), os.Stdout, rec, from, events)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "audit database path (overrides config)")
	cmd.Flags().DurationVar(&since, "since", 0, "only include queries newer than this (0 = all)")
	cmd.Flags().IntVar(&events, "events", 10, "number of recent scaling events to show")
	return cmd
}

func printReport(ctx context.Context, out io.Writer, rec *audit.Recorder, since time.Time, events int) error {
	summaries, err := rec.Summary(ctx, since)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No queries recorded.")
	} else {
		var total, optimized int64
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tQUERIES\tOPTIMIZED\tCACHE HITS\tAVG LATENCY")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f ms\n", s.Category, s.Queries, s.Optimized, s.CacheHits, s.AverageLatencyMs)
			total += s.Queries
			optimized += s.Optimized
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTotal: %d queries, %.1f%% optimized\n", total, float64(optimized)/float64(total)*100)
	}

	scaling, err := rec.RecentScaling(ctx, events)
	if err != nil {
		return err
	}
	if len(scaling) == 0 {
		fmt.Fprintln(out, "\nNo scaling events recorded.")
		return nil
	}

	fmt.Fprintln(out, "\nRecent scaling events:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDECISION\tLOAD")
	for _, e := range scaling {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\n", e.CreatedAt.Local().Format("2006-01-02T15:04:05"), e.Decision, e.Load)
	}
	return w.Flush()
}
