package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/orchestrator"
	"github.com/unirank/unirank/report"
	"github.com/unirank/unirank/store"
)

var scrapeOutput *string

func init() {
	scrapeOutput = scrapeCmd.Flags().StringP("output", "o", "", "Path of the consolidated record (default $UNIRANK_OUTPUT).")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [publisher...]",
	Short: "Refreshes the given publishers (all enabled when none) and saves the merged record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)
		if *scrapeOutput != "" {
			cfg.Output.Path = *scrapeOutput
		}

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		sink, hook := report.FromConfig(cfg.Report)
		if hook != nil {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := hook.Wait(ctx); err != nil {
					slog.Warn("webhook deliveries still pending at exit", "error", err)
				}
			}()
		}

		runID := "run-" + uuid.NewString()
		hist, err := openHistory(cfg)
		if err != nil {
			return err
		}
		if hist != nil {
			defer hist.Close()
			sink = report.Multi{sink, hist.Sink(runID)}
		}

		rec, err := store.Load(cfg.Output.Path, cfg.Institution.Name)
		if err != nil {
			return err
		}

		start := time.Now()
		orch := orchestrator.New(cfg, sink, p.adapters...)
		updated, outcomes, err := orch.RunAll(cmd.Context(), rec, args...)
		if err != nil {
			return err
		}

		// Whatever finished before a signal is still worth keeping.
		if err := store.Save(cfg.Output.Path, updated); err != nil {
			return err
		}

		counts := make(map[models.Status]int)
		for _, o := range outcomes {
			counts[o.Status]++
		}
		slog.Info("scrape finished",
			"run", runID,
			"output", cfg.Output.Path,
			"found", counts[models.StatusFound],
			"not_found", counts[models.StatusNotFound],
			"exhausted", counts[models.StatusExhausted],
			"layout_drift", counts[models.StatusLayoutDrift],
			"duration", time.Since(start).Round(time.Second),
		)
		return cmd.Context().Err()
	},
}
