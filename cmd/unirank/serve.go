package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/unirank/unirank/api"
	"github.com/unirank/unirank/api/handler"
	"github.com/unirank/unirank/report"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the rankings API and runs refreshes on request.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFrom(cmd)
		ctx := cmd.Context()

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		sink, hook := report.FromConfig(cfg.Report)
		runner := handler.NewRunner(ctx, cfg, sink, p.adapters...)

		hist, err := openHistory(cfg)
		if err != nil {
			return err
		}
		if hist != nil {
			defer hist.Close()
			runner.WithHistory(hist)
		}

		startTime := time.Now()
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: api.NewRouter(ctx, runner, cfg, startTime),
		}

		errc := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr, "publishers", runner.Publishers())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}

		// A run in progress stops dispatching with ctx; let it save.
		runner.Wait()
		if hook != nil {
			if err := hook.Wait(shutdownCtx); err != nil {
				slog.Warn("webhook deliveries still pending at exit", "error", err)
			}
		}
		slog.Info("unirank stopped")
		return nil
	},
}
