// Package orchestrator dispatches one retried fetch per (publisher, year)
// across a bounded worker pool and merges the results into the baseline.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/merge"
	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/report"
	"github.com/unirank/unirank/retry"
	"github.com/unirank/unirank/simhash"
	"github.com/unirank/unirank/source"
)

// Orchestrator runs publishers against a baseline. Configuration is fixed
// at construction; nothing is retained between runs.
type Orchestrator struct {
	pool     config.PoolConfig
	policy   retry.Policy
	drift    int
	sink     report.Sink
	adapters []source.Adapter
	byName   map[string]source.Adapter
}

// New creates an Orchestrator. sink may be nil.
func New(cfg *config.Config, sink report.Sink, adapters ...source.Adapter) *Orchestrator {
	if sink == nil {
		sink = report.Discard{}
	}
	byName := make(map[string]source.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Orchestrator{
		pool:     cfg.Pool,
		policy:   retry.FromConfig(cfg.Retry),
		drift:    cfg.Report.DriftThreshold,
		sink:     sink,
		adapters: adapters,
		byName:   byName,
	}
}

// Run fetches every year of one publisher and returns the merged map.
// It never fails: a year whose fetch did not produce a rank keeps its
// baseline value.
func (o *Orchestrator) Run(ctx context.Context, a source.Adapter, years []string, baseline models.RankMap) models.RankMap {
	ranks, _ := o.RunDetailed(ctx, a, years, baseline)
	return ranks
}

// RunDetailed is Run plus the outcome of every dispatched year, in year order.
// Each outcome also goes to the sink as soon as its task finishes.
//
// Cancelling ctx stops dispatching new years; tasks already running finish
// on a context that is not cancelled with it, and years never dispatched
// keep their baseline value.
func (o *Orchestrator) RunDetailed(ctx context.Context, a source.Adapter, years []string, baseline models.RankMap) (models.RankMap, []models.Outcome) {
	publisher := a.Name()
	size := o.pool.SizeFor(publisher)

	limit := rate.Inf
	if o.pool.StartsPerSecond > 0 {
		limit = rate.Limit(o.pool.StartsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	slog.Info("run started",
		"publisher", publisher,
		"years", len(years),
		"workers", size,
	)
	start := time.Now()

	sem := make(chan struct{}, size)
	results := make([]models.Outcome, len(years))
	dispatched := make([]bool, len(years))
	taskCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
dispatch:
	for i, year := range years {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if err := limiter.Wait(ctx); err != nil {
			<-sem
			break dispatch
		}

		dispatched[i] = true
		wg.Add(1)
		go func(idx int, year string) {
			defer wg.Done()
			defer func() { <-sem }()
			out := o.runTask(taskCtx, a, year)
			results[idx] = out
			o.sink.Report(taskCtx, out)
		}(i, year)
	}
	wg.Wait()

	// Single-threaded from here on: every worker has returned.
	fresh := models.NewRankMap(years)
	outcomes := make([]models.Outcome, 0, len(years))
	skipped := 0
	found := 0
	for i, year := range years {
		if !dispatched[i] {
			skipped++
			continue
		}
		out := results[i]
		outcomes = append(outcomes, out)
		if out.Status == models.StatusFound {
			fresh[year] = models.Rank(out.Rank)
			found++
		}
	}

	merged := merge.Merge(baseline, fresh)

	slog.Info("run finished",
		"publisher", publisher,
		"found", found,
		"not_found", len(outcomes)-found,
		"not_dispatched", skipped,
		"changed", merge.Changed(baseline, merged),
		"duration", time.Since(start),
	)
	return merged, outcomes
}

// runTask is one worker slot: the retried fetch of a single year. Nothing
// escapes it; errors and panics become that year's outcome.
func (o *Orchestrator) runTask(ctx context.Context, a source.Adapter, year string) (out models.Outcome) {
	start := time.Now()
	out = models.Outcome{Publisher: a.Name(), Year: year}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "publisher", out.Publisher, "year", year, "panic", r)
			out.Status = models.StatusFailed
			out.Rank = ""
			out.Reason = fmt.Sprintf("panic: %v", r)
		}
		out.DurationMs = time.Since(start).Milliseconds()
	}()

	ext, err := retry.Do(ctx, o.policy, func(ctx context.Context) (models.Extraction, error) {
		return a.Fetch(ctx, year)
	})
	if err != nil {
		slog.Warn("task failed", "publisher", out.Publisher, "year", year, "error", err)
	}

	out.Status = ext.Status
	out.Reason = ext.Reason
	out.Attempts = ext.Attempts
	out.Fingerprint = ext.Fingerprint
	if ext.Found() {
		out.Rank = ext.Rank
	} else if ext.Status == models.StatusFound {
		out.Status = models.StatusNotFound
		out.Reason = "empty rank"
	}
	return out
}

// RunAll refreshes the given publishers (all configured ones when none are
// named) one after another and returns an updated copy of rec together
// with every outcome, layout drift reports included. Unknown publisher
// names are a CONFIG_ERROR and nothing runs.
func (o *Orchestrator) RunAll(ctx context.Context, rec *models.Record, publishers ...string) (*models.Record, []models.Outcome, error) {
	selected := o.adapters
	if len(publishers) > 0 {
		selected = make([]source.Adapter, 0, len(publishers))
		for _, name := range publishers {
			a, ok := o.byName[name]
			if !ok {
				return nil, nil, models.NewConfigError("publisher %q is not enabled", name)
			}
			selected = append(selected, a)
		}
	}

	out := rec.Clone()
	if out == nil {
		return nil, nil, models.NewConfigError("no record to update")
	}

	var all []models.Outcome
	for _, a := range selected {
		if ctx.Err() != nil {
			slog.Info("run canceled, remaining publishers not dispatched", "next", a.Name())
			break
		}
		ranks, outcomes := o.RunDetailed(ctx, a, a.Years(), out.Baseline(a.Name()))
		out.Rankings[a.Name()] = ranks
		all = append(all, outcomes...)
		all = append(all, o.trackLayouts(ctx, out, a.Name(), outcomes)...)
	}

	now := time.Now().UTC()
	out.UpdatedAt = &now
	return out, all, nil
}

// trackLayouts stores each located table's fingerprint and reports the
// years whose layout moved further than the drift threshold.
func (o *Orchestrator) trackLayouts(ctx context.Context, rec *models.Record, publisher string, outcomes []models.Outcome) []models.Outcome {
	prev := rec.Layouts[publisher]
	next := make(map[string]string, len(prev))
	for y, fp := range prev {
		next[y] = fp
	}

	var drifts []models.Outcome
	for _, out := range outcomes {
		if out.Fingerprint == 0 {
			continue
		}
		if old, ok := prev[out.Year]; ok {
			oldFP, err := simhash.Parse(old)
			if err != nil {
				slog.Warn("stored layout fingerprint unreadable", "publisher", publisher, "year", out.Year, "error", err)
			} else if simhash.Drifted(oldFP, out.Fingerprint, o.drift) {
				drift := models.Outcome{
					Publisher:   publisher,
					Year:        out.Year,
					Status:      models.StatusLayoutDrift,
					Rank:        out.Rank,
					Reason:      fmt.Sprintf("table layout moved %d bits since the last run", simhash.Distance(oldFP, out.Fingerprint)),
					Fingerprint: out.Fingerprint,
				}
				o.sink.Report(ctx, drift)
				drifts = append(drifts, drift)
			}
		}
		next[out.Year] = simhash.Format(out.Fingerprint)
	}

	if len(next) > 0 {
		rec.Layouts[publisher] = next
	}
	return drifts
}
