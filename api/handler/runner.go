package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/history"
	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/orchestrator"
	"github.com/unirank/unirank/report"
	"github.com/unirank/unirank/source"
	"github.com/unirank/unirank/store"
)

// Runner owns the consolidated record on disk and allows one refresh at a
// time. Runs execute in the background on the runner's base context.
type Runner struct {
	cfg      *config.Config
	sink     report.Sink
	adapters []source.Adapter
	history  *history.Store
	ctx      context.Context

	mu      sync.Mutex
	current *models.RunJob
	wg      sync.WaitGroup
}

// NewRunner creates a Runner. Cancelling ctx stops dispatch of any run in
// progress; sink may be nil.
func NewRunner(ctx context.Context, cfg *config.Config, sink report.Sink, adapters ...source.Adapter) *Runner {
	if sink == nil {
		sink = report.Discard{}
	}
	return &Runner{cfg: cfg, sink: sink, adapters: adapters, ctx: ctx}
}

// WithHistory appends the outcomes of every later run to h.
func (r *Runner) WithHistory(h *history.Store) *Runner {
	r.history = h
	return r
}

// Publishers lists the enabled publishers in run order.
func (r *Runner) Publishers() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Record loads the current consolidated record.
func (r *Runner) Record() (*models.Record, error) {
	return store.Load(r.cfg.Output.Path, r.cfg.Institution.Name)
}

// Running reports whether a refresh is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.Status == "running"
}

// Current returns a snapshot of the latest run, or nil if none was started.
func (r *Runner) Current() *models.RunJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	job := *r.current
	job.Publishers = append([]string(nil), r.current.Publishers...)
	return &job
}

// Total returns the number of year tasks a run over publishers dispatches.
func (r *Runner) Total(publishers []string) int {
	want := make(map[string]bool, len(publishers))
	for _, p := range publishers {
		want[p] = true
	}
	n := 0
	for _, a := range r.adapters {
		if want[a.Name()] {
			n += len(a.Years())
		}
	}
	return n
}

// Start launches a refresh of the given publishers (all enabled ones when
// empty). It fails with RUN_IN_PROGRESS while another run is active and
// with INVALID_INPUT for a publisher that is not enabled.
func (r *Runner) Start(publishers []string) (*models.RunJob, error) {
	enabled := make(map[string]bool, len(r.adapters))
	for _, a := range r.adapters {
		enabled[a.Name()] = true
	}
	for _, p := range publishers {
		if !enabled[p] {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "publisher "+p+" is not enabled", nil)
		}
	}
	if len(publishers) == 0 {
		publishers = r.Publishers()
	}

	r.mu.Lock()
	if r.current != nil && r.current.Status == "running" {
		id := r.current.ID
		r.mu.Unlock()
		return nil, models.NewScrapeError(models.ErrCodeRunInProgress, "run "+id+" is still in progress", nil)
	}
	job := &models.RunJob{
		ID:         "run-" + uuid.NewString(),
		Status:     "running",
		Publishers: publishers,
		StartedAt:  time.Now().UTC(),
	}
	r.current = job
	snapshot := *job
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job)
	}()

	return &snapshot, nil
}

// Wait blocks until the background run, if any, has saved its record.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(job *models.RunJob) {
	logger := slog.With("run", job.ID)
	logger.Info("refresh started", "publishers", job.Publishers)

	err := r.refresh(job)

	now := time.Now().UTC()
	r.mu.Lock()
	job.FinishedAt = &now
	if err != nil {
		job.Status = "failed"
		job.Error = err.Error()
	} else {
		job.Status = "completed"
	}
	r.mu.Unlock()

	if err != nil {
		logger.Error("refresh failed", "error", err)
		return
	}
	logger.Info("refresh finished", "completed", job.Completed, "duration", now.Sub(job.StartedAt))
}

func (r *Runner) refresh(job *models.RunJob) error {
	rec, err := r.Record()
	if err != nil {
		return err
	}

	sink := report.Multi{r.sink, progress{r: r, job: job}}
	if r.history != nil {
		sink = append(sink, r.history.Sink(job.ID))
	}
	orch := orchestrator.New(r.cfg, sink, r.adapters...)
	updated, _, err := orch.RunAll(r.ctx, rec, job.Publishers...)
	if err != nil {
		return err
	}
	return store.Save(r.cfg.Output.Path, updated)
}

// progress counts finished year tasks of one run.
type progress struct {
	r   *Runner
	job *models.RunJob
}

func (p progress) Report(_ context.Context, o models.Outcome) {
	if o.Status == models.StatusLayoutDrift {
		return
	}
	p.r.mu.Lock()
	p.job.Completed++
	p.r.mu.Unlock()
}
