package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/engine"
	"github.com/unirank/unirank/matcher"
	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/simhash"
	"github.com/unirank/unirank/source"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Pool.DefaultSize = 2
	cfg.Pool.Sizes = nil
	cfg.Pool.StartsPerSecond = 0
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.MinBackoff = 0
	cfg.Retry.MaxBackoff = 0
	cfg.Report.DriftThreshold = 12
	return cfg
}

type result struct {
	ext models.Extraction
	err error
}

// scriptedAdapter answers each year from a fixed table and counts calls.
type scriptedAdapter struct {
	name    string
	years   []string
	answers map[string]result
	delay   time.Duration
	gates   map[string]chan struct{}

	mu       sync.Mutex
	calls    map[string]int
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *scriptedAdapter) Name() string    { return s.name }
func (s *scriptedAdapter) Years() []string { return s.years }

func (s *scriptedAdapter) Fetch(ctx context.Context, year string) (models.Extraction, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[year]++
	s.mu.Unlock()

	if g := s.gates[year]; g != nil {
		<-g
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if year == "panic" {
		panic("unexpected markup")
	}
	r, ok := s.answers[year]
	if !ok {
		return models.NotFound("institution not listed"), nil
	}
	return r.ext, r.err
}

func (s *scriptedAdapter) callsFor(year string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[year]
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

func (r *recordingSink) Report(_ context.Context, o models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingSink) byStatus(s models.Status) []models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Outcome
	for _, o := range r.outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

// streamSink hands every outcome to the test as it is reported.
type streamSink chan models.Outcome

func (s streamSink) Report(_ context.Context, o models.Outcome) { s <- o }

func found(rank string) result {
	return result{ext: models.Extraction{Status: models.StatusFound, Rank: rank}}
}

func TestRun_FreshValuesFillGapsWithoutErasingBaseline(t *testing.T) {
	a := &scriptedAdapter{
		name:    "times",
		years:   []string{"2022", "2023"},
		answers: map[string]result{"2023": found("501-600")},
	}
	o := New(testConfig(), nil, a)

	baseline := models.RankMap{"2022": models.Rank("601-800"), "2023": nil}
	got := o.Run(context.Background(), a, a.Years(), baseline)

	want := models.RankMap{"2022": models.Rank("601-800"), "2023": models.Rank("501-600")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged map mismatch (-want +got):\n%s", diff)
	}
	if *baseline["2022"] != "601-800" || baseline["2023"] != nil {
		t.Error("baseline was mutated")
	}
}

func TestRun_ReadinessNeverAppears(t *testing.T) {
	readiness := models.NewScrapeError(models.ErrCodeReadiness, "table.pagedtable.ranking did not appear", nil)
	a := &scriptedAdapter{
		name:  "leiden",
		years: []string{"2020", "2021"},
		answers: map[string]result{
			"2020": found("640"),
			"2021": {err: readiness},
		},
	}
	sink := &recordingSink{}
	o := New(testConfig(), sink, a)

	baseline := models.RankMap{"2021": models.Rank("655")}
	got, outcomes := o.RunDetailed(context.Background(), a, a.Years(), baseline)

	want := models.RankMap{"2020": models.Rank("640"), "2021": models.Rank("655")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged map mismatch (-want +got):\n%s", diff)
	}
	if n := a.callsFor("2021"); n != 3 {
		t.Errorf("2021 fetched %d times, want 3", n)
	}
	if outcomes[1].Status != models.StatusExhausted || outcomes[1].Attempts != 3 {
		t.Errorf("2021 outcome = %+v", outcomes[1])
	}
	exhausted := sink.byStatus(models.StatusExhausted)
	if len(exhausted) != 1 || exhausted[0].Publisher != "leiden" || exhausted[0].Year != "2021" {
		t.Errorf("sink exhausted outcomes = %+v", exhausted)
	}
	if len(sink.byStatus(models.StatusFound)) != 1 {
		t.Error("found outcome should be reported too")
	}
}

type staticRenderer struct{ html string }

func (staticRenderer) Name() string { return "static" }

func (r staticRenderer) Render(_ context.Context, req *engine.RenderRequest) (*engine.RenderResult, error) {
	return &engine.RenderResult{HTML: r.html, FinalURL: req.URL, EngineName: "static"}, nil
}

func TestRun_UnmappedYearIsIsolated(t *testing.T) {
	id, err := matcher.NewIdentity("Ferdowsi University of Mashhad", []string{"ferdowsi univ"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	html := `<table id="datatable-1"><tr><td class="rank">801-1000</td><td>Ferdowsi University of Mashhad</td></tr></table>`
	a, err := source.NewTableAdapter(source.Times("ferdowsi"), source.Renderers{Browser: staticRenderer{html: html}}, id, config.ScraperConfig{})
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	o := New(testConfig(), sink, a)

	got, outcomes := o.RunDetailed(context.Background(), a, []string{"2024", "1999"}, models.RankMap{})

	want := models.RankMap{"2024": models.Rank("801-1000"), "1999": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged map mismatch (-want +got):\n%s", diff)
	}
	if outcomes[1].Status != models.StatusConfigError || outcomes[1].Attempts != 1 {
		t.Errorf("1999 outcome = %+v", outcomes[1])
	}
	if len(sink.byStatus(models.StatusConfigError)) != 1 {
		t.Error("config error should reach the sink")
	}
}

func TestRun_PanicIsolatedToItsYear(t *testing.T) {
	a := &scriptedAdapter{
		name:    "isc",
		years:   []string{"1401-1402", "panic"},
		answers: map[string]result{"1401-1402": found("7")},
	}
	o := New(testConfig(), nil, a)

	got, outcomes := o.RunDetailed(context.Background(), a, a.Years(), nil)
	if got.Get("1401-1402") == nil || *got.Get("1401-1402") != "7" {
		t.Errorf("sibling year lost: %v", got)
	}
	if _, ok := got["panic"]; !ok {
		t.Error("every configured year must stay in the map")
	}
	if outcomes[1].Status != models.StatusFailed {
		t.Errorf("panicking year outcome = %+v", outcomes[1])
	}
}

func TestRun_PoolBound(t *testing.T) {
	years := []string{"2013", "2014", "2015", "2016", "2017", "2018", "2019", "2020"}
	a := &scriptedAdapter{name: "leiden", years: years, delay: 20 * time.Millisecond}
	cfg := testConfig()
	cfg.Pool.Sizes = map[string]int{"leiden": 3}
	o := New(cfg, nil, a)

	got := o.Run(context.Background(), a, years, nil)
	if len(got) != len(years) {
		t.Errorf("got %d years, want %d", len(got), len(years))
	}
	if p := a.peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds pool size 3", p)
	}
}

func TestRun_CanceledBeforeDispatchKeepsBaseline(t *testing.T) {
	a := &scriptedAdapter{name: "times", years: []string{"2022", "2023"}, answers: map[string]result{"2022": found("1")}}
	o := New(testConfig(), nil, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	baseline := models.RankMap{"2022": models.Rank("601-800")}
	got, outcomes := o.RunDetailed(ctx, a, a.Years(), baseline)

	if len(outcomes) != 0 {
		t.Errorf("outcomes = %+v, want none", outcomes)
	}
	want := models.RankMap{"2022": models.Rank("601-800"), "2023": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged map mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAll_LayoutDrift(t *testing.T) {
	fp := simhash.FingerprintLayout(`<table class="rk-table"><tr><td>1</td><td><span class="univ-name">x</span></td></tr></table>`)
	a := &scriptedAdapter{
		name:  "shanghai",
		years: []string{"2022", "2023"},
		answers: map[string]result{
			"2022": {ext: models.Extraction{Status: models.StatusFound, Rank: "601-700", Fingerprint: fp}},
			"2023": {ext: models.Extraction{Status: models.StatusNotFound, Fingerprint: fp}},
		},
	}
	sink := &recordingSink{}
	o := New(testConfig(), sink, a)

	rec := models.NewRecord("Ferdowsi University of Mashhad")
	rec.Rankings["shanghai"] = models.RankMap{"2023": models.Rank("701-800")}
	rec.Layouts["shanghai"] = map[string]string{
		"2022": simhash.Format(fp),  // unchanged
		"2023": simhash.Format(^fp), // every bit flipped
	}

	out, outcomes, err := o.RunAll(context.Background(), rec)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	drifts := sink.byStatus(models.StatusLayoutDrift)
	if len(drifts) != 1 || drifts[0].Year != "2023" {
		t.Fatalf("drift reports = %+v", drifts)
	}
	var inOutcomes int
	for _, o := range outcomes {
		if o.Status == models.StatusLayoutDrift {
			inOutcomes++
		}
	}
	if inOutcomes != 1 {
		t.Errorf("drift outcomes returned = %d, want 1", inOutcomes)
	}

	want := models.RankMap{"2022": models.Rank("601-700"), "2023": models.Rank("701-800")}
	if diff := cmp.Diff(want, out.Rankings["shanghai"]); diff != "" {
		t.Errorf("rankings mismatch (-want +got):\n%s", diff)
	}
	if out.Layouts["shanghai"]["2023"] != simhash.Format(fp) {
		t.Error("new fingerprint should replace the old one")
	}
	if out.UpdatedAt == nil {
		t.Error("UpdatedAt not set")
	}
	if rec.UpdatedAt != nil || rec.Layouts["shanghai"]["2023"] != simhash.Format(^fp) {
		t.Error("input record was mutated")
	}
}

func TestRunAll_SelectsPublishers(t *testing.T) {
	leiden := &scriptedAdapter{name: "leiden", years: []string{"2023"}, answers: map[string]result{"2023": found("630")}}
	times := &scriptedAdapter{name: "times", years: []string{"2023"}}
	o := New(testConfig(), nil, leiden, times)

	out, _, err := o.RunAll(context.Background(), models.NewRecord("FUM"), "leiden")
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if _, ok := out.Rankings["times"]; ok {
		t.Error("times was not selected")
	}
	if times.callsFor("2023") != 0 {
		t.Error("unselected adapter was called")
	}

	if _, _, err := o.RunAll(context.Background(), models.NewRecord("FUM"), "qs"); !models.IsConfigError(err) {
		t.Errorf("unknown publisher: got %v, want CONFIG_ERROR", err)
	}
}

func TestRun_ReportsEachOutcomeWhenItsTaskFinishes(t *testing.T) {
	gate := make(chan struct{})
	a := &scriptedAdapter{
		name:    "times",
		years:   []string{"2022", "2023"},
		answers: map[string]result{"2022": found("601-800")},
		gates:   map[string]chan struct{}{"2023": gate},
	}
	sink := make(streamSink, 2)
	o := New(testConfig(), sink, a)

	done := make(chan models.RankMap, 1)
	go func() { done <- o.Run(context.Background(), a, a.Years(), nil) }()

	select {
	case out := <-sink:
		if out.Year != "2022" || out.Status != models.StatusFound {
			t.Errorf("first outcome = %+v", out)
		}
	case <-time.After(5 * time.Second):
		t.Error("no outcome reported while a sibling year was still running")
	}

	close(gate)
	got := <-done
	if out := <-sink; out.Year != "2023" {
		t.Errorf("second outcome = %+v", out)
	}
	if got.Get("2022") == nil || *got.Get("2022") != "601-800" {
		t.Errorf("merged map = %v", got)
	}
}
