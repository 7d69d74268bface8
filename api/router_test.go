package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"github.com/unirank/unirank/api/handler"
	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/history"
	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/source"
	"github.com/unirank/unirank/store"
)

const testKey = "test-key"

type fakeAdapter struct {
	name  string
	years []string
	ranks map[string]string
	gate  chan struct{}
	// gateYear limits gate to one year; empty gates every year.
	gateYear string
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Years() []string { return f.years }

func (f *fakeAdapter) Fetch(ctx context.Context, year string) (models.Extraction, error) {
	if f.gate != nil && (f.gateYear == "" || f.gateYear == year) {
		<-f.gate
	}
	if r, ok := f.ranks[year]; ok {
		return models.Extraction{Status: models.StatusFound, Rank: r}, nil
	}
	return models.NotFound("institution not listed"), nil
}

func testSetup(t *testing.T, adapters ...*fakeAdapter) (*gin.Engine, *handler.Runner, *config.Config) {
	t.Helper()
	cfg := config.Load()
	cfg.Server.Mode = gin.TestMode
	cfg.Output.Path = filepath.Join(t.TempDir(), "rankings.json")
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{testKey}
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100}
	cfg.Pool.StartsPerSecond = 0
	cfg.Retry.MinBackoff = 0
	cfg.Retry.MaxBackoff = 0

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	as := make([]source.Adapter, len(adapters))
	for i, a := range adapters {
		as[i] = a
	}
	rn := handler.NewRunner(ctx, cfg, nil, as...)
	t.Cleanup(rn.Wait)
	return NewRouter(ctx, rn, cfg, time.Now()), rn, cfg
}

func do(r http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	r, _, _ := testSetup(t, &fakeAdapter{name: "leiden"}, &fakeAdapter{name: "times"})

	w := do(r, http.MethodGet, "/api/v1/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[models.HealthResponse](t, w)
	if resp.Status != "healthy" || resp.Running {
		t.Errorf("resp = %+v", resp)
	}
	if diff := cmp.Diff([]string{"leiden", "times"}, resp.Publishers); diff != "" {
		t.Errorf("publishers mismatch (-want +got):\n%s", diff)
	}
}

func TestAuth(t *testing.T) {
	r, _, _ := testSetup(t, &fakeAdapter{name: "leiden"})

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", testKey, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + testKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rankings", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				resp := decode[models.ErrorResponse](t, w)
				if resp.Error == nil || resp.Error.Code != models.ErrCodeUnauthorized {
					t.Errorf("error = %+v", resp.Error)
				}
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r, _, cfg := testSetup(t, &fakeAdapter{name: "leiden"})
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	r = NewRouter(context.Background(), handler.NewRunner(context.Background(), cfg, nil), cfg, time.Now())

	if w := do(r, http.MethodGet, "/api/v1/rankings", "", true); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := do(r, http.MethodGet, "/api/v1/rankings", "", true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if resp := decode[models.ErrorResponse](t, w); resp.Error.Code != models.ErrCodeRateLimited {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func TestRankings(t *testing.T) {
	r, _, cfg := testSetup(t, &fakeAdapter{name: "leiden"}, &fakeAdapter{name: "times"})

	rec := models.NewRecord(cfg.Institution.Name)
	rec.Rankings["leiden"] = models.RankMap{"2023": models.Rank("630")}
	rec.Rankings["times"] = models.RankMap{"2024": models.Rank("801-1000"), "2013": nil}
	if err := store.Save(cfg.Output.Path, rec); err != nil {
		t.Fatal(err)
	}

	w := do(r, http.MethodGet, "/api/v1/rankings", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	all := decode[models.RankingsResponse](t, w)
	if !all.Success || all.University != cfg.Institution.Name || len(all.Rankings) != 2 {
		t.Errorf("resp = %+v", all)
	}

	w = do(r, http.MethodGet, "/api/v1/rankings?publisher=times", "", true)
	one := decode[models.RankingsResponse](t, w)
	want := map[string]models.RankMap{"times": {"2024": models.Rank("801-1000"), "2013": nil}}
	if diff := cmp.Diff(want, one.Rankings); diff != "" {
		t.Errorf("filtered rankings mismatch (-want +got):\n%s", diff)
	}

	w = do(r, http.MethodGet, "/api/v1/rankings?publisher=qs", "", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown publisher status = %d, want 400", w.Code)
	}
}

func TestRuns_Lifecycle(t *testing.T) {
	leiden := &fakeAdapter{name: "leiden", years: []string{"2022", "2023"}, ranks: map[string]string{"2023": "630"}}
	times := &fakeAdapter{name: "times", years: []string{"2024"}, ranks: map[string]string{"2024": "801-1000"}}
	r, rn, cfg := testSetup(t, leiden, times)

	if w := do(r, http.MethodGet, "/api/v1/runs/current", "", true); w.Code != http.StatusNotFound {
		t.Errorf("no run yet: status = %d, want 404", w.Code)
	}

	w := do(r, http.MethodPost, "/api/v1/runs", `{"publishers":["leiden"]}`, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d: %s", w.Code, w.Body.String())
	}
	started := decode[models.RunResponse](t, w)
	if started.Status != "running" || !strings.HasPrefix(started.ID, "run-") {
		t.Errorf("started = %+v", started)
	}
	rn.Wait()

	w = do(r, http.MethodGet, "/api/v1/runs/current", "", true)
	status := decode[models.RunStatusResponse](t, w)
	if status.ID != started.ID || status.Status != "completed" || status.Completed != 2 || status.Total != 2 {
		t.Errorf("status = %+v", status)
	}
	if status.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}

	rec, err := store.Load(cfg.Output.Path, cfg.Institution.Name)
	if err != nil {
		t.Fatal(err)
	}
	want := models.RankMap{"2022": nil, "2023": models.Rank("630")}
	if diff := cmp.Diff(want, rec.Rankings["leiden"]); diff != "" {
		t.Errorf("saved rankings mismatch (-want +got):\n%s", diff)
	}
	if _, ok := rec.Rankings["times"]; ok {
		t.Error("times was not requested")
	}
}

func TestRuns_ProgressWithinPublisher(t *testing.T) {
	gate := make(chan struct{})
	leiden := &fakeAdapter{
		name:     "leiden",
		years:    []string{"2022", "2023"},
		ranks:    map[string]string{"2022": "640"},
		gate:     gate,
		gateYear: "2023",
	}
	r, rn, _ := testSetup(t, leiden)

	if w := do(r, http.MethodPost, "/api/v1/runs", "", true); w.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d", w.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	var status models.RunStatusResponse
	for time.Now().Before(deadline) {
		status = decode[models.RunStatusResponse](t, do(r, http.MethodGet, "/api/v1/runs/current", "", true))
		if status.Completed == 1 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if status.Completed != 1 || status.Status != "running" || status.Total != 2 {
		t.Errorf("mid-run status = %+v, want 1/2 running", status)
	}

	close(gate)
	rn.Wait()
	status = decode[models.RunStatusResponse](t, do(r, http.MethodGet, "/api/v1/runs/current", "", true))
	if status.Completed != 2 || status.Status != "completed" {
		t.Errorf("final status = %+v", status)
	}
}

func TestRuns_History(t *testing.T) {
	leiden := &fakeAdapter{name: "leiden", years: []string{"2022", "2023"}, ranks: map[string]string{"2023": "630"}}
	r, rn, _ := testSetup(t, leiden)

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })
	rn.WithHistory(hist)

	started := decode[models.RunResponse](t, do(r, http.MethodPost, "/api/v1/runs", "", true))
	rn.Wait()

	entries, err := hist.Recent(context.Background(), "leiden", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.RunID != started.ID {
			t.Errorf("entry run = %q, want %q", e.RunID, started.ID)
		}
	}
}

func TestRuns_Conflict(t *testing.T) {
	gate := make(chan struct{})
	slow := &fakeAdapter{name: "shanghai", years: []string{"2023"}, gate: gate}
	r, rn, _ := testSetup(t, slow)

	if w := do(r, http.MethodPost, "/api/v1/runs", "", true); w.Code != http.StatusAccepted {
		t.Fatalf("first POST status = %d: %s", w.Code, w.Body.String())
	}

	w := do(r, http.MethodPost, "/api/v1/runs", "", true)
	if w.Code != http.StatusConflict {
		t.Errorf("second POST status = %d, want 409", w.Code)
	}
	if resp := decode[models.ErrorResponse](t, w); resp.Error.Code != models.ErrCodeRunInProgress {
		t.Errorf("code = %s", resp.Error.Code)
	}

	h := decode[models.HealthResponse](t, do(r, http.MethodGet, "/api/v1/health", "", false))
	if !h.Running || h.Status != "busy" {
		t.Errorf("health during run = %+v", h)
	}

	close(gate)
	rn.Wait()
	if w := do(r, http.MethodPost, "/api/v1/runs", "", true); w.Code != http.StatusAccepted {
		t.Errorf("POST after completion status = %d", w.Code)
	}
}

func TestRuns_InvalidInput(t *testing.T) {
	r, _, _ := testSetup(t, &fakeAdapter{name: "leiden", years: []string{"2023"}})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"publishers":`},
		{"unknown publisher", `{"publishers":["qs"]}`},
		{"empty name", `{"publishers":[""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/runs", tt.body, true)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}
