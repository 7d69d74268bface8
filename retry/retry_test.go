package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unirank/unirank/models"
)

// noSleep records requested delays instead of sleeping.
func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &delays
}

var policy = Policy{MaxAttempts: 3, MinBackoff: 5 * time.Second, MaxBackoff: 10 * time.Second}

func transient() error {
	return models.NewScrapeError(models.ErrCodeReadiness, "table never appeared", context.DeadlineExceeded)
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	delays := noSleep(t)
	calls := 0

	ext, err := Do(context.Background(), policy, func(context.Context) (models.Extraction, error) {
		calls++
		return models.Extraction{Rank: "512", Status: models.StatusFound}, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ext.Found() || ext.Rank != "512" || ext.Attempts != 1 {
		t.Errorf("got %+v", ext)
	}
	if calls != 1 || len(*delays) != 0 {
		t.Errorf("calls = %d, delays = %v", calls, *delays)
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	delays := noSleep(t)
	calls := 0

	ext, err := Do(context.Background(), policy, func(context.Context) (models.Extraction, error) {
		calls++
		if calls < 3 {
			return models.Extraction{}, transient()
		}
		return models.Extraction{Rank: "601-800", Status: models.StatusFound}, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.Rank != "601-800" || ext.Attempts != 3 {
		t.Errorf("got %+v", ext)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 backoffs, got %v", *delays)
	}
	for _, d := range *delays {
		if d < policy.MinBackoff || d > policy.MaxBackoff {
			t.Errorf("backoff %s outside [%s, %s]", d, policy.MinBackoff, policy.MaxBackoff)
		}
	}
}

func TestDo_ExhaustedBecomesNotFound(t *testing.T) {
	noSleep(t)
	calls := 0

	ext, err := Do(context.Background(), policy, func(context.Context) (models.Extraction, error) {
		calls++
		return models.Extraction{}, transient()
	})

	if err != nil {
		t.Fatalf("transient failures must not propagate, got %v", err)
	}
	if calls != policy.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, policy.MaxAttempts)
	}
	if ext.Found() || ext.Status != models.StatusExhausted || ext.Attempts != 3 {
		t.Errorf("got %+v", ext)
	}
}

func TestDo_ConfigErrorPropagatesImmediately(t *testing.T) {
	noSleep(t)
	calls := 0

	ext, err := Do(context.Background(), policy, func(context.Context) (models.Extraction, error) {
		calls++
		return models.Extraction{}, models.NewConfigError("year %q not in edition map", "1999")
	})

	if !models.IsConfigError(err) {
		t.Fatalf("err = %v, want CONFIG_ERROR", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if ext.Status != models.StatusConfigError {
		t.Errorf("status = %s", ext.Status)
	}
}

func TestDo_CleanNotFoundIsTerminal(t *testing.T) {
	noSleep(t)
	calls := 0

	ext, err := Do(context.Background(), policy, func(context.Context) (models.Extraction, error) {
		calls++
		return models.NotFound("institution not listed"), nil
	})

	if err != nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
	if ext.Status != models.StatusNotFound || ext.Reason != "institution not listed" {
		t.Errorf("got %+v", ext)
	}
}

func TestDo_UnclassifiedErrorIsNotRetried(t *testing.T) {
	noSleep(t)
	calls := 0

	ext, err := Do(context.Background(), policy, func(context.Context) (models.Extraction, error) {
		calls++
		return models.Extraction{}, errors.New("boom")
	})

	if err != nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
	if ext.Status != models.StatusFailed {
		t.Errorf("status = %s, want %s", ext.Status, models.StatusFailed)
	}
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	noSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	ext, err := Do(ctx, policy, func(context.Context) (models.Extraction, error) {
		calls++
		return models.Extraction{}, transient()
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || ext.Status != models.StatusExhausted {
		t.Errorf("calls = %d, ext = %+v", calls, ext)
	}
}

func TestPolicy_Backoff(t *testing.T) {
	fixed := Policy{MinBackoff: time.Second, MaxBackoff: time.Second}
	if d := fixed.backoff(); d != time.Second {
		t.Errorf("fixed backoff = %s", d)
	}
	for i := 0; i < 100; i++ {
		if d := policy.backoff(); d < policy.MinBackoff || d > policy.MaxBackoff {
			t.Fatalf("backoff %s out of range", d)
		}
	}
}
