// Package retry bounds and classifies attempts of one source-adapter call.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/models"
)

// Policy bounds the attempts of one call.
type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// FromConfig converts the retry section of the configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		MinBackoff:  cfg.MinBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}
}

// Call is one attempt of an adapter fetch.
type Call func(ctx context.Context) (models.Extraction, error)

// sleep is swapped out by tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do invokes call at most p.MaxAttempts times.
//
// Only recoverable failures (see models.IsRecoverable) are retried, with a
// uniformly random pause in [MinBackoff, MaxBackoff] between attempts.
// A CONFIG_ERROR is returned immediately. Every other outcome, including
// exhausted retries, is folded into an Extraction and a nil error, so the
// worst result a caller sees for a transient problem is NotFound.
func Do(ctx context.Context, p Policy, call Call) (models.Extraction, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ext, err := call(ctx)
		if err == nil {
			ext.Attempts = attempt
			if ext.Status == "" {
				ext.Status = models.StatusNotFound
			}
			return ext, nil
		}

		switch {
		case models.IsConfigError(err):
			return models.Extraction{Status: models.StatusConfigError, Reason: err.Error(), Attempts: attempt}, err
		case !models.IsRecoverable(err):
			return models.Extraction{Status: models.StatusFailed, Reason: err.Error(), Attempts: attempt}, nil
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		delay := p.backoff()
		slog.Debug("retry: transient failure, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return models.Extraction{
				Status:   models.StatusExhausted,
				Reason:   "canceled during backoff: " + err.Error(),
				Attempts: attempt,
			}, nil
		}
	}

	return models.Extraction{
		Status:   models.StatusExhausted,
		Reason:   lastErr.Error(),
		Attempts: maxAttempts,
	}, nil
}

// backoff draws a delay uniformly from [MinBackoff, MaxBackoff].
func (p Policy) backoff() time.Duration {
	if p.MaxBackoff <= p.MinBackoff {
		return p.MinBackoff
	}
	return p.MinBackoff + rand.N(p.MaxBackoff-p.MinBackoff+1)
}
