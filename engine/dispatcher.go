package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Dispatcher races several renderers with staged escalation. It starts the
// cheapest renderer first and lets heavier ones join after their delay if
// the earlier ones have not succeeded yet. Dispatcher itself implements
// Renderer, so adapters do not know whether they talk to one engine or many.
type Dispatcher struct {
	engines          []Renderer
	escalationDelays []time.Duration
	memory           *HostMemory
}

// NewDispatcher creates a Dispatcher with the given renderers and delays.
// engines[i] starts after escalationDelays[i] from the race beginning.
// Missing delays default to 0. memory may be nil.
func NewDispatcher(engines []Renderer, escalationDelays []time.Duration, memory *HostMemory) *Dispatcher {
	delays := make([]time.Duration, len(engines))
	copy(delays, escalationDelays)
	return &Dispatcher{
		engines:          engines,
		escalationDelays: delays,
		memory:           memory,
	}
}

func (d *Dispatcher) Name() string { return "dispatcher" }

// Render returns the first successful result. If all renderers fail, it
// returns the last error so its classification survives.
func (d *Dispatcher) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	host := extractHost(req.URL)

	if d.memory != nil {
		if remembered := d.memory.Get(host); remembered != "" {
			for _, eng := range d.engines {
				if eng.Name() != remembered {
					continue
				}
				slog.Debug("host memory hit", "host", host, "engine", remembered)
				result, err := eng.Render(ctx, req)
				if err == nil {
					return result, nil
				}
				slog.Info("host memory miss (engine failed), running full race",
					"host", host, "engine", remembered, "error", err)
				d.memory.Delete(host)
				break
			}
		}
	}

	return d.race(ctx, req, host)
}

// race runs all renderers with staged delays and returns the first success.
func (d *Dispatcher) race(ctx context.Context, req *RenderRequest, host string) (*RenderResult, error) {
	type raceResult struct {
		result *RenderResult
		err    error
	}

	raceCtx, raceCancel := context.WithCancel(ctx)
	defer raceCancel()

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		delay := d.escalationDelays[i]
		wg.Add(1)
		go func(e Renderer, delay time.Duration) {
			defer wg.Done()

			if delay > 0 {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-raceCtx.Done():
					return
				case <-timer.C:
				}
			}

			// Another renderer may already have won.
			select {
			case <-raceCtx.Done():
				return
			default:
			}

			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			result, err := e.Render(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{result: result, err: err}
		}(eng, delay)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	for rr := range results {
		if rr.err != nil {
			lastErr = rr.err
			continue
		}
		// First success wins; cancel the rest. Their deferred cleanup
		// still releases any browser they acquired.
		raceCancel()
		slog.Debug("engine won race", "engine", rr.result.EngineName, "url", req.URL)
		if d.memory != nil {
			d.memory.Set(host, rr.result.EngineName)
		}
		return rr.result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: all engines failed for %s", req.URL)
	}
	return nil, lastErr
}

// extractHost parses the hostname from a URL string.
func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
