package engine

import (
	"context"
	"errors"
	"time"

	"github.com/unirank/unirank/models"
)

// Renderer is the capability "render page, wait for condition, read final
// DOM" that source adapters depend on.
type Renderer interface {
	// Name returns the renderer identifier (e.g. "http", "rod", "rod-stealth").
	Name() string

	// Render loads req.URL, waits for the readiness signal, runs the
	// interaction steps and returns one snapshot of the markup.
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
}

// RenderRequest contains everything a renderer needs for one listing page.
type RenderRequest struct {
	URL string

	// ReadySelector must match at least one element before the page is
	// considered rendered.
	ReadySelector string

	// Steps run after the readiness signal, in order.
	Steps []models.Step

	// PostReadySelector, if set, is waited for after Steps.
	PostReadySelector string

	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	ActionTimeout     time.Duration

	Stealth bool
	Headers map[string]string
}

// HasInteraction reports whether the request needs a renderer that can
// drive the page after load.
func (r *RenderRequest) HasInteraction() bool {
	return len(r.Steps) > 0 || r.PostReadySelector != ""
}

// RenderResult is the output of a successful render.
type RenderResult struct {
	HTML       string
	FinalURL   string
	EngineName string

	// InteractionErr is set when the page rendered but a step or the
	// post-interaction wait failed. HTML is still the snapshot taken at
	// that point; callers decide whether it is usable.
	InteractionErr error
}

// categorize wraps raw transport errors into typed ScrapeErrors so the
// retry wrapper can tell transient failures apart.
func categorize(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
