package engine

import (
	"context"
	"fmt"
)

// RodRenderFunc is the callback type that wraps scraper.Browser.Render.
// It is injected from main.go to avoid a circular import (engine/ -> scraper/).
type RodRenderFunc func(ctx context.Context, req *RenderRequest) (*RenderResult, error)

// RodEngine is a browser-based renderer that delegates to the rod scraper
// via a callback function. The forceStealth flag distinguishes between the
// plain and the stealth variant.
type RodEngine struct {
	renderFunc   RodRenderFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine.
//   - renderFunc: callback that invokes the rod-based scraper (injected from main.go).
//   - forceStealth: when true, the engine always sets Stealth=true on requests.
func NewRodEngine(renderFunc RodRenderFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{
		renderFunc:   renderFunc,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if e.renderFunc == nil {
		return nil, fmt.Errorf("%s: renderFunc not configured", e.name)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.renderFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	result.EngineName = e.name
	return result, nil
}
