package main

import (
	"time"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/engine"
	"github.com/unirank/unirank/history"
	"github.com/unirank/unirank/scraper"
	"github.com/unirank/unirank/source"
)

// pipeline is everything a run needs, built once per process.
type pipeline struct {
	adapters []source.Adapter
	browser  *scraper.Browser
	memory   *engine.HostMemory
}

// newPipeline wires the renderers into the publisher adapters.
//
// Interactive publishers always drive the browser. Static listings go
// through the dispatcher, which starts with a plain HTTP fetch and lets the
// browser join after EscalationDelay.
func newPipeline(cfg *config.Config) (*pipeline, error) {
	browser := scraper.NewBrowser(cfg.Browser, cfg.Scraper)

	// The callback keeps engine/ from importing scraper/.
	rod := engine.NewRodEngine(browser.Render, false)
	memory := engine.NewHostMemory(cfg.Engine.MemoryTTL)
	static := engine.NewDispatcher(
		[]engine.Renderer{engine.NewHTTPEngine(cfg.Engine.HTTPTimeout), rod},
		[]time.Duration{0, cfg.Engine.EscalationDelay},
		memory,
	)

	adapters, err := source.Build(cfg, source.Renderers{Browser: rod, Static: static})
	if err != nil {
		memory.Stop()
		browser.Close()
		return nil, err
	}
	return &pipeline{adapters: adapters, browser: browser, memory: memory}, nil
}

// Close kills any browser still running and stops the host memory janitor.
func (p *pipeline) Close() {
	p.memory.Stop()
	p.browser.Close()
}

// openHistory opens the outcome history, or returns nil when it is disabled.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.Output.HistoryEnabled() {
		return nil, nil
	}
	return history.Open(cfg.Output.HistoryPath)
}
