// Package source turns one publisher edition into a rank value. Every
// publisher shares TableAdapter's control flow and differs only in its
// Profile: edition map, URL, readiness signal, interaction steps and row rule.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/engine"
	"github.com/unirank/unirank/matcher"
	"github.com/unirank/unirank/models"
)

// Adapter fetches one publisher's rank for a single edition.
type Adapter interface {
	// Name is the publisher key used in the consolidated record.
	Name() string

	// Years lists the configured YearKeys in edition order.
	Years() []string

	// Fetch returns a found rank, a clean NotFound, or an error whose code
	// tells the retry wrapper whether another attempt can help.
	Fetch(ctx context.Context, year string) (models.Extraction, error)
}

// Edition maps a YearKey to the publisher's internal edition identifier.
type Edition struct {
	Year string
	ID   string
}

// Profile is everything that differs between publishers.
type Profile struct {
	Name     string
	Editions []Edition

	// URL contains an "{id}" placeholder for the edition identifier.
	URL string

	ReadySelector     string
	Steps             []models.Step
	PostReadySelector string

	// Static listings are served as plain HTML and go through the
	// HTTP-first dispatcher; the rest always use the browser.
	Static bool

	Rule RowRule
}

// Years returns the YearKeys in edition order.
func (p Profile) Years() []string {
	years := make([]string, len(p.Editions))
	for i, e := range p.Editions {
		years[i] = e.Year
	}
	return years
}

// EditionID resolves a YearKey.
func (p Profile) EditionID(year string) (string, bool) {
	for _, e := range p.Editions {
		if e.Year == year {
			return e.ID, true
		}
	}
	return "", false
}

// Renderers are the rendering capabilities an adapter may use.
type Renderers struct {
	// Browser drives a real browser; required.
	Browser engine.Renderer

	// Static is tried for Static profiles; nil falls back to Browser.
	Static engine.Renderer
}

func (r Renderers) pick(static bool) engine.Renderer {
	if static && r.Static != nil {
		return r.Static
	}
	return r.Browser
}

// TableAdapter implements Adapter for any Profile.
type TableAdapter struct {
	profile  Profile
	renderer engine.Renderer
	identity matcher.Identity
	timeouts config.ScraperConfig
}

// NewTableAdapter binds a profile to a renderer and the institution identity.
func NewTableAdapter(p Profile, r Renderers, id matcher.Identity, timeouts config.ScraperConfig) (*TableAdapter, error) {
	if p.Name == "" || p.URL == "" || len(p.Editions) == 0 {
		return nil, models.NewConfigError("profile %q is incomplete", p.Name)
	}
	if !strings.Contains(p.URL, "{id}") {
		return nil, models.NewConfigError("profile %q: url has no {id} placeholder", p.Name)
	}
	renderer := r.pick(p.Static)
	if renderer == nil {
		return nil, models.NewConfigError("profile %q: no renderer configured", p.Name)
	}
	return &TableAdapter{profile: p, renderer: renderer, identity: id, timeouts: timeouts}, nil
}

func (a *TableAdapter) Name() string { return a.profile.Name }

func (a *TableAdapter) Years() []string { return a.profile.Years() }

// Fetch renders the edition listing once and scans it for the institution.
func (a *TableAdapter) Fetch(ctx context.Context, year string) (ext models.Extraction, err error) {
	id, ok := a.profile.EditionID(year)
	if !ok {
		return models.Extraction{}, models.NewConfigError("%s: year %q is not in the edition map", a.profile.Name, year)
	}

	// A panic while parsing must not take the worker down; the renderer
	// has already released its session by then.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("source: panic during fetch", "publisher", a.profile.Name, "year", year, "panic", r)
			ext = models.Extraction{}
			err = models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	req := &engine.RenderRequest{
		URL:               strings.ReplaceAll(a.profile.URL, "{id}", id),
		ReadySelector:     a.profile.ReadySelector,
		Steps:             a.profile.Steps,
		PostReadySelector: a.profile.PostReadySelector,
		NavigationTimeout: a.timeouts.NavigationTimeout,
		ReadyTimeout:      a.timeouts.ReadyTimeout,
		ActionTimeout:     a.timeouts.ActionTimeout,
		Stealth:           a.timeouts.Stealth,
	}

	res, err := a.renderer.Render(ctx, req)
	if err != nil {
		return models.Extraction{}, err
	}
	if res.InteractionErr != nil {
		// The snapshot is not scoped the way the row rule expects.
		if models.CodeOf(res.InteractionErr) == "" {
			return models.Extraction{}, models.NewScrapeError(models.ErrCodeInteraction, "interaction failed", res.InteractionErr)
		}
		return models.Extraction{}, res.InteractionErr
	}

	ext, err = Extract(res.HTML, a.profile.Rule, a.identity)
	if err != nil {
		return models.Extraction{}, err
	}
	slog.Debug("source: extracted",
		"publisher", a.profile.Name,
		"year", year,
		"status", ext.Status,
		"rank", ext.Rank,
		"engine", res.EngineName,
	)
	return ext, nil
}
