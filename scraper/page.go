package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/unirank/unirank/engine"
	"github.com/unirank/unirank/models"
)

// Render drives one exclusive session through a listing page.
//
// Lifecycle:
//
//  1. Open session          – dedicated process or incognito context
//  2. DEFER: release        – runs on every exit path, panics included
//  3. Stealth + headers     – installed before navigation
//  4. Hijack mount          – blocks images/fonts/media/ads
//  5. Navigate              – bounded by NavigationTimeout
//  6. Readiness wait        – element present, bounded by ReadyTimeout
//  7. Interaction steps     – best-effort, failure lands in InteractionErr
//  8. Snapshot              – page.HTML() once
func (b *Browser) Render(ctx context.Context, req *engine.RenderRequest) (*engine.RenderResult, error) {
	// ── 1. Open session ───────────────────────────────────────────────
	s, err := b.openSession()
	if err != nil {
		return nil, err
	}
	// ── 2. Guaranteed release ─────────────────────────────────────────
	defer b.release(s)

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// ── 3. Stealth injection + headers ────────────────────────────────
	if req.Stealth || b.scraperCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	if b.browserCfg.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.browserCfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		})
	}
	if headers := extraHeaders(req); len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
	}

	// ── 4. Mount hijack router ────────────────────────────────────────
	if router := setupHijack(page, b.scraperCfg.BlockedResourceTypes, b.scraperCfg.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 5. Navigate ───────────────────────────────────────────────────
	navCtx, navCancel := withTimeout(ctx, req.NavigationTimeout)
	err = page.Context(navCtx).Navigate(req.URL)
	navCancel()
	if err != nil {
		return nil, categorizeError(err, "navigation to listing page failed")
	}

	// ── 6. Readiness signal ───────────────────────────────────────────
	if req.ReadySelector != "" {
		if err := waitFor(ctx, page, req.ReadySelector, req.ReadyTimeout); err != nil {
			return nil, readinessError(err, req.ReadySelector)
		}
	}

	result := &engine.RenderResult{EngineName: "rod"}

	// ── 7. Interaction steps + post-interaction readiness ─────────────
	result.InteractionErr = interact(ctx, req,
		func(ctx context.Context, steps []models.Step, timeout time.Duration) error {
			return executeSteps(ctx, page, steps, timeout)
		},
		func(ctx context.Context, selector string, timeout time.Duration) error {
			return waitFor(ctx, page, selector, timeout)
		},
	)

	// ── 8. Snapshot ───────────────────────────────────────────────────
	rawHTML, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to read page HTML")
	}
	result.HTML = rawHTML
	result.FinalURL = evalStringOrEmpty(page.Context(ctx), `() => window.location.href`)
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}
	return result, nil
}

// interact runs the request's steps and then waits for the post-interaction
// readiness signal. The wait is skipped when a step already failed.
func interact(
	ctx context.Context,
	req *engine.RenderRequest,
	run func(ctx context.Context, steps []models.Step, timeout time.Duration) error,
	wait func(ctx context.Context, selector string, timeout time.Duration) error,
) error {
	if len(req.Steps) > 0 {
		if err := run(ctx, req.Steps, req.ActionTimeout); err != nil {
			return err
		}
	}
	if req.PostReadySelector != "" {
		if err := wait(ctx, req.PostReadySelector, req.ReadyTimeout); err != nil {
			return models.NewScrapeError(models.ErrCodeInteraction,
				"post-interaction readiness signal "+req.PostReadySelector+" did not appear", err)
		}
	}
	return nil
}

// waitFor blocks until selector matches at least one element or the
// timeout elapses.
func waitFor(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) error {
	waitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return page.Context(waitCtx).WaitElementsMoreThan(selector, 0)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// extraHeaders merges the request headers with a search-engine Referer.
func extraHeaders(req *engine.RenderRequest) map[string]string {
	headers := make(map[string]string, len(req.Headers)+2)
	headers["Accept-Language"] = "en-US,en;q=0.9"
	if u, err := url.Parse(req.URL); err == nil {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return headers
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// readinessError keeps a cancelled parent distinct from the readiness
// signal simply not showing up.
func readinessError(err error, selector string) *models.ScrapeError {
	if errors.Is(err, context.Canceled) {
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	}
	return models.NewScrapeError(models.ErrCodeReadiness,
		"readiness signal "+selector+" did not appear", err)
}

// categorizeError wraps raw errors into typed ScrapeErrors so the retry
// wrapper can classify them.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
