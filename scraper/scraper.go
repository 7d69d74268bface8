package scraper

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/models"
)

// Browser hands out exclusive rendering sessions. Nothing is shared
// between two Render calls: locally every session gets its own Chromium
// process, remotely its own incognito context. It is safe for concurrent use.
type Browser struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig

	mu       sync.Mutex
	sessions map[*session]struct{}
	remote   *rod.Browser // connection to RemoteURL, shared by its incognito contexts
	closed   bool

	active atomic.Int32
}

// NewBrowser validates nothing up front; launch failures surface per
// session as BROWSER_CRASH so the retry wrapper can try again.
func NewBrowser(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) *Browser {
	return &Browser{
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		sessions:   make(map[*session]struct{}),
	}
}

// Active returns the number of sessions currently open.
func (b *Browser) Active() int {
	return int(b.active.Load())
}

// session is one exclusive browser client. close releases everything it
// acquired and is safe to call more than once.
type session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher // nil in remote mode
	once     sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		if s.launcher == nil {
			// Incognito context on a shared endpoint: dispose the context only.
			if err := s.browser.Close(); err != nil {
				slog.Debug("session: close incognito context", "error", err)
			}
			return
		}
		if err := s.browser.Close(); err != nil {
			slog.Debug("session: close browser", "error", err)
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
}

// openSession starts a dedicated browser (or incognito context) for one
// render. The caller must defer release.
func (b *Browser) openSession() (*session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "browser is shut down", nil)
	}
	b.mu.Unlock()

	var s *session
	var err error
	if b.browserCfg.RemoteURL != "" {
		s, err = b.openRemote()
	} else {
		s, err = b.openLocal()
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "browser is shut down", nil)
	}
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
	b.active.Add(1)
	return s, nil
}

func (b *Browser) release(s *session) {
	s.close()
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
	b.active.Add(-1)
}

func (b *Browser) openLocal() (*session, error) {
	l := launcher.New().
		Headless(b.browserCfg.Headless).
		NoSandbox(b.browserCfg.NoSandbox)

	if b.browserCfg.BrowserBin != "" {
		l = l.Bin(b.browserCfg.BrowserBin)
	}
	if b.browserCfg.Proxy != "" {
		l = l.Proxy(b.browserCfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	return &session{browser: browser, launcher: l}, nil
}

func (b *Browser) openRemote() (*session, error) {
	b.mu.Lock()
	root := b.remote
	if root == nil {
		root = rod.New().ControlURL(b.browserCfg.RemoteURL)
		if err := root.Connect(); err != nil {
			b.mu.Unlock()
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to remote browser", err)
		}
		b.remote = root
	}
	b.mu.Unlock()

	incognito, err := root.Incognito()
	if err != nil {
		// The endpoint may have restarted; reconnect on the next attempt.
		b.mu.Lock()
		if b.remote == root {
			b.remote = nil
		}
		b.mu.Unlock()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create incognito context", err)
	}
	return &session{browser: incognito}, nil
}

// Close tears down every session still open and refuses new ones.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	b.mu.Lock()
	b.closed = true
	open := make([]*session, 0, len(b.sessions))
	for s := range b.sessions {
		open = append(open, s)
	}
	b.mu.Unlock()

	if len(open) > 0 {
		slog.Info("browser shutting down: closing sessions", "count", len(open))
	}
	for _, s := range open {
		s.close()
	}
}
