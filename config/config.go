package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/unirank/unirank/models"
)

// Config holds all application configuration.
// It is built once at start-up and passed by pointer into constructors.
type Config struct {
	Institution InstitutionConfig
	Publishers  PublishersConfig
	Pool        PoolConfig
	Retry       RetryConfig
	Browser     BrowserConfig
	Scraper     ScraperConfig
	Engine      EngineConfig
	Output      OutputConfig
	Report      ReportConfig
	Server      ServerConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

// InstitutionConfig is the identity the adapters look for.
type InstitutionConfig struct {
	// Name is the canonical display name, also used as an alias.
	Name string

	// Aliases are romanizations, abbreviations, domain fragments and the
	// native-script name, matched case-insensitively as substrings.
	Aliases []string

	// Exclude rejects a row containing any of these keywords even when an
	// alias matched (e.g. "medical sciences").
	Exclude []string

	// SearchTerm is typed into publisher search boxes and URL filters.
	SearchTerm string // default: "Ferdowsi"
}

// PublishersConfig selects which publishers run.
type PublishersConfig struct {
	Enabled []string // default: all five
}

// PoolConfig sizes the per-publisher worker pool.
type PoolConfig struct {
	// DefaultSize is the worker count for publishers without an override.
	DefaultSize int // default: 3

	// Sizes overrides DefaultSize per publisher.
	Sizes map[string]int // default: leiden=4, times=2, shanghai=2

	// StartsPerSecond paces task starts per publisher. <= 0 disables pacing.
	StartsPerSecond float64 // default: 0.5
}

// SizeFor returns the worker count for publisher, never less than 1.
func (p PoolConfig) SizeFor(publisher string) int {
	if n, ok := p.Sizes[publisher]; ok && n > 0 {
		return n
	}
	if p.DefaultSize > 0 {
		return p.DefaultSize
	}
	return 1
}

// RetryConfig bounds the per-year retry wrapper.
type RetryConfig struct {
	MaxAttempts int           // default: 3
	MinBackoff  time.Duration // default: 5s
	MaxBackoff  time.Duration // default: 10s
}

// BrowserConfig controls how rendering clients are obtained.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to every launched browser.
	Proxy string

	// RemoteURL is a DevTools endpoint of an already running browser.
	// When set, each session gets its own incognito context on it instead
	// of a dedicated process.
	RemoteURL string

	// UserAgent overrides the browser user agent.
	UserAgent string
}

// ScraperConfig holds the per-step timeouts of one render.
type ScraperConfig struct {
	// NavigationTimeout bounds page.Navigate.
	NavigationTimeout time.Duration // default: 30s

	// ReadyTimeout bounds each readiness-signal wait.
	ReadyTimeout time.Duration // default: 30s

	// ActionTimeout bounds each interaction step.
	ActionTimeout time.Duration // default: 10s

	// Stealth injects the stealth script before navigation.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad/tracking hosts.
	BlockAds bool // default: true
}

// EngineConfig controls the renderer escalation used by publishers that
// can be fetched without a browser.
type EngineConfig struct {
	// HTTPTimeout is the deadline for the plain HTTP engine.
	HTTPTimeout time.Duration // default: 10s

	// EscalationDelay is how long the browser waits before joining the race.
	EscalationDelay time.Duration // default: 3s

	// MemoryTTL is how long a winning renderer is remembered per host.
	MemoryTTL time.Duration // default: 6h
}

// OutputConfig locates the consolidated record.
type OutputConfig struct {
	Path string // default: "data/university_rankings.json"

	// HistoryPath is the SQLite file every outcome is appended to.
	// "off" disables history.
	HistoryPath string // default: "data/history.db"
}

// HistoryEnabled reports whether outcomes are appended to a history file.
func (o OutputConfig) HistoryEnabled() bool {
	return o.HistoryPath != "" && o.HistoryPath != "off"
}

// ReportConfig controls failure visibility.
type ReportConfig struct {
	// WebhookURL receives every non-found outcome. Empty disables it.
	WebhookURL string

	// WebhookSecret signs webhook bodies with HMAC-SHA256.
	WebhookSecret string

	// DriftThreshold is the SimHash distance above which a table layout
	// is reported as changed.
	DriftThreshold int // default: 12
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultPublishers is the set of publishers enabled when none are configured.
var DefaultPublishers = []string{"leiden", "scimago", "times", "shanghai", "isc"}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Institution: InstitutionConfig{
			Name: envOr("UNIRANK_INSTITUTION", "Ferdowsi University of Mashhad"),
			Aliases: envSliceOr("UNIRANK_ALIASES", []string{
				"ferdowsi univ", "ferdowsi university", "ferdowsi mashhad",
				"ferdosi", "ferdousi", "um.ac.ir", "دانشگاه فردوسی مشهد",
			}),
			Exclude:    envSliceOr("UNIRANK_EXCLUDE", []string{"medical sciences"}),
			SearchTerm: envOr("UNIRANK_SEARCH_TERM", "Ferdowsi"),
		},
		Publishers: PublishersConfig{
			Enabled: envSliceOr("UNIRANK_PUBLISHERS", DefaultPublishers),
		},
		Pool: PoolConfig{
			DefaultSize: envIntOr("UNIRANK_POOL_SIZE", 3),
			Sizes: envIntMapOr("UNIRANK_POOL_SIZES", map[string]int{
				"leiden": 4, "times": 2, "shanghai": 2,
			}),
			StartsPerSecond: envFloatOr("UNIRANK_POOL_RPS", 0.5),
		},
		Retry: RetryConfig{
			MaxAttempts: envIntOr("UNIRANK_MAX_ATTEMPTS", 3),
			MinBackoff:  envDurationOr("UNIRANK_BACKOFF_MIN", 5*time.Second),
			MaxBackoff:  envDurationOr("UNIRANK_BACKOFF_MAX", 10*time.Second),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("UNIRANK_HEADLESS", true),
			NoSandbox:  envBoolOr("UNIRANK_NO_SANDBOX", false),
			BrowserBin: os.Getenv("UNIRANK_BROWSER_BIN"),
			Proxy:      os.Getenv("UNIRANK_PROXY"),
			RemoteURL:  os.Getenv("UNIRANK_REMOTE_URL"),
			UserAgent:  os.Getenv("UNIRANK_USER_AGENT"),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("UNIRANK_NAV_TIMEOUT", 30*time.Second),
			ReadyTimeout:      envDurationOr("UNIRANK_READY_TIMEOUT", 30*time.Second),
			ActionTimeout:     envDurationOr("UNIRANK_ACTION_TIMEOUT", 10*time.Second),
			Stealth:           envBoolOr("UNIRANK_STEALTH", true),
			BlockedResourceTypes: envSliceOr("UNIRANK_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("UNIRANK_BLOCK_ADS", true),
		},
		Engine: EngineConfig{
			HTTPTimeout:     envDurationOr("UNIRANK_HTTP_TIMEOUT", 10*time.Second),
			EscalationDelay: envDurationOr("UNIRANK_ESCALATION_DELAY", 3*time.Second),
			MemoryTTL:       envDurationOr("UNIRANK_ENGINE_MEMORY_TTL", 6*time.Hour),
		},
		Output: OutputConfig{
			Path:        envOr("UNIRANK_OUTPUT", "data/university_rankings.json"),
			HistoryPath: envOr("UNIRANK_HISTORY", "data/history.db"),
		},
		Report: ReportConfig{
			WebhookURL:     os.Getenv("UNIRANK_WEBHOOK_URL"),
			WebhookSecret:  os.Getenv("UNIRANK_WEBHOOK_SECRET"),
			DriftThreshold: envIntOr("UNIRANK_DRIFT_THRESHOLD", 12),
		},
		Server: ServerConfig{
			Host: envOr("UNIRANK_HOST", "0.0.0.0"),
			Port: envIntOr("UNIRANK_PORT", 8080),
			Mode: envOr("UNIRANK_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("UNIRANK_AUTH_ENABLED", true),
			APIKeys: envSliceOr("UNIRANK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("UNIRANK_RATE_RPS", 2.0),
			Burst:             envIntOr("UNIRANK_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("UNIRANK_LOG_LEVEL", "info"),
			Format: envOr("UNIRANK_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
// Every failure is a CONFIG_ERROR.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Institution.Name) == "" {
		return models.NewConfigError("institution name is empty")
	}
	if strings.TrimSpace(c.Institution.SearchTerm) == "" {
		return models.NewConfigError("institution search term is empty")
	}
	if c.Pool.DefaultSize < 1 {
		return models.NewConfigError("pool size must be positive, got %d", c.Pool.DefaultSize)
	}
	for p, n := range c.Pool.Sizes {
		if n < 1 {
			return models.NewConfigError("pool size for %s must be positive, got %d", p, n)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return models.NewConfigError("max attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MinBackoff < 0 || c.Retry.MaxBackoff < c.Retry.MinBackoff {
		return models.NewConfigError("invalid backoff range [%s, %s]", c.Retry.MinBackoff, c.Retry.MaxBackoff)
	}
	if len(c.Publishers.Enabled) == 0 {
		return models.NewConfigError("no publishers enabled")
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envIntMapOr parses "name=4,other=2". Malformed pairs are skipped; if no
// pair survives the fallback is used.
func envIntMapOr(key string, fallback map[string]int) map[string]int {
	if v := os.Getenv(key); v != "" {
		result := make(map[string]int)
		for _, pair := range strings.Split(v, ",") {
			name, num, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			if n, err := strconv.Atoi(strings.TrimSpace(num)); err == nil {
				result[strings.TrimSpace(name)] = n
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
