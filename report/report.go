// Package report makes every non-found outcome visible to operators, so
// "genuinely unranked that year" can be told apart from "extraction broke".
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/unirank/unirank/config"
	"github.com/unirank/unirank/models"
	"github.com/unirank/unirank/webhook"
)

// Sink receives task outcomes tagged with publisher and year. Outcomes are
// reported as tasks finish, from the worker goroutines, so implementations
// must be safe for concurrent use.
type Sink interface {
	Report(ctx context.Context, o models.Outcome)
}

// LogSink writes outcomes to slog. Clean NotFound is informational; every
// other non-found status is a warning.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Report(ctx context.Context, o models.Outcome) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	switch o.Status {
	case models.StatusFound:
		level = slog.LevelDebug
	case models.StatusNotFound:
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "task outcome",
		"publisher", o.Publisher,
		"year", o.Year,
		"status", o.Status,
		"rank", o.Rank,
		"reason", o.Reason,
		"attempts", o.Attempts,
		"duration_ms", o.DurationMs,
	)
}

// WebhookSink posts each non-found outcome as an "outcome.<status>" event.
type WebhookSink struct {
	sender *webhook.Sender
}

// NewWebhookSink creates a sink posting to sender.
func NewWebhookSink(sender *webhook.Sender) *WebhookSink {
	return &WebhookSink{sender: sender}
}

func (s *WebhookSink) Report(_ context.Context, o models.Outcome) {
	if o.Status == models.StatusFound {
		return
	}
	s.sender.DeliverAsync(&webhook.Event{
		Type:      "outcome." + string(o.Status),
		Timestamp: time.Now().Unix(),
		Data:      o,
	})
}

// Wait blocks until pending deliveries finish or ctx ends.
func (s *WebhookSink) Wait(ctx context.Context) error {
	return s.sender.Wait(ctx)
}

// Multi fans an outcome out to several sinks.
type Multi []Sink

func (m Multi) Report(ctx context.Context, o models.Outcome) {
	for _, s := range m {
		s.Report(ctx, o)
	}
}

// FromConfig builds the log sink plus, when a URL is configured, the
// webhook sink. The webhook sink is returned separately so callers can
// wait for it on shutdown; it is nil when disabled.
func FromConfig(cfg config.ReportConfig) (Sink, *WebhookSink) {
	sinks := Multi{LogSink{}}
	var hook *WebhookSink
	if cfg.WebhookURL != "" {
		hook = NewWebhookSink(webhook.NewSender(cfg.WebhookURL, cfg.WebhookSecret))
		sinks = append(sinks, hook)
	}
	return sinks, hook
}

// Discard drops every outcome.
type Discard struct{}

func (Discard) Report(context.Context, models.Outcome) {}
