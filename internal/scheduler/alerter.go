package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
)

const defaultAlertQueue = 256

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	QueueSize       int
}

// Alerter turns status transitions into chat notifications. It is a
// Listener: OnTransition only enqueues, delivery happens in Run.
type Alerter struct {
	notifier notify.Notifier
	cfg      AlerterConfig
	logger   *zap.Logger
	now      func() time.Time

	queue chan Transition

	mu       sync.Mutex
	lastDown map[domain.SiteID]time.Time
}

func NewAlerter(n notify.Notifier, cfg AlerterConfig, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultAlertQueue
	}
	return &Alerter{
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan Transition, cfg.QueueSize),
		lastDown: make(map[domain.SiteID]time.Time),
	}
}

func (a *Alerter) OnTransition(_ context.Context, t Transition) {
	select {
	case a.queue <- t:
	default:
		a.logger.Warn("alert_queue_full", zap.Int64("site_id", int64(t.Site.ID)))
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-a.queue:
			a.handle(ctx, t)
		}
	}
}

// handle decides whether t deserves a message. DOWN alerts respect the
// per-site cooldown; recovery alerts bypass it but need AlertOnRecovery.
// A first-ever UP is not a recovery.
func (a *Alerter) handle(ctx context.Context, t Transition) bool {
	now := a.now()
	switch t.To {
	case domain.StatusDown:
		a.mu.Lock()
		last, seen := a.lastDown[t.Site.ID]
		if seen && now.Sub(last) < a.cfg.Cooldown {
			a.mu.Unlock()
			a.logger.Debug("alert_suppressed", zap.Int64("site_id", int64(t.Site.ID)))
			return false
		}
		a.lastDown[t.Site.ID] = now
		a.mu.Unlock()
	case domain.StatusUp:
		if !a.cfg.AlertOnRecovery || t.From != domain.StatusDown {
			return false
		}
	default:
		return false
	}

	title, text := formatAlert(t)
	if err := a.notifier.Send(ctx, title, text); err != nil {
		a.logger.Warn("alert_send_error",
			zap.Int64("site_id", int64(t.Site.ID)),
			zap.Error(err),
		)
		return false
	}
	a.logger.Info("alert_sent",
		zap.Int64("site_id", int64(t.Site.ID)),
		zap.String("status", string(t.To)),
	)
	return true
}

func formatAlert(t Transition) (string, string) {
	title := "🔴 Site DOWN: " + t.Site.Name
	if t.To == domain.StatusUp {
		title = "🟢 Site RECOVERED: " + t.Site.Name
	}

	httpTxt := "n/a"
	if t.Result.HTTPCode != nil {
		httpTxt = fmt.Sprintf("%d", *t.Result.HTTPCode)
	}
	latencyTxt := "n/a"
	if t.Result.LatencyMS != nil {
		latencyTxt = fmt.Sprintf("%d ms", *t.Result.LatencyMS)
	}

	text := fmt.Sprintf(
		"URL: %s\nHTTP: %s\nLatency: %s\nReason: %s\nChecked: %s",
		t.Site.URL, httpTxt, latencyTxt, t.Result.Message, t.At.UTC().Format(time.RFC3339),
	)
	if t.To == domain.StatusDown && t.DownSince != nil {
		text += "\nDown since: " + t.DownSince.UTC().Format(time.RFC3339)
	}
	return title, text
}
