package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/tracker"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultConcurrency = 8
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Transition is emitted when a site's status flips.
type Transition struct {
	Site      domain.Site // state after the transition
	From      domain.Status
	To        domain.Status
	DownSince *time.Time
	At        time.Time
	Result    probe.Result
}

// Listener is told about transitions from inside a cycle. Implementations
// must not block.
type Listener interface {
	OnTransition(ctx context.Context, t Transition)
}

// CycleReport summarizes one pass over all sites.
type CycleReport struct {
	ID          string
	StartedAt   time.Time
	Duration    time.Duration
	Sites       int // sites listed at cycle start
	Recorded    int // sites whose state and history were written
	Failed      int // sites skipped because of a storage error or panic
	Up          int
	Down        int
	Transitions int
	Err         error // all per-site errors, or the listing error
}

// Engine probes every registered site on a fixed interval. Exactly one cycle
// is in flight at any time.
type Engine struct {
	logger      *zap.Logger
	registry    repo.Registry
	history     repo.History
	checker     probe.Checker
	clock       Clock
	interval    time.Duration
	concurrency int
	listeners   []Listener
	onCycle     func(CycleReport)
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithConcurrency bounds the number of sites probed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithListener(l Listener) Option {
	return func(e *Engine) {
		if l != nil {
			e.listeners = append(e.listeners, l)
		}
	}
}

// WithCycleHook registers fn to receive every completed cycle's report.
func WithCycleHook(fn func(CycleReport)) Option {
	return func(e *Engine) { e.onCycle = fn }
}

func NewEngine(reg repo.Registry, hist repo.History, checker probe.Checker, opts ...Option) *Engine {
	e := &Engine{
		logger:      zap.NewNop(),
		registry:    reg,
		history:     hist,
		checker:     checker,
		clock:       systemClock{},
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run does an immediate cycle, then one per tick, until ctx is cancelled.
// Cancellation is observed between cycles only; a running cycle finishes.
// A cycle that overruns the interval is followed immediately by the next.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine_started",
		zap.Duration("interval", e.interval),
		zap.Int("concurrency", e.concurrency),
	)
	t := time.NewTicker(e.interval)
	defer t.Stop()

	e.RunCycle(ctx)

	for {
		if ctx.Err() != nil {
			e.logger.Info("engine_stopped")
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			e.logger.Info("engine_stopped")
			return ctx.Err()
		case <-t.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle probes every site once. Sites are isolated from each other: one
// site's failure is logged and counted, never propagated to the others.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	// detach so a stop request lets the cycle finish
	ctx = context.WithoutCancel(ctx)

	rep := CycleReport{ID: uuid.NewString(), StartedAt: e.clock.Now().UTC()}
	log := e.logger.With(zap.String("cycle_id", rep.ID))
	started := time.Now()

	sites, err := e.registry.ListSites(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("list sites: %w", err)
		log.Warn("cycle_list_error", zap.Error(err))
		return e.finish(log, rep, started)
	}
	rep.Sites = len(sites)

	var (
		mu   sync.Mutex
		errs error
	)
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for _, site := range sites {
		g.Go(func() error {
			out := e.checkSite(ctx, log, site)

			mu.Lock()
			defer mu.Unlock()
			if out.err != nil {
				rep.Failed++
				errs = multierr.Append(errs, out.err)
				return nil
			}
			rep.Recorded++
			if out.next.Status == domain.StatusUp {
				rep.Up++
			} else {
				rep.Down++
			}
			if out.changed {
				rep.Transitions++
			}
			return nil
		})
	}
	_ = g.Wait()
	rep.Err = errs
	return e.finish(log, rep, started)
}

func (e *Engine) finish(log *zap.Logger, rep CycleReport, started time.Time) CycleReport {
	rep.Duration = time.Since(started)
	fields := []zap.Field{
		zap.Int("sites", rep.Sites),
		zap.Int("recorded", rep.Recorded),
		zap.Int("failed", rep.Failed),
		zap.Int("up", rep.Up),
		zap.Int("down", rep.Down),
		zap.Int("transitions", rep.Transitions),
		zap.Duration("duration", rep.Duration),
	}
	if rep.Duration > e.interval {
		log.Warn("cycle_overrun", append(fields, zap.Duration("interval", e.interval))...)
	} else {
		log.Info("cycle_complete", fields...)
	}
	if e.onCycle != nil {
		e.onCycle(rep)
	}
	return rep
}

type siteOutcome struct {
	next    tracker.State
	changed bool
	err     error
}

// checkSite is the per-site unit of work: probe, transition, write state,
// append history. The probe and each write are separate calls so nothing is
// held across network I/O.
func (e *Engine) checkSite(ctx context.Context, log *zap.Logger, site domain.Site) (out siteOutcome) {
	log = log.With(zap.Int64("site_id", int64(site.ID)), zap.String("url", site.URL))
	defer func() {
		if r := recover(); r != nil {
			log.Error("site_panic", zap.Any("panic", r), zap.Stack("stack"))
			out = siteOutcome{err: fmt.Errorf("site %d: panic: %v", site.ID, r)}
		}
	}()

	now := e.clock.Now().UTC()
	res := e.checker.Check(ctx, site.URL)

	prev := tracker.Of(site)
	next := tracker.Transition(prev, res.Outcome, now)

	if err := e.registry.UpdateSiteState(ctx, site.ID, next.Status, next.DownSince, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info("site_vanished")
		} else {
			log.Warn("site_update_error", zap.Error(err))
		}
		return siteOutcome{err: fmt.Errorf("site %d: update state: %w", site.ID, err)}
	}

	rec := &domain.CheckRecord{
		SiteID:    site.ID,
		Outcome:   res.Outcome,
		HTTPCode:  res.HTTPCode,
		LatencyMS: res.LatencyMS,
		CheckedAt: now,
	}
	if err := e.history.Append(ctx, rec); err != nil {
		log.Warn("history_append_error", zap.Error(err))
		return siteOutcome{next: next, err: fmt.Errorf("site %d: append history: %w", site.ID, err)}
	}

	fields := []zap.Field{
		zap.String("status", string(next.Status)),
		zap.String("message", res.Message),
	}
	if res.HTTPCode != nil {
		fields = append(fields, zap.Int("http_code", *res.HTTPCode))
	}
	if res.LatencyMS != nil {
		fields = append(fields, zap.Int64("latency_ms", *res.LatencyMS))
	}
	log.Debug("site_checked", fields...)

	if !res.Up() && res.Class == probe.ClassDNS && log.Core().Enabled(zap.DebugLevel) {
		dns := probe.Diagnose(ctx, site.URL)
		log.Debug("dns_check",
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.Strings("nameservers", dns.Nameservers),
			zap.String("cname", dns.CNAME),
			zap.String("resolver_error", dns.ResolverError),
		)
	}

	changed := tracker.Changed(prev, next)
	if changed {
		site.Status = next.Status
		site.DownSince = next.DownSince
		site.LastCheckedAt = &now
		tr := Transition{
			Site:      site,
			From:      prev.Status,
			To:        next.Status,
			DownSince: next.DownSince,
			At:        now,
			Result:    res,
		}
		log.Info("site_transition",
			zap.String("from", string(prev.Status)),
			zap.String("to", string(next.Status)),
			zap.String("message", res.Message),
		)
		for _, l := range e.listeners {
			l.OnTransition(ctx, tr)
		}
	}
	return siteOutcome{next: next, changed: changed}
}
