package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitewatch/internal/bus"
	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/httpapi"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the check engine and the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_error", zap.String("driver", cfg.DBDriver), zap.Error(err))
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("schema_error", zap.Error(err))
		return err
	}

	checker := probe.NewHTTPChecker(cfg.ProbeTimeout)
	g, gctx := errgroup.WithContext(ctx)

	engineOpts := []scheduler.Option{
		scheduler.WithLogger(logger.Named("engine")),
		scheduler.WithInterval(cfg.CheckInterval),
		scheduler.WithConcurrency(cfg.MaxConcurrentChecks),
	}
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		al := scheduler.NewAlerter(slack, scheduler.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
		}, logger.Named("alerter"))
		engineOpts = append(engineOpts, scheduler.WithListener(al))
		g.Go(func() error { return al.Run(gctx) })
	}
	if cfg.NATSURL != "" {
		pub, err := bus.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger.Named("bus"))
		if err != nil {
			logger.Error("nats_connect_error", zap.Error(err))
			return err
		}
		defer pub.Close()
		engineOpts = append(engineOpts, scheduler.WithListener(pub))
	}
	engine := scheduler.NewEngine(store, store, checker, engineOpts...)

	api := httpapi.NewServer(logger.Named("api"), store, store, checker, cfg.StatsCacheTTL)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.RouterConfig{
			Keys:           apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			AllowedOrigins: cfg.AllowedOrigins,
			PublicRPM:      cfg.PublicRPM,
			PublicBurst:    cfg.PublicBurst,
			AdminRPM:       cfg.AdminRPM,
			AdminBurst:     cfg.AdminBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("serve_error", zap.Error(err))
	}
	logger.Info("shutdown_complete")
	return err
}
