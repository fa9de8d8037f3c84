package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/mysql"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

var version = "dev" // set at build time using -ldflags

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "sitewatch <command> [args]",
		Short:        "Periodic HTTP uptime monitoring for a registry of sites.",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"),
		"YAML config file; environment variables override its values")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newAddCmd(),
		newCheckCmd(opts),
		newPreflightCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configFile)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.NewLogger(logging.Options{
		Dir:     cfg.LogDir,
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
	})
}

// openStore connects the configured backend. The caller owns Close.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMySQL:
		s, err := mysql.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
}
