package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr       string `yaml:"addr"`        // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir     string `yaml:"log_dir"`     // logs directory
	LogLevel   string `yaml:"log_level"`   // debug|info|warn|error
	LogConsole bool   `yaml:"log_console"` // tee logs to stderr

	DBDriver    string `yaml:"db_driver"`    // memory|postgres|mysql|sqlite; inferred from DatabaseURL when empty
	DatabaseURL string `yaml:"database_url"` // postgres://... or user:pass@tcp(host:3306)/db
	SQLitePath  string `yaml:"sqlite_path"`

	CheckInterval       time.Duration `yaml:"-"`
	ProbeTimeout        time.Duration `yaml:"-"`
	MaxConcurrentChecks int           `yaml:"max_concurrent_checks"`

	PublicAPIKeys  []string      `yaml:"public_api_keys"`
	AdminAPIKeys   []string      `yaml:"admin_api_keys"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PublicRPM      int           `yaml:"public_rpm"`
	PublicBurst    int           `yaml:"public_burst"`
	AdminRPM       int           `yaml:"admin_rpm"`
	AdminBurst     int           `yaml:"admin_burst"`
	StatsCacheTTL  time.Duration `yaml:"-"`

	SlackWebhook    string        `yaml:"slack_webhook_url"`
	AlertOnRecovery bool          `yaml:"alert_on_recovery"`
	AlertCooldown   time.Duration `yaml:"-"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	// yaml-only mirrors of the duration fields, in the units the env vars use
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	ProbeTimeoutMS       int `yaml:"probe_timeout_ms"`
	StatsCacheTTLMS      int `yaml:"stats_cache_ttl_ms"`
	AlertCooldownSeconds int `yaml:"alert_cooldown_seconds"`
}

func Defaults() Config {
	return Config{
		Addr:                "127.0.0.1:8080",
		LogDir:              "logs",
		LogLevel:            "info",
		SQLitePath:          "sitewatch.db",
		CheckInterval:       60 * time.Second,
		ProbeTimeout:        10 * time.Second,
		MaxConcurrentChecks: 8,
		PublicRPM:           120,
		PublicBurst:         60,
		AdminRPM:            60,
		AdminBurst:          30,
		StatsCacheTTL:       2 * time.Second,
		AlertOnRecovery:     true,
		AlertCooldown:       5 * time.Minute,
		NATSSubjectPrefix:   "sitewatch.site",
	}
}

// Load reads a YAML file (when path is non-empty) over Defaults, then applies
// the environment, which always wins.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	cfg.DBDriver = resolveDriver(cfg.DBDriver, cfg.DatabaseURL)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverMemory, DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("config: unknown db driver %q", c.DBDriver)
	}
	if (c.DBDriver == DriverPostgres || c.DBDriver == DriverMySQL) && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for %s", c.DBDriver)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("config: check interval must be positive, got %s", c.CheckInterval)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("config: probe timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("config: max concurrent checks must be >= 1, got %d", c.MaxConcurrentChecks)
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.CheckIntervalSeconds > 0 {
		cfg.CheckInterval = time.Duration(cfg.CheckIntervalSeconds) * time.Second
	}
	if cfg.ProbeTimeoutMS > 0 {
		cfg.ProbeTimeout = time.Duration(cfg.ProbeTimeoutMS) * time.Millisecond
	}
	if cfg.StatsCacheTTLMS > 0 {
		cfg.StatsCacheTTL = time.Duration(cfg.StatsCacheTTLMS) * time.Millisecond
	}
	if cfg.AlertCooldownSeconds > 0 {
		cfg.AlertCooldown = time.Duration(cfg.AlertCooldownSeconds) * time.Second
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "ADDR")
	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.LogConsole, "LOG_CONSOLE")

	setString(&cfg.DBDriver, "DB_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SQLitePath, "SQLITE_PATH")

	if n, ok := positiveInt("CHECK_INTERVAL_SECONDS"); ok {
		cfg.CheckInterval = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("PROBE_TIMEOUT_MS"); ok {
		cfg.ProbeTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("MAX_CONCURRENT_CHECKS"); ok {
		cfg.MaxConcurrentChecks = n
	}

	setList(&cfg.PublicAPIKeys, "PUBLIC_API_KEYS")
	setList(&cfg.AdminAPIKeys, "ADMIN_API_KEYS")
	setList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setInt(&cfg.PublicRPM, "PUBLIC_RPM")
	setInt(&cfg.PublicBurst, "PUBLIC_BURST")
	setInt(&cfg.AdminRPM, "ADMIN_RPM")
	setInt(&cfg.AdminBurst, "ADMIN_BURST")
	if n, ok := positiveInt("STATS_CACHE_TTL_MS"); ok {
		cfg.StatsCacheTTL = time.Duration(n) * time.Millisecond
	}

	setString(&cfg.SlackWebhook, "SLACK_WEBHOOK_URL")
	setBool(&cfg.AlertOnRecovery, "ALERT_ON_RECOVERY")
	if v := os.Getenv("ALERT_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.AlertCooldown = time.Duration(n) * time.Second
		}
	}

	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.NATSSubjectPrefix, "NATS_SUBJECT_PREFIX")
}

// resolveDriver picks a driver from the DSN when none is named.
func resolveDriver(driver, dsn string) string {
	if driver != "" {
		return strings.ToLower(driver)
	}
	switch {
	case dsn == "":
		return DriverMemory
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres
	case strings.Contains(dsn, "@tcp("), strings.Contains(dsn, "@unix("):
		return DriverMySQL
	}
	return DriverPostgres
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func positiveInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// setList splits a comma-separated value, dropping blanks.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
