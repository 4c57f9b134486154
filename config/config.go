// Package config loads server configuration from an optional YAML file and
// COMMISSION_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LoadDemoData    bool          `mapstructure:"load_demo_data"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type ReconcileConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`  // cron spec, seconds field optional
	Tolerance string `mapstructure:"tolerance"` // decimal string, "0" = exact match
}

var defaultTolerance = decimal.New(1, -2)

// ToleranceDecimal parses Tolerance. Empty means 0.01; "0" requires ledgers
// to match to the cent.
func (r ReconcileConfig) ToleranceDecimal() (decimal.Decimal, error) {
	if strings.TrimSpace(r.Tolerance) == "" {
		return defaultTolerance, nil
	}
	d, err := decimal.NewFromString(r.Tolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reconcile.tolerance %q: %w", r.Tolerance, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("reconcile.tolerance %q must not be negative", r.Tolerance)
	}
	return d, nil
}

type ForecastConfig struct {
	LookbackWeeks int `mapstructure:"lookback_weeks"`
	MaxWindowDays int `mapstructure:"max_window_days"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMMISSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.load_demo_data", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.path", "./data/commission.db")
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.schedule", "0 2 * * *")
	v.SetDefault("reconcile.tolerance", "0.01")
	v.SetDefault("forecast.lookback_weeks", 12)
	v.SetDefault("forecast.max_window_days", 365)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Reconcile.ToleranceDecimal(); err != nil {
		return Config{}, err
	}
	if cfg.Forecast.LookbackWeeks < 2 {
		return Config{}, fmt.Errorf("forecast.lookback_weeks must be at least 2, got %d", cfg.Forecast.LookbackWeeks)
	}

	return cfg, nil
}
