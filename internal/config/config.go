package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Triage     TriageConfig     `yaml:"triage" mapstructure:"triage"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// TriageConfig configures rule thresholds and the auto-decline switch.
type TriageConfig struct {
	AutoDeclineEnabled bool `yaml:"auto_decline_enabled" mapstructure:"auto_decline_enabled"`
	// LicenseRenewalFloor is a decimal amount. "0" disables the low-value
	// renewal branch of R001.
	LicenseRenewalFloor    string `yaml:"license_renewal_floor" mapstructure:"license_renewal_floor"`
	InsufficientTimeDays   int    `yaml:"insufficient_time_days" mapstructure:"insufficient_time_days"`
	BusinessCaseWindowDays int    `yaml:"business_case_window_days" mapstructure:"business_case_window_days"`
	LookupPath             string `yaml:"lookup_path" mapstructure:"lookup_path"`
}

// RenewalFloor parses LicenseRenewalFloor.
func (t TriageConfig) RenewalFloor() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(t.LicenseRenewalFloor))
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "config: triage.license_renewal_floor %q", t.LicenseRenewalFloor)
	}
	return d, nil
}

// BatchConfig configures batch evaluation.
type BatchConfig struct {
	MaxConcurrentEvaluations int `yaml:"max_concurrent_evaluations" mapstructure:"max_concurrent_evaluations"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled                  bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	AutoDeclineRateThreshold float64 `yaml:"auto_decline_rate_threshold" mapstructure:"auto_decline_rate_threshold"`
	MinEvaluations           int     `yaml:"min_evaluations" mapstructure:"min_evaluations"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RFQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rfq.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("triage.auto_decline_enabled", false)
	v.SetDefault("triage.license_renewal_floor", "5000")
	v.SetDefault("triage.insufficient_time_days", 2)
	v.SetDefault("triage.business_case_window_days", 90)
	v.SetDefault("batch.max_concurrent_evaluations", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.auto_decline_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_evaluations", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode depends on. Modes are "cli",
// "serve" and "monitor".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Batch.MaxConcurrentEvaluations < 1 || c.Batch.MaxConcurrentEvaluations > 50 {
		errs = append(errs, "batch.max_concurrent_evaluations must be between 1 and 50")
	}
	if floor, err := c.Triage.RenewalFloor(); err != nil {
		errs = append(errs, "triage.license_renewal_floor must be a decimal amount")
	} else if floor.IsNegative() {
		errs = append(errs, "triage.license_renewal_floor must be >= 0")
	}
	if c.Triage.InsufficientTimeDays < 0 {
		errs = append(errs, "triage.insufficient_time_days must be >= 0")
	}
	if c.Triage.BusinessCaseWindowDays < 1 {
		errs = append(errs, "triage.business_case_window_days must be >= 1")
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must be >= 0")
		}
		if c.Monitoring.Enabled {
			errs = append(errs, c.Monitoring.validate()...)
		}
	case "monitor":
		errs = append(errs, c.Monitoring.validate()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

func (m MonitoringConfig) validate() []string {
	var errs []string
	if m.WebhookURL == "" {
		errs = append(errs, "monitoring.webhook_url is required")
	}
	if m.AutoDeclineRateThreshold < 0 || m.AutoDeclineRateThreshold > 1 {
		errs = append(errs, "monitoring.auto_decline_rate_threshold must be between 0 and 1")
	}
	if m.LookbackWindowHours < 1 {
		errs = append(errs, "monitoring.lookback_window_hours must be >= 1")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
