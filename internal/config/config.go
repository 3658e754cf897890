package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "custard-cli"

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Redis       RedisConfig       `yaml:"redis" mapstructure:"redis"`
	NATS        NATSConfig        `yaml:"nats" mapstructure:"nats"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" mapstructure:"telemetry"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Reliability ReliabilityConfig `yaml:"reliability" mapstructure:"reliability"`
	Planner     PlannerConfig     `yaml:"planner" mapstructure:"planner"`
	Tags        TagsConfig        `yaml:"tags" mapstructure:"tags"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is "sqlite" or
// "postgres"; for sqlite DatabaseURL is a file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RedisConfig configures the signals response cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// NATSConfig configures reliability refresh events. An empty URL disables them.
type NATSConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// TelemetryConfig configures tracing export. An empty endpoint keeps the
// no-op tracer.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name" mapstructure:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// MonitoringConfig configures the periodic reliability refresh and the ops
// alert webhook.
type MonitoringConfig struct {
	IntervalMins     int    `yaml:"interval_mins" mapstructure:"interval_mins"`
	WebhookURL       string `yaml:"webhook_url" mapstructure:"webhook_url"`
	AlertsPerMinute  int    `yaml:"alerts_per_minute" mapstructure:"alerts_per_minute"`
	AlertTimeoutSecs int    `yaml:"alert_timeout_secs" mapstructure:"alert_timeout_secs"`
	// UnreliableShareThreshold alerts when this fraction of scored stores
	// is unreliable.
	UnreliableShareThreshold float64 `yaml:"unreliable_share_threshold" mapstructure:"unreliable_share_threshold"`
}

// ReliabilityConfig configures the reliability window.
type ReliabilityConfig struct {
	WindowDays int `yaml:"window_days" mapstructure:"window_days"`
}

// PlannerConfig configures the history lookback used for cadence and signals.
type PlannerConfig struct {
	HistoryDays      int `yaml:"history_days" mapstructure:"history_days"`
	LeaderboardLimit int `yaml:"leaderboard_limit" mapstructure:"leaderboard_limit"`
}

// TagsConfig points at an optional YAML file of tag keyword rules.
type TagsConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ResilienceConfig configures retries around storage reads and the circuit
// breakers around Redis and the alert webhook.
type ResilienceConfig struct {
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryJitter       float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultSQLitePath is the local database used when none is configured.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, appName, "custard.db")
}

// Load reads config.yaml from the working directory or the XDG config
// directory, then applies CUSTARD_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))

	v.SetEnvPrefix("CUSTARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", DefaultSQLitePath())
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 15)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_secs", 300)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "custard.reliability.refreshed")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", appName)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("monitoring.interval_mins", 60)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.alerts_per_minute", 30)
	v.SetDefault("monitoring.alert_timeout_secs", 10)
	v.SetDefault("monitoring.unreliable_share_threshold", 0.25)
	v.SetDefault("reliability.window_days", 30)
	v.SetDefault("planner.history_days", 365)
	v.SetDefault("planner.leaderboard_limit", 5)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_backoff_ms", 100)
	v.SetDefault("resilience.retry_max_backoff_ms", 2000)
	v.SetDefault("resilience.retry_jitter", 0.25)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_reset_secs", 30)
	v.SetDefault("tags.rules_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "serve", "refresh", and "cli".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Reliability.WindowDays <= 0 {
		problems = append(problems, "reliability.window_days must be > 0")
	}
	if c.Planner.HistoryDays <= 0 {
		problems = append(problems, "planner.history_days must be > 0")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	case "refresh":
		if c.Monitoring.WebhookURL != "" && c.Monitoring.AlertsPerMinute <= 0 {
			problems = append(problems, "monitoring.alerts_per_minute must be > 0 when a webhook is set")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger installs the global zap logger.
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
