// Package config loads gateway configuration from defaults, an optional
// config file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every configuration environment variable:
// AQI_PURPLEAIR_API_KEY maps to purpleair.api_key.
const EnvPrefix = "AQI"

// Visit sinks.
const (
	SinkPostgres = "postgres"
	SinkPubSub   = "pubsub"
	SinkNone     = "none"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PurpleAir PurpleAirConfig `mapstructure:"purpleair"`
	IQAir     IQAirConfig     `mapstructure:"iqair"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Visits    VisitsConfig    `mapstructure:"visits"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimit is the per-IP request budget per minute on lookup routes.
	// Zero disables rate limiting.
	RateLimit int `mapstructure:"rate_limit"`

	// OpsSigningKey, when set, protects /v1/ops/providers with a bearer
	// service token.
	OpsSigningKey string `mapstructure:"ops_signing_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type PurpleAirConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IQAirConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	SigningKey string        `mapstructure:"signing_key"`
	Audience   string        `mapstructure:"audience"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LookupConfig struct {
	RadiusKm           float64       `mapstructure:"radius_km"`
	PrimaryTimeout     time.Duration `mapstructure:"primary_timeout"`
	FallbackTimeout    time.Duration `mapstructure:"fallback_timeout"`
	FallbackOnNegative bool          `mapstructure:"fallback_on_negative"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type VisitsConfig struct {
	Sink        string        `mapstructure:"sink"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	SaveTimeout time.Duration `mapstructure:"save_timeout"`
}

type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// Load reads configuration from file and environment variables and
// validates it for the API server. Missing config files are not an error.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads configuration and validates only what the visit worker
// needs.
func LoadWorker() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployed gateways read the key from PURPLE_AIR_KEY.
	if err := v.BindEnv("purpleair.api_key", EnvPrefix+"_PURPLEAIR_API_KEY", "PURPLE_AIR_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.ops_signing_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "aqi")
	v.SetDefault("database.password", "localdev")
	v.SetDefault("database.name", "aqi")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("purpleair.base_url", "https://api.purpleair.com")
	v.SetDefault("purpleair.api_key", "")
	v.SetDefault("purpleair.timeout", 8*time.Second)

	v.SetDefault("iqair.base_url", "")
	v.SetDefault("iqair.signing_key", "")
	v.SetDefault("iqair.audience", "iqair-gateway")
	v.SetDefault("iqair.timeout", 12*time.Second)

	v.SetDefault("lookup.radius_km", 10.0)
	v.SetDefault("lookup.primary_timeout", 10*time.Second)
	v.SetDefault("lookup.fallback_timeout", 15*time.Second)
	v.SetDefault("lookup.fallback_on_negative", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", 2*time.Minute)

	v.SetDefault("visits.sink", SinkPostgres)
	v.SetDefault("visits.workers", 2)
	v.SetDefault("visits.queue_size", 256)
	v.SetDefault("visits.save_timeout", 5*time.Second)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "aqi-visits")
	v.SetDefault("pubsub.subscription", "aqi-visits-worker")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of trace, debug, info, warn, error", c.Log.Level))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, "telemetry.sample_ratio must be between 0 and 1")
	}

	if c.PurpleAir.BaseURL == "" {
		errs = append(errs, "purpleair.base_url is required")
	}
	if c.PurpleAir.APIKey == "" {
		errs = append(errs, "purpleair.api_key is required (or set PURPLE_AIR_KEY)")
	}
	if c.IQAir.BaseURL == "" {
		errs = append(errs, "iqair.base_url is required")
	}

	if c.Lookup.RadiusKm <= 0 {
		errs = append(errs, "lookup.radius_km must be positive")
	}
	if c.Lookup.PrimaryTimeout <= 0 {
		errs = append(errs, "lookup.primary_timeout must be positive")
	}
	if c.Lookup.FallbackTimeout <= 0 {
		errs = append(errs, "lookup.fallback_timeout must be positive")
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when the cache is enabled")
	}

	switch c.Visits.Sink {
	case SinkPostgres:
		errs = append(errs, c.Database.validate()...)
	case SinkPubSub:
		if c.PubSub.ProjectID == "" {
			errs = append(errs, "pubsub.project_id is required for the pubsub visit sink")
		}
		if c.PubSub.Topic == "" {
			errs = append(errs, "pubsub.topic is required for the pubsub visit sink")
		}
	case SinkNone:
	default:
		errs = append(errs, fmt.Sprintf("visits.sink %q is not one of postgres, pubsub, none", c.Visits.Sink))
	}
	if c.Visits.Workers <= 0 {
		errs = append(errs, "visits.workers must be positive")
	}
	if c.Visits.QueueSize <= 0 {
		errs = append(errs, "visits.queue_size must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateWorker checks the settings the visit worker needs.
func (c *Config) ValidateWorker() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.PubSub.ProjectID == "" {
		errs = append(errs, "pubsub.project_id is required")
	}
	if c.PubSub.Subscription == "" {
		errs = append(errs, "pubsub.subscription is required")
	}
	errs = append(errs, c.Database.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (d DatabaseConfig) validate() []string {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user is required")
	}
	if d.Name == "" {
		errs = append(errs, "database.name is required")
	}
	return errs
}
