package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqigateway/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AQI_PURPLEAIR_API_KEY", "pa-key")
	t.Setenv("AQI_IQAIR_BASE_URL", "https://iqair.example.com/lookup")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	assert.Equal(t, "https://api.purpleair.com", cfg.PurpleAir.BaseURL)
	assert.Equal(t, "pa-key", cfg.PurpleAir.APIKey)
	assert.Equal(t, 10.0, cfg.Lookup.RadiusKm)
	assert.Equal(t, 10*time.Second, cfg.Lookup.PrimaryTimeout)
	assert.False(t, cfg.Lookup.FallbackOnNegative)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, config.SinkPostgres, cfg.Visits.Sink)
	assert.Equal(t, 2, cfg.Visits.Workers)
	assert.Equal(t, 256, cfg.Visits.QueueSize)
	assert.Equal(t, "aqi-visits", cfg.PubSub.Topic)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("AQI_SERVER_PORT", "9090")
	t.Setenv("AQI_LOOKUP_RADIUS_KM", "25")
	t.Setenv("AQI_LOOKUP_PRIMARY_TIMEOUT", "3s")
	t.Setenv("AQI_LOOKUP_FALLBACK_ON_NEGATIVE", "true")
	t.Setenv("AQI_VISITS_SINK", "none")
	t.Setenv("AQI_CACHE_ENABLED", "true")
	t.Setenv("AQI_CACHE_ADDR", "valkey:6379")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25.0, cfg.Lookup.RadiusKm)
	assert.Equal(t, 3*time.Second, cfg.Lookup.PrimaryTimeout)
	assert.True(t, cfg.Lookup.FallbackOnNegative)
	assert.Equal(t, config.SinkNone, cfg.Visits.Sink)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "valkey:6379", cfg.Cache.Addr)
}

func TestLoad_PurpleAirKeyAlias(t *testing.T) {
	t.Setenv("PURPLE_AIR_KEY", "legacy-key")
	t.Setenv("AQI_IQAIR_BASE_URL", "https://iqair.example.com/lookup")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.PurpleAir.APIKey)
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purpleair.api_key is required")
	assert.Contains(t, err.Error(), "iqair.base_url is required")
}

func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Log:    config.LogConfig{Level: "info"},
		Telemetry: config.TelemetryConfig{
			SampleRatio: 1,
		},
		Database:  config.DatabaseConfig{Host: "localhost", Port: 5432, User: "aqi", Name: "aqi"},
		PurpleAir: config.PurpleAirConfig{BaseURL: "https://api.purpleair.com", APIKey: "k"},
		IQAir:     config.IQAirConfig{BaseURL: "https://iqair.example.com"},
		Lookup: config.LookupConfig{
			RadiusKm:        10,
			PrimaryTimeout:  time.Second,
			FallbackTimeout: time.Second,
		},
		Visits: config.VisitsConfig{Sink: config.SinkPostgres, Workers: 1, QueueSize: 1},
		PubSub: config.PubSubConfig{Topic: "aqi-visits", Subscription: "aqi-visits-worker"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "bad port", mutate: func(c *config.Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "bad log level", mutate: func(c *config.Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "zero radius", mutate: func(c *config.Config) { c.Lookup.RadiusKm = 0 }, wantErr: "lookup.radius_km"},
		{name: "sample ratio", mutate: func(c *config.Config) { c.Telemetry.SampleRatio = 2 }, wantErr: "telemetry.sample_ratio"},
		{name: "unknown sink", mutate: func(c *config.Config) { c.Visits.Sink = "kafka" }, wantErr: "visits.sink"},
		{
			name:    "pubsub sink without project",
			mutate:  func(c *config.Config) { c.Visits.Sink = config.SinkPubSub },
			wantErr: "pubsub.project_id",
		},
		{
			name: "none sink skips database",
			mutate: func(c *config.Config) {
				c.Visits.Sink = config.SinkNone
				c.Database = config.DatabaseConfig{}
			},
		},
		{
			name:    "cache without addr",
			mutate:  func(c *config.Config) { c.Cache.Enabled = true },
			wantErr: "cache.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateWorker(t *testing.T) {
	cfg := validConfig()
	assert.Error(t, cfg.ValidateWorker())

	cfg.PubSub.ProjectID = "breatheroute"
	assert.NoError(t, cfg.ValidateWorker())
}

func TestLoadWorker_IgnoresAPISettings(t *testing.T) {
	t.Setenv("AQI_PUBSUB_PROJECT_ID", "aqi-project")
	t.Setenv("AQI_DATABASE_PASSWORD", "secret")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "aqi-project", cfg.PubSub.ProjectID)
	assert.Equal(t, "aqi-visits-worker", cfg.PubSub.Subscription)
	assert.Empty(t, cfg.PurpleAir.APIKey)
}
