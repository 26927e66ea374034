// Package main provides the entrypoint for the AQI gateway API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/internal/airquality/iqair"
	"github.com/breatheroute/aqigateway/internal/airquality/purpleair"
	"github.com/breatheroute/aqigateway/internal/airquality/sensorcache"
	"github.com/breatheroute/aqigateway/internal/api"
	"github.com/breatheroute/aqigateway/internal/api/handler"
	"github.com/breatheroute/aqigateway/internal/api/middleware"
	"github.com/breatheroute/aqigateway/internal/auth"
	"github.com/breatheroute/aqigateway/internal/config"
	"github.com/breatheroute/aqigateway/internal/database"
	"github.com/breatheroute/aqigateway/internal/provider/resilience"
	"github.com/breatheroute/aqigateway/internal/telemetry"
	"github.com/breatheroute/aqigateway/internal/visits"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "aqi-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.Log)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting AQI gateway")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	providerMetrics, err := resilience.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}
	lookupMetrics, err := airquality.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize lookup metrics")
	}

	registry := resilience.NewRegistry()
	var checks []handler.ReadinessCheck

	// Primary provider, optionally behind the sensor cache.
	var primary airquality.SensorProvider = purpleair.NewClient(purpleair.ClientConfig{
		BaseURL:  cfg.PurpleAir.BaseURL,
		APIKey:   cfg.PurpleAir.APIKey,
		Timeout:  cfg.PurpleAir.Timeout,
		Registry: registry,
		Metrics:  providerMetrics,
		Logger:   log,
	})
	if cfg.Cache.Enabled {
		store, err := sensorcache.NewValkeyStore(cfg.Cache.Addr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Cache.Addr).Msg("failed to connect to sensor cache")
		}
		defer store.Close()

		primary = sensorcache.New(sensorcache.Config{
			Next:   primary,
			Store:  store,
			TTL:    cfg.Cache.TTL,
			Logger: log,
		})
		checks = append(checks, handler.ReadinessCheck{Name: "valkey", Check: store.Ping})
		log.Info().Str("addr", cfg.Cache.Addr).Dur("ttl", cfg.Cache.TTL).Msg("sensor cache enabled")
	}

	var tokens *auth.TokenService
	if cfg.IQAir.SigningKey != "" {
		tokens = auth.NewTokenService(auth.TokenConfig{
			SigningKey: cfg.IQAir.SigningKey,
			Issuer:     serviceName,
			Audience:   cfg.IQAir.Audience,
		})
	} else {
		log.Warn().Msg("iqair.signing_key not set, fallback requests are unauthenticated")
	}

	fallback := iqair.NewClient(iqair.ClientConfig{
		BaseURL:  cfg.IQAir.BaseURL,
		Tokens:   tokens,
		Timeout:  cfg.IQAir.Timeout,
		Registry: registry,
		Metrics:  providerMetrics,
		Logger:   log,
	})

	// Visit recording.
	var recorder airquality.VisitRecorder
	var dispatcher *visits.Dispatcher
	store, closeStore, storeCheck, err := newVisitStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.Visits.Sink).Msg("failed to initialize visit store")
	}
	if closeStore != nil {
		defer closeStore()
	}
	if storeCheck != nil {
		checks = append(checks, *storeCheck)
	}
	if store != nil {
		dispatcher = visits.NewDispatcher(visits.DispatcherConfig{
			Store:       store,
			Logger:      log,
			Workers:     cfg.Visits.Workers,
			QueueSize:   cfg.Visits.QueueSize,
			SaveTimeout: cfg.Visits.SaveTimeout,
		})
		recorder = dispatcher
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Primary:            primary,
		Fallback:           fallback,
		Recorder:           recorder,
		Logger:             log,
		Metrics:            lookupMetrics,
		RadiusKm:           cfg.Lookup.RadiusKm,
		PrimaryTimeout:     cfg.Lookup.PrimaryTimeout,
		FallbackTimeout:    cfg.Lookup.FallbackTimeout,
		FallbackOnNegative: cfg.Lookup.FallbackOnNegative,
	})

	var opsTokens *auth.TokenService
	if cfg.Server.OpsSigningKey != "" {
		opsTokens = auth.NewTokenService(auth.TokenConfig{
			SigningKey: cfg.Server.OpsSigningKey,
			Issuer:     serviceName,
			Audience:   serviceName + "-ops",
		})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		Metrics:         httpMetrics,
		Lookup:          service,
		ReadinessChecks: checks,
		Providers:       registry,
		OpsTokens:       opsTokens,
		RateLimit:       cfg.Server.RateLimit,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drain pending visits after the last request has been answered.
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("visit queue not fully drained")
		}
		saved, failed, dropped := dispatcher.Stats()
		log.Info().
			Int64("saved", saved).
			Int64("failed", failed).
			Int64("dropped", dropped).
			Msg("visit dispatcher stopped")
	}

	log.Info().Msg("server stopped")
}

// newVisitStore builds the configured visit sink. All return values are nil
// for the "none" sink.
func newVisitStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (visits.Store, func(), *handler.ReadinessCheck, error) {
	switch cfg.Visits.Sink {
	case config.SinkPostgres:
		dbConfig := databaseConfig(cfg.Database)
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, nil, nil, err
		}
		store := visits.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		return store, pool.Close, &handler.ReadinessCheck{Name: "postgres", Check: pool.Ping}, nil

	case config.SinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, nil, err
		}
		store := visits.NewPubSubStore(client, cfg.PubSub.Topic)
		log.Info().
			Str("project_id", cfg.PubSub.ProjectID).
			Str("topic", cfg.PubSub.Topic).
			Msg("publishing visits to pubsub")
		closeFn := func() {
			store.Close()
			_ = client.Close()
		}
		return store, closeFn, nil, nil

	default:
		log.Warn().Msg("visit recording disabled")
		return nil, nil, nil, nil
	}
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if c.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}
