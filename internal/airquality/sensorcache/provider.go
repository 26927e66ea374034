package sensorcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/pkg/geo"
)

const meterName = "github.com/breatheroute/aqigateway/internal/airquality/sensorcache"

// DefaultTTL is how long a non-empty sensor result stays cached.
const DefaultTTL = 2 * time.Minute

// Config holds configuration for the caching provider.
type Config struct {
	// Next is the provider whose results are cached.
	Next airquality.SensorProvider

	// Store holds the cached results.
	Store Store

	// TTL for cached results (default: DefaultTTL).
	TTL time.Duration

	// Logger for cache errors.
	Logger zerolog.Logger
}

// Provider is an airquality.SensorProvider that caches another provider's
// results by bounding box. Cache failures never fail a fetch.
type Provider struct {
	next    airquality.SensorProvider
	store   Store
	ttl     time.Duration
	logger  zerolog.Logger
	lookups metric.Int64Counter
}

// New creates a caching provider.
func New(cfg Config) *Provider {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	// Instrument creation only fails for invalid names.
	lookups, _ := otel.Meter(meterName).Int64Counter(
		"aqi.sensor_cache.lookups",
		metric.WithDescription("Sensor cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)

	return &Provider{
		next:    cfg.Next,
		store:   cfg.Store,
		ttl:     ttl,
		logger:  cfg.Logger,
		lookups: lookups,
	}
}

// Key returns the cache key for a bounding box.
func Key(box geo.BoundingBox) string {
	return fmt.Sprintf("aqi:sensors:%.5f:%.5f:%.5f:%.5f", box.West, box.East, box.North, box.South)
}

// FetchSensors returns cached readings for box, or fetches and caches them.
func (p *Provider) FetchSensors(ctx context.Context, box geo.BoundingBox) ([]airquality.SensorReading, error) {
	key := Key(box)

	if readings, ok := p.get(ctx, key); ok {
		p.count(ctx, "hit")
		return readings, nil
	}
	p.count(ctx, "miss")

	readings, err := p.next.FetchSensors(ctx, box)
	if err != nil {
		return nil, err
	}

	if len(readings) > 0 {
		p.set(ctx, key, readings)
	}

	return readings, nil
}

func (p *Provider) get(ctx context.Context, key string) ([]airquality.SensorReading, bool) {
	data, err := p.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			p.logger.Warn().Err(err).Str("key", key).Msg("sensor cache read failed")
		}
		return nil, false
	}

	var readings []airquality.SensorReading
	if err := json.Unmarshal(data, &readings); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable sensor cache entry")
		return nil, false
	}
	return readings, true
}

func (p *Provider) set(ctx context.Context, key string, readings []airquality.SensorReading) {
	data, err := json.Marshal(readings)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode sensor readings for cache")
		return
	}
	if err := p.store.Set(ctx, key, data, p.ttl); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("sensor cache write failed")
	}
}

func (p *Provider) count(ctx context.Context, result string) {
	if p.lookups == nil {
		return
	}
	p.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
