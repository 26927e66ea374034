package airquality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/aqigateway/internal/visits"
	"github.com/breatheroute/aqigateway/pkg/geo"
)

const tracerName = "github.com/breatheroute/aqigateway/internal/airquality"

// Fallback reasons, reported in logs, spans and metrics.
const (
	ReasonInvalidBounds = "invalid_bounds"
	ReasonPrimaryError  = "primary_error"
	ReasonEmptyResult   = "empty_result"
	ReasonNoData        = "no_data"
	ReasonNegativeAQI   = "negative_aqi"
)

// DefaultRadiusKm is the sensor search radius around the query point.
const DefaultRadiusKm = 10

// SensorProvider fetches sensor readings inside a bounding box.
type SensorProvider interface {
	FetchSensors(ctx context.Context, box geo.BoundingBox) ([]SensorReading, error)
}

// FallbackProvider answers a lookup when the sensor provider cannot.
// Its result is returned to the caller as-is.
type FallbackProvider interface {
	Lookup(ctx context.Context, req LookupRequest) (*Result, error)
}

// VisitRecorder accepts visits for asynchronous persistence.
// Record must not block.
type VisitRecorder interface {
	Record(v visits.Visit)
}

// ServiceConfig holds configuration for the lookup service.
type ServiceConfig struct {
	// Primary is the sensor network provider.
	Primary SensorProvider

	// Fallback is used whenever Primary has no usable reading.
	Fallback FallbackProvider

	// Recorder receives a visit for every successful primary lookup (optional).
	Recorder VisitRecorder

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records lookup outcomes (optional).
	Metrics *Metrics

	// TracerProvider creates the lookup tracer (default: global provider).
	TracerProvider trace.TracerProvider

	// RadiusKm is the default search radius (default: 10km).
	RadiusKm float64

	// PrimaryTimeout bounds the sensor provider call (default: 10s).
	PrimaryTimeout time.Duration

	// FallbackTimeout bounds the fallback provider call (default: 15s).
	FallbackTimeout time.Duration

	// FallbackOnNegative sends negative AQI results to the fallback provider
	// instead of returning them.
	FallbackOnNegative bool

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service looks up the air quality at a coordinate.
type Service struct {
	primary            SensorProvider
	fallback           FallbackProvider
	recorder           VisitRecorder
	converter          *Converter
	logger             zerolog.Logger
	metrics            *Metrics
	tracer             trace.Tracer
	radiusKm           float64
	primaryTimeout     time.Duration
	fallbackTimeout    time.Duration
	fallbackOnNegative bool
	now                func() time.Time
}

// NewService creates a new lookup service.
func NewService(cfg ServiceConfig) *Service {
	radius := cfg.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}

	primaryTimeout := cfg.PrimaryTimeout
	if primaryTimeout == 0 {
		primaryTimeout = 10 * time.Second
	}

	fallbackTimeout := cfg.FallbackTimeout
	if fallbackTimeout == 0 {
		fallbackTimeout = 15 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Service{
		primary:            cfg.Primary,
		fallback:           cfg.Fallback,
		recorder:           cfg.Recorder,
		converter:          NewConverter(cfg.Logger),
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		tracer:             tp.Tracer(tracerName),
		radiusKm:           radius,
		primaryTimeout:     primaryTimeout,
		fallbackTimeout:    fallbackTimeout,
		fallbackOnNegative: cfg.FallbackOnNegative,
		now:                now,
	}
}

// fallbackError marks a primary-path failure that routes the lookup to the
// fallback provider.
type fallbackError struct {
	reason string
	err    error
}

func (e *fallbackError) Error() string {
	return e.reason + ": " + e.err.Error()
}

func (e *fallbackError) Unwrap() error {
	return e.err
}

// Lookup returns the air quality at req.Coordinate.
// Every primary-path problem is handled by calling the fallback provider;
// only a fallback failure is returned as an error, wrapping ErrFallbackFailed.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "airquality.Lookup",
		trace.WithAttributes(
			attribute.Float64("geo.lat", req.Coordinate.Lat),
			attribute.Float64("geo.lon", req.Coordinate.Lon),
		),
	)
	defer span.End()

	logger := s.logger.With().
		Float64("lat", req.Coordinate.Lat).
		Float64("lon", req.Coordinate.Lon).
		Logger()

	result, err := s.lookupPrimary(ctx, req, logger)
	if err == nil {
		span.SetAttributes(attribute.String("aqi.source", result.Source))
		s.metrics.RecordLookup(ctx, OutcomePrimary, "")
		s.recordVisit(req, result, logger)
		return result, nil
	}

	reason := ReasonPrimaryError
	var fe *fallbackError
	if errors.As(err, &fe) {
		reason = fe.reason
	}

	logger.Warn().
		Err(err).
		Str("reason", reason).
		Msg("sensor provider unusable, using fallback")
	span.AddEvent("fallback", trace.WithAttributes(attribute.String("aqi.fallback_reason", reason)))

	result, err = s.lookupFallback(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("reason", reason).Msg("fallback provider failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback failed")
		s.metrics.RecordLookup(ctx, OutcomeFailed, reason)
		return nil, err
	}

	span.SetAttributes(attribute.String("aqi.source", result.Source))
	s.metrics.RecordLookup(ctx, OutcomeFallback, reason)
	return result, nil
}

// lookupPrimary computes the result from the nearest sensor.
func (s *Service) lookupPrimary(ctx context.Context, req LookupRequest, logger zerolog.Logger) (*Result, error) {
	if s.primary == nil {
		return nil, &fallbackError{reason: ReasonPrimaryError, err: errors.New("no sensor provider configured")}
	}

	radius := req.RadiusKm
	if radius <= 0 {
		radius = s.radiusKm
	}

	box := geo.NewBoundingBox(req.Coordinate, radius)
	if !box.Valid() {
		return nil, &fallbackError{reason: ReasonInvalidBounds, err: ErrInvalidBounds}
	}

	pctx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
	defer cancel()

	readings, err := s.primary.FetchSensors(pctx, box)
	if err != nil {
		return nil, &fallbackError{reason: ReasonPrimaryError, err: err}
	}

	nearest, err := selectNearestRanked(req.Coordinate, readings)
	if err != nil {
		return nil, &fallbackError{reason: ReasonEmptyResult, err: err}
	}

	aqi := s.converter.USEPAFromRawPM25(nearest.Reading.PM25Raw, nearest.Reading.Humidity)

	logger.Debug().
		Int("sensors", len(readings)).
		Int("sensor_index", nearest.Reading.SensorIndex).
		Float64("distance_km", nearest.DistanceKm).
		Stringer("aqi", aqi).
		Str("category", string(CategoryOf(aqi))).
		Msg("nearest sensor selected")

	if aqi.IsNoData() {
		return nil, &fallbackError{reason: ReasonNoData, err: ErrNoUsableReading}
	}
	if aqi < 0 && s.fallbackOnNegative {
		return nil, &fallbackError{reason: ReasonNegativeAQI, err: fmt.Errorf("negative AQI %v", aqi)}
	}

	return &Result{
		PM25:   aqi,
		O3:     nearest.Reading.Ozone,
		Source: SourcePurpleAir,
	}, nil
}

// lookupFallback asks the fallback provider once and returns its answer verbatim.
func (s *Service) lookupFallback(ctx context.Context, req LookupRequest) (*Result, error) {
	if s.fallback == nil {
		return nil, fmt.Errorf("%w: no fallback provider configured", ErrFallbackFailed)
	}

	fctx, cancel := context.WithTimeout(ctx, s.fallbackTimeout)
	defer cancel()

	result, err := s.fallback.Lookup(fctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFallbackFailed, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: empty response", ErrFallbackFailed)
	}
	return result, nil
}

// recordVisit hands a visit to the recorder unless the request carries no
// system id or a placeholder latitude.
func (s *Service) recordVisit(req LookupRequest, result *Result, logger zerolog.Logger) {
	if s.recorder == nil {
		return
	}
	if req.SystemID == "" {
		return
	}
	if visits.IsPlaceholderLatitude(req.rawLatitude()) {
		logger.Debug().Str("raw_lat", req.rawLatitude()).Msg("skipping visit for placeholder latitude")
		return
	}

	s.recorder.Record(visits.Visit{
		SystemID:    req.SystemID,
		DeviceModel: req.Device,
		Timestamp:   s.now().UTC(),
		Lat:         req.Coordinate.Lat,
		Lon:         req.Coordinate.Lon,
		AQI:         float64(result.PM25),
	})
}
