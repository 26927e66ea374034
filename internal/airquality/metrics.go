package airquality

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/breatheroute/aqigateway/internal/airquality"

// Lookup outcomes.
const (
	OutcomePrimary  = "primary"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// Metrics holds the lookup instruments.
type Metrics struct {
	lookupTotal metric.Int64Counter
}

// NewMetrics creates lookup metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	lookupTotal, err := meter.Int64Counter(
		"aqi.lookup.total",
		metric.WithDescription("Total number of air quality lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{lookupTotal: lookupTotal}, nil
}

// RecordLookup counts one lookup. A nil Metrics records nothing.
func (m *Metrics) RecordLookup(ctx context.Context, outcome, reason string) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.lookupTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
