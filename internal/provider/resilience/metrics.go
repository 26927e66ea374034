package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/breatheroute/aqigateway/internal/provider/resilience"

// Request outcomes recorded per attempt.
const (
	OutcomeSuccess      = "success"
	OutcomeClientError  = "client_error"
	OutcomeRateLimited  = "rate_limited"
	OutcomeServerError  = "server_error"
	OutcomeNetworkError = "network_error"
	OutcomeCircuitOpen  = "circuit_open"
)

// Metrics holds the provider request instruments.
type Metrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// NewMetrics creates provider request metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of upstream provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	total, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of upstream provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{duration: duration, total: total}, nil
}

func (m *Metrics) record(ctx context.Context, provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	m.total.Add(ctx, 1, attrs)
}

// classify maps one attempt's result to an outcome.
func classify(resp *http.Response, err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeCircuitOpen
	case resp == nil:
		return OutcomeNetworkError
	case resp.StatusCode >= 500:
		return OutcomeServerError
	case resp.StatusCode == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case resp.StatusCode >= 400:
		return OutcomeClientError
	default:
		return OutcomeSuccess
	}
}
