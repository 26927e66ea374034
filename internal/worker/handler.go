// Package worker consumes visit messages from Pub/Sub and persists them.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/breatheroute/aqigateway/internal/visits"
)

const meterName = "github.com/breatheroute/aqigateway/internal/worker"

// Disposition tells the subscriber what to do with a message.
type Disposition int

const (
	// Ack removes the message from the subscription.
	Ack Disposition = iota
	// Nack requests redelivery.
	Nack
)

func (d Disposition) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// HandlerConfig holds configuration for the visit handler.
type HandlerConfig struct {
	Store  visits.Store
	Logger zerolog.Logger

	// SaveTimeout bounds each Store.Save call.
	// Default: 10 seconds
	SaveTimeout time.Duration
}

// VisitHandler decodes visit messages and saves them.
type VisitHandler struct {
	store       visits.Store
	logger      zerolog.Logger
	saveTimeout time.Duration
	messages    metric.Int64Counter
}

// NewVisitHandler creates a visit handler.
func NewVisitHandler(cfg HandlerConfig) *VisitHandler {
	timeout := cfg.SaveTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	messages, _ := otel.Meter(meterName).Int64Counter(
		"aqi.worker.messages",
		metric.WithDescription("Visit messages processed by disposition"),
		metric.WithUnit("{message}"),
	)

	return &VisitHandler{
		store:       cfg.Store,
		logger:      cfg.Logger,
		saveTimeout: timeout,
		messages:    messages,
	}
}

// Handle processes one message payload. Messages that can never succeed
// (malformed, unknown job type, no system id) are acked and dropped; storage
// failures are nacked for redelivery.
func (h *VisitHandler) Handle(ctx context.Context, data []byte) Disposition {
	d := h.handle(ctx, data)
	if h.messages != nil {
		h.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("disposition", d.String())))
	}
	return d
}

func (h *VisitHandler) handle(ctx context.Context, data []byte) Disposition {
	v, err := visits.DecodeMessage(data)
	if err != nil {
		if errors.Is(err, visits.ErrUnknownJobType) {
			h.logger.Warn().Err(err).Msg("ignoring message with unknown job type")
		} else {
			h.logger.Error().Err(err).Int("bytes", len(data)).Msg("dropping undecodable visit message")
		}
		return Ack
	}

	sctx, cancel := context.WithTimeout(ctx, h.saveTimeout)
	defer cancel()

	if err := h.store.Save(sctx, v); err != nil {
		h.logger.Error().Err(err).Str("system_id", v.SystemID).Msg("failed to save visit")
		return Nack
	}

	h.logger.Debug().
		Str("system_id", v.SystemID).
		Float64("aqi", v.AQI).
		Msg("visit saved")
	return Ack
}
