// Package api provides the HTTP API for the AQI gateway.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/aqigateway/internal/api/handler"
	"github.com/breatheroute/aqigateway/internal/api/middleware"
	"github.com/breatheroute/aqigateway/internal/api/response"
	"github.com/breatheroute/aqigateway/internal/auth"
)

// OpsScope is the service token scope required by protected ops endpoints.
const OpsScope = "ops:read"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// Metrics records HTTP server metrics (optional).
	Metrics *middleware.Metrics

	// TracerProvider for server spans (default: global provider).
	TracerProvider trace.TracerProvider

	// Lookup answers air quality requests.
	Lookup handler.Lookuper

	// ReadinessChecks are probed by /v1/ops/ready.
	ReadinessChecks []handler.ReadinessCheck

	// Providers reports upstream provider health (optional).
	Providers handler.ProviderHealthSource

	// OpsTokens protects /v1/ops/providers. Nil leaves it open.
	OpsTokens *auth.TokenService

	// RateLimit is the per-IP budget per minute on lookup routes.
	// Zero disables limiting.
	RateLimit int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Order matters: the request id must exist before tracing and logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.TracerProvider))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no route for "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.MethodNotAllowed(w, req, "unsupported method "+req.Method)
	})

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessChecks, cfg.Providers)
	aqHandler := handler.NewAirQualityHandler(cfg.Lookup)
	lookupRateLimit := middleware.RateLimitByIP(cfg.RateLimit)

	// Deployed clients call the gateway root with the lookup query.
	r.With(lookupRateLimit).Get("/", aqHandler.GetAirQuality)

	r.Route("/v1", func(r chi.Router) {
		r.With(lookupRateLimit).Get("/air-quality", aqHandler.GetAirQuality)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(middleware.ServiceToken(cfg.OpsTokens, OpsScope)).Get("/providers", opsHandler.ProviderStatus)
		})
	})

	return r
}
