// Package handler provides HTTP handlers for the AQI gateway API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/breatheroute/aqigateway/internal/api/models"
	"github.com/breatheroute/aqigateway/internal/api/response"
	"github.com/breatheroute/aqigateway/internal/provider/resilience"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// ReadinessCheck is one dependency probed by /v1/ops/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ProviderHealthSource reports upstream provider health.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []ReadinessCheck
	providers ProviderHealthSource
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. providers may be nil.
func NewOpsHandler(version, buildTime string, checks []ReadinessCheck, providers ProviderHealthSource) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checks:    checks,
		providers: providers,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. Any failing check makes the
// instance unready (503).
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ready := models.Readiness{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: make([]models.SubsystemStatus, 0, len(h.checks)),
	}

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := c.Check(ctx)
		cancel()

		sub := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			ready.Status = models.HealthStatusFail
		}
		ready.Subsystems = append(ready.Subsystems, sub)
	}

	status := http.StatusOK
	if ready.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, ready)
}

// ProviderStatus handles GET /v1/ops/providers - circuit breaker state of
// every upstream provider. An open circuit degrades the overall status; the
// gateway still answers through the fallback.
func (h *OpsHandler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	out := models.ProvidersStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}

	if h.providers != nil {
		for _, ph := range h.providers.GetAllHealth() {
			ps := models.ProviderStatus{
				Provider:            ph.Name,
				Role:                ph.Role,
				Status:              providerHealthStatus(ph),
				CircuitState:        ph.CircuitState.String(),
				ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
				LastSuccessAt:       timestampPtr(ph.LastSuccessAt),
				LastFailureAt:       timestampPtr(ph.LastFailureAt),
			}
			if ph.LastError != "" {
				msg := ph.LastError
				ps.Message = &msg
			}
			if ps.Status != models.HealthStatusOK {
				out.Status = models.HealthStatusDegraded
			}
			out.Providers = append(out.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}

func providerHealthStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch ph.Status() {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
