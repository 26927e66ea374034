package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/internal/api/models"
	"github.com/breatheroute/aqigateway/internal/api/response"
	"github.com/breatheroute/aqigateway/pkg/geo"
)

// Lookuper answers air quality lookups.
type Lookuper interface {
	Lookup(ctx context.Context, req airquality.LookupRequest) (*airquality.Result, error)
}

// AirQualityHandler serves the air quality lookup.
type AirQualityHandler struct {
	lookup Lookuper
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(lookup Lookuper) *AirQualityHandler {
	return &AirQualityHandler{lookup: lookup}
}

// GetAirQuality handles GET /v1/air-quality (and GET / for deployed clients).
// Query: lat, lon (required), device, sysId, plus any metadata the fallback
// provider understands.
func (h *AirQualityHandler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	req, fieldErrors := parseLookupRequest(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid coordinates", fieldErrors)
		return
	}

	result, err := h.lookup.Lookup(r.Context(), req)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("air quality lookup failed")
		if errors.Is(err, airquality.ErrFallbackFailed) {
			response.AirQualityUnavailable(w, r, err.Error())
			return
		}
		response.InternalError(w, r, "air quality lookup failed")
		return
	}

	response.JSON(w, r, http.StatusOK, result)
}

// parseLookupRequest reads the coordinate and metadata from the query string.
func parseLookupRequest(r *http.Request) (airquality.LookupRequest, []models.FieldError) {
	q := r.URL.Query()
	rawLat := strings.TrimSpace(q.Get("lat"))
	rawLon := strings.TrimSpace(q.Get("lon"))

	var fieldErrors []models.FieldError
	lat, fe := parseDegrees("lat", rawLat, 90)
	if fe != nil {
		fieldErrors = append(fieldErrors, *fe)
	}
	lon, fe := parseDegrees("lon", rawLon, 180)
	if fe != nil {
		fieldErrors = append(fieldErrors, *fe)
	}

	return airquality.LookupRequest{
		Coordinate:   geo.Coordinate{Lat: lat, Lon: lon},
		RawLatitude:  rawLat,
		RawLongitude: rawLon,
		Device:       q.Get("device"),
		SystemID:     q.Get("sysId"),
		Params:       q,
	}, fieldErrors
}

func parseDegrees(field, raw string, limit float64) (float64, *models.FieldError) {
	if raw == "" {
		return 0, &models.FieldError{Field: field, Message: "is required", Code: "REQUIRED"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, &models.FieldError{Field: field, Message: "must be a number", Code: "INVALID_NUMBER"}
	}
	if v < -limit || v > limit {
		return 0, &models.FieldError{
			Field:   field,
			Message: "must be between " + strconv.FormatFloat(-limit, 'f', -1, 64) + " and " + strconv.FormatFloat(limit, 'f', -1, 64),
			Code:    "OUT_OF_RANGE",
		}
	}
	return v, nil
}
