package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error document, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request id, also sent as X-Request-Id.
	TraceID string `json:"traceId"`

	// Errors lists per-parameter validation failures.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError describes one invalid query parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://aqi.breatheroute.nl/problems/"

// Problem types served by the gateway.
const (
	ProblemTypeValidation            = problemBase + "validation-error"
	ProblemTypeUnauthorized          = problemBase + "unauthorized"
	ProblemTypeNotFound              = problemBase + "not-found"
	ProblemTypeMethodNotAllowed      = problemBase + "method-not-allowed"
	ProblemTypeTooManyRequests       = problemBase + "too-many-requests"
	ProblemTypeInternal              = problemBase + "internal-error"
	ProblemTypeAirQualityUnavailable = problemBase + "air-quality-unavailable"
)

func newProblem(problemType, title string, status int, traceID, detail string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem carrying the invalid parameters.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return newProblem(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return newProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

func NewMethodNotAllowed(traceID, detail string) *Problem {
	return newProblem(ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return newProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return newProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}

// NewAirQualityUnavailable creates the 503 problem returned when neither
// the sensor network nor the fallback gateway produced a reading.
func NewAirQualityUnavailable(traceID, detail string) *Problem {
	return newProblem(ProblemTypeAirQualityUnavailable, "Air quality unavailable", http.StatusServiceUnavailable, traceID, detail)
}
