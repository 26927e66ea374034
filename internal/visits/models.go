// Package visits records where and when client devices looked up air quality.
package visits

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Store errors.
var (
	ErrMissingSystemID = errors.New("visit has no system id")
	ErrVisitNotFound   = errors.New("visit not found")
	ErrRecorderClosed  = errors.New("visit recorder is closed")
)

// Visit is a single successful lookup by a client device.
type Visit struct {
	// SystemID identifies the client installation and keys the stored visit.
	SystemID string `json:"system_id"`

	// DeviceModel is the client-reported device model.
	DeviceModel string `json:"model,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`

	// AQI is the PM2.5 AQI returned to the client.
	AQI float64 `json:"aqi"`
}

// Store persists visits.
type Store interface {
	Save(ctx context.Context, v Visit) error
}

// maxLatitude is the largest latitude not treated as a placeholder.
const maxLatitude = 179.999999

// IsPlaceholderLatitude reports whether a latitude, as sent by the client, is a
// known placeholder for "no fix": the literal zero forms, "180.000000", or any
// value above 179.999999.
func IsPlaceholderLatitude(raw string) bool {
	switch raw {
	case "0.0", "0", "0.000000", "180.000000":
		return true
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v > maxLatitude {
		return true
	}
	return false
}
