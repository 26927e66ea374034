// Package airquality turns nearby PurpleAir sensor readings into US EPA AQI
// values and falls back to a secondary provider when no usable reading exists.
package airquality

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/breatheroute/aqigateway/pkg/geo"
)

// Lookup errors.
var (
	ErrEmptyResultSet  = errors.New("no sensor readings in result set")
	ErrNoUsableReading = errors.New("no usable PM2.5 reading")
	ErrInvalidBounds   = errors.New("bounding box is degenerate")
	ErrFallbackFailed  = errors.New("fallback provider failed")
)

// Result sources.
const (
	SourcePurpleAir = "purpleair"
	SourceIQAir     = "iqair"
)

// noDataJSON is the wire form of an AQI that could not be computed.
const noDataJSON = "-"

// AQI is a US EPA air quality index value.
// NoData marks a value that could not be computed; it is distinct from a
// negative AQI, which signals an anomalous sensor reading.
type AQI float64

// NoData is the sentinel for "AQI could not be computed".
var NoData = AQI(math.NaN())

// IsNoData reports whether a is the NoData sentinel.
func (a AQI) IsNoData() bool {
	return math.IsNaN(float64(a))
}

// MarshalJSON encodes NoData as "-" and everything else as a number.
func (a AQI) MarshalJSON() ([]byte, error) {
	if a.IsNoData() {
		return json.Marshal(noDataJSON)
	}
	return []byte(strconv.FormatFloat(float64(a), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number or the "-" sentinel.
func (a *AQI) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = NoData
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == noDataJSON || s == "" {
			*a = NoData
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("aqi: invalid value %q", s)
		}
		*a = AQI(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("aqi: %w", err)
	}
	*a = AQI(v)
	return nil
}

func (a AQI) String() string {
	if a.IsNoData() {
		return noDataJSON
	}
	return strconv.FormatFloat(float64(a), 'f', -1, 64)
}

// Result is the air quality at a point.
type Result struct {
	// PM25 is the PM2.5 AQI.
	PM25 AQI `json:"PM2.5"`

	// O3 is the ozone reading passed through from the sensor, nil if absent.
	O3 *float64 `json:"O3"`

	// Source names the provider that produced the result.
	Source string `json:"-"`
}

// SensorReading is one sensor row returned by the primary provider.
type SensorReading struct {
	SensorIndex int     `json:"sensor_index"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`

	// PM25Raw is the uncalibrated PM2.5 reading (pm2.5_cf_1) in µg/m³.
	PM25Raw float64 `json:"pm25_raw"`

	// Ozone is nil when the sensor has no ozone channel.
	Ozone *float64 `json:"ozone,omitempty"`

	// Humidity is the relative humidity in percent.
	Humidity float64 `json:"humidity"`
}

// Coordinate returns the sensor position.
func (r SensorReading) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.Lat, Lon: r.Lon}
}

// LookupRequest is a lookup at a coordinate plus the caller's request metadata.
type LookupRequest struct {
	Coordinate geo.Coordinate

	// RawLatitude and RawLongitude are the coordinate as received, used to
	// detect placeholder coordinates before recording a visit.
	RawLatitude  string
	RawLongitude string

	// RadiusKm overrides the configured search radius when positive.
	RadiusKm float64

	// Device is the client device model, recorded with the visit.
	Device string

	// SystemID identifies the client installation. Visits are only
	// recorded when it is set.
	SystemID string

	// Params holds the full request metadata and is forwarded to the
	// fallback provider.
	Params url.Values
}

// rawLatitude returns the latitude as the client sent it.
func (r LookupRequest) rawLatitude() string {
	if r.RawLatitude != "" {
		return r.RawLatitude
	}
	return strconv.FormatFloat(r.Coordinate.Lat, 'f', 6, 64)
}

// Query returns the request as query parameters: the metadata plus lat/lon.
func (r LookupRequest) Query() url.Values {
	q := url.Values{}
	for k, vs := range r.Params {
		q[k] = append([]string(nil), vs...)
	}

	lat, lon := r.RawLatitude, r.RawLongitude
	if lat == "" {
		lat = strconv.FormatFloat(r.Coordinate.Lat, 'f', -1, 64)
	}
	if lon == "" {
		lon = strconv.FormatFloat(r.Coordinate.Lon, 'f', -1, 64)
	}
	q.Set("lat", lat)
	q.Set("lon", lon)

	if r.Device != "" && q.Get("device") == "" {
		q.Set("device", r.Device)
	}
	if r.SystemID != "" && q.Get("sysId") == "" {
		q.Set("sysId", r.SystemID)
	}
	return q
}
