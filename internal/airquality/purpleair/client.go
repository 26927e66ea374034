// Package purpleair provides a client for the PurpleAir sensor API.
package purpleair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/internal/provider/resilience"
	"github.com/breatheroute/aqigateway/pkg/geo"
)

const (
	// DefaultBaseURL is the base URL for the PurpleAir API.
	DefaultBaseURL = "https://api.purpleair.com"

	// ProviderName identifies this provider.
	ProviderName = "purpleair"

	// APIKeyHeader carries the read key on every request.
	APIKeyHeader = "X-API-Key"
)

// Field names requested from the sensors endpoint.
const (
	fieldSensorIndex = "sensor_index"
	fieldPM25        = "pm2.5_cf_1"
	fieldOzone       = "ozone1"
	fieldHumidity    = "humidity"
	fieldLatitude    = "latitude"
	fieldLongitude   = "longitude"
)

// requestedFields is sent as the fields parameter. sensor_index is always
// returned by the API and need not be requested.
var requestedFields = strings.Join([]string{
	fieldPM25, fieldOzone, fieldHumidity, fieldLatitude, fieldLongitude,
}, ",")

// ErrMalformedResponse is returned when the payload lacks a required column.
var ErrMalformedResponse = errors.New("malformed purpleair response")

// ClientConfig holds configuration for the PurpleAir client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is the PurpleAir read key.
	APIKey string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	// Registry and Metrics are passed to the default resilient client.
	Registry *resilience.Registry
	Metrics  *resilience.Metrics

	// Logger for skipped rows and upstream errors.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a PurpleAir API client. It implements airquality.SensorProvider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new PurpleAir client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Role:            resilience.RolePrimary,
			Timeout:         timeout,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Registry:        cfg.Registry,
			Metrics:         cfg.Metrics,
			Logger:          cfg.Logger,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// sensorsResponse is the columnar payload of /v1/sensors.
type sensorsResponse struct {
	Fields []string     `json:"fields"`
	Data   [][]*float64 `json:"data"`
}

// SensorsURL builds the sensors query for a bounding box.
func (c *Client) SensorsURL(box geo.BoundingBox) string {
	q := url.Values{}
	q.Set("fields", requestedFields)
	q.Set("location_type", "0")
	q.Set("nwlng", formatCoord(box.West))
	q.Set("nwlat", formatCoord(box.North))
	q.Set("selng", formatCoord(box.East))
	q.Set("selat", formatCoord(box.South))
	return c.baseURL + "/v1/sensors?" + q.Encode()
}

// FetchSensors returns the outdoor sensors inside box.
// Rows missing a location, PM2.5 or humidity value are skipped.
func (c *Client) FetchSensors(ctx context.Context, box geo.BoundingBox) ([]airquality.SensorReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SensorsURL(box), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sensors: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from sensors endpoint", resp.StatusCode)
	}

	var result sensorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode sensors response: %w", err)
	}

	readings, skipped, err := toReadings(&result)
	if err != nil {
		return nil, err
	}

	if skipped > 0 {
		c.logger.Debug().
			Int("rows", len(result.Data)).
			Int("skipped", skipped).
			Msg("skipped incomplete sensor rows")
	}

	return readings, nil
}

// columns maps the response field names to their indexes.
type columns struct {
	index, pm25, ozone, humidity, lat, lon int
}

func resolveColumns(fields []string) (columns, error) {
	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		pos[f] = i
	}

	lookup := func(name string) int {
		if i, ok := pos[name]; ok {
			return i
		}
		return -1
	}

	cols := columns{
		index:    lookup(fieldSensorIndex),
		pm25:     lookup(fieldPM25),
		ozone:    lookup(fieldOzone),
		humidity: lookup(fieldHumidity),
		lat:      lookup(fieldLatitude),
		lon:      lookup(fieldLongitude),
	}

	var missing []string
	for name, i := range map[string]int{
		fieldPM25:      cols.pm25,
		fieldHumidity:  cols.humidity,
		fieldLatitude:  cols.lat,
		fieldLongitude: cols.lon,
	} {
		if i < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return columns{}, fmt.Errorf("%w: missing fields %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}

	return cols, nil
}

// toReadings converts the columnar payload into readings.
func toReadings(resp *sensorsResponse) ([]airquality.SensorReading, int, error) {
	cols, err := resolveColumns(resp.Fields)
	if err != nil {
		return nil, 0, err
	}

	readings := make([]airquality.SensorReading, 0, len(resp.Data))
	skipped := 0

	for _, row := range resp.Data {
		lat, okLat := cell(row, cols.lat)
		lon, okLon := cell(row, cols.lon)
		pm, okPM := cell(row, cols.pm25)
		hum, okHum := cell(row, cols.humidity)
		if !okLat || !okLon || !okPM || !okHum {
			skipped++
			continue
		}

		reading := airquality.SensorReading{
			Lat:      lat,
			Lon:      lon,
			PM25Raw:  pm,
			Humidity: hum,
		}
		if idx, ok := cell(row, cols.index); ok {
			reading.SensorIndex = int(idx)
		}
		if o3, ok := cell(row, cols.ozone); ok {
			reading.Ozone = &o3
		}

		readings = append(readings, reading)
	}

	return readings, skipped, nil
}

// cell returns row[i] if the column exists and the value is not null.
func cell(row []*float64, i int) (float64, bool) {
	if i < 0 || i >= len(row) || row[i] == nil {
		return 0, false
	}
	return *row[i], true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
