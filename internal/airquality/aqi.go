package airquality

import (
	"math"

	"github.com/rs/zerolog"
)

// maxPM25 is the highest concentration the breakpoint table covers.
const maxPM25 = 1000

// breakpoint is one row of the EPA PM2.5 table. A concentration belongs to the
// first row (highest first) whose Above threshold it strictly exceeds.
type breakpoint struct {
	Above float64
	Il    float64
	Ih    float64
	BPl   float64
	BPh   float64
}

// pm25Breakpoints is ordered from the highest tier to the lowest.
//
//	Good                            0 - 50    0.0 - 12.0
//	Moderate                       51 - 100  12.1 - 35.4
//	Unhealthy for Sensitive Groups 101 - 150  35.5 - 55.4
//	Unhealthy                      151 - 200  55.5 - 150.4
//	Very Unhealthy                 201 - 300 150.5 - 250.4
//	Hazardous                      301 - 400 250.5 - 350.4
//	Hazardous                      401 - 500 350.5 - 500
var pm25Breakpoints = []breakpoint{
	{Above: 350.5, Il: 401, Ih: 500, BPl: 350.5, BPh: 500},
	{Above: 250.5, Il: 301, Ih: 400, BPl: 250.5, BPh: 350.4},
	{Above: 150.5, Il: 201, Ih: 300, BPl: 150.5, BPh: 250.4},
	{Above: 55.5, Il: 151, Ih: 200, BPl: 55.5, BPh: 150.4},
	{Above: 35.5, Il: 101, Ih: 150, BPl: 35.5, BPh: 55.4},
	{Above: 12.1, Il: 51, Ih: 100, BPl: 12.1, BPh: 35.4},
}

// goodBreakpoint covers [0, 12.1], the only tier with an inclusive lower bound.
var goodBreakpoint = breakpoint{Il: 0, Ih: 50, BPl: 0, BPh: 12}

// CalibratedPM25 applies the humidity correction to a raw pm2.5_cf_1 reading.
func CalibratedPM25(raw, humidity float64) float64 {
	return 0.534*raw - 0.0844*humidity + 5.604
}

// AQIFromPM25 converts a PM2.5 concentration in µg/m³ to an AQI.
// NaN and values above 1000 yield NoData. Negative values are returned
// unchanged so callers can detect bad readings.
func AQIFromPM25(pm float64) AQI {
	if math.IsNaN(pm) {
		return NoData
	}
	if pm < 0 {
		return AQI(pm)
	}
	if pm > maxPM25 {
		return NoData
	}

	for _, bp := range pm25Breakpoints {
		if pm > bp.Above {
			return bp.interpolate(pm)
		}
	}
	return goodBreakpoint.interpolate(pm)
}

func (bp breakpoint) interpolate(cp float64) AQI {
	return AQI(math.Round((bp.Ih-bp.Il)/(bp.BPh-bp.BPl)*(cp-bp.BPl) + bp.Il))
}

// Converter computes AQI values from raw sensor readings and reports anomalies.
type Converter struct {
	logger zerolog.Logger
}

// NewConverter creates a Converter that logs anomalies to logger.
func NewConverter(logger zerolog.Logger) *Converter {
	return &Converter{logger: logger}
}

// USEPAFromRawPM25 calibrates a raw reading and converts it to an AQI.
// A negative result is logged as an anomaly and still returned.
func (c *Converter) USEPAFromRawPM25(raw, humidity float64) AQI {
	aqi := AQIFromPM25(CalibratedPM25(raw, humidity))
	if aqi < 0 {
		c.logger.Warn().
			Float64("pm25_raw", raw).
			Float64("humidity", humidity).
			Float64("aqi", float64(aqi)).
			Msg("negative AQI from calibrated reading")
	}
	return aqi
}

// Category is the EPA health category of an AQI value.
type Category string

const (
	CategoryGood          Category = "Good"
	CategoryModerate      Category = "Moderate"
	CategorySensitive     Category = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy     Category = "Unhealthy"
	CategoryVeryUnhealthy Category = "Very Unhealthy"
	CategoryHazardous     Category = "Hazardous"
	CategoryUnknown       Category = ""
)

// CategoryOf returns the EPA category for a. NoData and negative values have
// no category.
func CategoryOf(a AQI) Category {
	switch {
	case a.IsNoData() || a < 0:
		return CategoryUnknown
	case a <= 50:
		return CategoryGood
	case a <= 100:
		return CategoryModerate
	case a <= 150:
		return CategorySensitive
	case a <= 200:
		return CategoryUnhealthy
	case a <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}
