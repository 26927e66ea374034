package airquality_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqigateway/internal/airquality"
)

func TestAQIFromPM25_Sentinels(t *testing.T) {
	assert.True(t, airquality.AQIFromPM25(math.NaN()).IsNoData())
	assert.True(t, airquality.AQIFromPM25(1000.1).IsNoData())
	assert.True(t, airquality.AQIFromPM25(math.Inf(1)).IsNoData())
	assert.False(t, airquality.AQIFromPM25(1000).IsNoData())
}

func TestAQIFromPM25_NegativePassthrough(t *testing.T) {
	assert.Equal(t, airquality.AQI(-5), airquality.AQIFromPM25(-5))
	assert.Equal(t, airquality.AQI(-0.25), airquality.AQIFromPM25(-0.25))
}

func TestAQIFromPM25_Breakpoints(t *testing.T) {
	tests := []struct {
		name     string
		pm       float64
		expected airquality.AQI
	}{
		{name: "zero", pm: 0, expected: 0},
		{name: "good upper breakpoint", pm: 12.0, expected: 50},
		{name: "12.1 stays in good tier", pm: 12.1, expected: 50},
		{name: "just above 12.1", pm: 12.2, expected: 51},
		{name: "moderate upper breakpoint", pm: 35.4, expected: 100},
		{name: "35.5 stays in moderate tier", pm: 35.5, expected: 100},
		{name: "just above 35.5", pm: 35.6, expected: 101},
		{name: "55.5 stays in sensitive tier", pm: 55.5, expected: 150},
		{name: "just above 55.5", pm: 55.6, expected: 151},
		{name: "150.5 stays in unhealthy tier", pm: 150.5, expected: 200},
		{name: "just above 150.5", pm: 150.6, expected: 201},
		{name: "250.5 stays in very unhealthy tier", pm: 250.5, expected: 300},
		{name: "just above 250.5", pm: 250.6, expected: 301},
		{name: "350.5 stays in hazardous tier", pm: 350.5, expected: 400},
		{name: "just above 350.5", pm: 350.6, expected: 401},
		{name: "top of table", pm: 500, expected: 500},
		{name: "beyond table up to 1000", pm: 1000, expected: 831},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, airquality.AQIFromPM25(tt.pm))
		})
	}
}

func TestAQIFromPM25_MonotonicOverRange(t *testing.T) {
	prev := airquality.AQIFromPM25(0)
	for i := 1; i <= 10000; i++ {
		pm := float64(i) / 10
		aqi := airquality.AQIFromPM25(pm)

		require.False(t, aqi.IsNoData(), "pm %v", pm)
		require.GreaterOrEqual(t, float64(aqi), 0.0, "pm %v", pm)
		require.Equal(t, math.Round(float64(aqi)), float64(aqi), "pm %v not an integer AQI", pm)
		require.GreaterOrEqual(t, float64(aqi), float64(prev), "AQI decreased at pm %v", pm)
		prev = aqi
	}
}

func TestCalibratedPM25(t *testing.T) {
	assert.InDelta(t, 20.074, airquality.CalibratedPM25(35, 50), 1e-9)
	assert.InDelta(t, 5.604, airquality.CalibratedPM25(0, 0), 1e-9)
}

func TestConverter_USEPAFromRawPM25(t *testing.T) {
	var buf bytes.Buffer
	converter := airquality.NewConverter(zerolog.New(&buf))

	// 0.534*35 - 0.0844*50 + 5.604 = 20.074 -> moderate tier
	assert.Equal(t, airquality.AQI(68), converter.USEPAFromRawPM25(35, 50))
	assert.Empty(t, buf.String())
}

func TestConverter_USEPAFromRawPM25_NegativeIsLogged(t *testing.T) {
	var buf bytes.Buffer
	converter := airquality.NewConverter(zerolog.New(&buf))

	// 0.534*0 - 0.0844*100 + 5.604 = -2.836
	aqi := converter.USEPAFromRawPM25(0, 100)
	assert.InDelta(t, -2.836, float64(aqi), 1e-9)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(100), entry["humidity"])
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, airquality.CategoryGood, airquality.CategoryOf(0))
	assert.Equal(t, airquality.CategoryGood, airquality.CategoryOf(50))
	assert.Equal(t, airquality.CategoryModerate, airquality.CategoryOf(68))
	assert.Equal(t, airquality.CategorySensitive, airquality.CategoryOf(101))
	assert.Equal(t, airquality.CategoryUnhealthy, airquality.CategoryOf(200))
	assert.Equal(t, airquality.CategoryVeryUnhealthy, airquality.CategoryOf(300))
	assert.Equal(t, airquality.CategoryHazardous, airquality.CategoryOf(401))
	assert.Equal(t, airquality.CategoryUnknown, airquality.CategoryOf(-3))
	assert.Equal(t, airquality.CategoryUnknown, airquality.CategoryOf(airquality.NoData))
}

func TestAQI_JSON(t *testing.T) {
	o3 := 31.5
	data, err := json.Marshal(airquality.Result{PM25: 68, O3: &o3, Source: airquality.SourcePurpleAir})
	require.NoError(t, err)
	assert.JSONEq(t, `{"PM2.5": 68, "O3": 31.5}`, string(data))

	data, err = json.Marshal(airquality.Result{PM25: airquality.NoData})
	require.NoError(t, err)
	assert.JSONEq(t, `{"PM2.5": "-", "O3": null}`, string(data))

	var decoded airquality.Result
	require.NoError(t, json.Unmarshal([]byte(`{"PM2.5": "-", "O3": 12}`), &decoded))
	assert.True(t, decoded.PM25.IsNoData())
	require.NotNil(t, decoded.O3)
	assert.Equal(t, 12.0, *decoded.O3)

	require.NoError(t, json.Unmarshal([]byte(`{"PM2.5": 42}`), &decoded))
	assert.Equal(t, airquality.AQI(42), decoded.PM25)

	assert.Error(t, json.Unmarshal([]byte(`{"PM2.5": "high"}`), &decoded))
}
