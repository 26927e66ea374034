package airquality_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/pkg/geo"
)

// kmNorth returns a reading roughly km kilometers north of origin.
func kmNorth(origin geo.Coordinate, km float64, index int) airquality.SensorReading {
	degrees := geo.ToDegrees(km / geo.DistanceEarthRadiusKm)
	return airquality.SensorReading{
		SensorIndex: index,
		Lat:         origin.Lat + degrees,
		Lon:         origin.Lon,
		PM25Raw:     float64(index),
		Humidity:    40,
	}
}

func TestSelectNearest_PicksClosest(t *testing.T) {
	origin := geo.Coordinate{Lat: 34.05, Lon: -118.25}
	readings := []airquality.SensorReading{
		kmNorth(origin, 50, 1),
		kmNorth(origin, 5, 2),
		kmNorth(origin, 20, 3),
	}

	nearest, err := airquality.SelectNearest(origin, readings)
	require.NoError(t, err)
	assert.Equal(t, 2, nearest.SensorIndex)

	// Input order is untouched
	assert.Equal(t, 1, readings[0].SensorIndex)
}

func TestSelectNearest_Empty(t *testing.T) {
	_, err := airquality.SelectNearest(geo.Coordinate{Lat: 1, Lon: 1}, nil)
	assert.ErrorIs(t, err, airquality.ErrEmptyResultSet)

	_, err = airquality.SelectNearest(geo.Coordinate{Lat: 1, Lon: 1}, []airquality.SensorReading{})
	assert.ErrorIs(t, err, airquality.ErrEmptyResultSet)
}

func TestSelectNearest_TiesKeepInputOrder(t *testing.T) {
	origin := geo.Coordinate{Lat: 10, Lon: 10}
	readings := []airquality.SensorReading{
		{SensorIndex: 7, Lat: 10.1, Lon: 10},
		{SensorIndex: 8, Lat: 10.1, Lon: 10},
		{SensorIndex: 9, Lat: 10.1, Lon: 10},
	}

	nearest, err := airquality.SelectNearest(origin, readings)
	require.NoError(t, err)
	assert.Equal(t, 7, nearest.SensorIndex)
}

func TestRankByDistance(t *testing.T) {
	origin := geo.Coordinate{Lat: 52.37, Lon: 4.89}
	readings := []airquality.SensorReading{
		kmNorth(origin, 8, 1),
		kmNorth(origin, 0, 2),
		kmNorth(origin, 3, 3),
	}

	ranked := airquality.RankByDistance(origin, readings)
	require.Len(t, ranked, 3)

	assert.Equal(t, 2, ranked[0].Reading.SensorIndex)
	assert.Equal(t, 3, ranked[1].Reading.SensorIndex)
	assert.Equal(t, 1, ranked[2].Reading.SensorIndex)

	assert.Equal(t, 0.0, ranked[0].DistanceKm)
	assert.InDelta(t, 3, ranked[1].DistanceKm, 0.001)
	assert.InDelta(t, 8, ranked[2].DistanceKm, 0.001)
}
