package airquality

import (
	"sort"

	"github.com/breatheroute/aqigateway/pkg/geo"
)

// RankedReading pairs a sensor reading with its distance from the query point.
type RankedReading struct {
	Reading    SensorReading
	DistanceKm float64
}

// RankByDistance returns the readings ordered by ascending great-circle
// distance from origin. Readings at equal distance keep their input order.
// The input slice is not modified.
func RankByDistance(origin geo.Coordinate, readings []SensorReading) []RankedReading {
	ranked := make([]RankedReading, 0, len(readings))
	for _, r := range readings {
		ranked = append(ranked, RankedReading{
			Reading:    r,
			DistanceKm: geo.GreatCircleDistanceKm(origin, r.Coordinate()),
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].DistanceKm < ranked[b].DistanceKm
	})

	return ranked
}

// SelectNearest returns the reading closest to origin.
// Returns ErrEmptyResultSet when readings is empty.
func SelectNearest(origin geo.Coordinate, readings []SensorReading) (SensorReading, error) {
	nearest, err := selectNearestRanked(origin, readings)
	if err != nil {
		return SensorReading{}, err
	}
	return nearest.Reading, nil
}

func selectNearestRanked(origin geo.Coordinate, readings []SensorReading) (RankedReading, error) {
	if len(readings) == 0 {
		return RankedReading{}, ErrEmptyResultSet
	}
	return RankByDistance(origin, readings)[0], nil
}
