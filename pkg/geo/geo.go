// Package geo provides the coordinate math used to query sensors near a point:
// degree/radian conversion, haversine distance and bounding boxes.
package geo

import (
	"fmt"
	"math"
)

const (
	// DistanceEarthRadiusKm is the Earth radius used for haversine distances.
	DistanceEarthRadiusKm = 6367.0

	// BoundingBoxEarthRadiusKm is the Earth radius used to size bounding boxes.
	// It differs from DistanceEarthRadiusKm; both values match deployed queries.
	BoundingBoxEarthRadiusKm = 6371.0
)

// Coordinate represents a geographic point in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinate lies within [-90,90] x [-180,180].
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lon)
}

// BoundingBox is a rectangular lat/lon region.
type BoundingBox struct {
	West  float64
	East  float64
	North float64
	South float64
}

// Valid reports whether all edges are finite, West < East, South < North and
// the box spans less than the full circle of longitude.
// Boxes centred close to a pole are not valid.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.West, b.East, b.North, b.South} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.West < b.East && b.South < b.North && b.East-b.West < 360
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lon >= b.West && c.Lon <= b.East && c.Lat >= b.South && c.Lat <= b.North
}

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// GreatCircleDistanceKm returns the haversine distance between a and b in
// kilometers.
func GreatCircleDistanceKm(a, b Coordinate) float64 {
	dLat := ToRadians(b.Lat - a.Lat)
	dLon := ToRadians(b.Lon - a.Lon)
	lat1 := ToRadians(a.Lat)
	lat2 := ToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return DistanceEarthRadiusKm * c
}

// NewBoundingBox returns the box extending radiusKm from center in each
// cardinal direction.
func NewBoundingBox(center Coordinate, radiusKm float64) BoundingBox {
	width := ToDegrees(radiusKm / BoundingBoxEarthRadiusKm / math.Cos(ToRadians(center.Lat)))
	height := ToDegrees(radiusKm / BoundingBoxEarthRadiusKm)

	return BoundingBox{
		West:  center.Lon - width,
		East:  center.Lon + width,
		North: center.Lat + height,
		South: center.Lat - height,
	}
}
