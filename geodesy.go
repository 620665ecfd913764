package kmlsummary

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
// orb.EarthRadius is the equatorial radius and gives different totals.
const EarthRadiusMeters = 6371000.0

// Distance returns the haversine distance in meters between two
// (longitude, latitude) points given in degrees. NaN and Inf inputs propagate.
func Distance(a, b orb.Point) float64 {
	lat1 := degreesToRadians(a.Lat())
	lat2 := degreesToRadians(b.Lat())
	deltaLat := degreesToRadians(b.Lat() - a.Lat())
	deltaLon := degreesToRadians(b.Lon() - a.Lon())

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathLength sums Distance over each consecutive pair of the line.
// Lines with fewer than two points have zero length.
func PathLength(line orb.LineString) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += Distance(line[i-1], line[i])
	}
	return total
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
