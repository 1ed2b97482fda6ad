// README: Geo math and the straight-line ETA fallback.
package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	"courierd/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// HaversineEstimator approximates travel time from straight-line distance
// at a fixed urban average speed. It stands in when no routing API key is
// configured; the estimate has no traffic awareness.
type HaversineEstimator struct {
	// SpeedKmh defaults to 25 km/h, a loaded two-wheeler in city traffic.
	SpeedKmh float64
}

func (e HaversineEstimator) TravelEstimate(_ context.Context, origin, destination types.Point) (Estimate, error) {
	speed := e.SpeedKmh
	if speed <= 0 {
		speed = 25
	}
	km := HaversineKm(origin, destination)
	return Estimate{
		Duration: time.Duration(km / speed * float64(time.Hour)),
		Distance: fmt.Sprintf("%.1f km", km),
	}, nil
}
