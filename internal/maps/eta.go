// Package maps delegates travel-time estimation to the Google Maps
// Directions API. Routing itself is out of scope here; we only decorate
// the active order with an ETA for the customer tracker.
package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"courierd/internal/types"
)

// Estimator answers "how far out is the driver"; injected into the HTTP
// layer so tests can stub it.
type Estimator interface {
	TravelEstimate(ctx context.Context, origin, destination types.Point) (Estimate, error)
}

// Estimate is the driving leg between two points.
type Estimate struct {
	Duration time.Duration
	Distance string // human-readable, e.g. "4.2 km"
}

// RouteService handles interactions with the Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// TravelEstimate returns duration and distance for a driving trip from
// origin to destination.
func (s *RouteService) TravelEstimate(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return Estimate{Duration: leg.Duration, Distance: leg.Distance.HumanReadable}, nil
}
