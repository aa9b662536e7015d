package maps

import (
	"context"
	"fmt"
	"strconv"

	"googlemaps.github.io/maps"

	"dispatch/internal/types"
)

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService with the given API key. Extra client
// options (e.g. maps.WithBaseURL in tests) are appended.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route is the driving distance and time of the first leg of the best route.
type Route struct {
	DistanceKm  float64
	DurationMin float64
}

// DrivingRoute returns the driving route between two coordinates.
func (s *RouteService) DrivingRoute(ctx context.Context, origin, destination types.Point) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return Route{
		DistanceKm:  float64(leg.Distance.Meters) / 1000,
		DurationMin: leg.Duration.Minutes(),
	}, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
