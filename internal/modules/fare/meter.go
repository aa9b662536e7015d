package fare

import (
	"context"

	"go.uber.org/zap"

	"dispatch/internal/maps"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

// TripMeter measures how far and how long a ride went.
type TripMeter interface {
	Measure(ctx context.Context, r *ride.Ride) (Trip, error)
}

// FixedMeter reports the same trip for every ride.
type FixedMeter struct {
	Trip Trip
}

func (m FixedMeter) Measure(context.Context, *ride.Ride) (Trip, error) {
	return m.Trip, nil
}

// RoutePlanner is satisfied by maps.RouteService.
type RoutePlanner interface {
	DrivingRoute(ctx context.Context, origin, destination types.Point) (maps.Route, error)
}

// RouteMeter measures the driving route from pickup to the last reported
// in-trip position. Rides without a position, or routes the planner cannot
// resolve, fall back to Fallback.
type RouteMeter struct {
	Planner  RoutePlanner
	Fallback TripMeter
	Log      *zap.Logger
}

func (m RouteMeter) Measure(ctx context.Context, r *ride.Ride) (Trip, error) {
	if r.Position == nil {
		return m.Fallback.Measure(ctx, r)
	}
	route, err := m.Planner.DrivingRoute(ctx, r.Pickup, *r.Position)
	if err != nil {
		if m.Log != nil {
			m.Log.Warn("route lookup failed; using fallback meter", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
		return m.Fallback.Measure(ctx, r)
	}
	return Trip{DistanceKm: route.DistanceKm, DurationMin: route.DurationMin}, nil
}
