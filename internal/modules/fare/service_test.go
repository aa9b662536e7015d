package fare

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch/internal/maps"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

var pickup = types.Point{Lat: 25.033, Lng: 121.565}

func storeRide(t *testing.T, store *ride.MemoryStore, id types.ID, status ride.Status, pos *types.Point) {
	t.Helper()
	r := &ride.Ride{ID: id, PassengerID: "p1", Status: status, Pickup: pickup, Position: pos, CreatedAt: time.Now()}
	if status.HasDriver() {
		d := types.ID("d1")
		r.DriverID = &d
	}
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatalf("create ride: %v", err)
	}
}

func TestFareForRide(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemoryStore()
	storeRide(t, store, "done", ride.StatusCompleted, nil)
	storeRide(t, store, "driving", ride.StatusStarted, nil)

	svc := NewService(store, FixedMeter{Trip: Trip{DistanceKm: 10, DurationMin: 15}}, StaticRates(defaultRates(t)))

	f, err := svc.FareForRide(ctx, "done")
	if err != nil {
		t.Fatalf("fare: %v", err)
	}
	if f.RideID != "done" || f.Total.Amount.StringFixed(2) != "27.50" || f.Total.Currency != "USD" {
		t.Fatalf("unexpected fare: %+v", f)
	}
	if f.DistanceKm != 10 || f.DurationMin != 15 {
		t.Fatalf("unexpected trip: %v km %v min", f.DistanceKm, f.DurationMin)
	}

	if _, err := svc.FareForRide(ctx, "driving"); !errors.Is(err, ErrRideNotCompleted) {
		t.Fatalf("expected ErrRideNotCompleted, got %v", err)
	}
	if _, err := svc.FareForRide(ctx, "missing"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected ride.ErrNotFound, got %v", err)
	}
}

type stubPlanner struct {
	route maps.Route
	err   error
	calls int
}

func (p *stubPlanner) DrivingRoute(_ context.Context, _, _ types.Point) (maps.Route, error) {
	p.calls++
	return p.route, p.err
}

func TestRouteMeter(t *testing.T) {
	ctx := context.Background()
	fallback := FixedMeter{Trip: Trip{DistanceKm: 10, DurationMin: 15}}
	planner := &stubPlanner{route: maps.Route{DistanceKm: 4, DurationMin: 12}}
	meter := RouteMeter{Planner: planner, Fallback: fallback}

	pos := types.Point{Lat: 25.0478, Lng: 121.5318}
	trip, err := meter.Measure(ctx, &ride.Ride{ID: "r1", Pickup: pickup, Position: &pos})
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if trip.DistanceKm != 4 || trip.DurationMin != 12 {
		t.Fatalf("expected planner trip, got %+v", trip)
	}

	trip, _ = meter.Measure(ctx, &ride.Ride{ID: "r2", Pickup: pickup})
	if trip != fallback.Trip || planner.calls != 1 {
		t.Fatalf("expected fallback without position, got %+v calls=%d", trip, planner.calls)
	}

	planner.err = errors.New("quota exceeded")
	trip, _ = meter.Measure(ctx, &ride.Ride{ID: "r3", Pickup: pickup, Position: &pos})
	if trip != fallback.Trip {
		t.Fatalf("expected fallback on planner error, got %+v", trip)
	}
}
