package ride

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch/internal/pgtest"
	"dispatch/internal/types"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(pgtest.Open(t))

	now := time.Now().UTC().Truncate(time.Microsecond)
	r := &Ride{ID: "r_store", PassengerID: "p1", Status: StatusPending, Pickup: taipei, CreatedAt: now}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.Pickup != taipei || got.DriverID != nil || got.Position != nil {
		t.Fatalf("unexpected ride: %+v", got)
	}

	pending, err := store.ListPending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("list pending: %v (%d rides)", err, len(pending))
	}

	driverID := types.ID("d1")
	ok, err := store.ConditionalUpdate(ctx, r.ID, StatusPending, func(next *Ride) error {
		next.Status = StatusAssigned
		next.DriverID = &driverID
		next.AssignedAt = &now
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("conditional update: ok=%v err=%v", ok, err)
	}

	ok, err = store.ConditionalUpdate(ctx, r.ID, StatusPending, func(next *Ride) error { return nil })
	if err != nil || ok {
		t.Fatalf("expected stale conditional update to fail, ok=%v err=%v", ok, err)
	}

	active, err := store.ActiveByDriver(ctx, driverID)
	if err != nil || active == nil || active.ID != r.ID || active.StatusVersion != 1 {
		t.Fatalf("active by driver: %+v err=%v", active, err)
	}
	none, err := store.ActiveByDriver(ctx, "nobody")
	if err != nil || none != nil {
		t.Fatalf("expected no active ride, got %+v err=%v", none, err)
	}
	has, err := store.HasActiveByPassenger(ctx, "p1")
	if err != nil || !has {
		t.Fatalf("expected passenger to have active ride, err=%v", err)
	}

	if err := store.AppendEvent(ctx, &Event{RideID: r.ID, FromStatus: StatusPending, ToStatus: StatusAssigned, ActorID: &driverID, CreatedAt: now}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := store.Events(ctx, r.ID)
	if err != nil || len(events) != 1 || events[0].ToStatus != StatusAssigned {
		t.Fatalf("events: %+v err=%v", events, err)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreMutatorErrorAbortsUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewStore(pgtest.Open(t))
	r := &Ride{ID: "r_abort", PassengerID: "p1", Status: StatusPending, Pickup: taipei, CreatedAt: time.Now()}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	ok, err := store.ConditionalUpdate(ctx, r.ID, StatusPending, func(next *Ride) error { return boom })
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, ok=%v err=%v", ok, err)
	}
	got, _ := store.Get(ctx, r.ID)
	if got.StatusVersion != 0 {
		t.Fatalf("aborted update bumped version to %d", got.StatusVersion)
	}
}
