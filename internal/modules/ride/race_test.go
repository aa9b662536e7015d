// README: Concurrency tests for ride transitions (run with -race).
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"dispatch/internal/pgtest"
	"dispatch/internal/types"
)

func TestConcurrentAcceptSameRideMemory(t *testing.T) {
	runConcurrentAccept(t, NewMemoryStore())
}

func TestConcurrentAcceptSameRidePostgres(t *testing.T) {
	runConcurrentAccept(t, NewStore(pgtest.Open(t)))
}

func TestConcurrentAcceptVsRejectMemory(t *testing.T) {
	runAcceptVsReject(t, NewMemoryStore())
}

func TestConcurrentAcceptVsRejectPostgres(t *testing.T) {
	runAcceptVsReject(t, NewStore(pgtest.Open(t)))
}

func runConcurrentAccept(t *testing.T, repo Repository) {
	ctx := context.Background()
	svc := NewService(repo, nil, nil)
	r, err := svc.Create(ctx, CreateCommand{Actor: types.Actor{ID: "p_multi_accept"}, Pickup: taipei})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, attempts)
	winners := make(chan types.ID, attempts)

	for i := 0; i < attempts; i++ {
		actor := types.Actor{ID: types.ID(fmt.Sprintf("d%d", i)), Role: types.RoleDriver}
		wg.Add(1)
		go func(a types.Actor) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, AcceptCommand{RideID: r.ID, Actor: a})
			if err == nil {
				winners <- a.ID
			}
			errs <- err
		}(actor)
	}
	close(start)
	wg.Wait()
	close(errs)
	close(winners)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyAssigned) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	winner := <-winners
	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusAssigned || !got.AssignedTo(winner) {
		t.Fatalf("expected ride assigned to %s, got %+v", winner, got)
	}
	events, err := svc.Events(ctx, r.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	assigned := 0
	for _, e := range events {
		if e.ToStatus == StatusAssigned {
			assigned++
		}
	}
	if assigned != 1 {
		t.Fatalf("expected 1 assigned event, got %d", assigned)
	}
}

func runAcceptVsReject(t *testing.T, repo Repository) {
	ctx := context.Background()
	svc := NewService(repo, nil, nil)
	r, err := svc.Create(ctx, CreateCommand{Actor: types.Actor{ID: "p_accept_reject"}, Pickup: taipei})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	var acceptErr, rejectErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, acceptErr = svc.Accept(ctx, AcceptCommand{RideID: r.ID, Actor: driverA})
	}()
	go func() {
		defer wg.Done()
		<-start
		_, rejectErr = svc.Reject(ctx, RejectCommand{RideID: r.ID, Actor: driverB})
	}()
	close(start)
	wg.Wait()

	if (acceptErr == nil) == (rejectErr == nil) {
		t.Fatalf("expected exactly one winner, accept=%v reject=%v", acceptErr, rejectErr)
	}
	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if acceptErr == nil {
		if got.Status != StatusAssigned || !errors.Is(rejectErr, ErrInvalidState) {
			t.Fatalf("accept won but status=%s reject=%v", got.Status, rejectErr)
		}
		return
	}
	if got.Status != StatusCancelled || !errors.Is(acceptErr, ErrInvalidState) {
		t.Fatalf("reject won but status=%s accept=%v", got.Status, acceptErr)
	}
}

func TestConcurrentCreateSamePassengerMemory(t *testing.T) {
	runConcurrentCreate(t, NewMemoryStore())
}

func TestConcurrentCreateSamePassengerPostgres(t *testing.T) {
	runConcurrentCreate(t, NewStore(pgtest.Open(t)))
}

func runConcurrentCreate(t *testing.T, repo Repository) {
	ctx := context.Background()
	svc := NewService(repo, nil, nil)
	passenger := types.Actor{ID: "p_multi_create", Role: types.RolePassenger}

	const attempts = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Create(ctx, CreateCommand{Actor: passenger, Pickup: taipei})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrActiveRide) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 ride created, got %d", success)
	}
}

func TestConcurrentAcceptSameDriverMemory(t *testing.T) {
	runSameDriverAccept(t, NewMemoryStore())
}

func TestConcurrentAcceptSameDriverPostgres(t *testing.T) {
	runSameDriverAccept(t, NewStore(pgtest.Open(t)))
}

func TestCompleteDuringPositionUpdatesMemory(t *testing.T) {
	runCompleteDuringPositionUpdates(t, NewMemoryStore())
}

func TestCompleteDuringPositionUpdatesPostgres(t *testing.T) {
	runCompleteDuringPositionUpdates(t, NewStore(pgtest.Open(t)))
}

// runSameDriverAccept has one driver accept several pending rides at once;
// only one may end up assigned to them.
func runSameDriverAccept(t *testing.T, repo Repository) {
	ctx := context.Background()
	svc := NewService(repo, nil, nil)

	const rides = 6
	ids := make([]types.ID, 0, rides)
	for i := 0; i < rides; i++ {
		r, err := svc.Create(ctx, CreateCommand{Actor: types.Actor{ID: types.ID(fmt.Sprintf("p_busy_%d", i))}, Pickup: taipei})
		if err != nil {
			t.Fatalf("create ride: %v", err)
		}
		ids = append(ids, r.ID)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, rides)
	for _, id := range ids {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, AcceptCommand{RideID: id, Actor: driverA})
			errs <- err
		}(id)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrDriverBusy) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 accepted ride, got %d", success)
	}

	assigned := 0
	for _, id := range ids {
		r, err := svc.Get(ctx, id)
		if err != nil {
			t.Fatalf("get ride: %v", err)
		}
		switch r.Status {
		case StatusAssigned:
			assigned++
		case StatusPending:
		default:
			t.Fatalf("unexpected status %s for %s", r.Status, id)
		}
	}
	if assigned != 1 {
		t.Fatalf("expected 1 assigned ride, got %d", assigned)
	}
	active, err := repo.ActiveByDriver(ctx, driverA.ID)
	if err != nil || active == nil || active.Status != StatusAssigned {
		t.Fatalf("expected the assigned ride from ActiveByDriver, got %+v err=%v", active, err)
	}
}

// runCompleteDuringPositionUpdates completes a started ride while position
// writes keep bumping its version; Complete must not lose to them.
func runCompleteDuringPositionUpdates(t *testing.T, repo Repository) {
	ctx := context.Background()
	svc := NewService(repo, nil, nil)
	r, err := svc.Create(ctx, CreateCommand{Actor: types.Actor{ID: "p_position_storm"}, Pickup: taipei})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	mustAdvance(t, svc, r.ID, driverA, StatusStarted)

	const writers = 8
	const writesEach = 25
	var wg sync.WaitGroup
	start := make(chan struct{})
	writeErrs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for j := 0; j < writesEach; j++ {
				p := types.Point{Lat: taipei.Lat + float64(i*writesEach+j)*1e-6, Lng: taipei.Lng}
				ok, err := repo.ConditionalUpdate(ctx, r.ID, StatusStarted, func(next *Ride) error {
					next.Position = &p
					return nil
				})
				if err != nil {
					writeErrs <- err
					return
				}
				if !ok {
					// The ride left started; every later write sees the same.
					return
				}
			}
		}(i)
	}

	var completeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, completeErr = svc.Complete(ctx, CompleteCommand{RideID: r.ID, Actor: driverA})
	}()
	close(start)
	wg.Wait()
	close(writeErrs)

	for err := range writeErrs {
		t.Fatalf("position update: %v", err)
	}
	if completeErr != nil {
		t.Fatalf("complete lost to position updates: %v", completeErr)
	}
	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if active, err := repo.ActiveByDriver(ctx, driverA.ID); err != nil || active != nil {
		t.Fatalf("expected no active ride after completion, got %+v err=%v", active, err)
	}
}
