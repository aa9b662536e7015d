// README: Persistence contract for rides; implemented by Store (Postgres) and MemoryStore.
package ride

import (
	"context"

	"dispatch/internal/types"
)

// Mutator edits a ride inside a conditional update. Returning an error aborts
// the update and the error is passed back to the caller.
type Mutator func(r *Ride) error

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Ride, error)
	// Create returns ErrActiveRide if the passenger already has a pending,
	// assigned or started ride.
	Create(ctx context.Context, r *Ride) error
	// ConditionalUpdate applies mutate and persists the result only if the stored
	// status still equals expected. It reports false when that precondition fails.
	ConditionalUpdate(ctx context.Context, id types.ID, expected Status, mutate Mutator) (bool, error)
	// ActiveByDriver returns the driver's assigned or started ride, or nil if none.
	// A driver holds at most one: ConditionalUpdate returns ErrDriverBusy for an
	// update that would give a driver a second one.
	ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error)
	HasActiveByPassenger(ctx context.Context, passengerID types.ID) (bool, error)
	ListPending(ctx context.Context) ([]*Ride, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, rideID types.ID) ([]Event, error)
}
