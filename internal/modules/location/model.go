// README: Location events and the broadcast contract.
package location

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/types"
)

// LocationChanged is broadcast on RideKey(RideID) whenever a started ride moves.
type LocationChanged struct {
	RideID     types.ID    `json:"ride_id"`
	DriverID   types.ID    `json:"driver_id"`
	Coordinate types.Point `json:"coordinate"`
	At         time.Time   `json:"at"`
}

// Publisher delivers events to subscribers of key. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, key string, event LocationChanged) error
}

// RideKey is the broadcast key for a ride's location stream.
func RideKey(rideID types.ID) string {
	return "ride." + string(rideID)
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, key string, event LocationChanged) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, key, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, string, LocationChanged) error { return nil }
