// README: Location service records driver and in-trip positions and broadcasts ride movement.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/geo"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

var ErrRideNotActive = errors.New("ride is not started")

// RideStore is the part of ride.Repository the location service needs.
type RideStore interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ConditionalUpdate(ctx context.Context, id types.ID, expected ride.Status, mutate ride.Mutator) (bool, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error)
}

type Service struct {
	drivers driver.Repository
	rides   RideStore
	index   geo.Index
	pub     Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewService(drivers driver.Repository, rides RideStore, index geo.Index, pub Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{drivers: drivers, rides: rides, index: index, pub: pub, log: log, now: time.Now}
}

type RideLocationCommand struct {
	RideID types.ID
	Actor  types.Actor
	Point  types.Point
}

// ReportDriverLocation stores the driver's position and, while the driver is
// on a started ride, broadcasts it to that ride's subscribers.
func (s *Service) ReportDriverLocation(ctx context.Context, driverID types.ID, p types.Point) error {
	if driverID == "" {
		return fmt.Errorf("%w: driver id required", types.ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now()
	if err := s.drivers.SavePosition(ctx, driverID, p, now); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, geo.KindDriver, driverID, p); err != nil {
		return err
	}

	r, err := s.rides.ActiveByDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if r != nil && r.Status == ride.StatusStarted {
		s.publish(ctx, LocationChanged{RideID: r.ID, DriverID: driverID, Coordinate: p, At: now})
	}
	return nil
}

// ReportRideLocation records the in-trip position of a started ride owned by the actor.
func (s *Service) ReportRideLocation(ctx context.Context, cmd RideLocationCommand) (*ride.Ride, error) {
	if cmd.Actor.ID == "" {
		return nil, fmt.Errorf("%w: actor id required", types.ErrValidation)
	}
	if err := cmd.Point.Validate(); err != nil {
		return nil, err
	}
	r, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Status != ride.StatusStarted {
		return nil, ErrRideNotActive
	}
	if !r.AssignedTo(cmd.Actor.ID) {
		return nil, ride.ErrNotAssignedToCaller
	}

	p := cmd.Point
	var updated *ride.Ride
	ok, err := s.rides.ConditionalUpdate(ctx, r.ID, ride.StatusStarted, func(next *ride.Ride) error {
		if !next.AssignedTo(cmd.Actor.ID) {
			return ride.ErrNotAssignedToCaller
		}
		next.Position = &p
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRideNotActive
	}

	if err := s.index.Upsert(ctx, geo.KindActiveRide, r.ID, p); err != nil {
		s.log.Warn("index active ride", zap.String("ride_id", string(r.ID)), zap.Error(err))
	}
	s.publish(ctx, LocationChanged{RideID: r.ID, DriverID: cmd.Actor.ID, Coordinate: p, At: s.now()})
	return updated, nil
}

// NearbyDrivers lists drivers within radius of center that have no assigned or started ride.
func (s *Service) NearbyDrivers(ctx context.Context, center types.Point, radiusMeters float64) ([]geo.Hit, error) {
	var lookupErr error
	hits, err := s.index.Nearby(ctx, geo.KindDriver, center, radiusMeters, func(id types.ID) bool {
		if lookupErr != nil {
			return false
		}
		r, err := s.rides.ActiveByDriver(ctx, id)
		if err != nil {
			lookupErr = err
			return false
		}
		return r == nil
	})
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, lookupErr
	}
	return hits, nil
}

func (s *Service) publish(ctx context.Context, ev LocationChanged) {
	if err := s.pub.Publish(ctx, RideKey(ev.RideID), ev); err != nil {
		s.log.Warn("publish location",
			zap.String("ride_id", string(ev.RideID)),
			zap.String("driver_id", string(ev.DriverID)),
			zap.Error(err),
		)
	}
}
