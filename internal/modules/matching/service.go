// README: Matching service finds pending rides near a driver; it never mutates rides.
package matching

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"dispatch/internal/config"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/geo"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

var (
	ErrLocationUnavailable = errors.New("driver location unavailable")
	ErrNoMatchFound        = errors.New("no pending ride nearby")
)

type DriverLocator interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error)
}

type Service struct {
	drivers DriverLocator
	rides   RideReader
	index   geo.Index
	policy  Policy
	radius  float64
	log     *zap.Logger
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(drivers DriverLocator, rides RideReader, index geo.Index, cfg config.MatchingConfig, opts ...Option) *Service {
	s := &Service{
		drivers: drivers,
		rides:   rides,
		index:   index,
		policy:  NearestFirst{},
		radius:  cfg.RadiusMeters,
		log:     zap.NewNop(),
	}
	if s.radius <= 0 {
		s.radius = config.DefaultMatchRadiusMeters
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchForDriver returns the ride the policy selects among pending rides within radius.
func (s *Service) MatchForDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error) {
	cands, err := s.Candidates(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, ErrNoMatchFound
	}
	return s.policy.Select(cands).Ride, nil
}

// Candidates lists pending rides within radius of the driver, nearest first.
// Index entries whose ride is gone or no longer pending are evicted. A driver
// already on an assigned or started ride gets ride.ErrDriverBusy.
func (s *Service) Candidates(ctx context.Context, driverID types.ID) ([]Candidate, error) {
	busy, err := s.rides.ActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if busy != nil {
		return nil, ride.ErrDriverBusy
	}
	origin, err := s.locate(ctx, driverID)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Nearby(ctx, geo.KindPendingRide, origin, s.radius, nil)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		r, err := s.rides.Get(ctx, h.ID)
		if errors.Is(err, ride.ErrNotFound) {
			s.evict(ctx, h.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.Status != ride.StatusPending {
			s.evict(ctx, h.ID)
			continue
		}
		d := types.DistanceMeters(origin, r.Pickup)
		if d > s.radius {
			continue
		}
		cands = append(cands, Candidate{Ride: r, DistanceMeters: d})
	}
	sortCandidates(cands)
	return cands, nil
}

func (s *Service) locate(ctx context.Context, driverID types.ID) (types.Point, error) {
	d, err := s.drivers.Get(ctx, driverID)
	if errors.Is(err, driver.ErrNotFound) {
		return types.Point{}, ErrLocationUnavailable
	}
	if err != nil {
		return types.Point{}, err
	}
	if d.Position == nil {
		return types.Point{}, ErrLocationUnavailable
	}
	return *d.Position, nil
}

func (s *Service) evict(ctx context.Context, id types.ID) {
	if err := s.index.Remove(ctx, geo.KindPendingRide, id); err != nil {
		s.log.Warn("evict stale pending ride", zap.String("ride_id", string(id)), zap.Error(err))
	}
}
