// README: Fare service prices completed rides.
package fare

import (
	"context"
	"errors"

	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

var ErrRideNotCompleted = errors.New("ride is not completed")

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Service struct {
	rides RideReader
	meter TripMeter
	rates RateSource
}

func NewService(rides RideReader, meter TripMeter, rates RateSource) *Service {
	return &Service{rides: rides, meter: meter, rates: rates}
}

func (s *Service) FareForRide(ctx context.Context, rideID types.ID) (Fare, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return Fare{}, err
	}
	if r.Status != ride.StatusCompleted {
		return Fare{}, ErrRideNotCompleted
	}
	trip, err := s.meter.Measure(ctx, r)
	if err != nil {
		return Fare{}, err
	}
	rates, err := s.rates.Rates(ctx)
	if err != nil {
		return Fare{}, err
	}
	f, err := NewCalculator(rates).Quote(trip.DistanceKm, trip.DurationMin)
	if err != nil {
		return Fare{}, err
	}
	f.RideID = r.ID
	return f, nil
}
