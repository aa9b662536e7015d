// README: Ride service implements intake, lifecycle transitions and the audit trail.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatch/internal/modules/geo"
	"dispatch/internal/types"
)

var (
	ErrNotFound            = errors.New("ride not found")
	ErrInvalidState        = errors.New("ride is not in the required state")
	ErrIllegalTransition   = errors.New("illegal ride transition")
	ErrAlreadyAssigned     = errors.New("ride already assigned")
	ErrNotAssignedToCaller = errors.New("ride is not assigned to caller")
	ErrActiveRide          = errors.New("passenger has an active ride")
	ErrDriverBusy          = errors.New("driver already has an assigned or started ride")
)

// ReasonRejected marks a cancellation caused by a driver declining the request.
const ReasonRejected = "rejected"

type Service struct {
	repo  Repository
	index geo.Index
	log   *zap.Logger
	now   func() time.Time
}

// NewService wires the state machine. index may be nil when pending rides are not searched.
func NewService(repo Repository, index geo.Index, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, index: index, log: log, now: time.Now}
}

type CreateCommand struct {
	Actor  types.Actor
	Pickup types.Point
}

type AcceptCommand struct {
	RideID types.ID
	Actor  types.Actor
}

type RejectCommand struct {
	RideID types.ID
	Actor  types.Actor
}

type StartCommand struct {
	RideID types.ID
	Actor  types.Actor
}

type CompleteCommand struct {
	RideID types.ID
	Actor  types.Actor
}

type TransitionCommand struct {
	RideID types.ID
	To     Status
	Actor  types.Actor
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	if err := cmd.Pickup.Validate(); err != nil {
		return nil, err
	}
	active, err := s.repo.HasActiveByPassenger(ctx, cmd.Actor.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveRide
	}

	now := s.now()
	r := &Ride{
		ID:          types.ID(uuid.NewString()),
		PassengerID: cmd.Actor.ID,
		Status:      StatusPending,
		Pickup:      cmd.Pickup,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, r.ID, StatusNone, StatusPending, cmd.Actor.ID, "", now)
	if s.index != nil {
		if err := s.index.Upsert(ctx, geo.KindPendingRide, r.ID, r.Pickup); err != nil {
			s.log.Warn("index pending ride", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
	}
	return r.Clone(), nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, id)
}

// Accept assigns a pending ride to the calling driver. Exactly one concurrent
// caller wins; the rest observe ErrAlreadyAssigned. A driver already on an
// assigned or started ride gets ErrDriverBusy.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	r, err := s.repo.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if err := acceptable(r.Status); err != nil {
		return nil, err
	}
	busy, err := s.repo.ActiveByDriver(ctx, cmd.Actor.ID)
	if err != nil {
		return nil, err
	}
	if busy != nil {
		return nil, ErrDriverBusy
	}

	now := s.now()
	driverID := cmd.Actor.ID
	var updated *Ride
	ok, err := s.repo.ConditionalUpdate(ctx, r.ID, StatusPending, func(next *Ride) error {
		next.Status = StatusAssigned
		next.DriverID = &driverID
		next.AssignedAt = &now
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.repo.Get(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if err := acceptable(cur.Status); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyAssigned
	}

	s.appendEvent(ctx, r.ID, StatusPending, StatusAssigned, driverID, "", now)
	s.leavePending(ctx, r.ID)
	return updated, nil
}

// Reject declines a pending ride. The ride ends cancelled with reason "rejected".
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) (*Ride, error) {
	if err := requireActor(cmd.Actor); err != nil {
		return nil, err
	}
	r, err := s.repo.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidState
	}

	now := s.now()
	var updated *Ride
	ok, err := s.repo.ConditionalUpdate(ctx, r.ID, StatusPending, func(next *Ride) error {
		next.Status = StatusCancelled
		next.CancelledAt = &now
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	s.appendEvent(ctx, r.ID, StatusPending, StatusCancelled, cmd.Actor.ID, ReasonRejected, now)
	s.leavePending(ctx, r.ID)
	return updated, nil
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Ride, error) {
	return s.advance(ctx, cmd.RideID, cmd.Actor, StatusAssigned, StatusStarted)
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	return s.advance(ctx, cmd.RideID, cmd.Actor, StatusStarted, StatusCompleted)
}

// Transition dispatches to the named operation for the target status after
// checking the pair against AllowedTransitions.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Ride, error) {
	r, err := s.repo.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, cmd.To) {
		if r.Status == cmd.To || (cmd.To == StatusAssigned && r.Status.HasDriver()) {
			return nil, transitionError(r.Status, cmd.To)
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, cmd.To)
	}
	switch cmd.To {
	case StatusAssigned:
		return s.Accept(ctx, AcceptCommand{RideID: cmd.RideID, Actor: cmd.Actor})
	case StatusCancelled:
		return s.Reject(ctx, RejectCommand{RideID: cmd.RideID, Actor: cmd.Actor})
	case StatusStarted:
		return s.Start(ctx, StartCommand{RideID: cmd.RideID, Actor: cmd.Actor})
	case StatusCompleted:
		return s.Complete(ctx, CompleteCommand{RideID: cmd.RideID, Actor: cmd.Actor})
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, cmd.To)
}

// ReindexPending loads every pending ride into the index, e.g. after a restart
// with an in-memory index.
func (s *Service) ReindexPending(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	rides, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range rides {
		if err := s.index.Upsert(ctx, geo.KindPendingRide, r.ID, r.Pickup); err != nil {
			return 0, fmt.Errorf("reindex ride %s: %w", r.ID, err)
		}
	}
	return len(rides), nil
}

// advance moves a driver-owned ride from one status to the next.
func (s *Service) advance(ctx context.Context, id types.ID, actor types.Actor, from, to Status) (*Ride, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.DriverID != nil && !r.AssignedTo(actor.ID) {
		return nil, ErrNotAssignedToCaller
	}
	if r.Status != from {
		return nil, ErrInvalidState
	}

	now := s.now()
	var updated *Ride
	ok, err := s.repo.ConditionalUpdate(ctx, r.ID, from, func(next *Ride) error {
		if !next.AssignedTo(actor.ID) {
			return ErrNotAssignedToCaller
		}
		next.Status = to
		switch to {
		case StatusStarted:
			next.StartedAt = &now
		case StatusCompleted:
			next.CompletedAt = &now
		}
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	s.appendEvent(ctx, r.ID, from, to, actor.ID, "", now)
	if to == StatusCompleted && s.index != nil {
		if err := s.index.Remove(ctx, geo.KindActiveRide, r.ID); err != nil {
			s.log.Warn("evict active ride", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
	}
	return updated, nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorID types.ID, reason string, at time.Time) {
	actor := actorID
	err := s.repo.AppendEvent(ctx, &Event{
		RideID:     id,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    &actor,
		Reason:     reason,
		CreatedAt:  at,
	})
	if err != nil {
		s.log.Warn("append ride event",
			zap.String("ride_id", string(id)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}

func (s *Service) leavePending(ctx context.Context, id types.ID) {
	if s.index == nil {
		return
	}
	if err := s.index.Remove(ctx, geo.KindPendingRide, id); err != nil {
		s.log.Warn("evict pending ride", zap.String("ride_id", string(id)), zap.Error(err))
	}
}

func acceptable(st Status) error {
	switch {
	case st == StatusPending:
		return nil
	case st.HasDriver():
		return ErrAlreadyAssigned
	default:
		return ErrInvalidState
	}
}

// transitionError is the error for re-applying a transition whose target is already reached.
func transitionError(from, to Status) error {
	if to == StatusAssigned && from.HasDriver() {
		return ErrAlreadyAssigned
	}
	return ErrInvalidState
}

func requireActor(a types.Actor) error {
	if a.ID == "" {
		return fmt.Errorf("%w: actor id required", types.ErrValidation)
	}
	return nil
}
