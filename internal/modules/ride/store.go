// README: Ride store backed by PostgreSQL. Writes name their columns; status changes are CAS-gated.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/types"
)

const (
	// passengerActiveIndex enforces one pending, assigned or started ride per passenger.
	passengerActiveIndex = "rides_passenger_active_idx"
	// driverActiveIndex enforces one assigned or started ride per driver.
	driverActiveIndex = "rides_driver_active_idx"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `id, passenger_id, driver_id, status, status_version,
	pickup_lat, pickup_lng, position_lat, position_lng,
	created_at, assigned_at, started_at, completed_at, cancelled_at`

func (s *Store) Create(ctx context.Context, r *Ride) error {
	lat, lng := splitPoint(r.Position)
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(r.ID),
		string(r.PassengerID),
		toStringPtr(r.DriverID),
		string(r.Status),
		r.StatusVersion,
		r.Pickup.Lat, r.Pickup.Lng,
		lat, lng,
		r.CreatedAt, r.AssignedAt, r.StartedAt, r.CompletedAt, r.CancelledAt,
	)
	if uniqueViolation(err, passengerActiveIndex) {
		return ErrActiveRide
	}
	if uniqueViolation(err, driverActiveIndex) {
		return ErrDriverBusy
	}
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return r, nil
}

// ConditionalUpdate retries for as long as the row stays in the expected
// status; a lost race against a same-status write (an in-trip position
// update) is not a failed transition. ctx bounds the loop.
func (s *Store) ConditionalUpdate(ctx context.Context, id types.ID, expected Status, mutate Mutator) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		cur, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if cur.Status != expected {
			return false, nil
		}
		next := cur.Clone()
		next.StatusVersion++
		if err := mutate(next); err != nil {
			return false, err
		}
		lat, lng := splitPoint(next.Position)
		tag, err := s.db.Exec(ctx, `
			UPDATE rides
			SET status = $1,
			    status_version = $2,
			    driver_id = $3,
			    position_lat = $4,
			    position_lng = $5,
			    assigned_at = $6,
			    started_at = $7,
			    completed_at = $8,
			    cancelled_at = $9
			WHERE id = $10 AND status = $11 AND status_version = $12`,
			string(next.Status),
			next.StatusVersion,
			toStringPtr(next.DriverID),
			lat, lng,
			next.AssignedAt, next.StartedAt, next.CompletedAt, next.CancelledAt,
			string(id),
			string(expected),
			cur.StatusVersion,
		)
		if uniqueViolation(err, driverActiveIndex) {
			return false, ErrDriverBusy
		}
		if err != nil {
			return false, fmt.Errorf("update ride: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return true, nil
		}
	}
}

func (s *Store) ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE driver_id = $1 AND status IN ('assigned', 'started')`, string(driverID),
	)
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active ride by driver: %w", err)
	}
	return r, nil
}

func (s *Store) HasActiveByPassenger(ctx context.Context, passengerID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE passenger_id = $1
			  AND status IN ('pending', 'assigned', 'started')
		)`, string(passengerID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("active ride by passenger: %w", err)
	}
	return exists, nil
}

func (s *Store) ListPending(ctx context.Context) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rideColumns+` FROM rides WHERE status = 'pending' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending rides: %w", err)
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending ride: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		toStringPtr(e.ActorID),
		e.Reason,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ride event: %w", err)
	}
	return nil
}

func (s *Store) Events(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_id, reason, created_at
		FROM ride_state_events
		WHERE ride_id = $1
		ORDER BY id`, string(rideID),
	)
	if err != nil {
		return nil, fmt.Errorf("list ride events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e             Event
			rid, from, to string
			actorID       *string
		)
		if err := rows.Scan(&e.ID, &rid, &from, &to, &actorID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ride event: %w", err)
		}
		e.RideID = types.ID(rid)
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		e.ActorID = fromStringPtr(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var (
		r                    Ride
		id, passenger, state string
		driverID             *string
		posLat, posLng       *float64
		assignedAt           *time.Time
		startedAt            *time.Time
		completedAt          *time.Time
		cancelledAt          *time.Time
	)
	err := row.Scan(
		&id, &passenger, &driverID, &state, &r.StatusVersion,
		&r.Pickup.Lat, &r.Pickup.Lng, &posLat, &posLng,
		&r.CreatedAt, &assignedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.PassengerID = types.ID(passenger)
	r.Status = Status(state)
	r.DriverID = fromStringPtr(driverID)
	if posLat != nil && posLng != nil {
		r.Position = &types.Point{Lat: *posLat, Lng: *posLng}
	}
	r.AssignedAt = assignedAt
	r.StartedAt = startedAt
	r.CompletedAt = completedAt
	r.CancelledAt = cancelledAt
	return &r, nil
}

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func splitPoint(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func fromStringPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
