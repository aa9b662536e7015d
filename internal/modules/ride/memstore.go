// README: In-memory ride repository with per-row locking; used for local runs and tests.
package ride

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"dispatch/internal/types"
)

type memRow struct {
	mu   sync.Mutex
	ride *Ride
}

type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[types.ID]*memRow
	events map[types.ID][]Event
	nextEv int64

	// driverMu guards busy and is never held while taking another lock.
	driverMu sync.Mutex
	busy     map[types.ID]types.ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[types.ID]*memRow),
		events: make(map[types.ID][]Event),
		busy:   make(map[types.ID]types.ID),
	}
}

func (s *MemoryStore) row(id types.ID) (*memRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	return r, ok
}

func (s *MemoryStore) Create(ctx context.Context, r *Ride) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[r.ID]; exists {
		return fmt.Errorf("insert ride %s: duplicate id", r.ID)
	}
	if r.Status == StatusPending || r.Status.Active() {
		for _, row := range s.rows {
			row.mu.Lock()
			busy := row.ride.PassengerID == r.PassengerID && (row.ride.Status == StatusPending || row.ride.Status.Active())
			row.mu.Unlock()
			if busy {
				return ErrActiveRide
			}
		}
	}
	if err := s.claimDriver(&Ride{ID: r.ID}, r); err != nil {
		return err
	}
	s.rows[r.ID] = &memRow{ride: r.Clone()}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := s.row(id)
	if !ok {
		return nil, ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.ride.Clone(), nil
}

func (s *MemoryStore) ConditionalUpdate(ctx context.Context, id types.ID, expected Status, mutate Mutator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	row, ok := s.row(id)
	if !ok {
		return false, ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.ride.Status != expected {
		return false, nil
	}
	next := row.ride.Clone()
	next.StatusVersion++
	if err := mutate(next); err != nil {
		return false, err
	}
	if err := s.claimDriver(row.ride, next); err != nil {
		return false, err
	}
	row.ride = next
	return true, nil
}

func (s *MemoryStore) ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.driverMu.Lock()
	id, ok := s.busy[driverID]
	s.driverMu.Unlock()
	if !ok {
		return nil, nil
	}
	r, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !r.Status.Active() || !r.AssignedTo(driverID) {
		return nil, nil
	}
	return r, nil
}

// claimDriver moves the driver claim from prev to next, failing with
// ErrDriverBusy if next's driver already holds another active ride.
func (s *MemoryStore) claimDriver(prev, next *Ride) error {
	from, to := activeDriver(prev), activeDriver(next)
	if from == to {
		return nil
	}
	s.driverMu.Lock()
	defer s.driverMu.Unlock()
	if to != "" {
		if holder, ok := s.busy[to]; ok && holder != next.ID {
			return ErrDriverBusy
		}
		s.busy[to] = next.ID
	}
	if from != "" && s.busy[from] == prev.ID {
		delete(s.busy, from)
	}
	return nil
}

func activeDriver(r *Ride) types.ID {
	if r.DriverID == nil || !r.Status.Active() {
		return ""
	}
	return *r.DriverID
}

func (s *MemoryStore) HasActiveByPassenger(ctx context.Context, passengerID types.ID) (bool, error) {
	for _, r := range s.snapshot() {
		if r.PassengerID == passengerID && (r.Status == StatusPending || r.Status.Active()) {
			return true, nil
		}
	}
	return false, ctx.Err()
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]*Ride, error) {
	var out []*Ride
	for _, r := range s.snapshot() {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, ctx.Err()
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEv++
	ev := *e
	ev.ID = s.nextEv
	s.events[e.RideID] = append(s.events[e.RideID], ev)
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, rideID types.ID) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events[rideID]))
	copy(out, s.events[rideID])
	return out, nil
}

func (s *MemoryStore) snapshot() []*Ride {
	s.mu.RLock()
	rows := make([]*memRow, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.RUnlock()

	out := make([]*Ride, 0, len(rows))
	for _, row := range rows {
		row.mu.Lock()
		out = append(out, row.ride.Clone())
		row.mu.Unlock()
	}
	return out
}
