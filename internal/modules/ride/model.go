// README: Ride aggregate, status definitions and the transition table.
package ride

import (
	"time"

	"dispatch/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCancelled Status = "cancelled"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
)

type Ride struct {
	ID            types.ID     `json:"id"`
	PassengerID   types.ID     `json:"passenger_id"`
	DriverID      *types.ID    `json:"driver_id,omitempty"`
	Status        Status       `json:"status"`
	StatusVersion int          `json:"status_version"`
	Pickup        types.Point  `json:"pickup"`
	Position      *types.Point `json:"position,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	AssignedAt    *time.Time   `json:"assigned_at,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
}

// Event is one row of the ride audit trail.
type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AllowedTransitions is the ride lifecycle as code. Cancelled and Completed are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusStarted},
	StatusStarted:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// HasDriver reports whether status requires a driver reference.
func (s Status) HasDriver() bool {
	return s == StatusAssigned || s == StatusStarted || s == StatusCompleted
}

// Active reports whether the ride occupies its driver.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusStarted
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusCancelled, StatusStarted, StatusCompleted:
		return true
	}
	return false
}

// AssignedTo reports whether driverID is the ride's driver.
func (r *Ride) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	if r.DriverID != nil {
		d := *r.DriverID
		c.DriverID = &d
	}
	if r.Position != nil {
		p := *r.Position
		c.Position = &p
	}
	c.AssignedAt = cloneTime(r.AssignedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
