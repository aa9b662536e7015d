// README: Driver aggregate and repository contract. Availability is derived from rides, not stored.
package driver

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Driver struct {
	ID        types.ID     `json:"id"`
	Position  *types.Point `json:"position,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	// SavePosition records the driver's last known position, creating the driver on first report.
	SavePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}
