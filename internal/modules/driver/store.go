// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, lat, lng, updated_at
		FROM drivers
		WHERE id = $1`, string(id),
	)
	var (
		d        Driver
		rawID    string
		lat, lng *float64
	)
	err := row.Scan(&rawID, &lat, &lng, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	d.ID = types.ID(rawID)
	if lat != nil && lng != nil {
		d.Position = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &d, nil
}

func (s *Store) SavePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, lat, lng, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    updated_at = EXCLUDED.updated_at`,
		string(id), p.Lat, p.Lng, at,
	)
	if err != nil {
		return fmt.Errorf("save driver position: %w", err)
	}
	return nil
}
