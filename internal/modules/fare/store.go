// README: Fare rate sources: static config and the Postgres fare_rates table.
package fare

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNoActiveRates = errors.New("no active fare rates")

type RateSource interface {
	Rates(ctx context.Context) (RateTable, error)
}

// StaticRates always returns the same table.
type StaticRates RateTable

func (s StaticRates) Rates(context.Context) (RateTable, error) {
	return RateTable(s), nil
}

// Store reads the active row of fare_rates on every call so rate changes apply without a restart.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Rates(ctx context.Context) (RateTable, error) {
	row := s.db.QueryRow(ctx, `
		SELECT base::text, per_distance::text, per_time::text, currency
		FROM fare_rates
		WHERE active
		ORDER BY name
		LIMIT 1`,
	)
	var base, perDistance, perTime, currency string
	err := row.Scan(&base, &perDistance, &perTime, &currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return RateTable{}, ErrNoActiveRates
	}
	if err != nil {
		return RateTable{}, fmt.Errorf("load fare rates: %w", err)
	}
	rt := RateTable{Currency: currency}
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{{&rt.Base, base}, {&rt.PerDistance, perDistance}, {&rt.PerTime, perTime}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return RateTable{}, fmt.Errorf("parse fare rate %q: %w", f.raw, err)
		}
	}
	if err := rt.Validate(); err != nil {
		return RateTable{}, fmt.Errorf("active fare rates: %w", err)
	}
	return rt, nil
}

// Save upserts a named rate row; active marks it as the one Rates returns.
func (s *Store) Save(ctx context.Context, name string, rt RateTable, active bool) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO fare_rates (name, base, per_distance, per_time, currency, active)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6)
		ON CONFLICT (name) DO UPDATE
		SET base = EXCLUDED.base,
		    per_distance = EXCLUDED.per_distance,
		    per_time = EXCLUDED.per_time,
		    currency = EXCLUDED.currency,
		    active = EXCLUDED.active`,
		name, rt.Base.String(), rt.PerDistance.String(), rt.PerTime.String(), rt.Currency, active,
	)
	if err != nil {
		return fmt.Errorf("save fare rates: %w", err)
	}
	return nil
}
