package fare

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"dispatch/internal/pgtest"
	"dispatch/internal/types"
)

func TestStoreRates(t *testing.T) {
	ctx := context.Background()
	store := NewStore(pgtest.Open(t))

	if _, err := store.Rates(ctx); !errors.Is(err, ErrNoActiveRates) {
		t.Fatalf("expected ErrNoActiveRates, got %v", err)
	}

	night := RateTable{
		Base:        decimal.RequireFromString("7.25"),
		PerDistance: decimal.RequireFromString("2.10"),
		PerTime:     decimal.RequireFromString("0.75"),
		Currency:    "EUR",
	}
	if err := store.Save(ctx, "standard", defaultRates(t), false); err != nil {
		t.Fatalf("save standard: %v", err)
	}
	if err := store.Save(ctx, "night", night, true); err != nil {
		t.Fatalf("save night: %v", err)
	}

	got, err := store.Rates(ctx)
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if !got.Base.Equal(night.Base) || !got.PerDistance.Equal(night.PerDistance) || !got.PerTime.Equal(night.PerTime) || got.Currency != "EUR" {
		t.Fatalf("unexpected rates: %+v", got)
	}
}

func TestStoreRatesKeepsSubCentPrecision(t *testing.T) {
	ctx := context.Background()
	store := NewStore(pgtest.Open(t))

	rt := RateTable{
		Base:        decimal.RequireFromString("1.5"),
		PerDistance: decimal.RequireFromString("0.125"),
		PerTime:     decimal.RequireFromString("0.0375"),
		Currency:    "USD",
	}
	if err := store.Save(ctx, "precise", rt, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Rates(ctx)
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if !got.PerDistance.Equal(rt.PerDistance) || !got.PerTime.Equal(rt.PerTime) {
		t.Fatalf("rates lost precision: per_distance=%s per_time=%s", got.PerDistance, got.PerTime)
	}
}

func TestStoreRejectsInvalidRates(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t)
	store := NewStore(db)

	negative := defaultRates(t)
	negative.PerDistance = decimal.RequireFromString("-0.5")
	if err := store.Save(ctx, "negative", negative, true); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected ErrValidation from save, got %v", err)
	}

	// Rows written outside the store are checked on read.
	if _, err := db.Exec(ctx, `
		INSERT INTO fare_rates (name, base, per_distance, per_time, currency, active)
		VALUES ('broken', 1, -0.5, 0.1, 'USD', true)`); err != nil {
		t.Fatalf("insert broken rates: %v", err)
	}
	if _, err := store.Rates(ctx); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected ErrValidation from rates, got %v", err)
	}
}
