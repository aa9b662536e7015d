// README: Fare rate table, computed fare and trip measurement types.
package fare

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dispatch/internal/config"
	"dispatch/internal/types"
)

// RateTable prices a trip as base + distance*PerDistance + duration*PerTime.
type RateTable struct {
	Base        decimal.Decimal
	PerDistance decimal.Decimal
	PerTime     decimal.Decimal
	Currency    string
}

// Breakdown lists the rounded components of a fare.
type Breakdown struct {
	Base     types.Money `json:"base"`
	Distance types.Money `json:"distance"`
	Time     types.Money `json:"time"`
}

// Fare is derived on demand and never stored.
type Fare struct {
	RideID      types.ID    `json:"ride_id"`
	DistanceKm  float64     `json:"distance_km"`
	DurationMin float64     `json:"duration_min"`
	Total       types.Money `json:"total"`
	Breakdown   Breakdown   `json:"breakdown"`
}

// Trip is the measured length of a ride.
type Trip struct {
	DistanceKm  float64
	DurationMin float64
}

// ParseRates builds a RateTable from decimal strings in config.
func ParseRates(cfg config.FareConfig) (RateTable, error) {
	base, err := decimal.NewFromString(cfg.Base)
	if err != nil {
		return RateTable{}, fmt.Errorf("%w: fare base %q", types.ErrValidation, cfg.Base)
	}
	perDistance, err := decimal.NewFromString(cfg.PerDistance)
	if err != nil {
		return RateTable{}, fmt.Errorf("%w: fare per distance %q", types.ErrValidation, cfg.PerDistance)
	}
	perTime, err := decimal.NewFromString(cfg.PerTime)
	if err != nil {
		return RateTable{}, fmt.Errorf("%w: fare per time %q", types.ErrValidation, cfg.PerTime)
	}
	rt := RateTable{Base: base, PerDistance: perDistance, PerTime: perTime, Currency: cfg.Currency}
	if err := rt.Validate(); err != nil {
		return RateTable{}, err
	}
	return rt, nil
}

func (rt RateTable) Validate() error {
	if rt.Base.IsNegative() || rt.PerDistance.IsNegative() || rt.PerTime.IsNegative() {
		return fmt.Errorf("%w: fare rates must not be negative", types.ErrValidation)
	}
	if rt.Currency == "" {
		return fmt.Errorf("%w: fare currency required", types.ErrValidation)
	}
	return nil
}
