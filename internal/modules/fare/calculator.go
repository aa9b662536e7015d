package fare

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"dispatch/internal/types"
)

// Calculator applies a RateTable. It is pure and safe for concurrent use.
type Calculator struct {
	rates RateTable
}

func NewCalculator(rates RateTable) *Calculator {
	return &Calculator{rates: rates}
}

// Compute returns base + distance*perDistance + duration*perTime rounded half-up to cents.
func (c *Calculator) Compute(distance, duration float64) (decimal.Decimal, error) {
	q, err := c.Quote(distance, duration)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.Total.Amount, nil
}

// Quote is Compute with the per-component breakdown. The total is rounded once
// from the exact sum, so rounded components may not add up to it.
func (c *Calculator) Quote(distance, duration float64) (Fare, error) {
	if err := checkQuantity("distance", distance); err != nil {
		return Fare{}, err
	}
	if err := checkQuantity("duration", duration); err != nil {
		return Fare{}, err
	}
	r := c.rates
	distPart := decimal.NewFromFloat(distance).Mul(r.PerDistance)
	timePart := decimal.NewFromFloat(duration).Mul(r.PerTime)
	total := r.Base.Add(distPart).Add(timePart)
	return Fare{
		DistanceKm:  distance,
		DurationMin: duration,
		Total:       types.NewMoney(total, r.Currency),
		Breakdown: Breakdown{
			Base:     types.NewMoney(r.Base, r.Currency),
			Distance: types.NewMoney(distPart, r.Currency),
			Time:     types.NewMoney(timePart, r.Currency),
		},
	}, nil
}

func checkQuantity(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a non-negative number, got %v", types.ErrValidation, name, v)
	}
	return nil
}
