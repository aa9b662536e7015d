// README: Money value object; amounts are exact decimals, never floats.
package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits money is rounded to.
const MoneyPlaces = 2

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney rounds amount half-up to MoneyPlaces.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: RoundMoney(amount), Currency: currency}
}

// RoundMoney rounds half away from zero, which is half-up for the non-negative
// amounts fares produce.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func (m Money) String() string {
	return m.Amount.StringFixed(MoneyPlaces) + " " + m.Currency
}

// MarshalJSON renders the amount with exactly MoneyPlaces digits, e.g. "27.50".
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{m.Amount.StringFixed(MoneyPlaces), m.Currency})
}
