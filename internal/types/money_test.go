package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundMoneyHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"27.5", "27.50"},
		{"0.125", "0.13"},
		{"0.124", "0.12"},
		{"1.005", "1.01"},
		{"10", "10.00"},
	}
	for _, tc := range cases {
		got := RoundMoney(decimal.RequireFromString(tc.in)).StringFixed(MoneyPlaces)
		if got != tc.want {
			t.Fatalf("RoundMoney(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	raw, err := json.Marshal(NewMoney(decimal.RequireFromString("27.5"), "USD"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"amount":"27.50","currency":"USD"}` {
		t.Fatalf("unexpected json %s", raw)
	}
}
