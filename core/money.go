package core

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places money is kept at (matches NUMERIC(20,8)).
const MoneyPlaces = 8

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds an amount to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns `pct` percent of `amount`, rounded down to MoneyPlaces so credits never exceed their base.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Truncate(MoneyPlaces)
}

// MinMoney returns the smaller amount.
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MustMoney parses a decimal literal and panics on bad input; for rule tables and defaults.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
