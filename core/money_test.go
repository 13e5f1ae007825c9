package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		amount, pct, want string
	}{
		{amount: "100", pct: "10", want: "10"},
		{amount: "1000", pct: "0.7", want: "7"},
		{amount: "0.5", pct: "0.5", want: "0.0025"},
		{amount: "1", pct: "0.000001", want: "0.00000001"},
		{amount: "1", pct: "0.0000001", want: "0"}, // truncated below MoneyPlaces
		{amount: "0", pct: "50", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+"*"+tt.pct+"%", func(t *testing.T) {
			got := Percent(MustMoney(tt.amount), MustMoney(tt.pct))
			if !got.Equal(MustMoney(tt.want)) {
				t.Errorf("Percent() = %s, want %s", got, tt.want)
			}
			if got.GreaterThan(MustMoney(tt.amount)) {
				t.Errorf("Percent() = %s exceeds its base", got)
			}
		})
	}
}

func TestMinMoney(t *testing.T) {
	a, b := decimal.NewFromInt(3), decimal.NewFromInt(5)
	if got := MinMoney(a, b); !got.Equal(a) {
		t.Errorf("MinMoney() = %s, want %s", got, a)
	}
	if got := MinMoney(b, a); !got.Equal(a) {
		t.Errorf("MinMoney() = %s, want %s", got, a)
	}
}

func TestRoundMoney(t *testing.T) {
	if got := RoundMoney(MustMoney("1.123456789")); !got.Equal(MustMoney("1.12345679")) {
		t.Errorf("RoundMoney() = %s", got)
	}
}

func TestMustMoney(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustMoney() did not panic on bad input")
		}
	}()
	MustMoney("ten")
}
