package investment

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
)

// Plan is an investment package; its slot is the package level used to gate upline income.
type Plan struct {
	ID                  int             `json:"id" db:"id"`
	Name                string          `json:"name" db:"name"`
	Slot                int             `json:"slot" db:"slot"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	DailyPercent        decimal.Decimal `json:"daily_percent" db:"daily_percent"`
	MaxReturnMultiplier decimal.Decimal `json:"max_return_multiplier" db:"max_return_multiplier"`
	CappingMultiplier   decimal.Decimal `json:"capping_multiplier" db:"capping_multiplier"`
	IsActive            bool            `json:"is_active" db:"is_active"`
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type Investment struct {
	ID           string          `json:"id" db:"id"`
	MemberID     string          `json:"member_id" db:"member_id"`
	PlanID       int             `json:"plan_id" db:"plan_id"`
	Slot         int             `json:"slot" db:"slot"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	DailyPercent decimal.Decimal `json:"daily_percent" db:"daily_percent"`
	MaxReturn    decimal.Decimal `json:"max_return" db:"max_return"`
	TotalProfit  decimal.Decimal `json:"total_profit" db:"total_profit"`
	Status       Status          `json:"status" db:"status"`
	LastProfitOn null.Time       `json:"last_profit_on" db:"last_profit_on"` // watermark, a UTC day
	MatrixPaidAt null.Time       `json:"matrix_paid_at" db:"matrix_paid_at"`
	TeamPaidAt   null.Time       `json:"team_paid_at" db:"team_paid_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	CompletedAt  null.Time       `json:"completed_at" db:"completed_at"`
}

func (inv *Investment) IsActive() bool { return inv.Status == StatusActive }

// Remaining is what the investment may still return before completing.
func (inv *Investment) Remaining() decimal.Decimal {
	r := inv.MaxReturn.Sub(inv.TotalProfit)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// DailyProfit is one day of profit, clamped to Remaining.
func (inv *Investment) DailyProfit() decimal.Decimal {
	return core.MinMoney(core.Percent(inv.Amount, inv.DailyPercent), inv.Remaining())
}

// Settled reports whether the watermark already covers `day`.
func (inv *Investment) Settled(day time.Time) bool {
	return inv.LastProfitOn.Valid && !core.Day(inv.LastProfitOn.Time).Before(core.Day(day))
}

// Summary aggregates a member's active investments.
type Summary struct {
	MemberID string          `db:"member_id"`
	Count    int             `db:"count"`
	Amount   decimal.Decimal `db:"amount"`
	TopSlot  int             `db:"top_slot"`
}

type NewInvestment struct {
	MemberID string `json:"member_id" validate:"required"`
	Slot     int    `json:"slot" validate:"gt=0"`
}
