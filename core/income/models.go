package income

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core/ledger"
)

// Job names
const (
	JobTradingProfit  = "trading_profit"
	JobMatrixIncome   = "matrix_income"
	JobRankUpdate     = "rank_update"
	JobTeamReward     = "team_reward"
	JobActiveReward   = "active_reward"
	JobLoginReset     = "login_reset"
	JobTeamCommission = "team_commission"
)

// DailySequence is the order of the nightly rank and reward jobs.
var DailySequence = []string{JobRankUpdate, JobTeamReward, JobActiveReward, JobLoginReset}

// Stats summarize what a job did.
type Stats struct {
	Processed int             `json:"processed"` // investments, members or rewards handled
	Entries   int             `json:"entries"`   // ledger entries written
	Skipped   int             `json:"skipped"`   // credits already recorded by an earlier run
	Credited  decimal.Decimal `json:"credited"`
	Lapsed    decimal.Decimal `json:"lapsed"` // refused by capping limits
}

func (s *Stats) add(e ledger.Entry) {
	s.Entries++
	s.Credited = s.Credited.Add(e.Amount)
	s.Lapsed = s.Lapsed.Add(e.Lapsed())
}

func (s *Stats) merge(o Stats) {
	s.Processed += o.Processed
	s.Entries += o.Entries
	s.Skipped += o.Skipped
	s.Credited = s.Credited.Add(o.Credited)
	s.Lapsed = s.Lapsed.Add(o.Lapsed)
}

type RewardStatus string

const (
	RewardPending   RewardStatus = "pending"
	RewardPaid      RewardStatus = "paid"
	RewardForfeited RewardStatus = "forfeited"
)

// Reward is the delayed team reward granted on a rank promotion.
type Reward struct {
	ID         string          `json:"id" db:"id"`
	MemberID   string          `json:"member_id" db:"member_id"`
	Rank       int             `json:"rank" db:"rank"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Status     RewardStatus    `json:"status" db:"status"`
	EligibleOn time.Time       `json:"eligible_on" db:"eligible_on"`
	PaidAt     null.Time       `json:"paid_at" db:"paid_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// JobRun records one execution of a job for a settlement day.
type JobRun struct {
	ID         int64           `json:"id" db:"id"`
	Job        string          `json:"job" db:"job"`
	RunKey     string          `json:"run_key" db:"run_key"`
	Status     RunStatus       `json:"status" db:"status"`
	Processed  int             `json:"processed" db:"processed"`
	Credited   decimal.Decimal `json:"credited" db:"credited"`
	Error      string          `json:"error,omitempty" db:"error"`
	StartedAt  time.Time       `json:"started_at" db:"started_at"`
	FinishedAt null.Time       `json:"finished_at" db:"finished_at"`
}

type RunFilter struct {
	Job    string    `query:"job"`
	Status RunStatus `query:"status"`
	Limit  int       `query:"limit"`
}
