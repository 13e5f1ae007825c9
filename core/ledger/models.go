package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

type (
	Kind      string
	Wallet    string
	Direction string
)

// Entry kinds
const (
	KindTradingProfit    Kind = "trading_profit"
	KindLevelIncome      Kind = "level_income"
	KindMatrixIncome     Kind = "matrix_income"
	KindTeamCommission   Kind = "team_commission"
	KindActiveReward     Kind = "active_reward"
	KindRankBonus        Kind = "rank_bonus"
	KindTeamReward       Kind = "team_reward"
	KindDeposit          Kind = "deposit"
	KindInvestment       Kind = "investment"
	KindWithdrawal       Kind = "withdrawal"
	KindWithdrawalRefund Kind = "withdrawal_refund"
	KindTransferIn       Kind = "transfer_in"
	KindTransferOut      Kind = "transfer_out"
)

const (
	WalletIncome Wallet = "income"
	WalletFund   Wallet = "fund"

	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type kindInfo struct {
	wallet Wallet
	capped bool // limited by the member's remaining capping limit
	income bool // counts towards the member's total income
}

var kinds = map[Kind]kindInfo{
	KindTradingProfit:    {wallet: WalletIncome, capped: true, income: true},
	KindLevelIncome:      {wallet: WalletIncome, capped: true, income: true},
	KindMatrixIncome:     {wallet: WalletIncome, capped: true, income: true},
	KindTeamCommission:   {wallet: WalletIncome, capped: true, income: true},
	KindActiveReward:     {wallet: WalletIncome, capped: true, income: true},
	KindRankBonus:        {wallet: WalletIncome, income: true},
	KindTeamReward:       {wallet: WalletIncome, income: true},
	KindDeposit:          {wallet: WalletFund},
	KindInvestment:       {wallet: WalletFund},
	KindWithdrawal:       {wallet: WalletIncome},
	KindWithdrawalRefund: {wallet: WalletIncome},
	KindTransferIn:       {wallet: WalletFund},
	KindTransferOut:      {wallet: WalletFund},
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k Kind) Wallet() Wallet { return kinds[k].wallet }

// Capped reports whether credits of this kind consume the capping limit.
func (k Kind) Capped() bool { return kinds[k].capped }

func (k Kind) CountsIncome() bool { return kinds[k].income }

// IncomeKinds are the kinds the income engine credits.
var IncomeKinds = []Kind{
	KindTradingProfit, KindLevelIncome, KindMatrixIncome, KindTeamCommission,
	KindActiveReward, KindRankBonus, KindTeamReward,
}

// Key builds an idempotency key from its parts, e.g. Key("level_income", invID, "2024-01-31", "3").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

type Entry struct {
	ID             string          `json:"id" db:"id"`
	MemberID       string          `json:"member_id" db:"member_id"`
	Kind           Kind            `json:"kind" db:"kind"`
	Wallet         Wallet          `json:"wallet" db:"wallet"`
	Direction      Direction       `json:"direction" db:"direction"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`       // applied to the balance
	Requested      decimal.Decimal `json:"requested" db:"requested"` // before the capping limit
	SourceMemberID null.String     `json:"source_member_id" db:"source_member_id"`
	InvestmentID   null.String     `json:"investment_id" db:"investment_id"`
	Level          int             `json:"level" db:"level"`
	BalanceAfter   decimal.Decimal `json:"balance_after" db:"balance_after"`
	IdempotencyKey string          `json:"-" db:"idempotency_key"`
	Memo           string          `json:"memo" db:"memo"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Lapsed is the part of the requested amount refused by the capping limit.
func (e Entry) Lapsed() decimal.Decimal {
	return e.Requested.Sub(e.Amount)
}

// Credit describes money going into a member's wallet.
type Credit struct {
	MemberID       string
	Kind           Kind
	Amount         decimal.Decimal
	Key            string
	SourceMemberID string
	InvestmentID   string
	Level          int
	Memo           string
}

// Debit describes money leaving a member's wallet.
type Debit struct {
	MemberID     string
	Kind         Kind
	Amount       decimal.Decimal
	Key          string
	InvestmentID string
	Memo         string
}

type EntryFilter struct {
	MemberID string    `query:"member"`
	Kinds    []Kind    `query:"kind"`
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
	Limit    int       `query:"limit"`
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	ID          string           `json:"id" db:"id"`
	MemberID    string           `json:"member_id" db:"member_id"`
	Amount      decimal.Decimal  `json:"amount" db:"amount"`
	Fee         decimal.Decimal  `json:"fee" db:"fee"`
	NetAmount   decimal.Decimal  `json:"net_amount" db:"net_amount"`
	Address     string           `json:"address" db:"address"`
	Status      WithdrawalStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	ProcessedAt null.Time        `json:"processed_at" db:"processed_at"`
}

type NewWithdrawal struct {
	MemberID string          `json:"member_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	Address  string          `json:"address" validate:"required"`
}

type NewTransfer struct {
	FromID    string          `json:"from_id" validate:"required"`
	ToID      string          `json:"to_id" validate:"required,nefield=FromID"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Reference string          `json:"reference"`
}
