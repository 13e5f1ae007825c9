package testutil

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
	emailsvc "github.com/trezcool/payouts/services/email"
	inmemdb "github.com/trezcool/payouts/storage/database/inmem"
)

var refSeq uint64

func nextRef(prefix string) string {
	return prefix + ":" + strconv.FormatUint(atomic.AddUint64(&refSeq, 1), 10)
}

const (
	OpsToken = "ops-secret"
	Password = "Str0ng!Pass"
)

// Env is a fully wired application over the in-memory store.
type Env struct {
	Conf   *core.Config
	Logger *Logger
	DB     *inmemdb.DB

	Members     member.Repository
	Investments investment.Repository
	Entries     ledger.Repository
	Rewards     income.RewardRepository
	Runs        income.RunRepository

	MemberSvc     *member.Service
	LedgerSvc     *ledger.Service
	InvestmentSvc *investment.Service
	Mailer        core.EmailService
	Engine        *income.Engine
	Runner        *income.Runner

	Validate   *validator.Validate
	Translator ut.Translator
}

func NewConfig() *core.Config {
	return &core.Config{
		AppName:         "Payouts",
		Build:           "test",
		Env:             "TEST",
		TestMode:        true,
		FrontendBaseURL: "http://localhost:3000",
		Server: core.ServerConfig{
			OpsToken:        OpsToken,
			ShutdownTimeout: time.Second,
		},
		Income: core.IncomeConfig{
			Workers:            4,
			RewardDelayDays:    30,
			WithdrawMin:        "10",
			WithdrawFeePercent: "5",
			ProfitSchedule:     "0 0 * * *",
			MatrixSchedule:     "0 1 * * *",
			RankSchedule:       "0 2 * * *",
			TeamSchedule:       "0 3 * * 0",
		},
	}
}

// NewEnv wires every service and the income engine on a fresh in-memory store.
// Sent emails are reset and the templates parsed.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	conf := NewConfig()
	logger := NewLogger()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	env := &Env{
		Conf:        conf,
		Logger:      logger,
		DB:          db,
		Members:     inmemdb.NewMemberRepository(db),
		Investments: inmemdb.NewInvestmentRepository(db),
		Entries:     inmemdb.NewLedgerRepository(db),
		Rewards:     inmemdb.NewRewardRepository(db),
		Runs:        inmemdb.NewRunRepository(db),
		Mailer:      emailsvc.NewConsoleServiceMock(conf, logger),
	}

	settings, err := ledger.NewSettings(conf.Income)
	require.NoError(t, err)
	env.MemberSvc = member.NewService(db, env.Members, member.DefaultMatrixWidth)
	env.LedgerSvc = ledger.NewService(db, env.Entries, env.Members, settings)
	env.InvestmentSvc = investment.NewService(db, env.Investments, env.Members, env.LedgerSvc)
	env.Engine = income.NewEngine(income.Deps{
		DB:          db,
		Members:     env.Members,
		Investments: env.Investments,
		Rewards:     env.Rewards,
		Ledger:      env.LedgerSvc,
		Mailer:      env.Mailer,
		Logger:      logger,
	}, income.ConfiguredRules(conf.Income), conf.Income.Workers)
	env.Runner = income.NewRunner(env.Engine.Jobs(), env.Runs, db, logger)

	env.Validate, env.Translator = core.NewValidator()
	member.InitValidators(env.Validate, env.Translator)

	core.ParseEmailTemplates(conf, logger)
	emailsvc.ResetSentMessages()
	return env
}

// SetNow freezes core.NowFunc at `now` for the duration of the test.
func SetNow(t testing.TB, now time.Time) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
}

// Date is midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddMember registers `username` under `sponsor` ("" for the root member).
func (env *Env) AddMember(t testing.TB, username, sponsor string) member.Member {
	t.Helper()
	m, err := env.MemberSvc.Register(context.Background(), member.NewMember{
		Name:            username,
		Username:        username,
		Email:           username + "@payouts.test",
		Password:        Password,
		PasswordConfirm: Password,
		Sponsor:         sponsor,
	})
	require.NoError(t, err)
	return m
}

// Fund deposits `amount` to the member's fund wallet.
func (env *Env) Fund(t testing.TB, id, amount string) {
	t.Helper()
	_, err := env.LedgerSvc.Deposit(context.Background(), id, core.MustMoney(amount), nextRef("fund"))
	require.NoError(t, err)
}

// Invest funds the member with the plan amount of `slot` and buys it.
func (env *Env) Invest(t testing.TB, id string, slot int) investment.Investment {
	t.Helper()
	plan, err := env.InvestmentSvc.PlanBySlot(context.Background(), slot)
	require.NoError(t, err)
	_, err = env.LedgerSvc.Deposit(context.Background(), id, plan.Amount, nextRef("invest"))
	require.NoError(t, err)
	inv, err := env.InvestmentSvc.Invest(context.Background(), investment.NewInvestment{MemberID: id, Slot: slot})
	require.NoError(t, err)
	return inv
}

// Activate switches on the member's trading profit for `day`.
func (env *Env) Activate(t testing.TB, id string, day time.Time) {
	t.Helper()
	_, err := env.MemberSvc.ActivateDailyProfit(context.Background(), id, day)
	require.NoError(t, err)
}

// Member reloads a member.
func (env *Env) Member(t testing.TB, id string) member.Member {
	t.Helper()
	m, err := env.Members.GetMember(context.Background(), member.GetFilter{ID: id})
	require.NoError(t, err)
	return m
}

// EntriesOf lists the member's ledger entries of `kinds` (all when empty).
func (env *Env) EntriesOf(t testing.TB, id string, kinds ...ledger.Kind) []ledger.Entry {
	t.Helper()
	entries, err := env.LedgerSvc.Entries(context.Background(), ledger.EntryFilter{MemberID: id, Kinds: kinds})
	require.NoError(t, err)
	return entries
}
