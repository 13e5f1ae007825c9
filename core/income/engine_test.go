package income_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/testutil"
)

var ctx = context.Background()

func money(s string) decimal.Decimal { return core.MustMoney(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "want %s, got %s", want, got)
}

func newEngine(env *testutil.Env, rules income.Rules) *income.Engine {
	return income.NewEngine(income.Deps{
		DB:          env.DB,
		Members:     env.Members,
		Investments: env.Investments,
		Rewards:     env.Rewards,
		Ledger:      env.LedgerSvc,
		Mailer:      env.Mailer,
		Logger:      env.Logger,
	}, rules, 2)
}

// sumOf adds up the amounts of the member's entries of `kind`.
func sumOf(t *testing.T, env *testutil.Env, id string, kind ledger.Kind) decimal.Decimal {
	t.Helper()
	total := decimal.Zero
	for _, e := range env.EntriesOf(t, id, kind) {
		total = total.Add(e.Amount)
	}
	return total
}

func TestEngine_Jobs(t *testing.T) {
	env := testutil.NewEnv(t)

	jobs := env.Engine.Jobs()
	for _, name := range []string{
		income.JobTradingProfit, income.JobMatrixIncome, income.JobRankUpdate, income.JobTeamReward,
		income.JobActiveReward, income.JobLoginReset, income.JobTeamCommission,
	} {
		assert.Contains(t, jobs, name)
	}
	for _, name := range income.DailySequence {
		assert.Contains(t, jobs, name)
	}
	assert.Equal(t, 30, env.Engine.Rules().RewardDelayDays)
}

func TestEngine_TradingProfit(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	bob := env.AddMember(t, "bobby_02", alice.Username)
	carol := env.AddMember(t, "carol_03", root.Username)
	env.Invest(t, root.ID, 2)
	env.Invest(t, alice.ID, 1)
	env.Invest(t, bob.ID, 1)
	env.Invest(t, carol.ID, 3)

	may1, may2 := testutil.Date(2024, 5, 1), testutil.Date(2024, 5, 2)
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		env.Activate(t, id, may2)
	}

	t.Run("nothing due on the creation day", func(t *testing.T) {
		st, err := env.Engine.TradingProfit(ctx, may1)
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
	})

	t.Run("settles the day", func(t *testing.T) {
		st, err := env.Engine.TradingProfit(ctx, may2.Add(20*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 4, st.Processed)
		assert.Equal(t, 6, st.Entries)
		assertMoney(t, "8.125", st.Credited)

		// 0.5% of 100
		assertMoney(t, "0.5", sumOf(t, env, bob.ID, ledger.KindTradingProfit))
		assertMoney(t, "0.5", sumOf(t, env, alice.ID, ledger.KindTradingProfit))
		// 0.7% of 1000
		assertMoney(t, "7", sumOf(t, env, carol.ID, ledger.KindTradingProfit))
		// not activated
		assert.Empty(t, env.EntriesOf(t, root.ID, ledger.KindTradingProfit))

		// level 1 on bob's profit
		assertMoney(t, "0.05", sumOf(t, env, alice.ID, ledger.KindLevelIncome))

		// level 1 on alice (10%) and level 2 on bob (5%); carol's slot 3 is above root's slot 2
		levels := env.EntriesOf(t, root.ID, ledger.KindLevelIncome)
		require.Len(t, levels, 2)
		byLevel := map[int]ledger.Entry{}
		for _, e := range levels {
			byLevel[e.Level] = e
		}
		assertMoney(t, "0.05", byLevel[1].Amount)
		assert.Equal(t, alice.ID, byLevel[1].SourceMemberID.String)
		assertMoney(t, "0.025", byLevel[2].Amount)
		assert.Equal(t, bob.ID, byLevel[2].SourceMemberID.String)

		invs, err := env.InvestmentSvc.ListByMember(ctx, root.ID)
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.True(t, invs[0].Settled(may2), "the watermark advances without profit")
		assertMoney(t, "0", invs[0].TotalProfit)
	})

	t.Run("rerun is a no-op", func(t *testing.T) {
		st, err := env.Engine.TradingProfit(ctx, may2)
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
		assertMoney(t, "0.5", sumOf(t, env, bob.ID, ledger.KindTradingProfit))
	})

	t.Run("no activation, no profit", func(t *testing.T) {
		st, err := env.Engine.TradingProfit(ctx, may2.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 4, st.Processed)
		assert.Zero(t, st.Entries)
	})

	t.Run("inactive member", func(t *testing.T) {
		may4 := may2.AddDate(0, 0, 2)
		env.Activate(t, carol.ID, may4)
		_, err := env.MemberSvc.SetActive(ctx, carol.ID, false)
		require.NoError(t, err)

		st, err := env.Engine.TradingProfit(ctx, may4)
		require.NoError(t, err)
		assert.Zero(t, st.Entries)
		assertMoney(t, "7", sumOf(t, env, carol.ID, ledger.KindTradingProfit))
	})
}


func TestEngine_TradingProfit_activeDirects(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	// a single chain: every upline has one active direct
	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	bob := env.AddMember(t, "bobby_02", alice.Username)
	for _, id := range []string{root.ID, alice.ID, bob.ID} {
		env.Invest(t, id, 1)
	}
	may2 := testutil.Date(2024, 5, 2)
	env.Activate(t, alice.ID, may2)
	env.Activate(t, bob.ID, may2)

	_, err := env.Engine.TradingProfit(ctx, may2)
	require.NoError(t, err)

	levels := env.EntriesOf(t, alice.ID, ledger.KindLevelIncome)
	require.Len(t, levels, 1)
	assert.Equal(t, 1, levels[0].Level)
	assert.Equal(t, bob.ID, levels[0].SourceMemberID.String)
	assertMoney(t, "0.05", levels[0].Amount)

	// level 1 on alice only; level 2 on bob needs two active directs
	levels = env.EntriesOf(t, root.ID, ledger.KindLevelIncome)
	require.Len(t, levels, 1)
	assert.Equal(t, 1, levels[0].Level)
	assert.Equal(t, alice.ID, levels[0].SourceMemberID.String)
}
func TestEngine_TradingProfit_completes(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	env.DB.SavePlan(investment.Plan{
		Name:                "Sprint",
		Slot:                1,
		Amount:              money("100"),
		DailyPercent:        money("60"),
		MaxReturnMultiplier: money("1"),
		CappingMultiplier:   money("3"),
		IsActive:            true,
	})

	root := env.AddMember(t, "founder", "")
	inv := env.Invest(t, root.ID, 1)
	assertMoney(t, "100", inv.MaxReturn)

	for _, d := range []int{2, 3, 4} {
		day := testutil.Date(2024, 5, d)
		env.Activate(t, root.ID, day)
		_, err := env.Engine.TradingProfit(ctx, day)
		require.NoError(t, err)
	}

	profits := env.EntriesOf(t, root.ID, ledger.KindTradingProfit)
	require.Len(t, profits, 2)
	assertMoney(t, "100", sumOf(t, env, root.ID, ledger.KindTradingProfit))

	invs, err := env.InvestmentSvc.ListByMember(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, investment.StatusCompleted, invs[0].Status)
	assert.True(t, invs[0].CompletedAt.Valid)
	assertMoney(t, "100", invs[0].TotalProfit)
}

func TestEngine_MatrixIncome(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	bob := env.AddMember(t, "bobby_02", alice.Username)
	require.Equal(t, alice.ID, bob.PlacementID.String)
	env.Invest(t, root.ID, 1)
	env.Invest(t, alice.ID, 1)
	env.Invest(t, bob.ID, 1)

	t.Run("investments made later wait", func(t *testing.T) {
		st, err := env.Engine.MatrixIncome(ctx, testutil.Date(2024, 4, 30))
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
	})

	t.Run("pays placement uplines once", func(t *testing.T) {
		st, err := env.Engine.MatrixIncome(ctx, testutil.Date(2024, 5, 1))
		require.NoError(t, err)
		assert.Equal(t, 3, st.Processed)
		assert.Equal(t, 3, st.Entries)

		// 2% of bob's 100
		assertMoney(t, "2", sumOf(t, env, alice.ID, ledger.KindMatrixIncome))
		// 2% of alice's 100 and 1% of bob's
		assertMoney(t, "3", sumOf(t, env, root.ID, ledger.KindMatrixIncome))
		assert.Empty(t, env.EntriesOf(t, bob.ID, ledger.KindMatrixIncome))

		st, err = env.Engine.MatrixIncome(ctx, testutil.Date(2024, 5, 2))
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
	})

	t.Run("ineligible uplines are skipped", func(t *testing.T) {
		carol := env.AddMember(t, "carol_03", bob.Username)
		env.Invest(t, carol.ID, 2)

		st, err := env.Engine.MatrixIncome(ctx, testutil.Date(2024, 5, 1))
		require.NoError(t, err)
		assert.Equal(t, 1, st.Processed)
		assert.Zero(t, st.Entries, "no upline holds slot 2")
	})
}

func TestEngine_TeamCommission(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	bob := env.AddMember(t, "bobby_02", alice.Username)
	carol := env.AddMember(t, "carol_03", bob.Username)
	for id, rank := range map[string]int{root.ID: 2, alice.ID: 3, bob.ID: 1} {
		require.NoError(t, env.Members.SetRank(ctx, id, rank))
	}
	for _, id := range []string{root.ID, alice.ID, bob.ID, carol.ID} {
		env.Invest(t, id, 1)
	}

	t.Run("before the investments", func(t *testing.T) {
		st, err := env.Engine.TeamCommission(ctx, testutil.Date(2024, 4, 30))
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
	})

	t.Run("differential", func(t *testing.T) {
		st, err := env.Engine.TeamCommission(ctx, testutil.Date(2024, 5, 7))
		require.NoError(t, err)
		assert.Equal(t, 4, st.Processed)
		assertMoney(t, "16", st.Credited)

		// alice's investment: root 4%
		assertMoney(t, "4", sumOf(t, env, root.ID, ledger.KindTeamCommission))
		// bob's investment: 6%; carol's: 6% - bob's 2%
		assertMoney(t, "10", sumOf(t, env, alice.ID, ledger.KindTeamCommission))
		// carol's investment: 2%
		assertMoney(t, "2", sumOf(t, env, bob.ID, ledger.KindTeamCommission))
		assert.Empty(t, env.EntriesOf(t, carol.ID, ledger.KindTeamCommission))
	})

	t.Run("paid once", func(t *testing.T) {
		st, err := env.Engine.TeamCommission(ctx, testutil.Date(2024, 5, 7))
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
	})
}

func TestEngine_TeamCommission_missedWeek(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	require.NoError(t, env.Members.SetRank(ctx, root.ID, 2))
	env.Invest(t, root.ID, 1)
	env.Invest(t, alice.ID, 1)

	// the May 5 run never happened; May 12 pays the week before it too
	st, err := env.Engine.TeamCommission(ctx, testutil.Date(2024, 5, 12))
	require.NoError(t, err)
	assert.Equal(t, 2, st.Processed)
	assertMoney(t, "4", sumOf(t, env, root.ID, ledger.KindTeamCommission))

	st, err = env.Engine.TeamCommission(ctx, testutil.Date(2024, 5, 19))
	require.NoError(t, err)
	assert.Zero(t, st.Processed)
}

type readCounter struct {
	core.Transactor
	reads int32
}

func (rc *readCounter) RunReadOnly(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	atomic.AddInt32(&rc.reads, 1)
	return rc.Transactor.RunReadOnly(ctx, fn)
}

func TestEngine_snapshotReadsTogether(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	env.Invest(t, alice.ID, 1)

	rc := &readCounter{Transactor: env.DB}
	eng := income.NewEngine(income.Deps{
		DB:          rc,
		Members:     env.Members,
		Investments: env.Investments,
		Rewards:     env.Rewards,
		Ledger:      env.LedgerSvc,
		Mailer:      env.Mailer,
		Logger:      env.Logger,
	}, income.DefaultRules(), 2)

	st, err := eng.TeamCommission(ctx, testutil.Date(2024, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Processed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rc.reads))
}
