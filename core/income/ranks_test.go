package income_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/ledger"
	emailsvc "github.com/trezcool/payouts/services/email"
	"github.com/trezcool/payouts/testutil"
)

func smallRules() income.Rules {
	rules := income.DefaultRules()
	rules.Ranks = []income.RankRule{
		{Rank: 1, Name: "Bronze", SelfInvestment: money("100"), ActiveDirects: 1, TeamSize: 1, TeamBusiness: money("100"),
			TeamPercent: money("2"), Bonus: money("10"), Reward: money("20"), DailyBonus: money("1")},
		{Rank: 2, Name: "Silver", SelfInvestment: money("100"), ActiveDirects: 2, TeamSize: 2, TeamBusiness: money("200"),
			TeamPercent: money("4"), Bonus: money("30"), DailyBonus: money("3")},
	}
	rules.RewardDelayDays = 5
	return rules
}

// rankTree is a founder sponsoring two investing members.
func rankTree(t *testing.T) (*testutil.Env, *income.Engine, string) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	root := env.AddMember(t, "founder", "")
	alice := env.AddMember(t, "alice_01", root.Username)
	bob := env.AddMember(t, "bobby_02", root.Username)
	for _, id := range []string{root.ID, alice.ID, bob.ID} {
		env.Invest(t, id, 1)
	}
	return env, newEngine(env, smallRules()), root.ID
}

func TestRules(t *testing.T) {
	rules := smallRules()

	tests := []struct {
		name  string
		stats income.MemberStats
		want  int
	}{
		{name: "nothing", stats: income.MemberStats{Invested: money("0"), TeamBusiness: money("0")}, want: 0},
		{name: "no self investment", stats: income.MemberStats{Invested: money("50"), ActiveDirects: 5, TeamSize: 5, TeamBusiness: money("500")}, want: 0},
		{name: "bronze", stats: income.MemberStats{Invested: money("100"), ActiveDirects: 1, TeamSize: 3, TeamBusiness: money("300")}, want: 1},
		{name: "silver", stats: income.MemberStats{Invested: money("100"), ActiveDirects: 2, TeamSize: 2, TeamBusiness: money("200")}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.QualifiedRank(tt.stats))
		})
	}

	assert.Equal(t, "Silver", rules.RankName(2))
	assert.Equal(t, "", rules.RankName(0))
	assertMoney(t, "0", rules.TeamPercent(0))
	assertMoney(t, "4", rules.TeamPercent(2))

	conf := testutil.NewConfig().Income
	conf.RewardDelayDays = 0
	assert.Equal(t, income.DefaultRules().RewardDelayDays, income.ConfiguredRules(conf).RewardDelayDays)
	conf.RewardDelayDays = 7
	assert.Equal(t, 7, income.ConfiguredRules(conf).RewardDelayDays)
}

func TestEngine_RankUpdate(t *testing.T) {
	env, engine, rootID := rankTree(t)
	may1 := testutil.Date(2024, 5, 1)

	st, err := engine.RankUpdate(ctx, may1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Processed)

	root := env.Member(t, rootID)
	assert.Equal(t, 2, root.Rank)

	// every rank crossed pays its bonus
	bonuses := env.EntriesOf(t, rootID, ledger.KindRankBonus)
	assert.Len(t, bonuses, 2)
	assertMoney(t, "40", sumOf(t, env, rootID, ledger.KindRankBonus))

	rewards, err := env.Rewards.QueryRewards(ctx, rootID)
	require.NoError(t, err)
	require.Len(t, rewards, 1, "silver has no reward")
	assert.Equal(t, 1, rewards[0].Rank)
	assert.Equal(t, income.RewardPending, rewards[0].Status)
	assert.True(t, testutil.Date(2024, 5, 6).Equal(rewards[0].EligibleOn))

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "rank_promoted", sent[0].TemplateName)
	assert.Equal(t, root.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Silver")

	t.Run("ranks are kept", func(t *testing.T) {
		members, err := env.MemberSvc.Query(ctx, nil, nil)
		require.NoError(t, err)
		for _, m := range members {
			if m.ID != rootID {
				_, err = env.MemberSvc.SetActive(ctx, m.ID, false)
				require.NoError(t, err)
			}
		}

		st, err := engine.RankUpdate(ctx, may1.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Zero(t, st.Processed)
		assert.Equal(t, 2, env.Member(t, rootID).Rank)
		assert.Len(t, env.EntriesOf(t, rootID, ledger.KindRankBonus), 2)
	})
}

func TestEngine_TeamReward(t *testing.T) {
	env, engine, rootID := rankTree(t)
	_, err := engine.RankUpdate(ctx, testutil.Date(2024, 5, 1))
	require.NoError(t, err)
	emailsvc.ResetSentMessages()

	st, err := engine.TeamReward(ctx, testutil.Date(2024, 5, 5))
	require.NoError(t, err)
	assert.Zero(t, st.Processed, "not due yet")

	st, err = engine.TeamReward(ctx, testutil.Date(2024, 5, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Processed)
	assertMoney(t, "20", st.Credited)
	assertMoney(t, "20", sumOf(t, env, rootID, ledger.KindTeamReward))

	rewards, err := env.Rewards.QueryRewards(ctx, rootID)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, income.RewardPaid, rewards[0].Status)
	assert.True(t, rewards[0].PaidAt.Valid)

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "reward_paid", sent[0].TemplateName)

	st, err = engine.TeamReward(ctx, testutil.Date(2024, 5, 7))
	require.NoError(t, err)
	assert.Zero(t, st.Processed)
	assertMoney(t, "20", sumOf(t, env, rootID, ledger.KindTeamReward))
}

func TestEngine_TeamReward_forfeited(t *testing.T) {
	env, engine, rootID := rankTree(t)
	_, err := engine.RankUpdate(ctx, testutil.Date(2024, 5, 1))
	require.NoError(t, err)
	_, err = env.MemberSvc.SetActive(ctx, rootID, false)
	require.NoError(t, err)
	emailsvc.ResetSentMessages()

	st, err := engine.TeamReward(ctx, testutil.Date(2024, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Processed)
	assert.Zero(t, st.Entries)

	rewards, err := env.Rewards.QueryRewards(ctx, rootID)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, income.RewardForfeited, rewards[0].Status)
	assert.Empty(t, env.EntriesOf(t, rootID, ledger.KindTeamReward))
	assert.Empty(t, emailsvc.Sent())
}

func TestEngine_ActiveReward(t *testing.T) {
	env, engine, rootID := rankTree(t)
	may1 := testutil.Date(2024, 5, 1)
	_, err := engine.RankUpdate(ctx, may1)
	require.NoError(t, err)

	members, err := env.MemberSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, env.MemberSvc.RecordLogin(ctx, m.ID))
	}

	st, err := engine.ActiveReward(ctx, may1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Processed, "only ranked members")
	assertMoney(t, "3", sumOf(t, env, rootID, ledger.KindActiveReward))

	st, err = engine.ActiveReward(ctx, may1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
	assert.Zero(t, st.Entries)

	st, err = engine.LoginReset(ctx, may1)
	require.NoError(t, err)
	assert.Equal(t, len(members), st.Processed)
	assert.Zero(t, env.Member(t, rootID).LoginCount)

	st, err = engine.ActiveReward(ctx, may1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, st.Processed, "no login since the reset")
	assertMoney(t, "3", sumOf(t, env, rootID, ledger.KindActiveReward))
}
