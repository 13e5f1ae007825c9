package income

import (
	"github.com/shopspring/decimal"

	"github.com/trezcool/payouts/core"
)

// RankRule holds the thresholds and benefits of one rank.
type RankRule struct {
	Rank           int             `json:"rank"`
	Name           string          `json:"name"`
	SelfInvestment decimal.Decimal `json:"self_investment"`
	ActiveDirects  int             `json:"active_directs"`
	TeamSize       int             `json:"team_size"`
	TeamBusiness   decimal.Decimal `json:"team_business"`

	TeamPercent decimal.Decimal `json:"team_percent"` // weekly differential team commission
	Bonus       decimal.Decimal `json:"bonus"`        // paid once on promotion
	Reward      decimal.Decimal `json:"reward"`       // paid RewardDelayDays after promotion
	DailyBonus  decimal.Decimal `json:"daily_bonus"`  // paid each day the member logged in
}

// Qualifies reports whether a member with stats `s` meets every threshold of the rank.
func (rr RankRule) Qualifies(s MemberStats) bool {
	return s.Invested.GreaterThanOrEqual(rr.SelfInvestment) &&
		s.ActiveDirects >= rr.ActiveDirects &&
		s.TeamSize >= rr.TeamSize &&
		s.TeamBusiness.GreaterThanOrEqual(rr.TeamBusiness)
}

// Rules are the percentage tables and rank ladder the jobs apply.
type Rules struct {
	// LevelPercents[n-1] is paid on a downline's daily profit to the n-th referral upline,
	// which needs at least n active directs.
	LevelPercents []decimal.Decimal
	// MatrixPercents[n-1] is paid on an investment amount to the n-th placement upline.
	MatrixPercents []decimal.Decimal
	// Ranks sorted by Rank, starting at 1.
	Ranks           []RankRule
	RewardDelayDays int
}

func percents(ps ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(ps))
	for _, p := range ps {
		out = append(out, core.MustMoney(p))
	}
	return out
}

func DefaultRules() Rules {
	m := core.MustMoney
	return Rules{
		LevelPercents:  percents("10", "5", "3", "2", "2", "1", "1", "1", "0.5", "0.5"),
		MatrixPercents: percents("2", "1", "1", "1", "0.5", "0.5", "0.5", "0.5", "0.5", "0.5"),
		Ranks: []RankRule{
			{Rank: 1, Name: "Associate", SelfInvestment: m("100"), ActiveDirects: 3, TeamSize: 10, TeamBusiness: m("1000"),
				TeamPercent: m("2"), Bonus: m("25"), Reward: m("50"), DailyBonus: m("1")},
			{Rank: 2, Name: "Executive", SelfInvestment: m("500"), ActiveDirects: 5, TeamSize: 50, TeamBusiness: m("5000"),
				TeamPercent: m("4"), Bonus: m("100"), Reward: m("250"), DailyBonus: m("2")},
			{Rank: 3, Name: "Manager", SelfInvestment: m("1000"), ActiveDirects: 8, TeamSize: 200, TeamBusiness: m("25000"),
				TeamPercent: m("6"), Bonus: m("500"), Reward: m("1000"), DailyBonus: m("5")},
			{Rank: 4, Name: "Director", SelfInvestment: m("2500"), ActiveDirects: 10, TeamSize: 1000, TeamBusiness: m("100000"),
				TeamPercent: m("8"), Bonus: m("2000"), Reward: m("5000"), DailyBonus: m("10")},
			{Rank: 5, Name: "Ambassador", SelfInvestment: m("5000"), ActiveDirects: 15, TeamSize: 5000, TeamBusiness: m("500000"),
				TeamPercent: m("10"), Bonus: m("10000"), Reward: m("25000"), DailyBonus: m("25")},
		},
		RewardDelayDays: 30,
	}
}

// ConfiguredRules are the DefaultRules adjusted by the income configuration.
func ConfiguredRules(conf core.IncomeConfig) Rules {
	r := DefaultRules()
	if conf.RewardDelayDays > 0 {
		r.RewardDelayDays = conf.RewardDelayDays
	}
	return r
}

// Rank returns the rule of `rank`.
func (r Rules) Rank(rank int) (RankRule, bool) {
	for _, rr := range r.Ranks {
		if rr.Rank == rank {
			return rr, true
		}
	}
	return RankRule{}, false
}

// RankName is the display name of `rank`, "" when unranked.
func (r Rules) RankName(rank int) string {
	rr, _ := r.Rank(rank)
	return rr.Name
}

// TeamPercent is the team commission percent of `rank`, zero when unranked.
func (r Rules) TeamPercent(rank int) decimal.Decimal {
	if rr, ok := r.Rank(rank); ok {
		return rr.TeamPercent
	}
	return decimal.Zero
}

// QualifiedRank is the highest rank whose thresholds `s` meets, 0 when none.
func (r Rules) QualifiedRank(s MemberStats) int {
	best := 0
	for _, rr := range r.Ranks {
		if rr.Rank > best && rr.Qualifies(s) {
			best = rr.Rank
		}
	}
	return best
}
