package income_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/member"
)

func node(id, refer, placement string) member.Node {
	n := member.Node{ID: id, IsActive: true}
	if refer != "" {
		n.ReferID = null.StringFrom(refer)
	}
	if placement != "" {
		n.PlacementID = null.StringFrom(placement)
	}
	return n
}

func TestGraph(t *testing.T) {
	// referral: a <- b <- c, a <- d; placement: a <- b, a <- d, d <- c
	inactive := node("e", "b", "b")
	inactive.IsActive = false
	g := income.NewGraph(
		[]member.Node{node("a", "", ""), node("b", "a", "a"), node("c", "b", "d"), node("d", "a", "a"), inactive},
		[]investment.Summary{
			{MemberID: "a", Count: 1, Amount: money("500"), TopSlot: 2},
			{MemberID: "b", Count: 2, Amount: money("200"), TopSlot: 1},
			{MemberID: "c", Count: 1, Amount: money("1000"), TopSlot: 3},
			{MemberID: "e", Count: 1, Amount: money("100"), TopSlot: 1},
		},
		map[string]bool{"c": true},
	)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, g.Members())
	assert.Equal(t, 5, g.Len())

	assert.Equal(t, []string{"b", "a"}, g.Uplines("c", 0))
	assert.Equal(t, []string{"b"}, g.Uplines("c", 1))
	assert.Empty(t, g.Uplines("a", 0))
	assert.Empty(t, g.Uplines("nobody", 0))
	assert.Equal(t, []string{"d", "a"}, g.PlacementUplines("c", 5))

	assert.True(t, g.Activated("c"))
	assert.False(t, g.Activated("b"))
	assert.False(t, g.IsActive("e"))

	t.Run("stats", func(t *testing.T) {
		a := g.Stats("a")
		assertMoney(t, "500", a.Invested)
		assert.Equal(t, 1, a.ActiveDirects, "d has no investment")
		assert.Equal(t, 4, a.TeamSize)
		assertMoney(t, "1300", a.TeamBusiness)

		b := g.Stats("b")
		assert.Equal(t, 1, b.ActiveDirects, "e is deactivated")
		assert.Equal(t, 2, b.TeamSize)
		assertMoney(t, "1100", b.TeamBusiness)

		assert.Zero(t, g.Stats("c").TeamSize)
		assertMoney(t, "0", g.Stats("nobody").TeamBusiness)
	})

	t.Run("eligibility", func(t *testing.T) {
		assert.True(t, g.Eligible("a", 2))
		assert.False(t, g.Eligible("a", 3))
		assert.True(t, g.Eligible("c", 1))
		assert.False(t, g.Eligible("d", 1), "no active investment")
		assert.False(t, g.Eligible("e", 1), "deactivated")
		assert.Equal(t, 3, g.TopSlot("c"))
		assert.Zero(t, g.TopSlot("d"))
	})
}
