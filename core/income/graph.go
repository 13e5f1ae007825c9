package income

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/member"
)

// MemberStats are the figures ranks are decided on.
type MemberStats struct {
	Invested      decimal.Decimal `json:"invested"` // own active investments
	ActiveDirects int             `json:"active_directs"`
	TeamSize      int             `json:"team_size"`     // whole referral downline
	TeamBusiness  decimal.Decimal `json:"team_business"` // active investments of the downline
}

type graphNode struct {
	member.Node
	directs   []string
	invested  decimal.Decimal
	hasActive bool
	topSlot   int
	activated bool
	stats     MemberStats
}

// Graph is a point-in-time snapshot of the referral and placement trees with
// the investment figures every job needs, so walks never hit the database.
type Graph struct {
	nodes map[string]*graphNode
	ids   []string
}

// NewGraph builds a snapshot; `activated` holds the members who switched on daily profit for the day.
func NewGraph(nodes []member.Node, summaries []investment.Summary, activated map[string]bool) *Graph {
	g := &Graph{
		nodes: make(map[string]*graphNode, len(nodes)),
		ids:   make([]string, 0, len(nodes)),
	}
	for _, n := range nodes {
		g.nodes[n.ID] = &graphNode{Node: n, invested: decimal.Zero, activated: activated[n.ID]}
		g.ids = append(g.ids, n.ID)
	}
	sort.Strings(g.ids)

	for _, s := range summaries {
		if n, ok := g.nodes[s.MemberID]; ok {
			n.invested = s.Amount
			n.hasActive = s.Count > 0
			n.topSlot = s.TopSlot
		}
	}
	for _, id := range g.ids {
		n := g.nodes[id]
		n.stats.Invested = n.invested
		n.stats.TeamBusiness = decimal.Zero
		if p, ok := g.parent(n, referral); ok {
			p.directs = append(p.directs, id)
			if n.IsActive && n.hasActive {
				p.stats.ActiveDirects++
			}
		}
	}
	g.aggregateTeams()
	return g
}

// aggregateTeams sums team size and business bottom-up: leaves first, then each
// sponsor once all of its directs are done.
func (g *Graph) aggregateTeams() {
	pending := make(map[string]int, len(g.nodes))
	queue := make([]string, 0, len(g.nodes))
	for _, id := range g.ids {
		n := g.nodes[id]
		pending[id] = len(n.directs)
		if len(n.directs) == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := g.nodes[id]
		p, ok := g.parent(n, referral)
		if !ok {
			continue
		}
		p.stats.TeamSize += 1 + n.stats.TeamSize
		p.stats.TeamBusiness = p.stats.TeamBusiness.Add(n.invested).Add(n.stats.TeamBusiness)
		pending[p.ID]--
		if pending[p.ID] == 0 {
			queue = append(queue, p.ID)
		}
	}
}

type tree int

const (
	referral tree = iota
	placement
)

func (g *Graph) parent(n *graphNode, t tree) (*graphNode, bool) {
	var pid null.String
	if t == referral {
		pid = n.ReferID
	} else {
		pid = n.PlacementID
	}
	if !pid.Valid {
		return nil, false
	}
	p, ok := g.nodes[pid.String]
	return p, ok
}

func (g *Graph) chain(id string, limit int, t tree) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var ups []string
	seen := map[string]bool{id: true}
	for limit <= 0 || len(ups) < limit {
		p, ok := g.parent(n, t)
		if !ok || seen[p.ID] {
			break
		}
		seen[p.ID] = true
		ups = append(ups, p.ID)
		n = p
	}
	return ups
}

// Uplines returns up to `limit` referral uplines of `id`, nearest first; limit <= 0 walks to the root.
func (g *Graph) Uplines(id string, limit int) []string {
	return g.chain(id, limit, referral)
}

// PlacementUplines returns up to `limit` placement uplines of `id`, nearest first.
func (g *Graph) PlacementUplines(id string, limit int) []string {
	return g.chain(id, limit, placement)
}

// Members returns every member id, sorted.
func (g *Graph) Members() []string { return g.ids }

func (g *Graph) Len() int { return len(g.ids) }

func (g *Graph) IsActive(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.IsActive
}

// Activated reports whether the member switched on daily profit for the snapshot day.
func (g *Graph) Activated(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.activated
}

func (g *Graph) Rank(id string) int {
	if n, ok := g.nodes[id]; ok {
		return n.Rank
	}
	return 0
}

func (g *Graph) LoginCount(id string) int {
	if n, ok := g.nodes[id]; ok {
		return n.LoginCount
	}
	return 0
}

// TopSlot is the highest slot among the member's active investments, 0 when none.
func (g *Graph) TopSlot(id string) int {
	if n, ok := g.nodes[id]; ok {
		return n.topSlot
	}
	return 0
}

func (g *Graph) Stats(id string) MemberStats {
	if n, ok := g.nodes[id]; ok {
		return n.stats
	}
	return MemberStats{Invested: decimal.Zero, TeamBusiness: decimal.Zero}
}

// Eligible reports whether `id` may receive income sourced from an investment of `slot`:
// the member is active and holds an active investment of the same slot or higher.
func (g *Graph) Eligible(id string, slot int) bool {
	n, ok := g.nodes[id]
	return ok && n.IsActive && n.hasActive && n.topSlot >= slot
}

// snapshot loads the member graph as of `day`.
func (e *Engine) snapshot(ctx context.Context, day time.Time) (*Graph, error) {
	var (
		nodes     []member.Node
		summaries []investment.Summary
		activated map[string]bool
	)
	err := e.db.RunReadOnly(ctx, func(exec core.DBExecutor) error {
		var err error
		if nodes, err = e.members.ListNodes(ctx, exec); err != nil {
			return errors.Wrap(err, "listing members")
		}
		if summaries, err = e.investments.ActiveSummaries(ctx, exec); err != nil {
			return errors.Wrap(err, "summarizing investments")
		}
		activated, err = e.members.ActivatedOn(ctx, day, exec)
		return errors.Wrap(err, "listing activations")
	})
	if err != nil {
		return nil, err
	}
	return NewGraph(nodes, summaries, activated), nil
}
