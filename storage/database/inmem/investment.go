package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/investment"
)

// DefaultPlans mirrors the packages seeded by the migrations.
func DefaultPlans() []investment.Plan {
	m := core.MustMoney
	plan := func(name string, slot int, amount, daily string) investment.Plan {
		return investment.Plan{
			Name:                name,
			Slot:                slot,
			Amount:              m(amount),
			DailyPercent:        m(daily),
			MaxReturnMultiplier: m("2"),
			CappingMultiplier:   m("3"),
			IsActive:            true,
		}
	}
	return []investment.Plan{
		plan("Starter", 1, "100", "0.5"),
		plan("Basic", 2, "500", "0.6"),
		plan("Standard", 3, "1000", "0.7"),
		plan("Advanced", 4, "2500", "0.8"),
		plan("Premium", 5, "5000", "0.9"),
		plan("Elite", 6, "10000", "1.0"),
	}
}

type investmentRepository struct {
	db *DB
}

func NewInvestmentRepository(db *DB) investment.Repository {
	return &investmentRepository{db: db}
}

// SavePlan inserts or replaces the plan at p.Slot.
func (db *DB) SavePlan(p investment.Plan) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if orig, ok := db.t.plans[p.Slot]; ok {
		p.ID = orig.ID
	} else {
		p.ID = len(db.t.plans) + 1
	}
	db.t.plans[p.Slot] = &p
}

func (repo *investmentRepository) Plans(_ context.Context, _ ...core.DBExecutor) ([]investment.Plan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	plans := make([]investment.Plan, 0, len(repo.db.t.plans))
	for _, p := range repo.db.t.plans {
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Slot < plans[j].Slot })
	return plans, nil
}

func (repo *investmentRepository) GetPlan(_ context.Context, slot int, _ ...core.DBExecutor) (investment.Plan, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.t.plans[slot]; ok {
		return *p, nil
	}
	return investment.Plan{}, investment.ErrPlanNotFound
}

func (repo *investmentRepository) CreateInvestment(_ context.Context, inv investment.Investment, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.t.investments[inv.ID] = &inv
	return nil
}

func (repo *investmentRepository) LockInvestment(_ context.Context, id string, _ ...core.DBExecutor) (investment.Investment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if inv, ok := repo.db.t.investments[id]; ok {
		return *inv, nil
	}
	return investment.Investment{}, investment.ErrNotFound
}

func (repo *investmentRepository) UpdateInvestment(_ context.Context, inv investment.Investment, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.investments[inv.ID]
	if !ok {
		return investment.ErrNotFound
	}
	orig.TotalProfit = inv.TotalProfit
	orig.Status = inv.Status
	orig.LastProfitOn = inv.LastProfitOn
	orig.MatrixPaidAt = inv.MatrixPaidAt
	orig.TeamPaidAt = inv.TeamPaidAt
	orig.CompletedAt = inv.CompletedAt
	return nil
}

func (repo *investmentRepository) filter(keep func(inv *investment.Investment) bool) []investment.Investment {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	invs := make([]investment.Investment, 0)
	for _, inv := range repo.db.t.investments {
		if keep(inv) {
			invs = append(invs, *inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool {
		if !invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].CreatedAt.Before(invs[j].CreatedAt)
		}
		return invs[i].ID < invs[j].ID
	})
	return invs
}

func (repo *investmentRepository) ListByMember(_ context.Context, memberID string, _ ...core.DBExecutor) ([]investment.Investment, error) {
	return repo.filter(func(inv *investment.Investment) bool { return inv.MemberID == memberID }), nil
}

func (repo *investmentRepository) DueForProfit(_ context.Context, day time.Time, _ ...core.DBExecutor) ([]investment.Investment, error) {
	day = core.Day(day)
	return repo.filter(func(inv *investment.Investment) bool {
		return inv.IsActive() && inv.CreatedAt.Before(day) && !inv.Settled(day)
	}), nil
}

func (repo *investmentRepository) MatrixUnpaid(_ context.Context, until time.Time, _ ...core.DBExecutor) ([]investment.Investment, error) {
	return repo.filter(func(inv *investment.Investment) bool {
		return !inv.MatrixPaidAt.Valid && inv.CreatedAt.Before(until)
	}), nil
}

func (repo *investmentRepository) TeamUnpaid(_ context.Context, until time.Time, _ ...core.DBExecutor) ([]investment.Investment, error) {
	return repo.filter(func(inv *investment.Investment) bool {
		return !inv.TeamPaidAt.Valid && inv.CreatedAt.Before(until)
	}), nil
}

func (repo *investmentRepository) ActiveSummaries(_ context.Context, _ ...core.DBExecutor) ([]investment.Summary, error) {
	byMember := make(map[string]*investment.Summary)
	for _, inv := range repo.filter(func(inv *investment.Investment) bool { return inv.IsActive() }) {
		s, ok := byMember[inv.MemberID]
		if !ok {
			s = &investment.Summary{MemberID: inv.MemberID, Amount: decimal.Zero}
			byMember[inv.MemberID] = s
		}
		s.Count++
		s.Amount = s.Amount.Add(inv.Amount)
		if inv.Slot > s.TopSlot {
			s.TopSlot = inv.Slot
		}
	}

	sums := make([]investment.Summary, 0, len(byMember))
	for _, s := range byMember {
		sums = append(sums, *s)
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].MemberID < sums[j].MemberID })
	return sums, nil
}
