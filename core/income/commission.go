package income

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
)

// TeamCommission pays the weekly differential override on every investment made up to
// `day` that has not been paid yet, so weeks missed by earlier runs are caught up.
// Walking up the referral chain, an upline whose rank percent exceeds the highest
// percent already paid earns the difference.
func (e *Engine) TeamCommission(ctx context.Context, day time.Time) (Stats, error) {
	day = core.Day(day)
	invs, err := e.investments.TeamUnpaid(ctx, day.AddDate(0, 0, 1))
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing unpaid investments")
	}
	if len(invs) == 0 {
		return Stats{}, nil
	}
	g, err := e.snapshot(ctx, day)
	if err != nil {
		return Stats{}, err
	}

	st, err := e.forEach(ctx, investmentIDs(invs), func(ctx context.Context, id string) (Stats, error) {
		return e.inTx(ctx, func(exec core.DBExecutor, st *Stats) error {
			return e.payCommission(ctx, exec, st, g, id)
		})
	})
	e.logf("%s %s: %d investments, %s credited", JobTeamCommission,
		core.FormatDay(day), st.Processed, st.Credited)
	return st, err
}

func (e *Engine) maxTeamPercent() decimal.Decimal {
	top := decimal.Zero
	for _, rr := range e.rules.Ranks {
		if rr.TeamPercent.GreaterThan(top) {
			top = rr.TeamPercent
		}
	}
	return top
}

func (e *Engine) payCommission(ctx context.Context, exec core.DBExecutor, st *Stats, g *Graph, id string) error {
	inv, err := e.investments.LockInvestment(ctx, id, exec)
	if err != nil {
		return errors.Wrap(err, "locking investment")
	}
	if inv.TeamPaidAt.Valid {
		return nil
	}
	st.Processed++

	paid, ceiling := decimal.Zero, e.maxTeamPercent()
	for _, up := range g.Uplines(inv.MemberID, 0) {
		if paid.GreaterThanOrEqual(ceiling) {
			break
		}
		pct := e.rules.TeamPercent(g.Rank(up))
		if !pct.GreaterThan(paid) || !g.Eligible(up, inv.Slot) {
			continue
		}
		if err = e.credit(ctx, exec, st, ledger.Credit{
			MemberID:       up,
			Kind:           ledger.KindTeamCommission,
			Amount:         core.Percent(inv.Amount, pct.Sub(paid)),
			Key:            ledger.Key(string(ledger.KindTeamCommission), inv.ID, up),
			SourceMemberID: inv.MemberID,
			InvestmentID:   inv.ID,
			Memo:           "team commission " + pct.Sub(paid).String() + "%",
		}); err != nil {
			return err
		}
		paid = pct
	}

	inv.TeamPaidAt = null.TimeFrom(core.NowFunc().UTC())
	return errors.Wrap(e.investments.UpdateInvestment(ctx, inv, exec), "updating investment")
}
