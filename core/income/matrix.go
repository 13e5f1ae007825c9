package income

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
)

// MatrixIncome pays, once per investment made on or before `day`, a percentage of its
// amount to each eligible placement upline.
func (e *Engine) MatrixIncome(ctx context.Context, day time.Time) (Stats, error) {
	day = core.Day(day)
	invs, err := e.investments.MatrixUnpaid(ctx, day.AddDate(0, 0, 1))
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
			return e.payMatrix(ctx, exec, st, g, id)
		})
	})
	e.logf("%s %s: %d investments, %s credited", JobMatrixIncome, core.FormatDay(day), st.Processed, st.Credited)
	return st, err
}

func (e *Engine) payMatrix(ctx context.Context, exec core.DBExecutor, st *Stats, g *Graph, id string) error {
	inv, err := e.investments.LockInvestment(ctx, id, exec)
	if err != nil {
		return errors.Wrap(err, "locking investment")
	}
	if inv.MatrixPaidAt.Valid {
		return nil
	}
	st.Processed++

	for i, up := range g.PlacementUplines(inv.MemberID, len(e.rules.MatrixPercents)) {
		level := i + 1
		if !g.Eligible(up, inv.Slot) {
			continue
		}
		if err = e.credit(ctx, exec, st, ledger.Credit{
			MemberID:       up,
			Kind:           ledger.KindMatrixIncome,
			Amount:         core.Percent(inv.Amount, e.rules.MatrixPercents[i]),
			Key:            ledger.Key(string(ledger.KindMatrixIncome), inv.ID, strconv.Itoa(level)),
			SourceMemberID: inv.MemberID,
			InvestmentID:   inv.ID,
			Level:          level,
			Memo:           "matrix level " + strconv.Itoa(level) + " income",
		}); err != nil {
			return err
		}
	}

	inv.MatrixPaidAt = null.TimeFrom(core.NowFunc().UTC())
	return errors.Wrap(e.investments.UpdateInvestment(ctx, inv, exec), "updating investment")
}
