package income

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
)

// TradingProfit settles `day` for every due investment: the owner earns the daily
// profit if they activated it that day, and their referral uplines earn level income on it.
// The watermark advances to `day` whether or not profit was paid.
func (e *Engine) TradingProfit(ctx context.Context, day time.Time) (Stats, error) {
	day = core.Day(day)
	invs, err := e.investments.DueForProfit(ctx, day)
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing due investments")
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
			return e.settleProfit(ctx, exec, st, g, id, day)
		})
	})
	e.logf("%s %s: %d investments, %s credited", JobTradingProfit, core.FormatDay(day), st.Processed, st.Credited)
	return st, err
}

func (e *Engine) settleProfit(ctx context.Context, exec core.DBExecutor, st *Stats, g *Graph, id string, day time.Time) error {
	inv, err := e.investments.LockInvestment(ctx, id, exec)
	if err != nil {
		return errors.Wrap(err, "locking investment")
	}
	if !inv.IsActive() || inv.Settled(day) {
		return nil
	}
	st.Processed++

	if g.IsActive(inv.MemberID) && g.Activated(inv.MemberID) {
		profit := inv.DailyProfit()
		if profit.IsPositive() {
			if err = e.payProfit(ctx, exec, st, g, inv, profit, day); err != nil {
				return err
			}
			inv.TotalProfit = inv.TotalProfit.Add(profit)
			if inv.TotalProfit.GreaterThanOrEqual(inv.MaxReturn) {
				inv.Status = investment.StatusCompleted
				inv.CompletedAt = null.TimeFrom(core.NowFunc().UTC())
			}
		}
	}

	inv.LastProfitOn = null.TimeFrom(day)
	return errors.Wrap(e.investments.UpdateInvestment(ctx, inv, exec), "updating investment")
}

func (e *Engine) payProfit(ctx context.Context, exec core.DBExecutor, st *Stats, g *Graph, inv investment.Investment, profit decimal.Decimal, day time.Time) error {
	dayStr := core.FormatDay(day)
	if err := e.credit(ctx, exec, st, ledger.Credit{
		MemberID:     inv.MemberID,
		Kind:         ledger.KindTradingProfit,
		Amount:       profit,
		Key:          ledger.Key(string(ledger.KindTradingProfit), inv.ID, dayStr),
		InvestmentID: inv.ID,
		Memo:         "trading profit " + dayStr,
	}); err != nil {
		return err
	}

	// level n needs n active directs; ineligible levels are skipped, not compressed
	for i, up := range g.Uplines(inv.MemberID, len(e.rules.LevelPercents)) {
		level := i + 1
		if !g.Eligible(up, inv.Slot) || g.Stats(up).ActiveDirects < level {
			continue
		}
		if err := e.credit(ctx, exec, st, ledger.Credit{
			MemberID:       up,
			Kind:           ledger.KindLevelIncome,
			Amount:         core.Percent(profit, e.rules.LevelPercents[i]),
			Key:            ledger.Key(string(ledger.KindLevelIncome), inv.ID, dayStr, strconv.Itoa(level)),
			SourceMemberID: inv.MemberID,
			InvestmentID:   inv.ID,
			Level:          level,
			Memo:           "level " + strconv.Itoa(level) + " income " + dayStr,
		}); err != nil {
			return err
		}
	}
	return nil
}
