package investment

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
)

var (
	// errors
	ErrNotFound       = errors.New("investment not found")
	ErrPlanNotFound   = errors.New("plan not found")
	ErrPlanInactive   = errors.New("plan is not available")
	ErrMemberInactive = errors.New("member account is deactivated")
)

type (
	Repository interface {
		Plans(ctx context.Context, exec ...core.DBExecutor) ([]Plan, error)
		GetPlan(ctx context.Context, slot int, exec ...core.DBExecutor) (Plan, error)
		CreateInvestment(ctx context.Context, inv Investment, exec ...core.DBExecutor) error
		// LockInvestment reads an investment and holds its row lock until the transaction ends.
		LockInvestment(ctx context.Context, id string, exec ...core.DBExecutor) (Investment, error)
		UpdateInvestment(ctx context.Context, inv Investment, exec ...core.DBExecutor) error
		ListByMember(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]Investment, error)
		// DueForProfit lists active investments created before `day` whose watermark is before `day`.
		DueForProfit(ctx context.Context, day time.Time, exec ...core.DBExecutor) ([]Investment, error)
		// MatrixUnpaid lists investments created before `until` without matrix income paid.
		MatrixUnpaid(ctx context.Context, until time.Time, exec ...core.DBExecutor) ([]Investment, error)
		// TeamUnpaid lists investments created before `until` without team commission paid.
		TeamUnpaid(ctx context.Context, until time.Time, exec ...core.DBExecutor) ([]Investment, error)
		// ActiveSummaries aggregates active investments per member.
		ActiveSummaries(ctx context.Context, exec ...core.DBExecutor) ([]Summary, error)
	}

	// Ledger is what Invest needs to pay for a package.
	Ledger interface {
		Debit(ctx context.Context, exec core.DBExecutor, d ledger.Debit) (ledger.Entry, error)
	}

	Service struct {
		db       core.Transactor
		repo     Repository
		balances ledger.Balances
		ledger   Ledger
	}
)

func NewService(db core.Transactor, repo Repository, balances ledger.Balances, lgr Ledger) *Service {
	return &Service{db: db, repo: repo, balances: balances, ledger: lgr}
}

func (svc *Service) Plans(ctx context.Context) ([]Plan, error) {
	return svc.repo.Plans(ctx)
}

func (svc *Service) PlanBySlot(ctx context.Context, slot int) (Plan, error) {
	return svc.repo.GetPlan(ctx, slot)
}

// Invest buys the package at `slot` with the member's fund wallet and raises their capping limit.
func (svc *Service) Invest(ctx context.Context, ni NewInvestment) (Investment, error) {
	var inv Investment
	err := svc.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		plan, err := svc.repo.GetPlan(ctx, ni.Slot, exec)
		if err != nil {
			if err == ErrPlanNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "slot", Error: err.Error()})
			}
			return errors.Wrap(err, "finding plan")
		}
		if !plan.IsActive {
			return core.NewValidationError(ErrPlanInactive, core.FieldError{Field: "slot", Error: ErrPlanInactive.Error()})
		}

		m, err := svc.balances.LockMember(ctx, ni.MemberID, exec)
		if err != nil {
			return errors.Wrap(err, "locking member")
		}
		if !m.IsActive {
			return ErrMemberInactive
		}

		now := core.NowFunc().UTC()
		inv = Investment{
			ID:           uuid.New().String(),
			MemberID:     m.ID,
			PlanID:       plan.ID,
			Slot:         plan.Slot,
			Amount:       plan.Amount,
			DailyPercent: plan.DailyPercent,
			MaxReturn:    core.RoundMoney(plan.Amount.Mul(plan.MaxReturnMultiplier)),
			TotalProfit:  decimal.Zero,
			Status:       StatusActive,
			CreatedAt:    now,
		}

		m.CappingLimit = m.CappingLimit.Add(core.RoundMoney(plan.Amount.Mul(plan.CappingMultiplier)))
		m.UpdatedAt = now
		if err = svc.balances.UpdateBalances(ctx, m, exec); err != nil {
			return errors.Wrap(err, "raising capping limit")
		}
		if _, err = svc.ledger.Debit(ctx, exec, ledger.Debit{
			MemberID:     m.ID,
			Kind:         ledger.KindInvestment,
			Amount:       plan.Amount,
			Key:          ledger.Key(string(ledger.KindInvestment), inv.ID),
			InvestmentID: inv.ID,
			Memo:         plan.Name + " package (slot " + strconv.Itoa(plan.Slot) + ")",
		}); err != nil {
			return err
		}
		return errors.Wrap(svc.repo.CreateInvestment(ctx, inv, exec), "inserting investment")
	})
	if err != nil {
		return Investment{}, err
	}
	return inv, nil
}

func (svc *Service) ListByMember(ctx context.Context, memberID string) ([]Investment, error) {
	return svc.repo.ListByMember(ctx, memberID)
}
