package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/investment"
)

const investmentColumns = `id, member_id, plan_id, slot, amount, daily_percent, max_return, total_profit, status,
	last_profit_on, matrix_paid_at, team_paid_at, created_at, completed_at`

type investmentRepository struct {
	db *sqlx.DB
}

var _ investment.Repository = (*investmentRepository)(nil)

func NewInvestmentRepository(db *sqlx.DB) *investmentRepository {
	return &investmentRepository{db: db}
}

func (repo *investmentRepository) exec(execs []core.DBExecutor) core.DBExecutor {
	return core.GetExec(repo.db, execs)
}

func (repo *investmentRepository) Plans(ctx context.Context, exec ...core.DBExecutor) ([]investment.Plan, error) {
	plans := make([]investment.Plan, 0)
	err := repo.exec(exec).SelectContext(ctx, &plans, `SELECT * FROM plans ORDER BY slot`)
	return plans, err
}

func (repo *investmentRepository) GetPlan(ctx context.Context, slot int, exec ...core.DBExecutor) (investment.Plan, error) {
	var p investment.Plan
	if err := repo.exec(exec).GetContext(ctx, &p, `SELECT * FROM plans WHERE slot = $1`, slot); err != nil {
		if err == sql.ErrNoRows {
			return investment.Plan{}, investment.ErrPlanNotFound
		}
		return investment.Plan{}, err
	}
	return p, nil
}

func (repo *investmentRepository) CreateInvestment(ctx context.Context, inv investment.Investment, exec ...core.DBExecutor) error {
	q := `INSERT INTO investments (` + investmentColumns + `)
	VALUES (:id, :member_id, :plan_id, :slot, :amount, :daily_percent, :max_return, :total_profit, :status,
		:last_profit_on, :matrix_paid_at, :team_paid_at, :created_at, :completed_at)`
	_, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, inv)
	return err
}

func (repo *investmentRepository) LockInvestment(ctx context.Context, id string, exec ...core.DBExecutor) (investment.Investment, error) {
	var inv investment.Investment
	q := `SELECT ` + investmentColumns + ` FROM investments WHERE id = $1 FOR UPDATE`
	if err := repo.exec(exec).GetContext(ctx, &inv, q, id); err != nil {
		if err == sql.ErrNoRows {
			return investment.Investment{}, investment.ErrNotFound
		}
		return investment.Investment{}, err
	}
	return inv, nil
}

func (repo *investmentRepository) UpdateInvestment(ctx context.Context, inv investment.Investment, exec ...core.DBExecutor) error {
	q := `UPDATE investments SET total_profit = :total_profit, status = :status, last_profit_on = :last_profit_on,
		matrix_paid_at = :matrix_paid_at, team_paid_at = :team_paid_at, completed_at = :completed_at
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, inv)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return investment.ErrNotFound
	}
	return nil
}

func (repo *investmentRepository) list(ctx context.Context, exec core.DBExecutor, where string, args ...interface{}) ([]investment.Investment, error) {
	invs := make([]investment.Investment, 0)
	q := `SELECT ` + investmentColumns + ` FROM investments WHERE ` + where + ` ORDER BY created_at, id`
	err := exec.SelectContext(ctx, &invs, q, args...)
	return invs, err
}

func (repo *investmentRepository) ListByMember(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]investment.Investment, error) {
	return repo.list(ctx, repo.exec(exec), `member_id = $1`, memberID)
}

func (repo *investmentRepository) DueForProfit(ctx context.Context, day time.Time, exec ...core.DBExecutor) ([]investment.Investment, error) {
	where := `status = 'active' AND created_at < $1 AND (last_profit_on IS NULL OR last_profit_on < $1)`
	return repo.list(ctx, repo.exec(exec), where, core.Day(day))
}

func (repo *investmentRepository) MatrixUnpaid(ctx context.Context, until time.Time, exec ...core.DBExecutor) ([]investment.Investment, error) {
	return repo.list(ctx, repo.exec(exec), `matrix_paid_at IS NULL AND created_at < $1`, until)
}

func (repo *investmentRepository) TeamUnpaid(ctx context.Context, until time.Time, exec ...core.DBExecutor) ([]investment.Investment, error) {
	return repo.list(ctx, repo.exec(exec), `team_paid_at IS NULL AND created_at < $1`, until)
}

func (repo *investmentRepository) ActiveSummaries(ctx context.Context, exec ...core.DBExecutor) ([]investment.Summary, error) {
	sums := make([]investment.Summary, 0)
	q := `SELECT member_id, COUNT(*) AS count, SUM(amount) AS amount, MAX(slot) AS top_slot
	FROM investments WHERE status = 'active' GROUP BY member_id`
	err := repo.exec(exec).SelectContext(ctx, &sums, q)
	return sums, err
}
