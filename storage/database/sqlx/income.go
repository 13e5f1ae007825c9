package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
)

type rewardRepository struct {
	db *sqlx.DB
}

var _ income.RewardRepository = (*rewardRepository)(nil)

func NewRewardRepository(db *sqlx.DB) *rewardRepository {
	return &rewardRepository{db: db}
}

func (repo *rewardRepository) exec(execs []core.DBExecutor) core.DBExecutor {
	return core.GetExec(repo.db, execs)
}

func (repo *rewardRepository) CreateReward(ctx context.Context, r income.Reward, exec ...core.DBExecutor) (bool, error) {
	q := `INSERT INTO rewards (id, member_id, rank, amount, status, eligible_on, paid_at, created_at)
	VALUES (:id, :member_id, :rank, :amount, :status, :eligible_on, :paid_at, :created_at)
	ON CONFLICT (member_id, rank) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, r)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (repo *rewardRepository) LockReward(ctx context.Context, id string, exec ...core.DBExecutor) (income.Reward, error) {
	var r income.Reward
	if err := repo.exec(exec).GetContext(ctx, &r, `SELECT * FROM rewards WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return income.Reward{}, income.ErrRewardNotFound
		}
		return income.Reward{}, err
	}
	return r, nil
}

func (repo *rewardRepository) UpdateReward(ctx context.Context, r income.Reward, exec ...core.DBExecutor) error {
	q := `UPDATE rewards SET status = :status, paid_at = :paid_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, r)
	return err
}

func (repo *rewardRepository) DueRewards(ctx context.Context, day time.Time, exec ...core.DBExecutor) ([]income.Reward, error) {
	rewards := make([]income.Reward, 0)
	q := `SELECT * FROM rewards WHERE status = 'pending' AND eligible_on <= $1 ORDER BY eligible_on, id`
	err := repo.exec(exec).SelectContext(ctx, &rewards, q, core.Day(day))
	return rewards, err
}

func (repo *rewardRepository) QueryRewards(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]income.Reward, error) {
	rewards := make([]income.Reward, 0)
	q := `SELECT * FROM rewards WHERE ($1 = '' OR member_id::text = $1) ORDER BY created_at DESC`
	err := repo.exec(exec).SelectContext(ctx, &rewards, q, memberID)
	return rewards, err
}

type runRepository struct {
	db *sqlx.DB
}

var _ income.RunRepository = (*runRepository)(nil)

func NewRunRepository(db *sqlx.DB) *runRepository {
	return &runRepository{db: db}
}

func (repo *runRepository) GetRun(ctx context.Context, job, runKey string) (income.JobRun, error) {
	var run income.JobRun
	if err := repo.db.GetContext(ctx, &run, `SELECT * FROM job_runs WHERE job = $1 AND run_key = $2`, job, runKey); err != nil {
		if err == sql.ErrNoRows {
			return income.JobRun{}, income.ErrRunNotFound
		}
		return income.JobRun{}, err
	}
	return run, nil
}

func (repo *runRepository) SaveRun(ctx context.Context, run income.JobRun) (int64, error) {
	q := `INSERT INTO job_runs (job, run_key, status, processed, credited, error, started_at, finished_at)
	VALUES (:job, :run_key, :status, :processed, :credited, :error, :started_at, :finished_at)
	ON CONFLICT (job, run_key) DO UPDATE SET status = EXCLUDED.status, processed = EXCLUDED.processed,
		credited = EXCLUDED.credited, error = EXCLUDED.error, started_at = EXCLUDED.started_at,
		finished_at = EXCLUDED.finished_at
	RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, repo.db, q, run)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var id int64
	if rows.Next() {
		if err = rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, rows.Err()
}

func (repo *runRepository) QueryRuns(ctx context.Context, filter income.RunFilter) ([]income.JobRun, error) {
	runs := make([]income.JobRun, 0)
	q := `SELECT * FROM job_runs
	WHERE ($1 = '' OR job = $1) AND ($2 = '' OR status = $2)
	ORDER BY started_at DESC, id DESC LIMIT $3`
	err := repo.db.SelectContext(ctx, &runs, q, filter.Job, string(filter.Status), filter.Limit)
	return runs, err
}
