package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
)

type rewardRepository struct {
	db *DB
}

func NewRewardRepository(db *DB) income.RewardRepository {
	return &rewardRepository{db: db}
}

func (repo *rewardRepository) CreateReward(_ context.Context, r income.Reward, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.t.rewards {
		if other.MemberID == r.MemberID && other.Rank == r.Rank {
			return false, nil
		}
	}
	repo.db.t.rewards[r.ID] = &r
	return true, nil
}

func (repo *rewardRepository) LockReward(_ context.Context, id string, _ ...core.DBExecutor) (income.Reward, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.t.rewards[id]; ok {
		return *r, nil
	}
	return income.Reward{}, income.ErrRewardNotFound
}

func (repo *rewardRepository) UpdateReward(_ context.Context, r income.Reward, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.rewards[r.ID]
	if !ok {
		return income.ErrRewardNotFound
	}
	orig.Status = r.Status
	orig.PaidAt = r.PaidAt
	return nil
}

func (repo *rewardRepository) list(keep func(r *income.Reward) bool) []income.Reward {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rewards := make([]income.Reward, 0)
	for _, r := range repo.db.t.rewards {
		if keep(r) {
			rewards = append(rewards, *r)
		}
	}
	sort.Slice(rewards, func(i, j int) bool {
		if !rewards[i].EligibleOn.Equal(rewards[j].EligibleOn) {
			return rewards[i].EligibleOn.Before(rewards[j].EligibleOn)
		}
		return rewards[i].ID < rewards[j].ID
	})
	return rewards
}

func (repo *rewardRepository) DueRewards(_ context.Context, day time.Time, _ ...core.DBExecutor) ([]income.Reward, error) {
	day = core.Day(day)
	return repo.list(func(r *income.Reward) bool {
		return r.Status == income.RewardPending && !core.Day(r.EligibleOn).After(day)
	}), nil
}

func (repo *rewardRepository) QueryRewards(_ context.Context, memberID string, _ ...core.DBExecutor) ([]income.Reward, error) {
	return repo.list(func(r *income.Reward) bool { return memberID == "" || r.MemberID == memberID }), nil
}

type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) income.RunRepository {
	return &runRepository{db: db}
}

func runKey(job, key string) string { return job + "/" + key }

func (repo *runRepository) GetRun(_ context.Context, job, key string) (income.JobRun, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if run, ok := repo.db.t.runs[runKey(job, key)]; ok {
		return *run, nil
	}
	return income.JobRun{}, income.ErrRunNotFound
}

func (repo *runRepository) SaveRun(_ context.Context, run income.JobRun) (int64, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := runKey(run.Job, run.RunKey)
	if orig, ok := repo.db.t.runs[k]; ok {
		run.ID = orig.ID
	} else {
		repo.db.t.runSeq++
		run.ID = repo.db.t.runSeq
	}
	repo.db.t.runs[k] = &run
	return run.ID, nil
}

func (repo *runRepository) QueryRuns(_ context.Context, filter income.RunFilter) ([]income.JobRun, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	runs := make([]income.JobRun, 0)
	for _, run := range repo.db.t.runs {
		if (filter.Job == "" || run.Job == filter.Job) && (filter.Status == "" || run.Status == filter.Status) {
			runs = append(runs, *run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}
