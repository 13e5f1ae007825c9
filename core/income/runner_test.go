package income_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/testutil"
)

type fakeJobs struct {
	calls map[string]*int32
}

func (f *fakeJobs) job(name string, fn income.JobFunc) income.JobFunc {
	n := new(int32)
	f.calls[name] = n
	return func(ctx context.Context, day time.Time) (income.Stats, error) {
		atomic.AddInt32(n, 1)
		return fn(ctx, day)
	}
}

func (f *fakeJobs) count(name string) int {
	return int(atomic.LoadInt32(f.calls[name]))
}

func newRunner(t *testing.T) (*testutil.Env, *income.Runner, *fakeJobs) {
	env := testutil.NewEnv(t)
	fake := &fakeJobs{calls: make(map[string]*int32)}
	ok := func(context.Context, time.Time) (income.Stats, error) {
		return income.Stats{Processed: 2, Credited: money("5")}, nil
	}
	jobs := map[string]income.JobFunc{
		"first":  fake.job("first", ok),
		"second": fake.job("second", ok),
		"broken": fake.job("broken", func(context.Context, time.Time) (income.Stats, error) {
			return income.Stats{Processed: 1, Credited: money("1")}, errors.New("database is gone")
		}),
		"panicky": fake.job("panicky", func(context.Context, time.Time) (income.Stats, error) {
			panic("boom")
		}),
	}
	return env, income.NewRunner(jobs, env.Runs, env.DB, env.Logger), fake
}

func TestRunner_Run(t *testing.T) {
	env, runner, fake := newRunner(t)
	day := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, []string{"broken", "first", "panicky", "second"}, runner.Jobs())
	assert.True(t, runner.Has("first"))
	assert.False(t, runner.Has("payday"))

	_, err := runner.Run(ctx, "payday", day, false)
	assert.Equal(t, income.ErrUnknownJob, err)

	t.Run("completed once per day", func(t *testing.T) {
		run, err := runner.Run(ctx, "first", day, false)
		require.NoError(t, err)
		assert.Equal(t, income.RunCompleted, run.Status)
		assert.Equal(t, "2024-05-01", run.RunKey)
		assert.Equal(t, 2, run.Processed)
		assertMoney(t, "5", run.Credited)
		assert.True(t, run.FinishedAt.Valid)

		prev, err := runner.Run(ctx, "first", day, false)
		assert.Equal(t, income.ErrAlreadyCompleted, err)
		assert.Equal(t, run.ID, prev.ID)
		assert.Equal(t, 1, fake.count("first"))

		_, err = runner.Run(ctx, "first", day, true)
		require.NoError(t, err)
		assert.Equal(t, 2, fake.count("first"))

		_, err = runner.Run(ctx, "first", day.AddDate(0, 0, 1), false)
		require.NoError(t, err)
		assert.Equal(t, 3, fake.count("first"))
	})

	t.Run("failures are recorded and retried", func(t *testing.T) {
		run, err := runner.Run(ctx, "broken", day, false)
		assert.EqualError(t, err, "database is gone")
		assert.Equal(t, income.RunFailed, run.Status)
		assert.Equal(t, "database is gone", run.Error)
		assert.Equal(t, 1, run.Processed)
		assert.True(t, env.Logger.Contains("ERROR", "broken for 2024-05-01 failed"))

		_, err = runner.Run(ctx, "broken", day, false)
		assert.Error(t, err)
		assert.Equal(t, 2, fake.count("broken"))

		stored, err := env.Runs.GetRun(ctx, "broken", "2024-05-01")
		require.NoError(t, err)
		assert.Equal(t, income.RunFailed, stored.Status)
	})

	t.Run("panics fail the run", func(t *testing.T) {
		run, err := runner.Run(ctx, "panicky", day, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job panicked: boom")
		assert.Equal(t, income.RunFailed, run.Status)
	})

	t.Run("locked", func(t *testing.T) {
		unlock, ok, err := env.DB.TryLock(ctx, "job:second")
		require.NoError(t, err)
		require.True(t, ok)

		_, err = runner.Run(ctx, "second", day, false)
		assert.Equal(t, income.ErrJobLocked, err)
		assert.Zero(t, fake.count("second"))

		unlock()
		_, err = runner.Run(ctx, "second", day, false)
		assert.NoError(t, err)
	})
}

func TestRunner_RunSequence(t *testing.T) {
	_, runner, fake := newRunner(t)
	day := testutil.Date(2024, 5, 1)

	runs, err := runner.RunSequence(ctx, []string{"first", "broken", "second"}, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running broken")
	require.Len(t, runs, 1)
	assert.Zero(t, fake.count("second"), "stops at the first failure")

	runs, err = runner.RunSequence(ctx, []string{"first", "second"}, day)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, fake.count("first"), "completed jobs are skipped")
	assert.Equal(t, 1, fake.count("second"))
	for _, run := range runs {
		assert.Equal(t, income.RunCompleted, run.Status)
	}
}

func TestRunner_Runs(t *testing.T) {
	_, runner, _ := newRunner(t)
	for d := 1; d <= 3; d++ {
		_, err := runner.Run(ctx, "first", testutil.Date(2024, 5, d), false)
		require.NoError(t, err)
	}
	_, _ = runner.Run(ctx, "broken", testutil.Date(2024, 5, 1), false)

	runs, err := runner.Runs(ctx, income.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 4)

	runs, err = runner.Runs(ctx, income.RunFilter{Job: "first", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = runner.Runs(ctx, income.RunFilter{Status: income.RunFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "broken", runs[0].Job)
}

func TestRunner_engineJobs(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.SetNow(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	root := env.AddMember(t, "founder", "")
	env.Invest(t, root.ID, 1)
	env.Activate(t, root.ID, testutil.Date(2024, 5, 2))

	run, err := env.Runner.Run(ctx, income.JobTradingProfit, testutil.Date(2024, 5, 2), false)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assertMoney(t, "0.5", run.Credited)

	runs, err := env.Runner.RunSequence(ctx, income.DailySequence, testutil.Date(2024, 5, 2))
	require.NoError(t, err)
	require.Len(t, runs, len(income.DailySequence))
	for i, run := range runs {
		assert.Equal(t, income.DailySequence[i], run.Job)
		assert.Equal(t, income.RunCompleted, run.Status)
	}
}
