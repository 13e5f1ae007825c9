package income

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/payouts/core"
)

var (
	// errors
	ErrUnknownJob       = errors.New("unknown job")
	ErrJobLocked        = errors.New("job is already running")
	ErrAlreadyCompleted = errors.New("job already completed for this day")
	ErrRunNotFound      = errors.New("job run not found")
	ErrRewardNotFound   = errors.New("reward not found")
)

type (
	RunRepository interface {
		GetRun(ctx context.Context, job, runKey string) (JobRun, error)
		// SaveRun inserts the run, or overwrites the one with the same job and key; it returns the run id.
		SaveRun(ctx context.Context, run JobRun) (int64, error)
		QueryRuns(ctx context.Context, filter RunFilter) ([]JobRun, error)
	}

	// Locker provides cluster-wide mutual exclusion per job.
	Locker interface {
		// TryLock takes the named lock without waiting. ok is false when someone else holds it.
		TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error)
	}

	// Runner runs registered jobs at most once per settlement day.
	Runner struct {
		jobs   map[string]JobFunc
		runs   RunRepository
		locker Locker
		logger core.Logger
	}
)

func NewRunner(jobs map[string]JobFunc, runs RunRepository, locker Locker, logger core.Logger) *Runner {
	r := &Runner{
		jobs:   make(map[string]JobFunc, len(jobs)),
		runs:   runs,
		locker: locker,
		logger: logger,
	}
	for name, fn := range jobs {
		r.jobs[name] = fn
	}
	return r
}

// Jobs returns the registered job names, sorted.
func (r *Runner) Jobs() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) Has(job string) bool {
	_, ok := r.jobs[job]
	return ok
}

// Run executes `job` for `day` under the job's lock and records the run.
// A run already completed for that day is refused unless `force` is set.
func (r *Runner) Run(ctx context.Context, job string, day time.Time, force bool) (JobRun, error) {
	fn, ok := r.jobs[job]
	if !ok {
		return JobRun{}, ErrUnknownJob
	}
	day = core.Day(day)
	key := core.FormatDay(day)

	unlock, ok, err := r.locker.TryLock(ctx, "job:"+job)
	if err != nil {
		return JobRun{}, errors.Wrap(err, "acquiring job lock")
	}
	if !ok {
		return JobRun{}, ErrJobLocked
	}
	defer unlock()

	prev, err := r.runs.GetRun(ctx, job, key)
	switch {
	case err == nil:
		if prev.Status == RunCompleted && !force {
			return prev, ErrAlreadyCompleted
		}
	case errors.Cause(err) == ErrRunNotFound:
	default:
		return JobRun{}, errors.Wrap(err, "getting previous run")
	}

	run := JobRun{
		Job:       job,
		RunKey:    key,
		Status:    RunRunning,
		Credited:  decimal.Zero,
		StartedAt: core.NowFunc().UTC(),
	}
	if run.ID, err = r.runs.SaveRun(ctx, run); err != nil {
		return JobRun{}, errors.Wrap(err, "recording run")
	}
	r.logger.Info(fmt.Sprintf("running %s for %s", job, key))

	st, jobErr := r.call(ctx, fn, day)
	run.Processed = st.Processed
	run.Credited = st.Credited
	run.FinishedAt = null.TimeFrom(core.NowFunc().UTC())
	if jobErr != nil {
		run.Status = RunFailed
		run.Error = jobErr.Error()
	} else {
		run.Status = RunCompleted
	}

	// the job may have been cancelled; the outcome is still recorded
	if _, err = r.runs.SaveRun(context.Background(), run); err != nil {
		r.logger.Error(fmt.Sprintf("recording %s run: %v", job, err), err)
	}
	if jobErr != nil {
		r.logger.Error(fmt.Sprintf("%s for %s failed: %v", job, key, jobErr), jobErr)
		return run, jobErr
	}
	r.logger.Info(fmt.Sprintf("%s for %s completed: %d processed, %s credited", job, key, st.Processed, st.Credited))
	return run, nil
}

func (r *Runner) call(ctx context.Context, fn JobFunc, day time.Time) (st Stats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx, day)
}

// RunSequence runs `jobs` in order for `day`, stopping at the first failure.
// Jobs already completed for the day are skipped.
func (r *Runner) RunSequence(ctx context.Context, jobs []string, day time.Time) ([]JobRun, error) {
	runs := make([]JobRun, 0, len(jobs))
	for _, job := range jobs {
		run, err := r.Run(ctx, job, day, false)
		if err != nil {
			if err == ErrAlreadyCompleted {
				runs = append(runs, run)
				continue
			}
			return runs, errors.Wrapf(err, "running %s", job)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *Runner) Runs(ctx context.Context, filter RunFilter) ([]JobRun, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return r.runs.QueryRuns(ctx, filter)
}
