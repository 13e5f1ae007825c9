package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
)

type (
	// Runner runs jobs for a settlement day.
	Runner interface {
		Run(ctx context.Context, job string, day time.Time, force bool) (income.JobRun, error)
		RunSequence(ctx context.Context, jobs []string, day time.Time) ([]income.JobRun, error)
	}

	// Entry runs Jobs in order each time Spec fires.
	Entry struct {
		Spec string
		Jobs []string
	}

	NextRun struct {
		Jobs []string  `json:"jobs"`
		Spec string    `json:"spec"`
		Next time.Time `json:"next"`
		Prev time.Time `json:"prev,omitempty"`
	}

	// Scheduler fires the income jobs on their cron schedules, in UTC.
	// Each fire settles the previous UTC day.
	Scheduler struct {
		cron    *cron.Cron
		runner  Runner
		logger  core.Logger
		ctx     context.Context
		cancel  context.CancelFunc
		mu      sync.Mutex
		entries map[cron.EntryID]Entry
	}
)

var dayFunc = core.Yesterday // mockable

// DefaultEntries builds the nightly and weekly entries from the income config.
func DefaultEntries(conf core.IncomeConfig) []Entry {
	return []Entry{
		{Spec: conf.ProfitSchedule, Jobs: []string{income.JobTradingProfit}},
		{Spec: conf.MatrixSchedule, Jobs: []string{income.JobMatrixIncome}},
		{Spec: conf.RankSchedule, Jobs: income.DailySequence},
		{Spec: conf.TeamSchedule, Jobs: []string{income.JobTeamCommission}},
	}
}

func New(runner Runner, logger core.Logger) *Scheduler {
	l := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		runner:  runner,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[cron.EntryID]Entry),
	}
}

// Add schedules an entry. Specs use the standard 5 fields or a descriptor like "@daily".
func (s *Scheduler) Add(e Entry) error {
	if len(e.Jobs) == 0 {
		return errors.New("scheduling entry without jobs")
	}
	id, err := s.cron.AddFunc(e.Spec, func() { s.fire(e) })
	if err != nil {
		return errors.Wrapf(err, "scheduling %s", strings.Join(e.Jobs, ","))
	}
	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) fire(e Entry) {
	day := dayFunc()
	var err error
	if len(e.Jobs) == 1 {
		_, err = s.runner.Run(s.ctx, e.Jobs[0], day, false)
	} else {
		_, err = s.runner.RunSequence(s.ctx, e.Jobs, day)
	}

	switch errors.Cause(err) {
	case nil:
	case income.ErrAlreadyCompleted, income.ErrJobLocked:
		s.logger.Warn(fmt.Sprintf("skipping %s for %s: %v", strings.Join(e.Jobs, ","), core.FormatDay(day), err))
	default:
		s.logger.Error(fmt.Sprintf("scheduled %s for %s failed: %v", strings.Join(e.Jobs, ","), core.FormatDay(day), err), err)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing, cancels running jobs and waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

// Next lists the scheduled entries by next fire time.
func (s *Scheduler) Next() []NextRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]NextRun, 0, len(s.entries))
	for _, ce := range s.cron.Entries() {
		e, ok := s.entries[ce.ID]
		if !ok {
			continue
		}
		runs = append(runs, NextRun{Jobs: e.Jobs, Spec: e.Spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Next.Before(runs[j].Next) })
	return runs
}

// cronLogger feeds robfig/cron logs into the app logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v", msg, err), append([]interface{}{err}, keysAndValues...)...)
}
