package income

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
)

// DefaultWorkers bounds the per-investment fan-out when none is configured.
const DefaultWorkers = 8

type (
	// JobFunc settles a job for `day`.
	JobFunc func(ctx context.Context, day time.Time) (Stats, error)

	MemberStore interface {
		ListNodes(ctx context.Context, exec ...core.DBExecutor) ([]member.Node, error)
		ActivatedOn(ctx context.Context, day time.Time, exec ...core.DBExecutor) (map[string]bool, error)
		LockMember(ctx context.Context, id string, exec ...core.DBExecutor) (member.Member, error)
		SetRank(ctx context.Context, id string, rank int, exec ...core.DBExecutor) error
		ResetLoginCounts(ctx context.Context, exec ...core.DBExecutor) (int, error)
	}

	RewardRepository interface {
		// CreateReward inserts a pending reward; false when the member already has one for the rank.
		CreateReward(ctx context.Context, r Reward, exec ...core.DBExecutor) (bool, error)
		// LockReward reads a reward and holds its row lock until the transaction ends.
		LockReward(ctx context.Context, id string, exec ...core.DBExecutor) (Reward, error)
		UpdateReward(ctx context.Context, r Reward, exec ...core.DBExecutor) error
		// DueRewards lists pending rewards eligible on or before `day`.
		DueRewards(ctx context.Context, day time.Time, exec ...core.DBExecutor) ([]Reward, error)
		QueryRewards(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]Reward, error)
	}

	Ledger interface {
		Credit(ctx context.Context, exec core.DBExecutor, c ledger.Credit) (ledger.Entry, error)
	}

	Deps struct {
		DB          core.Transactor
		Members     MemberStore
		Investments investment.Repository
		Rewards     RewardRepository
		Ledger      Ledger
		Mailer      core.EmailService
		Logger      core.Logger
	}

	// Engine computes and credits income. Every job is safe to rerun for the same day:
	// each credit carries an idempotency key and each unit of work commits on its own.
	Engine struct {
		db          core.Transactor
		members     MemberStore
		investments investment.Repository
		rewards     RewardRepository
		ledger      Ledger
		mailer      core.EmailService
		logger      core.Logger
		rules       Rules
		workers     int
	}
)

func NewEngine(deps Deps, rules Rules, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		db:          deps.DB,
		members:     deps.Members,
		investments: deps.Investments,
		rewards:     deps.Rewards,
		ledger:      deps.Ledger,
		mailer:      deps.Mailer,
		logger:      deps.Logger,
		rules:       rules,
		workers:     workers,
	}
}

func (e *Engine) Rules() Rules { return e.rules }

// Jobs maps every job name to its implementation.
func (e *Engine) Jobs() map[string]JobFunc {
	return map[string]JobFunc{
		JobTradingProfit:  e.TradingProfit,
		JobMatrixIncome:   e.MatrixIncome,
		JobRankUpdate:     e.RankUpdate,
		JobTeamReward:     e.TeamReward,
		JobActiveReward:   e.ActiveReward,
		JobLoginReset:     e.LoginReset,
		JobTeamCommission: e.TeamCommission,
	}
}

// credit writes `c` and tallies it in `st`. Credits already recorded are counted as skipped.
func (e *Engine) credit(ctx context.Context, exec core.DBExecutor, st *Stats, c ledger.Credit) error {
	c.Amount = core.RoundMoney(c.Amount)
	if !c.Amount.IsPositive() {
		return nil
	}
	entry, err := e.ledger.Credit(ctx, exec, c)
	if err != nil {
		if errors.Cause(err) == ledger.ErrDuplicateEntry {
			st.Skipped++
			return nil
		}
		return errors.Wrapf(err, "crediting %s", c.Key)
	}
	st.add(entry)
	return nil
}

// inTx runs one unit of work in its own transaction and returns what it tallied once committed.
func (e *Engine) inTx(ctx context.Context, fn func(exec core.DBExecutor, st *Stats) error) (Stats, error) {
	var st Stats
	err := e.db.RunInTx(ctx, func(exec core.DBExecutor) error {
		st = Stats{} // the transaction may be retried
		return fn(exec, &st)
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// forEach runs fn for every id on at most e.workers goroutines; the first error cancels the rest.
func (e *Engine) forEach(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (Stats, error)) (Stats, error) {
	var (
		mu    sync.Mutex
		total Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := fn(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			total.merge(st)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return total, err
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Info(fmt.Sprintf(format, args...))
	}
}

func investmentIDs(invs []investment.Investment) []string {
	ids := make([]string, 0, len(invs))
	for _, inv := range invs {
		ids = append(ids, inv.ID)
	}
	return ids
}
