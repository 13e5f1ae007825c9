package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/income"
	"github.com/trezcool/payouts/core/investment"
	"github.com/trezcool/payouts/core/ledger"
	"github.com/trezcool/payouts/core/member"
)

type tables struct {
	members     map[string]*member.Member
	activations map[string]map[string]bool // {day: {member id}}
	plans       map[int]*investment.Plan    // {slot: plan}
	investments map[string]*investment.Investment
	entries     map[string]*ledger.Entry // {idempotency key: entry}
	withdrawals map[string]*ledger.Withdrawal
	rewards     map[string]*income.Reward
	runs        map[string]*income.JobRun // {job/key: run}
	runSeq      int64
}

func (t *tables) clone() *tables {
	c := &tables{
		members:     make(map[string]*member.Member, len(t.members)),
		activations: make(map[string]map[string]bool, len(t.activations)),
		plans:       make(map[int]*investment.Plan, len(t.plans)),
		investments: make(map[string]*investment.Investment, len(t.investments)),
		entries:     make(map[string]*ledger.Entry, len(t.entries)),
		withdrawals: make(map[string]*ledger.Withdrawal, len(t.withdrawals)),
		rewards:     make(map[string]*income.Reward, len(t.rewards)),
		runs:        make(map[string]*income.JobRun, len(t.runs)),
		runSeq:      t.runSeq,
	}
	for k, v := range t.members {
		m := *v
		c.members[k] = &m
	}
	for day, set := range t.activations {
		s := make(map[string]bool, len(set))
		for id := range set {
			s[id] = true
		}
		c.activations[day] = s
	}
	for k, v := range t.plans {
		p := *v
		c.plans[k] = &p
	}
	for k, v := range t.investments {
		inv := *v
		c.investments[k] = &inv
	}
	for k, v := range t.entries {
		e := *v
		c.entries[k] = &e
	}
	for k, v := range t.withdrawals {
		w := *v
		c.withdrawals[k] = &w
	}
	for k, v := range t.rewards {
		r := *v
		c.rewards[k] = &r
	}
	for k, v := range t.runs {
		r := *v
		c.runs[k] = &r
	}
	return c
}

// DB is an in-memory store implementing every repository, the Transactor and the job Locker.
// Transactions run one at a time and are undone by restoring a snapshot of the tables.
// There is no SQL executor: transaction functions receive a nil core.DBExecutor.
type DB struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	t    *tables

	locksMu sync.Mutex
	locks   map[string]bool
}

var (
	_ core.Transactor = (*DB)(nil)
	_ income.Locker   = (*DB)(nil)
)

func Open() (*DB, error) {
	db := &DB{
		t: &tables{
			members:     make(map[string]*member.Member),
			activations: make(map[string]map[string]bool),
			plans:       make(map[int]*investment.Plan),
			investments: make(map[string]*investment.Investment),
			entries:     make(map[string]*ledger.Entry),
			withdrawals: make(map[string]*ledger.Withdrawal),
			rewards:     make(map[string]*income.Reward),
			runs:        make(map[string]*income.JobRun),
		},
		locks: make(map[string]bool),
	}
	for i, p := range DefaultPlans() {
		p := p
		p.ID = i + 1
		db.t.plans[p.Slot] = &p
	}
	return db, nil
}

func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.t.clone()
	db.mu.RUnlock()

	rollback := func() {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(nil); err != nil {
		rollback()
	}
	return err
}

// RunReadOnly holds off other transactions while fn reads.
func (db *DB) RunReadOnly(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return fn(nil)
}

func (db *DB) TryLock(_ context.Context, name string) (func(), bool, error) {
	db.locksMu.Lock()
	defer db.locksMu.Unlock()
	if db.locks[name] {
		return nil, false, nil
	}
	db.locks[name] = true
	unlock := func() {
		db.locksMu.Lock()
		delete(db.locks, name)
		db.locksMu.Unlock()
	}
	return unlock, true, nil
}
