package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
)

type ledgerRepository struct {
	db *DB
}

func NewLedgerRepository(db *DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) EntryExists(_ context.Context, key string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	_, ok := repo.db.t.entries[key]
	return ok, nil
}

func (repo *ledgerRepository) InsertEntry(_ context.Context, e ledger.Entry, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.entries[e.IdempotencyKey]; ok {
		return errors.Errorf("duplicate idempotency key %q", e.IdempotencyKey)
	}
	repo.db.t.entries[e.IdempotencyKey] = &e
	return nil
}

func (repo *ledgerRepository) QueryEntries(_ context.Context, filter ledger.EntryFilter, _ ...core.DBExecutor) ([]ledger.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	kinds := make(map[ledger.Kind]bool, len(filter.Kinds))
	for _, k := range filter.Kinds {
		kinds[k] = true
	}
	entries := make([]ledger.Entry, 0)
	for _, e := range repo.db.t.entries {
		if filter.MemberID != "" && e.MemberID != filter.MemberID {
			continue
		}
		if len(kinds) > 0 && !kinds[e.Kind] {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To) {
			continue
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].IdempotencyKey < entries[j].IdempotencyKey
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (repo *ledgerRepository) CreateWithdrawal(_ context.Context, w ledger.Withdrawal, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.t.withdrawals[w.ID] = &w
	return nil
}

func (repo *ledgerRepository) LockWithdrawal(_ context.Context, id string, _ ...core.DBExecutor) (ledger.Withdrawal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if w, ok := repo.db.t.withdrawals[id]; ok {
		return *w, nil
	}
	return ledger.Withdrawal{}, ledger.ErrWithdrawalNotFound
}

func (repo *ledgerRepository) UpdateWithdrawal(_ context.Context, w ledger.Withdrawal, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.withdrawals[w.ID]
	if !ok {
		return ledger.ErrWithdrawalNotFound
	}
	orig.Status = w.Status
	orig.ProcessedAt = w.ProcessedAt
	return nil
}

func (repo *ledgerRepository) QueryWithdrawals(_ context.Context, memberID string, status ledger.WithdrawalStatus, _ ...core.DBExecutor) ([]ledger.Withdrawal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ws := make([]ledger.Withdrawal, 0)
	for _, w := range repo.db.t.withdrawals {
		if (memberID == "" || w.MemberID == memberID) && (status == "" || w.Status == status) {
			ws = append(ws, *w)
		}
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].CreatedAt.After(ws[j].CreatedAt) })
	return ws, nil
}
