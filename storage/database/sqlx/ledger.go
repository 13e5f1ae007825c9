package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trezcool/payouts/core"
	"github.com/trezcool/payouts/core/ledger"
)

const entryColumns = `id, member_id, kind, wallet, direction, amount, requested, source_member_id, investment_id,
	level, balance_after, idempotency_key, memo, created_at`

type ledgerRepository struct {
	db *sqlx.DB
}

var _ ledger.Repository = (*ledgerRepository)(nil)

func NewLedgerRepository(db *sqlx.DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) exec(execs []core.DBExecutor) core.DBExecutor {
	return core.GetExec(repo.db, execs)
}

func (repo *ledgerRepository) EntryExists(ctx context.Context, key string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	q := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)`
	err := repo.exec(exec).GetContext(ctx, &found, q, key)
	return found, err
}

func (repo *ledgerRepository) InsertEntry(ctx context.Context, e ledger.Entry, exec ...core.DBExecutor) error {
	q := `INSERT INTO ledger_entries (` + entryColumns + `)
	VALUES (:id, :member_id, :kind, :wallet, :direction, :amount, :requested, :source_member_id, :investment_id,
		:level, :balance_after, :idempotency_key, :memo, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, e)
	return err
}

func (repo *ledgerRepository) QueryEntries(ctx context.Context, filter ledger.EntryFilter, exec ...core.DBExecutor) ([]ledger.Entry, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.MemberID != "" {
		conds = append(conds, "member_id = "+arg(filter.MemberID))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, k := range filter.Kinds {
			kinds = append(kinds, string(k))
		}
		conds = append(conds, "kind = ANY("+arg(pq.Array(kinds))+")")
	}
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at < "+arg(filter.To))
	}

	q := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		q += ` LIMIT ` + arg(filter.Limit)
	}

	entries := make([]ledger.Entry, 0)
	err := repo.exec(exec).SelectContext(ctx, &entries, q, args...)
	return entries, err
}

func (repo *ledgerRepository) CreateWithdrawal(ctx context.Context, w ledger.Withdrawal, exec ...core.DBExecutor) error {
	q := `INSERT INTO withdrawals (id, member_id, amount, fee, net_amount, address, status, created_at, processed_at)
	VALUES (:id, :member_id, :amount, :fee, :net_amount, :address, :status, :created_at, :processed_at)`
	_, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, w)
	return err
}

func (repo *ledgerRepository) LockWithdrawal(ctx context.Context, id string, exec ...core.DBExecutor) (ledger.Withdrawal, error) {
	var w ledger.Withdrawal
	if err := repo.exec(exec).GetContext(ctx, &w, `SELECT * FROM withdrawals WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Withdrawal{}, ledger.ErrWithdrawalNotFound
		}
		return ledger.Withdrawal{}, err
	}
	return w, nil
}

func (repo *ledgerRepository) UpdateWithdrawal(ctx context.Context, w ledger.Withdrawal, exec ...core.DBExecutor) error {
	q := `UPDATE withdrawals SET status = :status, processed_at = :processed_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, repo.exec(exec), q, w)
	return err
}

func (repo *ledgerRepository) QueryWithdrawals(ctx context.Context, memberID string, status ledger.WithdrawalStatus, exec ...core.DBExecutor) ([]ledger.Withdrawal, error) {
	ws := make([]ledger.Withdrawal, 0)
	q := `SELECT * FROM withdrawals
	WHERE ($1 = '' OR member_id::text = $1) AND ($2 = '' OR status = $2)
	ORDER BY created_at DESC`
	err := repo.exec(exec).SelectContext(ctx, &ws, q, memberID, string(status))
	return ws, err
}
