package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// Transactor runs fn inside a single database transaction.
	// fn's error (or a panic) rolls the transaction back; exec must not escape fn.
	Transactor interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
		// RunReadOnly runs fn's reads against one consistent snapshot of the database.
		RunReadOnly(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// GetExec returns the first non-nil executor of execs, or def.
func GetExec(def DBExecutor, execs []DBExecutor) DBExecutor {
	if len(execs) > 0 && execs[0] != nil {
		return execs[0]
	}
	return def
}
