package services

import (
	"context"
	"database/sql"

	"github.com/Dosada05/league-orchestrator/db"
	"github.com/Dosada05/league-orchestrator/repositories"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

type sqlTxRunner struct {
	db *sql.DB
}

func NewSQLTxRunner(conn *sql.DB) TxRunner {
	return &sqlTxRunner{db: conn}
}

func (r *sqlTxRunner) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(tx)
	})
}
