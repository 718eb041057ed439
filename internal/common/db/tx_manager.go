package db

import (
	"context"

	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

type TxManager interface {
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

// PgTxManager runs fn inside one transaction bounded by DBQueryTimeout. The
// transaction commits only when fn returns nil; any error or panic rolls it
// back, so callers never observe a half-applied unit.
type PgTxManager struct {
	pool    *pgxpool.Pool
	options pgx.TxOptions
}

func NewPgTxManager(pool *pgxpool.Pool, options pgx.TxOptions) *PgTxManager {
	return &PgTxManager{pool: pool, options: options}
}

func (m *PgTxManager) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DBQueryTimeout)
	defer cancel()

	tx, err := m.pool.BeginTx(ctx, m.options)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(ctx, tx)
	return err
}
