package pg

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyInTx = errors.New("already executing in existing db tx")
	ErrNotInTx     = errors.New("not executing in existing db tx")
)

// activeTx is the transaction a context is bound to, along with the
// isolation level it was opened at.
type activeTx struct {
	tx        *sqlx.Tx
	isolation sql.IsolationLevel
}

type activeTxKey struct{}

func withActiveTx(ctx context.Context, active *activeTx) context.Context {
	return context.WithValue(ctx, activeTxKey{}, active)
}

func activeTxFrom(ctx context.Context) (*activeTx, bool) {
	active, ok := ctx.Value(activeTxKey{}).(*activeTx)
	return active, ok
}

// Postgres runs at read committed unless told otherwise
func normalizeIsolation(isolation sql.IsolationLevel) sql.IsolationLevel {
	if isolation == sql.LevelDefault {
		return sql.LevelReadCommitted
	}
	return isolation
}

// finish commits tx when err is nil, and otherwise rolls it back so the
// connection is released to the pool.
func finish(tx *sqlx.Tx, err error) error {
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrapf(rollbackErr, "failed to rollback transaction after: %v", err)
		}
		return err
	}
	return tx.Commit()
}

// ExecuteTxWithinCtx runs fn in a new transaction that's bound to the context
// fn receives, so every store call made with that context joins it. The
// transaction commits if fn succeeds and rolls back otherwise. Nesting is
// rejected with ErrAlreadyInTx.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	if IsInTx(ctx) {
		return ErrAlreadyInTx
	}

	isolation = normalizeIsolation(isolation)
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}

	return finish(tx, fn(withActiveTx(ctx, &activeTx{tx: tx, isolation: isolation})))
}

// ExecuteInTx is used by stores to run a write within a transaction. It joins
// the transaction bound to ctx when there is one, otherwise it opens and
// finishes its own. Joining fails when the bound transaction is weaker than
// the requested isolation.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	isolation = normalizeIsolation(isolation)

	if active, ok := activeTxFrom(ctx); ok {
		if active.isolation < isolation {
			return errors.Errorf("bound transaction runs at %s, but %s is required", active.isolation, isolation)
		}
		return fn(active.tx)
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	return finish(tx, fn(tx))
}

// Queryer returns the transaction bound to ctx, or db when there is none.
// Reads made through it observe the writes of the surrounding transaction.
func Queryer(ctx context.Context, db *sqlx.DB) sqlx.QueryerContext {
	if active, ok := activeTxFrom(ctx); ok {
		return active.tx
	}
	return db
}

// IsInTx returns whether ctx is bound to a transaction started by
// ExecuteTxWithinCtx.
func IsInTx(ctx context.Context) bool {
	_, ok := activeTxFrom(ctx)
	return ok
}
