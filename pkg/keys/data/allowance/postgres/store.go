package postgres

import (
	"context"
	"database/sql"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/keys/data/allowance"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed allowance.Store
func New(db *sql.DB) allowance.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Get(ctx context.Context, owner, spender string) (*uint256.Int, error) {
	return dbGet(ctx, pgutil.Queryer(ctx, s.db), owner, spender)
}

func (s *store) Set(ctx context.Context, owner, spender string, amount *uint256.Int) error {
	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbSet(ctx, tx, owner, spender, amount)
	})
}

func (s *store) Spend(ctx context.Context, owner, spender string, amount *uint256.Int) error {
	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbSpend(ctx, tx, owner, spender, amount)
	})
}
