package postgres

import (
	"context"
	"database/sql"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/keys/data/balance"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed balance.Store
func New(db *sql.DB) balance.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) GetBalance(ctx context.Context, asset balance.Asset, owner string) (*uint256.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	return dbGetBalance(ctx, pgutil.Queryer(ctx, s.db), asset, owner)
}

func (s *store) Credit(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbCredit(ctx, tx, asset, owner, amount)
	})
}

func (s *store) Debit(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbDebit(ctx, tx, asset, owner, amount)
	})
}

func (s *store) GetTotal(ctx context.Context, asset balance.Asset) (*uint256.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	return dbGetTotal(ctx, pgutil.Queryer(ctx, s.db), asset)
}
