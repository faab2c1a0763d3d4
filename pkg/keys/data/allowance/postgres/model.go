package postgres

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/keys/data/allowance"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	tableName = "keys__core_allowance"
)

func dbGet(ctx context.Context, q sqlx.QueryerContext, owner, spender string) (*uint256.Int, error) {
	var value string
	query := `SELECT amount::text FROM ` + tableName + ` WHERE owner = $1 AND spender = $2`
	err := sqlx.GetContext(ctx, q, &value, query, owner, spender)
	if pgutil.IsNoRows(err) {
		return new(uint256.Int), nil
	} else if err != nil {
		return nil, err
	}

	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stored allowance %q", value)
	}
	return amount, nil
}

func dbSet(ctx context.Context, tx *sqlx.Tx, owner, spender string, amount *uint256.Int) error {
	query := `INSERT INTO ` + tableName + ` (owner, spender, amount, last_updated_at)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (owner, spender)
		DO UPDATE SET amount = $3::numeric, last_updated_at = $4`
	_, err := tx.ExecContext(ctx, query, owner, spender, amount.Dec(), time.Now().UTC())
	return err
}

func dbSpend(ctx context.Context, tx *sqlx.Tx, owner, spender string, amount *uint256.Int) error {
	query := `UPDATE ` + tableName + `
		SET amount = amount - $3::numeric, last_updated_at = $4
		WHERE owner = $1 AND spender = $2 AND amount >= $3::numeric`
	res, err := tx.ExecContext(ctx, query, owner, spender, amount.Dec(), time.Now().UTC())
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	} else if rowsAffected == 0 {
		return allowance.ErrInsufficientAllowance
	}
	return nil
}
