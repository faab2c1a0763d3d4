package postgres

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/keys/data/balance"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	tableName = "keys__core_balance"
)

// Amounts are stored as NUMERIC(78, 0), which holds any 256 bit value, and are
// exchanged with the driver in their decimal text form.
func toNumeric(amount *uint256.Int) string {
	return amount.Dec()
}

func fromNumeric(value string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stored amount %q", value)
	}
	return amount, nil
}

func dbGetBalance(ctx context.Context, q sqlx.QueryerContext, asset balance.Asset, owner string) (*uint256.Int, error) {
	var value string
	query := `SELECT amount::text FROM ` + tableName + ` WHERE asset = $1 AND owner = $2`
	err := sqlx.GetContext(ctx, q, &value, query, asset, owner)
	if pgutil.IsNoRows(err) {
		return new(uint256.Int), nil
	} else if err != nil {
		return nil, err
	}
	return fromNumeric(value)
}

func dbCredit(ctx context.Context, tx *sqlx.Tx, asset balance.Asset, owner string, amount *uint256.Int) error {
	query := `INSERT INTO ` + tableName + ` (asset, owner, amount, last_updated_at)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (asset, owner)
		DO UPDATE SET amount = ` + tableName + `.amount + $3::numeric, last_updated_at = $4`
	_, err := tx.ExecContext(ctx, query, asset, owner, toNumeric(amount), time.Now().UTC())
	return pgutil.CheckViolation(err, balance.ErrOverflow)
}

func dbDebit(ctx context.Context, tx *sqlx.Tx, asset balance.Asset, owner string, amount *uint256.Int) error {
	query := `UPDATE ` + tableName + `
		SET amount = amount - $3::numeric, last_updated_at = $4
		WHERE asset = $1 AND owner = $2 AND amount >= $3::numeric`
	res, err := tx.ExecContext(ctx, query, asset, owner, toNumeric(amount), time.Now().UTC())
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	} else if rowsAffected == 0 {
		return balance.ErrInsufficientBalance
	}
	return nil
}

func dbGetTotal(ctx context.Context, q sqlx.QueryerContext, asset balance.Asset) (*uint256.Int, error) {
	var value string
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM ` + tableName + ` WHERE asset = $1`
	if err := sqlx.GetContext(ctx, q, &value, query, asset); err != nil {
		return nil, err
	}
	return fromNumeric(value)
}
