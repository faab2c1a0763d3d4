package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/keys/data/subject"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	subjectTableName = "keys__core_subject"
	holdingTableName = "keys__core_subjectholding"
)

type subjectModel struct {
	Id            sql.NullInt64 `db:"id"`
	Subject       string        `db:"subject"`
	Supply        int64         `db:"supply"`
	CreatedAt     time.Time     `db:"created_at"`
	LastUpdatedAt time.Time     `db:"last_updated_at"`
}

type holdingModel struct {
	Subject string `db:"subject"`
	Holder  string `db:"holder"`
	Amount  int64  `db:"amount"`
}

func fromSubjectModel(m *subjectModel) *subject.Record {
	return &subject.Record{
		Id:            uint64(m.Id.Int64),
		Subject:       m.Subject,
		Supply:        uint64(m.Supply),
		CreatedAt:     m.CreatedAt.UTC(),
		LastUpdatedAt: m.LastUpdatedAt.UTC(),
	}
}

func fromHoldingModel(m *holdingModel) *subject.Holding {
	return &subject.Holding{
		Subject: m.Subject,
		Holder:  m.Holder,
		Amount:  uint64(m.Amount),
	}
}

func dbInitialize(ctx context.Context, tx *sqlx.Tx, name, holder string) (*subjectModel, error) {
	now := time.Now().UTC()

	res := &subjectModel{}
	query := `INSERT INTO ` + subjectTableName + ` (subject, supply, created_at, last_updated_at)
		VALUES ($1, 1, $2, $2)
		RETURNING id, subject, supply, created_at, last_updated_at`
	err := tx.QueryRowxContext(ctx, query, name, now).StructScan(res)
	if err != nil {
		return nil, pgutil.CheckUniqueViolation(err, subject.ErrAlreadyExists)
	}

	if err := dbAddToHolding(ctx, tx, name, holder, 1, now); err != nil {
		return nil, err
	}
	return res, nil
}

// dbGet locks the subject row when called within a transaction, so concurrent
// trades of the same subject across processes queue up behind each other.
func dbGet(ctx context.Context, q sqlx.QueryerContext, name string) (*subjectModel, error) {
	query := `SELECT id, subject, supply, created_at, last_updated_at FROM ` + subjectTableName + `
		WHERE subject = $1`
	if _, ok := q.(*sqlx.Tx); ok {
		query += ` FOR UPDATE`
	}

	res := &subjectModel{}
	err := sqlx.GetContext(ctx, q, res, query, name)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, subject.ErrNotFound)
	}
	return res, nil
}

func dbAdjustSupply(ctx context.Context, tx *sqlx.Tx, name string, delta int64, now time.Time) (int64, error) {
	var supply int64
	query := `UPDATE ` + subjectTableName + `
		SET supply = supply + $2, last_updated_at = $3
		WHERE subject = $1
		RETURNING supply`
	err := tx.QueryRowxContext(ctx, query, name, delta, now).Scan(&supply)
	if err != nil {
		err = pgutil.CheckOutOfRange(err, subject.ErrSupplyOverflow)
		return 0, pgutil.CheckNoRows(err, subject.ErrNotFound)
	}
	return supply, nil
}

func dbAddToHolding(ctx context.Context, tx *sqlx.Tx, name, holder string, amount int64, now time.Time) error {
	query := `INSERT INTO ` + holdingTableName + ` (subject, holder, amount, last_updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, holder)
		DO UPDATE SET amount = ` + holdingTableName + `.amount + $3, last_updated_at = $4`
	_, err := tx.ExecContext(ctx, query, name, holder, amount, now)
	return err
}

func dbSubtractFromHolding(ctx context.Context, tx *sqlx.Tx, name, holder string, amount int64, now time.Time) error {
	query := `UPDATE ` + holdingTableName + `
		SET amount = amount - $3, last_updated_at = $4
		WHERE subject = $1 AND holder = $2 AND amount >= $3`
	res, err := tx.ExecContext(ctx, query, name, holder, amount, now)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	} else if rowsAffected == 0 {
		return subject.ErrInsufficientBalance
	}
	return nil
}

func dbGetBalance(ctx context.Context, q sqlx.QueryerContext, name, holder string) (int64, error) {
	var amount int64
	query := `SELECT amount FROM ` + holdingTableName + ` WHERE subject = $1 AND holder = $2`
	err := sqlx.GetContext(ctx, q, &amount, query, name, holder)
	if pgutil.IsNoRows(err) {
		return 0, nil
	}
	return amount, err
}

func dbGetHoldings(ctx context.Context, q sqlx.QueryerContext, name string) ([]*holdingModel, error) {
	res := []*holdingModel{}
	query := `SELECT subject, holder, amount FROM ` + holdingTableName + `
		WHERE subject = $1 AND amount > 0
		ORDER BY holder COLLATE "C" ASC`
	err := sqlx.SelectContext(ctx, q, &res, query, name)
	if err != nil {
		return nil, err
	}
	return res, nil
}
