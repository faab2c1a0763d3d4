package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	tableName = "keys__core_trade"

	allColumns = `id, trade_id, subject, trader, rights_holder, referrer, direction, rail, amount,
		gross_price::text, protocol_fee::text, subject_fee::text, referrer_fee::text, total::text, supply, created_at`
)

type model struct {
	Id           sql.NullInt64 `db:"id"`
	TradeId      string        `db:"trade_id"`
	Subject      string        `db:"subject"`
	Trader       string        `db:"trader"`
	RightsHolder string        `db:"rights_holder"`
	Referrer     string        `db:"referrer"`
	Direction    int16         `db:"direction"`
	Rail         string        `db:"rail"`
	Amount       int64         `db:"amount"`
	GrossPrice   string        `db:"gross_price"`
	ProtocolFee  string        `db:"protocol_fee"`
	SubjectFee   string        `db:"subject_fee"`
	ReferrerFee  string        `db:"referrer_fee"`
	Total        string        `db:"total"`
	Supply       int64         `db:"supply"`
	CreatedAt    time.Time     `db:"created_at"`
}

func toModel(r *trade.Record) (*model, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &model{
		TradeId:      r.TradeId,
		Subject:      r.Subject,
		Trader:       r.Trader,
		RightsHolder: r.RightsHolder,
		Referrer:     r.Referrer,
		Direction:    int16(r.Direction),
		Rail:         r.Rail,
		Amount:       int64(r.Amount),
		GrossPrice:   r.GrossPrice.Dec(),
		ProtocolFee:  r.ProtocolFee.Dec(),
		SubjectFee:   r.SubjectFee.Dec(),
		ReferrerFee:  r.ReferrerFee.Dec(),
		Total:        r.Total.Dec(),
		Supply:       int64(r.Supply),
		CreatedAt:    createdAt.UTC(),
	}, nil
}

func fromModel(m *model) (*trade.Record, error) {
	var values [5]*uint256.Int
	for i, text := range []string{m.GrossPrice, m.ProtocolFee, m.SubjectFee, m.ReferrerFee, m.Total} {
		value, err := uint256.FromDecimal(text)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid stored amount %q", text)
		}
		values[i] = value
	}

	return &trade.Record{
		Id:           uint64(m.Id.Int64),
		TradeId:      m.TradeId,
		Subject:      m.Subject,
		Trader:       m.Trader,
		RightsHolder: m.RightsHolder,
		Referrer:     m.Referrer,
		Direction:    trade.Direction(m.Direction),
		Rail:         m.Rail,
		Amount:       uint64(m.Amount),
		GrossPrice:   values[0],
		ProtocolFee:  values[1],
		SubjectFee:   values[2],
		ReferrerFee:  values[3],
		Total:        values[4],
		Supply:       uint64(m.Supply),
		CreatedAt:    m.CreatedAt.UTC(),
	}, nil
}

func (m *model) dbPut(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(trade_id, subject, trader, rights_holder, referrer, direction, rail, amount,
			gross_price, protocol_fee, subject_fee, referrer_fee, total, supply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric, $14, $15)
		RETURNING id`
	err := tx.QueryRowxContext(
		ctx,
		query,
		m.TradeId,
		m.Subject,
		m.Trader,
		m.RightsHolder,
		m.Referrer,
		m.Direction,
		m.Rail,
		m.Amount,
		m.GrossPrice,
		m.ProtocolFee,
		m.SubjectFee,
		m.ReferrerFee,
		m.Total,
		m.Supply,
		m.CreatedAt,
	).Scan(&m.Id)
	return pgutil.CheckUniqueViolation(err, trade.ErrAlreadyExists)
}

func dbGet(ctx context.Context, q sqlx.QueryerContext, tradeId string) (*model, error) {
	res := &model{}
	query := `SELECT ` + allColumns + ` FROM ` + tableName + ` WHERE trade_id = $1`
	err := sqlx.GetContext(ctx, q, res, query, tradeId)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, trade.ErrNotFound)
	}
	return res, nil
}

func dbGetAllBy(ctx context.Context, q sqlx.QueryerContext, column, value string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*model, error) {
	res := []*model{}
	sqlQuery, args := query.PaginateQuery(
		`SELECT `+allColumns+` FROM `+tableName+` WHERE (`+column+` = $1)`,
		[]interface{}{value},
		cursor,
		limit,
		direction,
	)
	err := sqlx.SelectContext(ctx, q, &res, sqlQuery, args...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, trade.ErrNotFound)
	}
	if len(res) == 0 {
		return nil, trade.ErrNotFound
	}
	return res, nil
}

func dbCountBySubject(ctx context.Context, q sqlx.QueryerContext, subject string) (uint64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM ` + tableName + ` WHERE subject = $1`
	if err := sqlx.GetContext(ctx, q, &count, query, subject); err != nil {
		return 0, err
	}
	return uint64(count), nil
}
