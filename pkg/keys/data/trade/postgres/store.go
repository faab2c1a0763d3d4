package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed trade.Store
func New(db *sql.DB) trade.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Put(ctx context.Context, record *trade.Record) error {
	m, err := toModel(record)
	if err != nil {
		return err
	}

	err = pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return m.dbPut(ctx, tx)
	})
	if err != nil {
		return err
	}

	record.Id = uint64(m.Id.Int64)
	record.CreatedAt = m.CreatedAt
	return nil
}

func (s *store) Get(ctx context.Context, tradeId string) (*trade.Record, error) {
	m, err := dbGet(ctx, pgutil.Queryer(ctx, s.db), tradeId)
	if err != nil {
		return nil, err
	}
	return fromModel(m)
}

func (s *store) GetAllBySubject(ctx context.Context, subject string, opts ...query.Option) ([]*trade.Record, error) {
	return s.getAllBy(ctx, "subject", subject, opts...)
}

func (s *store) GetAllByTrader(ctx context.Context, trader string, opts ...query.Option) ([]*trade.Record, error) {
	return s.getAllBy(ctx, "trader", trader, opts...)
}

func (s *store) CountBySubject(ctx context.Context, subject string) (uint64, error) {
	return dbCountBySubject(ctx, pgutil.Queryer(ctx, s.db), subject)
}

func (s *store) getAllBy(ctx context.Context, column, value string, opts ...query.Option) ([]*trade.Record, error) {
	req, err := query.DefaultPaginationHandler(opts...)
	if err != nil {
		return nil, err
	}

	models, err := dbGetAllBy(ctx, pgutil.Queryer(ctx, s.db), column, value, req.Cursor, req.Limit, req.SortBy)
	if err != nil {
		return nil, err
	}

	res := make([]*trade.Record, len(models))
	for i, m := range models {
		res[i], err = fromModel(m)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
