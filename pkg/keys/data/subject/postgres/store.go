package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/keys/data/subject"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed subject.Store
func New(db *sql.DB) subject.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Initialize(ctx context.Context, name, holder string) (*subject.Record, error) {
	var res *subjectModel
	err := pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) (err error) {
		res, err = dbInitialize(ctx, tx, name, holder)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromSubjectModel(res), nil
}

func (s *store) Get(ctx context.Context, name string) (*subject.Record, error) {
	m, err := dbGet(ctx, pgutil.Queryer(ctx, s.db), name)
	if err != nil {
		return nil, err
	}
	return fromSubjectModel(m), nil
}

func (s *store) Mint(ctx context.Context, name, holder string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, subject.ErrInvalidAmount
	}
	if amount > subject.MaxSupply {
		return 0, subject.ErrSupplyOverflow
	}

	var supply int64
	err := pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) (err error) {
		now := time.Now().UTC()

		supply, err = dbAdjustSupply(ctx, tx, name, int64(amount), now)
		if err != nil {
			return err
		}
		return dbAddToHolding(ctx, tx, name, holder, int64(amount), now)
	})
	if err != nil {
		return 0, err
	}
	return uint64(supply), nil
}

func (s *store) Burn(ctx context.Context, name, holder string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, subject.ErrInvalidAmount
	}
	if amount > subject.MaxSupply {
		return 0, subject.ErrInsufficientBalance
	}

	var supply int64
	err := pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) (err error) {
		now := time.Now().UTC()

		if _, err = dbGet(ctx, tx, name); err != nil {
			return err
		}

		if err = dbSubtractFromHolding(ctx, tx, name, holder, int64(amount), now); err != nil {
			return err
		}

		supply, err = dbAdjustSupply(ctx, tx, name, -int64(amount), now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return uint64(supply), nil
}

func (s *store) GetBalance(ctx context.Context, name, holder string) (uint64, error) {
	amount, err := dbGetBalance(ctx, pgutil.Queryer(ctx, s.db), name, holder)
	if err != nil {
		return 0, err
	}
	return uint64(amount), nil
}

func (s *store) GetHoldings(ctx context.Context, name string) ([]*subject.Holding, error) {
	q := pgutil.Queryer(ctx, s.db)
	if _, err := dbGet(ctx, q, name); err != nil {
		return nil, err
	}

	models, err := dbGetHoldings(ctx, q, name)
	if err != nil {
		return nil, err
	}

	res := make([]*subject.Holding, len(models))
	for i, m := range models {
		res[i] = fromHoldingModel(m)
	}
	return res, nil
}
