package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/keys/data/params"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed params.Store
func New(db *sql.DB) params.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Get(ctx context.Context) (*params.Record, error) {
	m, err := dbGet(ctx, pgutil.Queryer(ctx, s.db))
	if err != nil {
		return nil, err
	}
	return fromModel(m)
}

func (s *store) Put(ctx context.Context, record *params.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	m := toModel(record)
	m.LastUpdatedAt = time.Now().UTC()

	err := pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbPut(ctx, tx, m)
	})
	if err != nil {
		return err
	}

	record.Version++
	record.LastUpdatedAt = m.LastUpdatedAt
	return nil
}
