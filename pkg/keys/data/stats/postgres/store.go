package postgres

import (
	"context"
	"database/sql"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"

	"github.com/code-payments/keys-server/pkg/keys/data/stats"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed stats.Store
func New(db *sql.DB) stats.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) AddWriter(ctx context.Context, writer string) error {
	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbAddWriter(ctx, tx, writer)
	})
}

func (s *store) RemoveWriter(ctx context.Context, writer string) error {
	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbRemoveWriter(ctx, tx, writer)
	})
}

func (s *store) IsWriter(ctx context.Context, writer string) (bool, error) {
	return dbIsWriter(ctx, pgutil.Queryer(ctx, s.db), writer)
}

func (s *store) AddVolume(ctx context.Context, kind stats.Kind, key string, volume *uint256.Int) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	return pgutil.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return dbAddVolume(ctx, tx, kind, key, volume)
	})
}

func (s *store) GetVolume(ctx context.Context, kind stats.Kind, key string) (*stats.Volume, error) {
	m, err := dbGetVolume(ctx, pgutil.Queryer(ctx, s.db), kind, key)
	if err != nil {
		return nil, err
	}
	return fromVolumeModel(m)
}
