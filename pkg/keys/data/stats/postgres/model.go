package postgres

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/keys/data/stats"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	writerTableName = "keys__core_statswriter"
	volumeTableName = "keys__core_statsvolume"
)

type volumeModel struct {
	Kind          string    `db:"kind"`
	Key           string    `db:"key"`
	Volume        string    `db:"volume"`
	TradeCount    int64     `db:"trade_count"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func fromVolumeModel(m *volumeModel) (*stats.Volume, error) {
	volume, err := uint256.FromDecimal(m.Volume)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stored volume %q", m.Volume)
	}

	return &stats.Volume{
		Kind:          stats.Kind(m.Kind),
		Key:           m.Key,
		Volume:        volume,
		TradeCount:    uint64(m.TradeCount),
		LastUpdatedAt: m.LastUpdatedAt.UTC(),
	}, nil
}

func dbAddWriter(ctx context.Context, tx *sqlx.Tx, writer string) error {
	query := `INSERT INTO ` + writerTableName + ` (writer, created_at)
		VALUES ($1, $2)
		ON CONFLICT (writer) DO NOTHING`
	_, err := tx.ExecContext(ctx, query, writer, time.Now().UTC())
	return err
}

func dbRemoveWriter(ctx context.Context, tx *sqlx.Tx, writer string) error {
	query := `DELETE FROM ` + writerTableName + ` WHERE writer = $1`
	_, err := tx.ExecContext(ctx, query, writer)
	return err
}

func dbIsWriter(ctx context.Context, q sqlx.QueryerContext, writer string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + writerTableName + ` WHERE writer = $1)`
	err := sqlx.GetContext(ctx, q, &exists, query, writer)
	return exists, err
}

func dbAddVolume(ctx context.Context, tx *sqlx.Tx, kind stats.Kind, key string, volume *uint256.Int) error {
	query := `INSERT INTO ` + volumeTableName + ` (kind, key, volume, trade_count, last_updated_at)
		VALUES ($1, $2, $3::numeric, 1, $4)
		ON CONFLICT (kind, key)
		DO UPDATE SET volume = ` + volumeTableName + `.volume + $3::numeric, trade_count = ` + volumeTableName + `.trade_count + 1, last_updated_at = $4`
	_, err := tx.ExecContext(ctx, query, kind, key, volume.Dec(), time.Now().UTC())
	return pgutil.CheckViolation(err, stats.ErrOverflow)
}

func dbGetVolume(ctx context.Context, q sqlx.QueryerContext, kind stats.Kind, key string) (*volumeModel, error) {
	res := &volumeModel{}
	query := `SELECT kind, key, volume::text, trade_count, last_updated_at FROM ` + volumeTableName + `
		WHERE kind = $1 AND key = $2`
	err := sqlx.GetContext(ctx, q, res, query, kind, key)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, stats.ErrNotFound)
	}
	return res, nil
}
