package postgres

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/keys/data/params"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	tableName = "keys__core_marketparams"

	// The market has exactly one parameter set
	singletonId = 1
)

type model struct {
	FeeReceiver        string    `db:"fee_receiver"`
	ProtocolFeePercent string    `db:"protocol_fee_percent"`
	SubjectFeePercent  string    `db:"subject_fee_percent"`
	ReferrerFeePercent string    `db:"referrer_fee_percent"`
	CurveRatio         string    `db:"curve_ratio"`
	Version            int64     `db:"version"`
	LastUpdatedAt      time.Time `db:"last_updated_at"`
}

func toModel(r *params.Record) *model {
	return &model{
		FeeReceiver:        r.FeeReceiver,
		ProtocolFeePercent: r.ProtocolFeePercent.Dec(),
		SubjectFeePercent:  r.SubjectFeePercent.Dec(),
		ReferrerFeePercent: r.ReferrerFeePercent.Dec(),
		CurveRatio:         r.CurveRatio.Dec(),
		Version:            int64(r.Version),
		LastUpdatedAt:      r.LastUpdatedAt,
	}
}

func fromModel(m *model) (*params.Record, error) {
	var values [4]*uint256.Int
	for i, text := range []string{m.ProtocolFeePercent, m.SubjectFeePercent, m.ReferrerFeePercent, m.CurveRatio} {
		value, err := uint256.FromDecimal(text)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid stored value %q", text)
		}
		values[i] = value
	}

	return &params.Record{
		FeeReceiver:        m.FeeReceiver,
		ProtocolFeePercent: values[0],
		SubjectFeePercent:  values[1],
		ReferrerFeePercent: values[2],
		CurveRatio:         values[3],
		Version:            uint64(m.Version),
		LastUpdatedAt:      m.LastUpdatedAt.UTC(),
	}, nil
}

func dbGet(ctx context.Context, q sqlx.QueryerContext) (*model, error) {
	res := &model{}
	query := `SELECT fee_receiver, protocol_fee_percent::text, subject_fee_percent::text, referrer_fee_percent::text, curve_ratio::text, version, last_updated_at
		FROM ` + tableName + ` WHERE id = $1`
	err := sqlx.GetContext(ctx, q, res, query, singletonId)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, params.ErrNotFound)
	}
	return res, nil
}

// dbPut writes m with version m.Version+1, but only if the stored version is
// still m.Version.
func dbPut(ctx context.Context, tx *sqlx.Tx, m *model) error {
	var query string
	if m.Version == 0 {
		query = `INSERT INTO ` + tableName + `
			(id, fee_receiver, protocol_fee_percent, subject_fee_percent, referrer_fee_percent, curve_ratio, version, last_updated_at)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7 + 1, $8)
			ON CONFLICT (id) DO NOTHING`
	} else {
		query = `UPDATE ` + tableName + `
			SET fee_receiver = $2, protocol_fee_percent = $3::numeric, subject_fee_percent = $4::numeric,
				referrer_fee_percent = $5::numeric, curve_ratio = $6::numeric, version = $7 + 1, last_updated_at = $8
			WHERE id = $1 AND version = $7`
	}

	res, err := tx.ExecContext(
		ctx,
		query,
		singletonId,
		m.FeeReceiver,
		m.ProtocolFeePercent,
		m.SubjectFeePercent,
		m.ReferrerFeePercent,
		m.CurveRatio,
		m.Version,
		m.LastUpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	} else if rowsAffected == 0 {
		return params.ErrStaleVersion
	}
	return nil
}
