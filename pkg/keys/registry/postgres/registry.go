package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/registry"

	pgutil "github.com/code-payments/keys-server/pkg/database/postgres"
)

const (
	// Owned and written by the registry service
	tableName = "registry__core_subject"
)

type registryImpl struct {
	db *sqlx.DB
}

// New returns a registry.Registry that reads the registry service's table.
// It never writes to it.
func New(db *sql.DB) registry.Registry {
	return &registryImpl{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (r *registryImpl) ResolveHolder(ctx context.Context, subject string) (common.Address, error) {
	var holder string
	query := `SELECT holder FROM ` + tableName + ` WHERE subject = $1`

	// Read outside any trade transaction the context carries, so the lookup
	// can't take locks on the registry's rows.
	err := sqlx.GetContext(ctx, r.db, &holder, query, subject)
	if err != nil {
		return common.ZeroAddress, pgutil.CheckNoRows(err, registry.ErrSubjectNotFound)
	}

	address, err := common.NewAddressFromString(holder)
	if err != nil {
		return common.ZeroAddress, errors.Wrapf(err, "invalid holder address for subject %s", subject)
	}
	if address.IsZero() {
		return common.ZeroAddress, registry.ErrSubjectNotFound
	}
	return address, nil
}
