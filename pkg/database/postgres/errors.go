package pg

import (
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/retry"
)

const maxSerializationRetries = 5

// IsNoRows returns whether err is, or wraps, sql.ErrNoRows
func IsNoRows(err error) bool {
	return err != nil && errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation returns whether err is a postgres unique_violation
func IsUniqueViolation(err error) bool {
	return sqlState(err) == pgerrcode.UniqueViolation
}

// IsSerializationFailure returns whether err is a postgres serialization
// failure, which is raised when a serializable transaction must be retried.
func IsSerializationFailure(err error) bool {
	return sqlState(err) == pgerrcode.SerializationFailure
}

// CheckNoRows maps sql.ErrNoRows to outErr
func CheckNoRows(inErr, outErr error) error {
	return substitute(inErr, outErr, IsNoRows)
}

// CheckUniqueViolation maps unique constraint violations to outErr
func CheckUniqueViolation(inErr, outErr error) error {
	return substitute(inErr, outErr, IsUniqueViolation)
}

// CheckViolation maps check constraint violations to outErr. Balance and
// supply columns carry check constraints against going negative.
func CheckViolation(inErr, outErr error) error {
	return substitute(inErr, outErr, func(err error) bool {
		return sqlState(err) == pgerrcode.CheckViolation
	})
}

// CheckOutOfRange maps numeric_value_out_of_range to outErr, which postgres
// raises when integer arithmetic on a column overflows.
func CheckOutOfRange(inErr, outErr error) error {
	return substitute(inErr, outErr, func(err error) bool {
		return sqlState(err) == pgerrcode.NumericValueOutOfRange
	})
}

// ExecuteRetryable retries fn while it fails with a serialization failure.
// fn must be safe to re-run from scratch.
func ExecuteRetryable(fn func() error) error {
	_, err := retry.Retry(
		fn,
		retry.Limit(maxSerializationRetries),
		retry.RetriableIf(IsSerializationFailure),
	)
	return err
}

func substitute(inErr, outErr error, matches func(error) bool) error {
	if matches(inErr) {
		return outErr
	}
	return inErr
}

// sqlState extracts the SQLSTATE code of a postgres error, or "" for anything
// else.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}
