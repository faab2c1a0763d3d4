package market

import (
	"errors"

	"github.com/code-payments/keys-server/pkg/keys/curve"
	"github.com/code-payments/keys-server/pkg/keys/data/balance"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/keys/ledger"
	"github.com/code-payments/keys-server/pkg/keys/payment"
	"github.com/code-payments/keys-server/pkg/keys/registry"
)

var (
	ErrInvalidAmount       = ledger.ErrInvalidAmount
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrLastKeyProtected    = ledger.ErrLastKeyProtected
	ErrInsufficientPayment = payment.ErrInsufficientPayment
	ErrTransferFailed      = payment.ErrTransferFailed
	ErrUnexpectedValue     = payment.ErrUnexpectedValue
	ErrSubjectNotFound     = registry.ErrSubjectNotFound
	ErrFeeTooHigh          = fees.ErrFeeTooHigh
	ErrInvalidCurveRatio   = curve.ErrInvalidRatio

	ErrUnauthorized      = errors.New("caller is not the market administrator")
	ErrReentrantCall     = errors.New("market cannot be re-entered during a trade")
	ErrInvalidSubject    = errors.New("invalid subject")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidParameters = errors.New("invalid market parameters")
	ErrOverflow          = errors.New("market arithmetic overflow")
	ErrTradeLockLost     = errors.New("trade lock was lost before commit")
)

// normalizeError collapses the overflow errors of the underlying packages
// into ErrOverflow. Everything else passes through untouched.
func normalizeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, curve.ErrOverflow),
		errors.Is(err, fees.ErrOverflow),
		errors.Is(err, ledger.ErrSupplyOverflow),
		errors.Is(err, balance.ErrOverflow):
		return ErrOverflow
	}
	return err
}
