package fees

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/code-payments/keys-server/pkg/keys/curve"
)

var hundredPercent = decimal.New(1, 0)

// ParsePercent parses a decimal fraction of one, such as "0.05" for 5%, into
// the fixed point scale used by Percentages.
func ParsePercent(value string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid fee percentage %q", value)
	}

	if d.IsNegative() || d.GreaterThan(hundredPercent) {
		return nil, errors.Errorf("fee percentage %q must be between 0 and 1", value)
	}

	scaled := d.Shift(curve.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Errorf("fee percentage %q has more than %d decimals", value, curve.Decimals)
	}

	percent, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return percent, nil
}

// MustParsePercent is ParsePercent for constants
func MustParsePercent(value string) *uint256.Int {
	percent, err := ParsePercent(value)
	if err != nil {
		panic(err)
	}
	return percent
}

// FormatPercent renders a fixed point percentage as a decimal fraction
func FormatPercent(percent *uint256.Int) string {
	return FormatAmount(percent)
}

// FormatAmount renders a fixed point amount in whole currency units
func FormatAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -curve.Decimals).String()
}
