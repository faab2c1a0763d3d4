// Package fees splits a gross curve price into the protocol, subject and
// referrer fee legs charged on every trade.
package fees

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/curve"
)

var (
	ErrFeeTooHigh = errors.New("fee percentages exceed 100%")
	ErrOverflow   = errors.New("fee arithmetic overflow")
)

// Side is the direction of a trade
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return "unknown"
}

// Percentages are fractions of the gross price, scaled so that curve.Scale
// is 100%.
type Percentages struct {
	Protocol *uint256.Int
	Subject  *uint256.Int
	Referrer *uint256.Int
}

// Validate checks that every percentage is set and that together they never
// take more than the gross price.
func (p *Percentages) Validate() error {
	sum := new(uint256.Int)
	for _, percent := range []*uint256.Int{p.Protocol, p.Subject, p.Referrer} {
		if percent == nil {
			return errors.New("fee percentage is not set")
		}

		var overflow bool
		if sum, overflow = sum.AddOverflow(sum, percent); overflow {
			return ErrFeeTooHigh
		}
	}

	if sum.Gt(curve.Scale) {
		return ErrFeeTooHigh
	}
	return nil
}

func (p *Percentages) Clone() Percentages {
	return Percentages{
		Protocol: cloneOrZero(p.Protocol),
		Subject:  cloneOrZero(p.Subject),
		Referrer: cloneOrZero(p.Referrer),
	}
}

// Breakdown is a gross price split into its fee legs. Total is what the buyer
// pays, or what the seller receives.
type Breakdown struct {
	Side Side

	Gross    *uint256.Int
	Protocol *uint256.Int
	Subject  *uint256.Int
	Referrer *uint256.Int

	Total *uint256.Int
}

// Fees is the sum of all fee legs
func (b *Breakdown) Fees() *uint256.Int {
	sum := new(uint256.Int).Add(b.Protocol, b.Subject)
	return sum.Add(sum, b.Referrer)
}

// Of returns floor(gross * percent / 100%)
func Of(gross, percent *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulDivOverflow(gross, percent, curve.Scale)
	if overflow {
		return nil, ErrOverflow
	}
	return fee, nil
}

// ForBuy computes the cost of a buy, with fees added on top of gross. The
// referrer leg is only charged when withReferrer is set.
func ForBuy(gross *uint256.Int, pct Percentages, withReferrer bool) (*Breakdown, error) {
	b, err := split(SideBuy, gross, pct, withReferrer)
	if err != nil {
		return nil, err
	}

	total, overflow := new(uint256.Int).AddOverflow(gross, b.Fees())
	if overflow {
		return nil, ErrOverflow
	}
	b.Total = total
	return b, nil
}

// ForSell computes the proceeds of a sell, with fees deducted from gross. The
// referrer leg is only deducted when withReferrer is set.
func ForSell(gross *uint256.Int, pct Percentages, withReferrer bool) (*Breakdown, error) {
	b, err := split(SideSell, gross, pct, withReferrer)
	if err != nil {
		return nil, err
	}

	total, underflow := new(uint256.Int).SubOverflow(gross, b.Fees())
	if underflow {
		return nil, ErrFeeTooHigh
	}
	b.Total = total
	return b, nil
}

func split(side Side, gross *uint256.Int, pct Percentages, withReferrer bool) (*Breakdown, error) {
	if err := pct.Validate(); err != nil {
		return nil, err
	}

	protocol, err := Of(gross, pct.Protocol)
	if err != nil {
		return nil, err
	}

	subject, err := Of(gross, pct.Subject)
	if err != nil {
		return nil, err
	}

	referrer := new(uint256.Int)
	if withReferrer {
		referrer, err = Of(gross, pct.Referrer)
		if err != nil {
			return nil, err
		}
	}

	return &Breakdown{
		Side:     side,
		Gross:    gross.Clone(),
		Protocol: protocol,
		Subject:  subject,
		Referrer: referrer,
	}, nil
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
