// Package curve prices keys along a sum-of-squares bonding curve.
//
// The price of the n-th key is n^2 / ratio currency units, so moving supply
// from s to s+a costs (S(s+a-1) - S(s-1)) / ratio where S(n) is the sum of
// squares from 1 to n. All values are integers scaled by 10^Decimals, and
// division rounds toward zero.
package curve

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// Decimals is the number of decimal places of currency amounts
	Decimals = 18

	// DefaultRatio is the curve ratio that makes the 16000th key cost
	// 16000 currency units
	DefaultRatio = 16000
)

var (
	ErrInvalidRatio       = errors.New("curve ratio must be positive")
	ErrOverflow           = errors.New("curve arithmetic overflow")
	ErrInsufficientSupply = errors.New("cannot sell more keys than supply")
)

// Scale is 10^Decimals, the fixed point unit of currency amounts
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// Curve is a sum-of-squares bonding curve with a fixed ratio. Larger ratios
// yield flatter curves.
type Curve struct {
	ratio *uint256.Int
}

func New(ratio *uint256.Int) (*Curve, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}
	return &Curve{ratio: ratio.Clone()}, nil
}

func (c *Curve) Ratio() *uint256.Int {
	return c.ratio.Clone()
}

// BuyPrice is the gross price of minting amount keys at supply
func (c *Curve) BuyPrice(supply, amount uint64) (*uint256.Int, error) {
	return PriceOf(supply, amount, c.ratio)
}

// SellPrice is the gross price of burning amount keys at supply
func (c *Curve) SellPrice(supply, amount uint64) (*uint256.Int, error) {
	if amount > supply {
		return nil, ErrInsufficientSupply
	}
	return PriceOf(supply-amount, amount, c.ratio)
}

func ValidateRatio(ratio *uint256.Int) error {
	if ratio == nil || ratio.IsZero() {
		return ErrInvalidRatio
	}
	return nil
}

// PriceOf returns the price of moving supply to supply+amount. A zero amount
// is always free.
func PriceOf(supply, amount uint64, ratio *uint256.Int) (*uint256.Int, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}

	if amount == 0 {
		return new(uint256.Int), nil
	}

	end := supply + amount
	if end < supply {
		return nil, ErrOverflow
	}

	upper, err := sumBelow(end)
	if err != nil {
		return nil, err
	}

	lower, err := sumBelow(supply)
	if err != nil {
		return nil, err
	}

	summation := new(uint256.Int).Sub(upper, lower)

	price, overflow := new(uint256.Int).MulOverflow(summation, Scale)
	if overflow {
		return nil, ErrOverflow
	}
	return price.Div(price, ratio), nil
}

// SumOfSquares returns 1^2 + 2^2 + ... + n^2 = n(n+1)(2n+1)/6
func SumOfSquares(n uint64) (*uint256.Int, error) {
	bn := uint256.NewInt(n)
	nPlusOne := new(uint256.Int).AddUint64(bn, 1)
	twoNPlusOne := new(uint256.Int).Lsh(bn, 1)
	twoNPlusOne.AddUint64(twoNPlusOne, 1)

	product, overflow := new(uint256.Int).MulOverflow(bn, nPlusOne)
	if overflow {
		return nil, ErrOverflow
	}

	product, overflow = product.MulOverflow(product, twoNPlusOne)
	if overflow {
		return nil, ErrOverflow
	}

	return product.Div(product, uint256.NewInt(6)), nil
}

// sumBelow is S(n-1), with S(-1) treated as zero
func sumBelow(n uint64) (*uint256.Int, error) {
	if n == 0 {
		return new(uint256.Int), nil
	}
	return SumOfSquares(n - 1)
}
