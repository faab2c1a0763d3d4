package balance

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAsset        = errors.New("invalid asset")
	ErrOverflow            = errors.New("balance overflow")
)

// Asset is the kind of value being held
type Asset string

const (
	// AssetNative is the platform's native currency, paid by attaching value
	// to a buy
	AssetNative Asset = "native"

	// AssetToken is a fungible token, pulled via allowances
	AssetToken Asset = "token"
)

func (a Asset) Validate() error {
	switch a {
	case AssetNative, AssetToken:
		return nil
	}
	return ErrInvalidAsset
}

// Store tracks value balances per asset and owner. Amounts are fixed point
// integers with 18 decimals.
type Store interface {
	// GetBalance gets the balance of an owner. Unknown owners have a zero
	// balance.
	GetBalance(ctx context.Context, asset Asset, owner string) (*uint256.Int, error)

	// Credit adds amount to the owner's balance
	Credit(ctx context.Context, asset Asset, owner string, amount *uint256.Int) error

	// Debit removes amount from the owner's balance.
	//
	// ErrInsufficientBalance is returned if the balance is below amount, in
	// which case nothing is changed.
	Debit(ctx context.Context, asset Asset, owner string, amount *uint256.Int) error

	// GetTotal gets the sum of all balances for an asset
	GetTotal(ctx context.Context, asset Asset) (*uint256.Int, error)
}
