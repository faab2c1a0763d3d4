package allowance

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Store tracks how many tokens a spender may pull from an owner's balance
type Store interface {
	// Get gets the remaining allowance. Unknown pairs have a zero allowance.
	Get(ctx context.Context, owner, spender string) (*uint256.Int, error)

	// Set overwrites the allowance granted by owner to spender
	Set(ctx context.Context, owner, spender string, amount *uint256.Int) error

	// Spend consumes amount from the allowance.
	//
	// ErrInsufficientAllowance is returned if the allowance is below amount, in
	// which case nothing is changed.
	Spend(ctx context.Context, owner, spender string, amount *uint256.Int) error
}
