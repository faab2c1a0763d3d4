package payment

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/code-payments/keys-server/pkg/keys/data/balance"
)

var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrUnexpectedValue     = errors.New("value cannot be attached on this rail")
	ErrNotSupported        = errors.New("operation not supported on this rail")
)

// Rail is the kind of value a trade settles in
type Rail string

const (
	RailNative Rail = "native"
	RailToken  Rail = "token"
)

func (r Rail) asset() balance.Asset {
	switch r {
	case RailNative:
		return balance.AssetNative
	case RailToken:
		return balance.AssetToken
	}
	return ""
}

// Gateway moves value between traders, payees and the market's escrow
type Gateway interface {
	Rail() Rail

	// Escrow is the address holding value collected by the market
	Escrow() string

	// SupportsReferrer reports whether trades on this rail pay referrer fees
	SupportsReferrer() bool

	// Collect moves the cost of a trade from payer into escrow, returning the
	// excess that must be refunded to the payer. offered is the value attached
	// to the trade, which only the native rail accepts.
	//
	// ErrInsufficientPayment is returned if payer cannot cover required.
	Collect(ctx context.Context, payer string, required, offered *uint256.Int) (*uint256.Int, error)

	// Pay moves amount from escrow to an address. Zero amounts are skipped.
	//
	// ErrTransferFailed is returned if the payee rejects the value.
	Pay(ctx context.Context, to string, amount *uint256.Int) error

	// Deposit funds an owner's balance from outside the market
	Deposit(ctx context.Context, owner string, amount *uint256.Int) error

	// Approve sets how much spender may pull from owner. Only supported on
	// the token rail.
	Approve(ctx context.Context, owner, spender string, amount *uint256.Int) error

	// Balance gets an owner's balance on this rail
	Balance(ctx context.Context, owner string) (*uint256.Int, error)

	// Allowance gets how much spender may pull from owner. Always zero on the
	// native rail.
	Allowance(ctx context.Context, owner, spender string) (*uint256.Int, error)
}

// New returns the Gateway for a rail
func New(rail Rail, store Store, escrow string, hooks *Hooks) (Gateway, error) {
	base := gateway{
		rail:   rail,
		store:  store,
		escrow: escrow,
		hooks:  hooks,
	}

	switch rail {
	case RailNative:
		return &nativeGateway{base}, nil
	case RailToken:
		return &tokenGateway{base}, nil
	}
	return nil, errors.New("unknown payment rail")
}

// Store is the subset of the data provider the gateways depend on
type Store interface {
	GetValueBalance(ctx context.Context, asset balance.Asset, owner string) (*uint256.Int, error)
	CreditValue(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error
	DebitValue(ctx context.Context, asset balance.Asset, owner string, amount *uint256.Int) error

	GetAllowance(ctx context.Context, owner, spender string) (*uint256.Int, error)
	SetAllowance(ctx context.Context, owner, spender string, amount *uint256.Int) error
	SpendAllowance(ctx context.Context, owner, spender string, amount *uint256.Int) error
}
