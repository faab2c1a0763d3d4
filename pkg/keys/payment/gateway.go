package payment

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/keys/data/allowance"
	"github.com/code-payments/keys-server/pkg/keys/data/balance"
)

type gateway struct {
	rail   Rail
	store  Store
	escrow string
	hooks  *Hooks
}

func (g *gateway) Rail() Rail {
	return g.rail
}

func (g *gateway) Escrow() string {
	return g.escrow
}

func (g *gateway) Pay(ctx context.Context, to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}

	asset := g.rail.asset()

	err := g.store.DebitValue(ctx, asset, g.escrow, amount)
	if err == balance.ErrInsufficientBalance {
		return errors.Wrap(ErrTransferFailed, "escrow cannot cover payment")
	} else if err != nil {
		return err
	}

	err = g.store.CreditValue(ctx, asset, to, amount)
	if err == balance.ErrOverflow {
		return errors.Wrap(ErrTransferFailed, "payee balance overflow")
	} else if err != nil {
		return err
	}

	// Payees that run code on receipt do so only after their balance reflects
	// the payment.
	if err := g.hooks.run(ctx, &Receipt{
		Rail:   g.rail,
		From:   g.escrow,
		To:     to,
		Amount: amount.Clone(),
	}); err != nil {
		return errors.Wrapf(ErrTransferFailed, "payee rejected value: %v", err)
	}
	return nil
}

func (g *gateway) Deposit(ctx context.Context, owner string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return g.store.CreditValue(ctx, g.rail.asset(), owner, amount)
}

func (g *gateway) Balance(ctx context.Context, owner string) (*uint256.Int, error) {
	return g.store.GetValueBalance(ctx, g.rail.asset(), owner)
}

// nativeGateway settles in the native currency. Buyers attach value to a buy,
// and anything beyond the cost is refunded.
type nativeGateway struct {
	gateway
}

func (g *nativeGateway) SupportsReferrer() bool {
	return false
}

func (g *nativeGateway) Collect(ctx context.Context, payer string, required, offered *uint256.Int) (*uint256.Int, error) {
	if offered == nil {
		offered = new(uint256.Int)
	}

	if offered.Lt(required) {
		return nil, ErrInsufficientPayment
	}

	if offered.IsZero() {
		return new(uint256.Int), nil
	}

	err := g.store.DebitValue(ctx, balance.AssetNative, payer, offered)
	if err == balance.ErrInsufficientBalance {
		return nil, ErrInsufficientPayment
	} else if err != nil {
		return nil, err
	}

	if err := g.store.CreditValue(ctx, balance.AssetNative, g.escrow, offered); err != nil {
		return nil, err
	}

	return new(uint256.Int).Sub(offered, required), nil
}

func (g *nativeGateway) Approve(_ context.Context, _, _ string, _ *uint256.Int) error {
	return ErrNotSupported
}

func (g *nativeGateway) Allowance(_ context.Context, _, _ string) (*uint256.Int, error) {
	return new(uint256.Int), nil
}

// tokenGateway settles in a fungible token. The market pulls exactly the cost
// of a buy using an allowance the buyer granted to the escrow beforehand.
type tokenGateway struct {
	gateway
}

func (g *tokenGateway) SupportsReferrer() bool {
	return true
}

func (g *tokenGateway) Collect(ctx context.Context, payer string, required, offered *uint256.Int) (*uint256.Int, error) {
	if offered != nil && !offered.IsZero() {
		return nil, ErrUnexpectedValue
	}

	if required.IsZero() {
		return new(uint256.Int), nil
	}

	err := g.store.SpendAllowance(ctx, payer, g.escrow, required)
	if err == allowance.ErrInsufficientAllowance {
		return nil, ErrInsufficientPayment
	} else if err != nil {
		return nil, err
	}

	err = g.store.DebitValue(ctx, balance.AssetToken, payer, required)
	if err == balance.ErrInsufficientBalance {
		return nil, ErrInsufficientPayment
	} else if err != nil {
		return nil, err
	}

	if err := g.store.CreditValue(ctx, balance.AssetToken, g.escrow, required); err != nil {
		return nil, err
	}

	return new(uint256.Int), nil
}

func (g *tokenGateway) Approve(ctx context.Context, owner, spender string, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	return g.store.SetAllowance(ctx, owner, spender, amount)
}

func (g *tokenGateway) Allowance(ctx context.Context, owner, spender string) (*uint256.Int, error) {
	return g.store.GetAllowance(ctx, owner, spender)
}
