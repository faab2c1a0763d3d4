package market

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
)

// GetSupply gets the key supply of a subject, which is zero until its first
// trade
func (m *Market) GetSupply(ctx context.Context, subject string) (uint64, error) {
	if err := validateSubject(subject); err != nil {
		return 0, err
	}
	return m.ledger.Supply(ctx, subject)
}

// GetBalance gets the number of keys of subject held by holder
func (m *Market) GetBalance(ctx context.Context, subject string, holder common.Address) (uint64, error) {
	if err := validateSubject(subject); err != nil {
		return 0, err
	}
	return m.ledger.Balance(ctx, subject, holder.String())
}

// GetTrade gets a trade by its ID
func (m *Market) GetTrade(ctx context.Context, tradeId string) (*trade.Record, error) {
	return m.data.GetTrade(ctx, tradeId)
}

// GetTradeHistory pages through the trades of a subject. An empty page is not
// an error.
func (m *Market) GetTradeHistory(ctx context.Context, subject string, opts ...query.Option) ([]*trade.Record, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	records, err := m.data.GetAllTradesBySubject(ctx, subject, opts...)
	if err == trade.ErrNotFound {
		return nil, nil
	}
	return records, err
}

// GetTraderHistory pages through the trades made by trader. An empty page is
// not an error.
func (m *Market) GetTraderHistory(ctx context.Context, trader common.Address, opts ...query.Option) ([]*trade.Record, error) {
	records, err := m.data.GetAllTradesByTrader(ctx, trader.String(), opts...)
	if err == trade.ErrNotFound {
		return nil, nil
	}
	return records, err
}

// GetValueBalance gets the balance owner holds on the market's payment rail
func (m *Market) GetValueBalance(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return m.gateway.Balance(ctx, owner.String())
}

// GetAllowance gets how much the market may pull from owner on the token rail
func (m *Market) GetAllowance(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return m.gateway.Allowance(ctx, owner.String(), m.gateway.Escrow())
}

// Deposit funds owner's balance on the market's payment rail
func (m *Market) Deposit(ctx context.Context, owner common.Address, amount *uint256.Int) error {
	if err := validateAddress(owner); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	err := m.withTradeLock(ctx, func(ctx context.Context, lost <-chan struct{}) error {
		return m.executeInTx(ctx, lost, func(ctx context.Context) error {
			return m.gateway.Deposit(ctx, owner.String(), amount)
		})
	})
	if err != nil {
		return normalizeError(errors.Wrap(err, "error depositing value"))
	}
	return nil
}

// Approve sets how much the market may pull from owner to pay for buys. Only
// supported on the token rail.
func (m *Market) Approve(ctx context.Context, owner common.Address, amount *uint256.Int) error {
	if err := validateAddress(owner); err != nil {
		return err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}

	return m.withTradeLock(ctx, func(ctx context.Context, lost <-chan struct{}) error {
		return m.executeInTx(ctx, lost, func(ctx context.Context) error {
			return m.gateway.Approve(ctx, owner.String(), m.gateway.Escrow(), amount)
		})
	})
}
