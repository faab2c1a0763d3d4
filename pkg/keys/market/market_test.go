package market

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/curve"
	"github.com/code-payments/keys-server/pkg/keys/data"
	stats_data "github.com/code-payments/keys-server/pkg/keys/data/stats"
	stats_memory "github.com/code-payments/keys-server/pkg/keys/data/stats/memory"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/fees"
	"github.com/code-payments/keys-server/pkg/keys/ledger"
	"github.com/code-payments/keys-server/pkg/keys/payment"
	registry_memory "github.com/code-payments/keys-server/pkg/keys/registry/memory"
	"github.com/code-payments/keys-server/pkg/keys/stats"
	"github.com/code-payments/keys-server/pkg/lock"
)

const statsIdentity = "keys-market"

var oneCurrencyUnit = new(uint256.Int).Set(curve.Scale)

type testEnv struct {
	ctx context.Context

	data     data.DatabaseData
	registry *registry_memory.Registry
	hooks    *payment.Hooks
	sink     *stats.StoreSink
	market   *Market

	admin       common.Address
	feeReceiver common.Address
	holder      common.Address
	escrow      common.Address
}

type setupOptions struct {
	rail             payment.Rail
	overrides        func(o *Overrides)
	distributedLocks lock.Manager
}

func setup(t *testing.T, opts ...func(o *setupOptions)) *testEnv {
	options := &setupOptions{rail: payment.RailNative}
	for _, opt := range opts {
		opt(options)
	}

	env := &testEnv{
		ctx:         context.Background(),
		data:        data.NewTestDatabaseProvider(),
		registry:    registry_memory.New(),
		hooks:       payment.NewHooks(),
		sink:        stats.NewStoreSink(stats_memory.New()),
		admin:       newAddress(t),
		feeReceiver: newAddress(t),
		holder:      newAddress(t),
		escrow:      newAddress(t),
	}

	gateway, err := payment.New(options.rail, env.data, env.escrow.String(), env.hooks)
	require.NoError(t, err)

	overrides := &Overrides{
		Admin:              env.admin,
		FeeReceiver:        env.feeReceiver,
		ProtocolFeePercent: fees.MustParsePercent("0.05"),
		SubjectFeePercent:  fees.MustParsePercent("0.05"),
		ReferrerFeePercent: fees.MustParsePercent("0.01"),
		CurveRatio:         curve.DefaultRatio,
		TradeLockTimeout:   250 * time.Millisecond,
	}
	if options.overrides != nil {
		options.overrides(overrides)
	}

	env.market = New(
		env.data,
		env.registry,
		stats.NewNotifier(env.sink, statsIdentity),
		gateway,
		options.distributedLocks,
		WithOverrides(overrides),
	)

	env.registry.Set("alice", env.holder)
	return env
}

func withRail(rail payment.Rail) func(o *setupOptions) {
	return func(o *setupOptions) {
		o.rail = rail
	}
}

func withOverrides(fn func(o *Overrides)) func(o *setupOptions) {
	return func(o *setupOptions) {
		o.overrides = fn
	}
}

func withoutFees() func(o *setupOptions) {
	return withOverrides(func(o *Overrides) {
		o.ProtocolFeePercent = new(uint256.Int)
		o.SubjectFeePercent = new(uint256.Int)
		o.ReferrerFeePercent = new(uint256.Int)
	})
}

func TestBuy_NativeRail(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	quote, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
	require.NoError(t, err)
	assert.EqualValues(t, 1, quote.Supply)

	// 1e18 / 16000 for the second key in existence, with 5% protocol and
	// subject fees on top
	assert.EqualValues(t, 62_500_000_000_000, quote.Breakdown.Gross.Uint64())
	assert.EqualValues(t, 3_125_000_000_000, quote.Breakdown.Protocol.Uint64())
	assert.EqualValues(t, 3_125_000_000_000, quote.Breakdown.Subject.Uint64())
	assert.True(t, quote.Breakdown.Referrer.IsZero())
	assert.EqualValues(t, 68_750_000_000_000, quote.Total().Uint64())

	excess := uint256.NewInt(1_000)
	value := new(uint256.Int).Add(quote.Total(), excess)

	record, err := env.market.Buy(env.ctx, trader, "alice", 1, value, common.ZeroAddress)
	require.NoError(t, err)

	assert.NotEmpty(t, record.TradeId)
	assert.Equal(t, "alice", record.Subject)
	assert.Equal(t, trader.String(), record.Trader)
	assert.Equal(t, env.holder.String(), record.RightsHolder)
	assert.Empty(t, record.Referrer)
	assert.Equal(t, trade.DirectionBuy, record.Direction)
	assert.Equal(t, string(payment.RailNative), record.Rail)
	assert.EqualValues(t, 1, record.Amount)
	assert.Equal(t, quote.Breakdown.Gross, record.GrossPrice)
	assert.Equal(t, quote.Total(), record.Total)
	assert.EqualValues(t, 2, record.Supply)

	env.assertSupply(t, "alice", 2)
	env.assertKeys(t, "alice", trader, 1)
	env.assertKeys(t, "alice", env.holder, 1)

	env.assertValue(t, trader, new(uint256.Int).Sub(oneCurrencyUnit, quote.Total()))
	env.assertValue(t, env.feeReceiver, quote.Breakdown.Protocol)
	env.assertValue(t, env.holder, quote.Breakdown.Subject)
	env.assertValue(t, env.escrow, quote.Breakdown.Gross)

	history, err := env.market.GetTradeHistory(env.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.TradeId, history[0].TradeId)

	stored, err := env.market.GetTrade(env.ctx, record.TradeId)
	require.NoError(t, err)
	assert.Equal(t, record.Total, stored.Total)
}

func TestBuy_QuoteMatchesCharge(t *testing.T) {
	for _, rail := range []payment.Rail{payment.RailNative, payment.RailToken} {
		t.Run(string(rail), func(t *testing.T) {
			env := setup(t, withRail(rail))
			trader := env.newFundedTrader(t, oneCurrencyUnit)
			referrer := newAddress(t)

			for i := 0; i < 5; i++ {
				amount := uint64(i + 1)

				quote, err := env.market.QuoteBuy(env.ctx, "alice", amount, referrer)
				require.NoError(t, err)

				before := env.getValue(t, trader)
				record := env.buy(t, trader, "alice", amount, quote.Total(), referrer)

				assert.Equal(t, quote.Total(), record.Total)
				assert.Equal(t, quote.Breakdown.Gross, record.GrossPrice)
				assert.Equal(t, quote.Breakdown.Referrer, record.ReferrerFee)
				assert.Equal(t, new(uint256.Int).Sub(before, quote.Total()), env.getValue(t, trader))
			}

			for i := 0; i < 5; i++ {
				quote, err := env.market.QuoteSell(env.ctx, "alice", 2, referrer)
				require.NoError(t, err)

				before := env.getValue(t, trader)
				record, err := env.market.Sell(env.ctx, trader, "alice", 2, referrer)
				require.NoError(t, err)

				assert.Equal(t, quote.Total(), record.Total)
				assert.Equal(t, new(uint256.Int).Add(before, quote.Total()), env.getValue(t, trader))
			}
		})
	}
}

func TestConcreteScenario(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	var lastCost *uint256.Int
	for i := 0; i < 3; i++ {
		record := env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
		assert.False(t, record.GrossPrice.IsZero())
		if lastCost != nil {
			assert.True(t, record.Total.Gt(lastCost))
		}
		lastCost = record.Total
	}
	env.assertSupply(t, "alice", 4)

	var lastProceeds *uint256.Int
	for i := 0; i < 3; i++ {
		record, err := env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
		require.NoError(t, err)
		if lastProceeds != nil {
			assert.True(t, record.Total.Lt(lastProceeds))
		}
		lastProceeds = record.Total
	}
	env.assertSupply(t, "alice", 1)

	_, err := env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrLastKeyProtected, err)

	// The rights-holder's bootstrap key is just as unsellable
	_, err = env.market.Sell(env.ctx, env.holder, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrLastKeyProtected, err)

	// The escrow paid out exactly what it collected
	env.assertValue(t, env.escrow, new(uint256.Int))
}

func TestSell_SupplyFloor(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	_, err := env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrLastKeyProtected, err)

	_, err = env.market.QuoteSell(env.ctx, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrLastKeyProtected, err)

	env.buy(t, trader, "alice", 3, nil, common.ZeroAddress)

	_, err = env.market.QuoteSell(env.ctx, "alice", 4, common.ZeroAddress)
	assert.Equal(t, ErrLastKeyProtected, err)

	_, err = env.market.Sell(env.ctx, trader, "alice", 3, common.ZeroAddress)
	require.NoError(t, err)
	env.assertSupply(t, "alice", 1)

	_, err = env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrLastKeyProtected, err)
}

func TestSell_InsufficientBalance(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)
	other := env.newFundedTrader(t, oneCurrencyUnit)

	env.buy(t, trader, "alice", 2, nil, common.ZeroAddress)

	_, err := env.market.Sell(env.ctx, other, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrInsufficientBalance, err)

	_, err = env.market.Sell(env.ctx, trader, "alice", 3, common.ZeroAddress)
	assert.Equal(t, ErrInsufficientBalance, err)

	env.assertKeys(t, "alice", trader, 2)
	env.assertSupply(t, "alice", 3)
}

func TestRoundTripLoss(t *testing.T) {
	for _, n := range []uint64{1, 2, 5, 10} {
		env := setup(t)
		trader := env.newFundedTrader(t, oneCurrencyUnit)

		bought := env.buy(t, trader, "alice", n, nil, common.ZeroAddress)
		sold, err := env.market.Sell(env.ctx, trader, "alice", n, common.ZeroAddress)
		require.NoError(t, err)

		assert.True(t, sold.Total.Lt(bought.Total))
		assert.Equal(t, bought.GrossPrice, sold.GrossPrice)
	}

	for _, n := range []uint64{1, 2, 5, 10} {
		env := setup(t, withoutFees())
		trader := env.newFundedTrader(t, oneCurrencyUnit)

		bought := env.buy(t, trader, "alice", n, nil, common.ZeroAddress)
		sold, err := env.market.Sell(env.ctx, trader, "alice", n, common.ZeroAddress)
		require.NoError(t, err)

		assert.Equal(t, bought.Total, sold.Total)
		env.assertValue(t, trader, oneCurrencyUnit)
	}
}

func TestFeeAdditivity(t *testing.T) {
	env := setup(t, withRail(payment.RailToken))
	trader := env.newFundedTrader(t, oneCurrencyUnit)
	referrer := newAddress(t)

	for _, n := range []uint64{1, 3, 7} {
		buy, err := env.market.QuoteBuy(env.ctx, "alice", n, referrer)
		require.NoError(t, err)

		env.buy(t, trader, "alice", n, nil, referrer)

		sell, err := env.market.QuoteSell(env.ctx, "alice", n, referrer)
		require.NoError(t, err)

		require.Equal(t, buy.Breakdown.Gross, sell.Breakdown.Gross)
		assert.False(t, buy.Breakdown.Fees().Gt(buy.Breakdown.Gross))

		spread := new(uint256.Int).Sub(buy.Total(), sell.Total())
		legs := new(uint256.Int).Add(buy.Breakdown.Fees(), sell.Breakdown.Fees())
		assert.Equal(t, legs, spread)
	}
}

func TestBuy_SupplyOverflow(t *testing.T) {
	env := setup(t)

	// Priceable, but past the supply bound
	amount := uint64(1 << 63)
	quote, err := env.market.QuoteBuy(env.ctx, "alice", amount, common.ZeroAddress)
	require.NoError(t, err)

	trader := env.newFundedTrader(t, quote.Total())

	_, err = env.market.Buy(env.ctx, trader, "alice", amount, quote.Total(), common.ZeroAddress)
	assert.Equal(t, ErrOverflow, err)

	_, err = env.market.Buy(env.ctx, trader, "alice", ^uint64(0), quote.Total(), common.ZeroAddress)
	assert.Equal(t, ErrOverflow, err)

	env.assertSupply(t, "alice", 0)
	env.assertKeys(t, "alice", trader, 0)
	env.assertValue(t, trader, quote.Total())
}

func TestBuy_InsufficientPayment(t *testing.T) {
	t.Run("native", func(t *testing.T) {
		env := setup(t)
		trader := env.newFundedTrader(t, oneCurrencyUnit)

		quote, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
		require.NoError(t, err)

		short := new(uint256.Int).Sub(quote.Total(), uint256.NewInt(1))
		_, err = env.market.Buy(env.ctx, trader, "alice", 1, short, common.ZeroAddress)
		assert.Equal(t, ErrInsufficientPayment, err)

		// Attaching more than the trader holds
		broke := newAddress(t)
		_, err = env.market.Buy(env.ctx, broke, "alice", 1, quote.Total(), common.ZeroAddress)
		assert.Equal(t, ErrInsufficientPayment, err)

		env.assertSupply(t, "alice", 0)
		env.assertValue(t, trader, oneCurrencyUnit)
	})

	t.Run("token", func(t *testing.T) {
		env := setup(t, withRail(payment.RailToken))
		trader := newAddress(t)
		require.NoError(t, env.market.Deposit(env.ctx, trader, oneCurrencyUnit))

		_, err := env.market.Buy(env.ctx, trader, "alice", 1, nil, common.ZeroAddress)
		assert.Equal(t, ErrInsufficientPayment, err)

		quote, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
		require.NoError(t, err)

		short := new(uint256.Int).Sub(quote.Total(), uint256.NewInt(1))
		require.NoError(t, env.market.Approve(env.ctx, trader, short))

		_, err = env.market.Buy(env.ctx, trader, "alice", 1, nil, common.ZeroAddress)
		assert.Equal(t, ErrInsufficientPayment, err)

		allowance, err := env.market.GetAllowance(env.ctx, trader)
		require.NoError(t, err)
		assert.Equal(t, short, allowance)

		_, err = env.market.Buy(env.ctx, trader, "alice", 1, uint256.NewInt(1), common.ZeroAddress)
		assert.Equal(t, ErrUnexpectedValue, err)

		env.assertSupply(t, "alice", 0)
	})
}

func TestReferrer(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		env := setup(t, withRail(payment.RailToken))
		trader := env.newFundedTrader(t, oneCurrencyUnit)
		referrer := newAddress(t)

		bought := env.buy(t, trader, "alice", 2, nil, referrer)
		assert.Equal(t, referrer.String(), bought.Referrer)
		assert.False(t, bought.ReferrerFee.IsZero())

		sold, err := env.market.Sell(env.ctx, trader, "alice", 1, referrer)
		require.NoError(t, err)
		assert.Equal(t, referrer.String(), sold.Referrer)

		env.assertValue(t, referrer, new(uint256.Int).Add(bought.ReferrerFee, sold.ReferrerFee))

		// Without a referrer, the referrer share isn't collected at all
		quote, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
		require.NoError(t, err)
		assert.True(t, quote.Breakdown.Referrer.IsZero())

		unreferred := env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
		assert.Empty(t, unreferred.Referrer)
		assert.True(t, unreferred.ReferrerFee.IsZero())
		env.assertValue(t, referrer, new(uint256.Int).Add(bought.ReferrerFee, sold.ReferrerFee))
	})

	t.Run("native", func(t *testing.T) {
		env := setup(t)
		trader := env.newFundedTrader(t, oneCurrencyUnit)
		referrer := newAddress(t)

		quote, err := env.market.QuoteBuy(env.ctx, "alice", 2, referrer)
		require.NoError(t, err)
		assert.True(t, quote.Referrer.IsZero())
		assert.True(t, quote.Breakdown.Referrer.IsZero())

		record := env.buy(t, trader, "alice", 2, nil, referrer)
		assert.Empty(t, record.Referrer)
		assert.True(t, record.ReferrerFee.IsZero())
		env.assertValue(t, referrer, new(uint256.Int))
	})
}

func TestTransferFailed_RollsBackTrade(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	env.buy(t, trader, "alice", 2, nil, common.ZeroAddress)

	balanceBefore := env.getValue(t, trader)
	escrowBefore := env.getValue(t, env.escrow)
	receiverBefore := env.getValue(t, env.feeReceiver)

	env.hooks.Register(env.holder.String(), func(_ context.Context, _ *payment.Receipt) error {
		return errors.New("holder rejects value")
	})

	_, err := env.market.Buy(env.ctx, trader, "alice", 1, balanceBefore, common.ZeroAddress)
	assert.True(t, errors.Is(err, ErrTransferFailed))

	_, err = env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	assert.True(t, errors.Is(err, ErrTransferFailed))

	env.assertSupply(t, "alice", 3)
	env.assertKeys(t, "alice", trader, 2)
	env.assertValue(t, trader, balanceBefore)
	env.assertValue(t, env.escrow, escrowBefore)
	env.assertValue(t, env.feeReceiver, receiverBefore)

	history, err := env.market.GetTradeHistory(env.ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	env.hooks.Unregister(env.holder.String())
	env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
	env.assertSupply(t, "alice", 4)
}

func TestTransferFailed_SellerRejectsProceeds(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	env.buy(t, trader, "alice", 2, nil, common.ZeroAddress)

	env.hooks.Register(trader.String(), func(_ context.Context, _ *payment.Receipt) error {
		return errors.New("seller rejects value")
	})

	_, err := env.market.Sell(env.ctx, trader, "alice", 2, common.ZeroAddress)
	assert.True(t, errors.Is(err, ErrTransferFailed))

	env.assertSupply(t, "alice", 3)
	env.assertKeys(t, "alice", trader, 2)
	require.NoError(t, ledger.New(env.data).CheckInvariant(env.ctx, "alice"))
}

func TestReentrantPayeeRejected(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)
	attacker := env.newFundedTrader(t, oneCurrencyUnit)

	var nestedBuyErr, nestedSellErr, nestedAdminErr error
	env.hooks.Register(env.feeReceiver.String(), func(ctx context.Context, _ *payment.Receipt) error {
		_, nestedBuyErr = env.market.Buy(ctx, attacker, "alice", 1, oneCurrencyUnit, common.ZeroAddress)
		_, nestedSellErr = env.market.Sell(ctx, trader, "alice", 1, common.ZeroAddress)
		_, nestedAdminErr = env.market.SetCurveRatio(ctx, env.admin, uint256.NewInt(1))

		// Reads during a trade see the trade's own effects
		supply, err := env.market.GetSupply(ctx, "alice")
		if err != nil {
			return err
		}
		if supply != 3 {
			return errors.Errorf("unexpected supply %d", supply)
		}
		return nestedBuyErr
	})

	_, err := env.market.Buy(env.ctx, trader, "alice", 2, oneCurrencyUnit, common.ZeroAddress)
	assert.True(t, errors.Is(err, ErrTransferFailed))
	assert.Equal(t, ErrReentrantCall, nestedBuyErr)
	assert.Equal(t, ErrReentrantCall, nestedSellErr)
	assert.Equal(t, ErrReentrantCall, nestedAdminErr)

	env.assertSupply(t, "alice", 0)
	env.assertValue(t, trader, oneCurrencyUnit)
	env.assertValue(t, attacker, oneCurrencyUnit)
}

func TestReentrantPayeeWithoutTradeContext(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)
	attacker := env.newFundedTrader(t, oneCurrencyUnit)

	var nestedErr error
	env.hooks.Register(env.holder.String(), func(_ context.Context, _ *payment.Receipt) error {
		_, nestedErr = env.market.Buy(context.Background(), attacker, "alice", 1, oneCurrencyUnit, common.ZeroAddress)
		return nestedErr
	})

	start := time.Now()
	_, err := env.market.Buy(env.ctx, trader, "alice", 1, oneCurrencyUnit, common.ZeroAddress)
	assert.True(t, errors.Is(err, ErrTransferFailed))
	assert.True(t, errors.Is(nestedErr, context.DeadlineExceeded))
	assert.True(t, time.Since(start) < 5*time.Second)

	env.assertSupply(t, "alice", 0)
	env.assertValue(t, attacker, oneCurrencyUnit)

	// The lock is released with the failed trade, so others can trade again
	env.hooks.Unregister(env.holder.String())
	_, err = env.market.Buy(env.ctx, attacker, "alice", 1, oneCurrencyUnit, common.ZeroAddress)
	require.NoError(t, err)
	env.assertSupply(t, "alice", 2)
}

func TestRightsHolderResolvedOnEveryTrade(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	first := env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
	assert.Equal(t, env.holder.String(), first.RightsHolder)
	assert.Equal(t, 1, env.registry.Lookups())

	newHolder := newAddress(t)
	env.registry.Set("alice", newHolder)

	second := env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
	assert.Equal(t, newHolder.String(), second.RightsHolder)
	assert.Equal(t, 2, env.registry.Lookups())

	env.assertValue(t, env.holder, first.SubjectFee)
	env.assertValue(t, newHolder, second.SubjectFee)

	// The bootstrap key stays with the original rights-holder
	env.assertKeys(t, "alice", env.holder, 1)
	env.assertKeys(t, "alice", newHolder, 0)

	sold, err := env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	require.NoError(t, err)
	assert.Equal(t, newHolder.String(), sold.RightsHolder)
	assert.Equal(t, 3, env.registry.Lookups())
}

func TestSubjectNotFound(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	_, err := env.market.Buy(env.ctx, trader, "bob", 1, oneCurrencyUnit, common.ZeroAddress)
	assert.Equal(t, ErrSubjectNotFound, err)

	env.assertSupply(t, "bob", 0)
	env.assertValue(t, trader, oneCurrencyUnit)

	// Unregistering a traded subject blocks further trades
	env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
	env.registry.Remove("alice")

	_, err = env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	assert.Equal(t, ErrSubjectNotFound, err)
	env.assertKeys(t, "alice", trader, 1)
}

func TestInvalidRequests(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	_, err := env.market.Buy(env.ctx, trader, "alice", 0, oneCurrencyUnit, common.ZeroAddress)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = env.market.Sell(env.ctx, trader, "alice", 0, common.ZeroAddress)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = env.market.QuoteBuy(env.ctx, "alice", 0, common.ZeroAddress)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = env.market.QuoteSell(env.ctx, "alice", 0, common.ZeroAddress)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = env.market.Buy(env.ctx, trader, "", 1, oneCurrencyUnit, common.ZeroAddress)
	assert.Equal(t, ErrInvalidSubject, err)

	_, err = env.market.Buy(env.ctx, common.ZeroAddress, "alice", 1, oneCurrencyUnit, common.ZeroAddress)
	assert.Equal(t, ErrInvalidAddress, err)

	assert.Equal(t, ErrInvalidAmount, env.market.Deposit(env.ctx, trader, nil))
	assert.Equal(t, ErrInvalidAddress, env.market.Deposit(env.ctx, common.ZeroAddress, oneCurrencyUnit))

	// Token approvals aren't a thing on the native rail
	assert.Equal(t, payment.ErrNotSupported, env.market.Approve(env.ctx, trader, oneCurrencyUnit))
}

func TestStatsNotification(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	// The market isn't an allowed writer yet, which must not fail the trade
	env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)

	_, err := env.sink.GetSubjectVolume(env.ctx, "alice")
	assert.Equal(t, stats_data.ErrNotFound, err)

	require.NoError(t, env.sink.AddWriter(env.ctx, statsIdentity))

	bought := env.buy(t, trader, "alice", 2, nil, common.ZeroAddress)
	sold, err := env.market.Sell(env.ctx, trader, "alice", 1, common.ZeroAddress)
	require.NoError(t, err)

	expected := new(uint256.Int).Add(bought.GrossPrice, sold.GrossPrice)

	volume, err := env.sink.GetSubjectVolume(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, expected, volume.Volume)
	assert.EqualValues(t, 2, volume.TradeCount)

	volume, err = env.sink.GetTraderVolume(env.ctx, trader.String())
	require.NoError(t, err)
	assert.Equal(t, expected, volume.Volume)

	require.NoError(t, env.sink.RemoveWriter(env.ctx, statsIdentity))
	env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)

	volume, err = env.sink.GetSubjectVolume(env.ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, volume.TradeCount)
}

func TestAdmin_Unauthorized(t *testing.T) {
	env := setup(t)
	intruder := newAddress(t)

	_, err := env.market.SetFeeReceiver(env.ctx, intruder, intruder)
	assert.Equal(t, ErrUnauthorized, err)

	_, err = env.market.SetFeePercentages(env.ctx, intruder, new(uint256.Int), new(uint256.Int), nil)
	assert.Equal(t, ErrUnauthorized, err)

	_, err = env.market.SetCurveRatio(env.ctx, intruder, uint256.NewInt(1))
	assert.Equal(t, ErrUnauthorized, err)

	record, err := env.market.GetParameters(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, env.feeReceiver.String(), record.FeeReceiver)
	assert.EqualValues(t, curve.DefaultRatio, record.CurveRatio.Uint64())
	assert.EqualValues(t, 0, record.Version)

	// Without a configured administrator, nobody can change parameters
	env = setup(t, withOverrides(func(o *Overrides) {
		o.Admin = common.ZeroAddress
	}))
	_, err = env.market.SetCurveRatio(env.ctx, common.ZeroAddress, uint256.NewInt(1))
	assert.Equal(t, ErrUnauthorized, err)
}

func TestAdmin_SetFeePercentages(t *testing.T) {
	env := setup(t)

	_, err := env.market.SetFeePercentages(env.ctx, env.admin, fees.MustParsePercent("0.6"), fees.MustParsePercent("0.4"), nil)
	assert.Equal(t, ErrFeeTooHigh, err)

	_, err = env.market.SetFeePercentages(env.ctx, env.admin, nil, fees.MustParsePercent("0.1"), nil)
	assert.Equal(t, ErrInvalidParameters, err)

	record, err := env.market.SetFeePercentages(env.ctx, env.admin, fees.MustParsePercent("0.02"), fees.MustParsePercent("0.03"), nil)
	require.NoError(t, err)
	assert.Equal(t, fees.MustParsePercent("0.02"), record.ProtocolFeePercent)
	assert.Equal(t, fees.MustParsePercent("0.03"), record.SubjectFeePercent)
	assert.Equal(t, fees.MustParsePercent("0.01"), record.ReferrerFeePercent)
	assert.EqualValues(t, 1, record.Version)

	record, err = env.market.SetFeePercentages(env.ctx, env.admin, fees.MustParsePercent("0.02"), fees.MustParsePercent("0.03"), fees.MustParsePercent("0.04"))
	require.NoError(t, err)
	assert.Equal(t, fees.MustParsePercent("0.04"), record.ReferrerFeePercent)
	assert.EqualValues(t, 2, record.Version)

	quote, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
	require.NoError(t, err)
	assert.EqualValues(t, 1_250_000_000_000, quote.Breakdown.Protocol.Uint64())
	assert.EqualValues(t, 1_875_000_000_000, quote.Breakdown.Subject.Uint64())
}

func TestAdmin_SetCurveRatioAndFeeReceiver(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	_, err := env.market.SetCurveRatio(env.ctx, env.admin, new(uint256.Int))
	assert.Equal(t, ErrInvalidCurveRatio, err)

	_, err = env.market.SetCurveRatio(env.ctx, env.admin, nil)
	assert.Equal(t, ErrInvalidCurveRatio, err)

	before, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
	require.NoError(t, err)

	_, err = env.market.SetCurveRatio(env.ctx, env.admin, uint256.NewInt(2*curve.DefaultRatio))
	require.NoError(t, err)

	after, err := env.market.QuoteBuy(env.ctx, "alice", 1, common.ZeroAddress)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Div(before.Breakdown.Gross, uint256.NewInt(2)), after.Breakdown.Gross)

	_, err = env.market.SetFeeReceiver(env.ctx, env.admin, common.ZeroAddress)
	assert.Equal(t, ErrInvalidAddress, err)

	newReceiver := newAddress(t)
	record, err := env.market.SetFeeReceiver(env.ctx, env.admin, newReceiver)
	require.NoError(t, err)
	assert.Equal(t, newReceiver.String(), record.FeeReceiver)
	assert.EqualValues(t, uint256.NewInt(2*curve.DefaultRatio), record.CurveRatio)

	bought := env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
	env.assertValue(t, newReceiver, bought.ProtocolFee)
	env.assertValue(t, env.feeReceiver, new(uint256.Int))
}

func TestBalanceConservation(t *testing.T) {
	env := setup(t, withRail(payment.RailToken))

	var traders []common.Address
	for i := 0; i < 4; i++ {
		traders = append(traders, env.newFundedTrader(t, new(uint256.Int).Mul(oneCurrencyUnit, uint256.NewInt(10_000))))
	}

	l := ledger.New(env.data)
	r := rand.New(rand.NewSource(0))
	for i := 0; i < 200; i++ {
		trader := traders[r.Intn(len(traders))]
		amount := uint64(r.Intn(3) + 1)

		if r.Intn(2) == 0 {
			_, err := env.market.Buy(env.ctx, trader, "alice", amount, nil, common.ZeroAddress)
			require.NoError(t, err)
		} else {
			_, err := env.market.Sell(env.ctx, trader, "alice", amount, common.ZeroAddress)
			if err != nil {
				assert.True(t, err == ErrInsufficientBalance || err == ErrLastKeyProtected, err.Error())
			}
		}

		require.NoError(t, l.CheckInvariant(env.ctx, "alice"))
	}

	count, err := env.data.GetTradeCountBySubject(env.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, count > 0)
}

func TestConcurrentTrades(t *testing.T) {
	for _, distributed := range []bool{false, true} {
		var opts []func(o *setupOptions)
		if distributed {
			opts = append(opts, func(o *setupOptions) {
				o.distributedLocks = lock.NewLocalManager()
			})
		}

		env := setup(t, append(opts, withOverrides(func(o *Overrides) {
			o.TradeLockTimeout = 10 * time.Second
		}))...)

		const workers = 8
		const buysPerWorker = 5

		var traders []common.Address
		for i := 0; i < workers; i++ {
			traders = append(traders, env.newFundedTrader(t, new(uint256.Int).Mul(oneCurrencyUnit, uint256.NewInt(2))))
		}

		var wg sync.WaitGroup
		errs := make(chan error, workers*buysPerWorker)
		for _, trader := range traders {
			wg.Add(1)
			go func(trader common.Address) {
				defer wg.Done()
				for i := 0; i < buysPerWorker; i++ {
					_, err := env.market.Buy(env.ctx, trader, "alice", 1, oneCurrencyUnit, common.ZeroAddress)
					errs <- err
				}
			}(trader)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		env.assertSupply(t, "alice", workers*buysPerWorker+1)
		require.NoError(t, ledger.New(env.data).CheckInvariant(env.ctx, "alice"))

		// Every trade saw the supply left by the one before it
		records, err := env.market.GetTradeHistory(env.ctx, "alice", query.WithLimit(100), query.WithDirection(query.Ascending))
		require.NoError(t, err)
		require.Len(t, records, workers*buysPerWorker)
		for i, record := range records {
			assert.EqualValues(t, i+2, record.Supply)
		}
	}
}

func TestTraderHistory(t *testing.T) {
	env := setup(t)
	trader := env.newFundedTrader(t, oneCurrencyUnit)

	records, err := env.market.GetTraderHistory(env.ctx, trader)
	require.NoError(t, err)
	assert.Empty(t, records)

	env.registry.Set("bob", newAddress(t))
	env.buy(t, trader, "alice", 1, nil, common.ZeroAddress)
	env.buy(t, trader, "bob", 1, nil, common.ZeroAddress)

	records, err = env.market.GetTraderHistory(env.ctx, trader)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = env.market.GetTradeHistory(env.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0].Subject)
}

func (e *testEnv) newFundedTrader(t *testing.T, amount *uint256.Int) common.Address {
	trader := newAddress(t)
	require.NoError(t, e.market.Deposit(e.ctx, trader, amount))
	if e.market.Rail() == payment.RailToken {
		require.NoError(t, e.market.Approve(e.ctx, trader, amount))
	}
	return trader
}

// buy buys keys, attaching value on the native rail when set and the trader's
// whole balance otherwise
func (e *testEnv) buy(t *testing.T, trader common.Address, subject string, amount uint64, value *uint256.Int, referrer common.Address) *trade.Record {
	if e.market.Rail() == payment.RailToken {
		value = nil
	} else if value == nil {
		value = e.getValue(t, trader)
	}

	record, err := e.market.Buy(e.ctx, trader, subject, amount, value, referrer)
	require.NoError(t, err)
	return record
}

func (e *testEnv) getValue(t *testing.T, owner common.Address) *uint256.Int {
	value, err := e.market.GetValueBalance(e.ctx, owner)
	require.NoError(t, err)
	return value
}

func (e *testEnv) assertValue(t *testing.T, owner common.Address, expected *uint256.Int) {
	assert.Equal(t, expected.Dec(), e.getValue(t, owner).Dec())
}

func (e *testEnv) assertSupply(t *testing.T, subject string, expected uint64) {
	supply, err := e.market.GetSupply(e.ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, expected, supply)
}

func (e *testEnv) assertKeys(t *testing.T, subject string, holder common.Address, expected uint64) {
	balance, err := e.market.GetBalance(e.ctx, subject, holder)
	require.NoError(t, err)
	assert.Equal(t, expected, balance)
}

func newAddress(t *testing.T) common.Address {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)
	return account.Address()
}
