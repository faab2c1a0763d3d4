package data

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pg "github.com/code-payments/keys-server/pkg/database/postgres"
	"github.com/code-payments/keys-server/pkg/keys/data/balance"
	"github.com/code-payments/keys-server/pkg/keys/data/params"
	"github.com/code-payments/keys-server/pkg/keys/data/subject"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
)

func TestMemoryExecuteInTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	dp := NewTestDatabaseProvider()

	err := dp.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if _, err := dp.InitializeSubject(ctx, "alice", "alice-holder"); err != nil {
			return err
		}
		if _, err := dp.MintKeys(ctx, "alice", "buyer", 2); err != nil {
			return err
		}
		return dp.CreditValue(ctx, balance.AssetNative, "buyer", uint256.NewInt(10))
	})
	require.NoError(t, err)

	record, err := dp.GetSubject(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 3, record.Supply)

	amount, err := dp.GetValueBalance(ctx, balance.AssetNative, "buyer")
	require.NoError(t, err)
	assert.EqualValues(t, 10, amount.Uint64())
}

func TestMemoryExecuteInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	dp := NewTestDatabaseProvider()

	_, err := dp.InitializeSubject(ctx, "alice", "alice-holder")
	require.NoError(t, err)
	require.NoError(t, dp.CreditValue(ctx, balance.AssetToken, "buyer", uint256.NewInt(100)))
	require.NoError(t, dp.SetAllowance(ctx, "buyer", "market", uint256.NewInt(100)))
	require.NoError(t, dp.PutMarketParams(ctx, &params.Record{
		FeeReceiver:        "fees",
		ProtocolFeePercent: new(uint256.Int),
		SubjectFeePercent:  new(uint256.Int),
		ReferrerFeePercent: new(uint256.Int),
		CurveRatio:         uint256.NewInt(16000),
	}))

	expected := errors.New("transfer failed")
	err = dp.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if _, err := dp.MintKeys(ctx, "alice", "buyer", 5); err != nil {
			return err
		}
		if _, err := dp.InitializeSubject(ctx, "bob", "bob-holder"); err != nil {
			return err
		}
		if err := dp.SpendAllowance(ctx, "buyer", "market", uint256.NewInt(60)); err != nil {
			return err
		}
		if err := dp.DebitValue(ctx, balance.AssetToken, "buyer", uint256.NewInt(60)); err != nil {
			return err
		}
		if err := dp.CreditValue(ctx, balance.AssetToken, "market", uint256.NewInt(60)); err != nil {
			return err
		}

		current, err := dp.GetMarketParams(ctx)
		if err != nil {
			return err
		}
		current.FeeReceiver = "other"
		if err := dp.PutMarketParams(ctx, current); err != nil {
			return err
		}

		err = dp.PutTrade(ctx, &trade.Record{
			TradeId:      uuid.NewString(),
			Subject:      "alice",
			Trader:       "buyer",
			RightsHolder: "alice-holder",
			Direction:    trade.DirectionBuy,
			Rail:         "token",
			Amount:       5,
			GrossPrice:   uint256.NewInt(60),
			ProtocolFee:  new(uint256.Int),
			SubjectFee:   new(uint256.Int),
			ReferrerFee:  new(uint256.Int),
			Total:        uint256.NewInt(60),
			Supply:       6,
		})
		if err != nil {
			return err
		}

		return expected
	})
	assert.Equal(t, expected, err)

	record, err := dp.GetSubject(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, record.Supply)

	keys, err := dp.GetKeyBalance(ctx, "alice", "buyer")
	require.NoError(t, err)
	assert.EqualValues(t, 0, keys)

	_, err = dp.GetSubject(ctx, "bob")
	assert.Equal(t, subject.ErrNotFound, err)

	amount, err := dp.GetValueBalance(ctx, balance.AssetToken, "buyer")
	require.NoError(t, err)
	assert.EqualValues(t, 100, amount.Uint64())

	amount, err = dp.GetValueBalance(ctx, balance.AssetToken, "market")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())

	amount, err = dp.GetAllowance(ctx, "buyer", "market")
	require.NoError(t, err)
	assert.EqualValues(t, 100, amount.Uint64())

	current, err := dp.GetMarketParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fees", current.FeeReceiver)
	assert.EqualValues(t, 1, current.Version)

	_, err = dp.GetAllTradesBySubject(ctx, "alice")
	assert.Equal(t, trade.ErrNotFound, err)
}

func TestMemoryExecuteInTx_RejectsNesting(t *testing.T) {
	ctx := context.Background()
	dp := NewTestDatabaseProvider()

	var nestedErr error
	err := dp.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		nestedErr = dp.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, pg.ErrAlreadyInTx, nestedErr)
}
