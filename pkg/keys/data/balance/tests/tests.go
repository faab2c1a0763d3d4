package tests

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/data/balance"
)

func RunTests(t *testing.T, s balance.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s balance.Store){
		testCreditAndDebit,
		testAssetsAreIsolated,
		testLargeAmounts,
	} {
		tf(t, s)
		teardown()
	}
}

func testCreditAndDebit(t *testing.T, s balance.Store) {
	t.Run("testCreditAndDebit", func(t *testing.T) {
		ctx := context.Background()

		amount, err := s.GetBalance(ctx, balance.AssetNative, "owner")
		require.NoError(t, err)
		assert.True(t, amount.IsZero())

		assert.Equal(t, balance.ErrInsufficientBalance, s.Debit(ctx, balance.AssetNative, "owner", uint256.NewInt(1)))

		require.NoError(t, s.Credit(ctx, balance.AssetNative, "owner", uint256.NewInt(100)))
		require.NoError(t, s.Credit(ctx, balance.AssetNative, "owner", uint256.NewInt(50)))

		amount, err = s.GetBalance(ctx, balance.AssetNative, "owner")
		require.NoError(t, err)
		assert.EqualValues(t, 150, amount.Uint64())

		assert.Equal(t, balance.ErrInsufficientBalance, s.Debit(ctx, balance.AssetNative, "owner", uint256.NewInt(151)))

		amount, err = s.GetBalance(ctx, balance.AssetNative, "owner")
		require.NoError(t, err)
		assert.EqualValues(t, 150, amount.Uint64())

		require.NoError(t, s.Debit(ctx, balance.AssetNative, "owner", uint256.NewInt(150)))

		amount, err = s.GetBalance(ctx, balance.AssetNative, "owner")
		require.NoError(t, err)
		assert.True(t, amount.IsZero())

		// Zero amounts are no-ops
		require.NoError(t, s.Credit(ctx, balance.AssetNative, "owner", new(uint256.Int)))
		require.NoError(t, s.Debit(ctx, balance.AssetNative, "owner", new(uint256.Int)))

		_, err = s.GetBalance(ctx, balance.Asset("unknown"), "owner")
		assert.Equal(t, balance.ErrInvalidAsset, err)
		assert.Equal(t, balance.ErrInvalidAsset, s.Credit(ctx, balance.Asset("unknown"), "owner", uint256.NewInt(1)))
	})
}

func testAssetsAreIsolated(t *testing.T, s balance.Store) {
	t.Run("testAssetsAreIsolated", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.Credit(ctx, balance.AssetNative, "a", uint256.NewInt(10)))
		require.NoError(t, s.Credit(ctx, balance.AssetToken, "a", uint256.NewInt(20)))
		require.NoError(t, s.Credit(ctx, balance.AssetToken, "b", uint256.NewInt(30)))

		amount, err := s.GetBalance(ctx, balance.AssetNative, "a")
		require.NoError(t, err)
		assert.EqualValues(t, 10, amount.Uint64())

		amount, err = s.GetBalance(ctx, balance.AssetToken, "a")
		require.NoError(t, err)
		assert.EqualValues(t, 20, amount.Uint64())

		total, err := s.GetTotal(ctx, balance.AssetNative)
		require.NoError(t, err)
		assert.EqualValues(t, 10, total.Uint64())

		total, err = s.GetTotal(ctx, balance.AssetToken)
		require.NoError(t, err)
		assert.EqualValues(t, 50, total.Uint64())

		assert.Equal(t, balance.ErrInsufficientBalance, s.Debit(ctx, balance.AssetNative, "b", uint256.NewInt(1)))
	})
}

func testLargeAmounts(t *testing.T, s balance.Store) {
	t.Run("testLargeAmounts", func(t *testing.T) {
		ctx := context.Background()

		large := uint256.MustFromDecimal("1000000000000000000000000000000000000000")
		require.NoError(t, s.Credit(ctx, balance.AssetToken, "whale", large))
		require.NoError(t, s.Credit(ctx, balance.AssetToken, "whale", large))

		amount, err := s.GetBalance(ctx, balance.AssetToken, "whale")
		require.NoError(t, err)
		assert.Equal(t, "2000000000000000000000000000000000000000", amount.Dec())

		require.NoError(t, s.Debit(ctx, balance.AssetToken, "whale", uint256.NewInt(1)))

		amount, err = s.GetBalance(ctx, balance.AssetToken, "whale")
		require.NoError(t, err)
		assert.Equal(t, "1999999999999999999999999999999999999999", amount.Dec())
	})
}
