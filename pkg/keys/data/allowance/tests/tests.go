package tests

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/data/allowance"
)

func RunTests(t *testing.T, s allowance.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s allowance.Store){
		testSetAndSpend,
	} {
		tf(t, s)
		teardown()
	}
}

func testSetAndSpend(t *testing.T, s allowance.Store) {
	t.Run("testSetAndSpend", func(t *testing.T) {
		ctx := context.Background()

		amount, err := s.Get(ctx, "owner", "market")
		require.NoError(t, err)
		assert.True(t, amount.IsZero())

		assert.Equal(t, allowance.ErrInsufficientAllowance, s.Spend(ctx, "owner", "market", uint256.NewInt(1)))

		require.NoError(t, s.Set(ctx, "owner", "market", uint256.NewInt(100)))

		require.NoError(t, s.Spend(ctx, "owner", "market", uint256.NewInt(40)))

		amount, err = s.Get(ctx, "owner", "market")
		require.NoError(t, err)
		assert.EqualValues(t, 60, amount.Uint64())

		assert.Equal(t, allowance.ErrInsufficientAllowance, s.Spend(ctx, "owner", "market", uint256.NewInt(61)))

		// Allowances are directional
		amount, err = s.Get(ctx, "market", "owner")
		require.NoError(t, err)
		assert.True(t, amount.IsZero())

		// Set overwrites rather than adds
		require.NoError(t, s.Set(ctx, "owner", "market", uint256.NewInt(5)))
		amount, err = s.Get(ctx, "owner", "market")
		require.NoError(t, err)
		assert.EqualValues(t, 5, amount.Uint64())

		require.NoError(t, s.Set(ctx, "owner", "market", new(uint256.Int)))
		assert.Equal(t, allowance.ErrInsufficientAllowance, s.Spend(ctx, "owner", "market", uint256.NewInt(1)))

		large := new(uint256.Int).SetAllOne()
		require.NoError(t, s.Set(ctx, "owner", "market", large))
		require.NoError(t, s.Spend(ctx, "owner", "market", uint256.NewInt(1)))
		amount, err = s.Get(ctx, "owner", "market")
		require.NoError(t, err)
		assert.Equal(t, new(uint256.Int).SubUint64(large, 1), amount)
	})
}
