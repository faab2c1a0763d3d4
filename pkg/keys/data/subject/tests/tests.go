package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/data/subject"
)

func RunTests(t *testing.T, s subject.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s subject.Store){
		testInitialize,
		testMintAndBurn,
		testHoldings,
	} {
		tf(t, s)
		teardown()
	}
}

func testInitialize(t *testing.T, s subject.Store) {
	t.Run("testInitialize", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Get(ctx, "alice")
		assert.Equal(t, subject.ErrNotFound, err)

		_, err = s.Mint(ctx, "alice", "holder", 1)
		assert.Equal(t, subject.ErrNotFound, err)

		_, err = s.Burn(ctx, "alice", "holder", 1)
		assert.Equal(t, subject.ErrNotFound, err)

		_, err = s.GetHoldings(ctx, "alice")
		assert.Equal(t, subject.ErrNotFound, err)

		balance, err := s.GetBalance(ctx, "alice", "holder")
		require.NoError(t, err)
		assert.Zero(t, balance)

		record, err := s.Initialize(ctx, "alice", "holder")
		require.NoError(t, err)
		assert.True(t, record.Id > 0)
		assert.Equal(t, "alice", record.Subject)
		assert.EqualValues(t, 1, record.Supply)
		assert.False(t, record.CreatedAt.IsZero())

		_, err = s.Initialize(ctx, "alice", "other")
		assert.Equal(t, subject.ErrAlreadyExists, err)

		actual, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, record.Id, actual.Id)
		assert.EqualValues(t, 1, actual.Supply)

		balance, err = s.GetBalance(ctx, "alice", "holder")
		require.NoError(t, err)
		assert.EqualValues(t, 1, balance)

		balance, err = s.GetBalance(ctx, "alice", "other")
		require.NoError(t, err)
		assert.Zero(t, balance)
	})
}

func testMintAndBurn(t *testing.T, s subject.Store) {
	t.Run("testMintAndBurn", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Initialize(ctx, "bob", "bob-holder")
		require.NoError(t, err)

		_, err = s.Mint(ctx, "bob", "trader", 0)
		assert.Equal(t, subject.ErrInvalidAmount, err)

		supply, err := s.Mint(ctx, "bob", "trader", 3)
		require.NoError(t, err)
		assert.EqualValues(t, 4, supply)

		for _, amount := range []uint64{subject.MaxSupply - 3, subject.MaxSupply + 1, ^uint64(0)} {
			_, err = s.Mint(ctx, "bob", "trader", amount)
			assert.Equal(t, subject.ErrSupplyOverflow, err)
		}

		record, err := s.Get(ctx, "bob")
		require.NoError(t, err)
		assert.EqualValues(t, 4, record.Supply)

		supply, err = s.Mint(ctx, "bob", "trader", 2)
		require.NoError(t, err)
		assert.EqualValues(t, 6, supply)

		balance, err := s.GetBalance(ctx, "bob", "trader")
		require.NoError(t, err)
		assert.EqualValues(t, 5, balance)

		_, err = s.Burn(ctx, "bob", "trader", 6)
		assert.Equal(t, subject.ErrInsufficientBalance, err)

		_, err = s.Burn(ctx, "bob", "nobody", 1)
		assert.Equal(t, subject.ErrInsufficientBalance, err)

		_, err = s.Burn(ctx, "bob", "trader", 0)
		assert.Equal(t, subject.ErrInvalidAmount, err)

		record, err = s.Get(ctx, "bob")
		require.NoError(t, err)
		assert.EqualValues(t, 6, record.Supply)

		supply, err = s.Burn(ctx, "bob", "trader", 5)
		require.NoError(t, err)
		assert.EqualValues(t, 1, supply)

		balance, err = s.GetBalance(ctx, "bob", "trader")
		require.NoError(t, err)
		assert.Zero(t, balance)

		// The store doesn't protect the last key, that's up to the ledger
		supply, err = s.Burn(ctx, "bob", "bob-holder", 1)
		require.NoError(t, err)
		assert.Zero(t, supply)
	})
}

func testHoldings(t *testing.T, s subject.Store) {
	t.Run("testHoldings", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Initialize(ctx, "carol", "c")
		require.NoError(t, err)

		_, err = s.Mint(ctx, "carol", "a", 2)
		require.NoError(t, err)
		_, err = s.Mint(ctx, "carol", "b", 3)
		require.NoError(t, err)
		_, err = s.Mint(ctx, "carol", "c", 1)
		require.NoError(t, err)

		_, err = s.Initialize(ctx, "dave", "a")
		require.NoError(t, err)

		holdings, err := s.GetHoldings(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, holdings, 3)

		expected := []struct {
			holder string
			amount uint64
		}{
			{"a", 2},
			{"b", 3},
			{"c", 2},
		}
		var total uint64
		for i, holding := range holdings {
			assert.Equal(t, "carol", holding.Subject)
			assert.Equal(t, expected[i].holder, holding.Holder)
			assert.Equal(t, expected[i].amount, holding.Amount)
			total += holding.Amount
		}

		record, err := s.Get(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, record.Supply, total)

		// Fully burned holdings are no longer listed
		_, err = s.Burn(ctx, "carol", "a", 2)
		require.NoError(t, err)

		holdings, err = s.GetHoldings(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, holdings, 2)
		assert.Equal(t, "b", holdings[0].Holder)
		assert.Equal(t, "c", holdings[1].Holder)
	})
}
