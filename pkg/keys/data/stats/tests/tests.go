package tests

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/data/stats"
)

func RunTests(t *testing.T, s stats.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s stats.Store){
		testWriters,
		testVolumes,
	} {
		tf(t, s)
		teardown()
	}
}

func testWriters(t *testing.T, s stats.Store) {
	t.Run("testWriters", func(t *testing.T) {
		ctx := context.Background()

		isWriter, err := s.IsWriter(ctx, "market")
		require.NoError(t, err)
		assert.False(t, isWriter)

		for i := 0; i < 2; i++ {
			require.NoError(t, s.AddWriter(ctx, "market"))

			isWriter, err = s.IsWriter(ctx, "market")
			require.NoError(t, err)
			assert.True(t, isWriter)
		}

		isWriter, err = s.IsWriter(ctx, "other")
		require.NoError(t, err)
		assert.False(t, isWriter)

		for i := 0; i < 2; i++ {
			require.NoError(t, s.RemoveWriter(ctx, "market"))

			isWriter, err = s.IsWriter(ctx, "market")
			require.NoError(t, err)
			assert.False(t, isWriter)
		}
	})
}

func testVolumes(t *testing.T, s stats.Store) {
	t.Run("testVolumes", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetVolume(ctx, stats.KindSubject, "alice")
		assert.Equal(t, stats.ErrNotFound, err)

		require.NoError(t, s.AddVolume(ctx, stats.KindSubject, "alice", uint256.NewInt(100)))
		require.NoError(t, s.AddVolume(ctx, stats.KindSubject, "alice", uint256.NewInt(50)))
		require.NoError(t, s.AddVolume(ctx, stats.KindTrader, "alice", uint256.NewInt(7)))

		volume, err := s.GetVolume(ctx, stats.KindSubject, "alice")
		require.NoError(t, err)
		assert.Equal(t, stats.KindSubject, volume.Kind)
		assert.Equal(t, "alice", volume.Key)
		assert.EqualValues(t, 150, volume.Volume.Uint64())
		assert.EqualValues(t, 2, volume.TradeCount)
		assert.False(t, volume.LastUpdatedAt.IsZero())

		volume, err = s.GetVolume(ctx, stats.KindTrader, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, 7, volume.Volume.Uint64())
		assert.EqualValues(t, 1, volume.TradeCount)

		// Zero value trades still count
		require.NoError(t, s.AddVolume(ctx, stats.KindTrader, "alice", new(uint256.Int)))
		volume, err = s.GetVolume(ctx, stats.KindTrader, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, 7, volume.Volume.Uint64())
		assert.EqualValues(t, 2, volume.TradeCount)

		assert.Error(t, s.AddVolume(ctx, stats.Kind("unknown"), "alice", uint256.NewInt(1)))
	})
}
