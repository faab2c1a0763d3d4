package tests

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/data/params"
)

func RunTests(t *testing.T, s params.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s params.Store){
		testRoundTrip,
		testVersioning,
		testValidation,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s params.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Get(ctx)
		assert.Equal(t, params.ErrNotFound, err)

		expected := newRecord()
		require.NoError(t, s.Put(ctx, expected))
		assert.EqualValues(t, 1, expected.Version)
		assert.False(t, expected.LastUpdatedAt.IsZero())

		actual, err := s.Get(ctx)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		// Mutating a returned record must not leak into the store
		actual.ProtocolFeePercent.SetUint64(1)
		actual, err = s.Get(ctx)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
	})
}

func testVersioning(t *testing.T, s params.Store) {
	t.Run("testVersioning", func(t *testing.T) {
		ctx := context.Background()

		stale := newRecord()
		stale.Version = 1
		assert.Equal(t, params.ErrStaleVersion, s.Put(ctx, stale))

		record := newRecord()
		require.NoError(t, s.Put(ctx, record))

		second := newRecord()
		assert.Equal(t, params.ErrStaleVersion, s.Put(ctx, second))

		record.FeeReceiver = "new-receiver"
		record.CurveRatio = uint256.NewInt(8000)
		require.NoError(t, s.Put(ctx, record))
		assert.EqualValues(t, 2, record.Version)

		actual, err := s.Get(ctx)
		require.NoError(t, err)
		assertEquivalentRecords(t, record, actual)

		stale = newRecord()
		stale.Version = 1
		assert.Equal(t, params.ErrStaleVersion, s.Put(ctx, stale))
	})
}

func testValidation(t *testing.T, s params.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		for _, mutate := range []func(r *params.Record){
			func(r *params.Record) { r.FeeReceiver = "" },
			func(r *params.Record) { r.ProtocolFeePercent = nil },
			func(r *params.Record) { r.SubjectFeePercent = nil },
			func(r *params.Record) { r.ReferrerFeePercent = nil },
			func(r *params.Record) { r.CurveRatio = nil },
			func(r *params.Record) { r.CurveRatio = new(uint256.Int) },
		} {
			record := newRecord()
			mutate(record)
			assert.Error(t, s.Put(ctx, record))
		}

		_, err := s.Get(ctx)
		assert.Equal(t, params.ErrNotFound, err)
	})
}

func newRecord() *params.Record {
	return &params.Record{
		FeeReceiver:        "fee-receiver",
		ProtocolFeePercent: uint256.MustFromDecimal("50000000000000000"),
		SubjectFeePercent:  uint256.MustFromDecimal("50000000000000000"),
		ReferrerFeePercent: uint256.MustFromDecimal("10000000000000000"),
		CurveRatio:         uint256.NewInt(16000),
	}
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *params.Record) {
	assert.Equal(t, obj1.FeeReceiver, obj2.FeeReceiver)
	assert.Equal(t, obj1.ProtocolFeePercent, obj2.ProtocolFeePercent)
	assert.Equal(t, obj1.SubjectFeePercent, obj2.SubjectFeePercent)
	assert.Equal(t, obj1.ReferrerFeePercent, obj2.ReferrerFeePercent)
	assert.Equal(t, obj1.CurveRatio, obj2.CurveRatio)
	assert.Equal(t, obj1.Version, obj2.Version)
}
