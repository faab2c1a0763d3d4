package tests

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/database/query"
	"github.com/code-payments/keys-server/pkg/keys/data/trade"
)

func RunTests(t *testing.T, s trade.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s trade.Store){
		testRoundTrip,
		testPaging,
		testValidation,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s trade.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		expected := newRecord("alice", "trader", trade.DirectionBuy)

		_, err := s.Get(ctx, expected.TradeId)
		assert.Equal(t, trade.ErrNotFound, err)

		require.NoError(t, s.Put(ctx, expected))
		assert.NotZero(t, expected.Id)

		actual, err := s.Get(ctx, expected.TradeId)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		duplicate := newRecord("bob", "trader", trade.DirectionSell)
		duplicate.TradeId = expected.TradeId
		assert.Equal(t, trade.ErrAlreadyExists, s.Put(ctx, duplicate))

		count, err := s.CountBySubject(ctx, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)

		count, err = s.CountBySubject(ctx, "bob")
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})
}

func testPaging(t *testing.T, s trade.Store) {
	t.Run("testPaging", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllBySubject(ctx, "alice")
		assert.Equal(t, trade.ErrNotFound, err)

		var expected []*trade.Record
		for i := 0; i < 10; i++ {
			record := newRecord("alice", fmt.Sprintf("trader%d", i%2), trade.DirectionBuy)
			require.NoError(t, s.Put(ctx, record))
			expected = append(expected, record)

			require.NoError(t, s.Put(ctx, newRecord("bob", "trader0", trade.DirectionBuy)))
		}

		actual, err := s.GetAllBySubject(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, actual, len(expected))
		for i := range expected {
			assertEquivalentRecords(t, expected[i], actual[i])
		}

		actual, err = s.GetAllBySubject(ctx, "alice", query.WithLimit(3), query.WithDirection(query.Descending))
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assert.Equal(t, expected[9].TradeId, actual[0].TradeId)
		assert.Equal(t, expected[7].TradeId, actual[2].TradeId)

		actual, err = s.GetAllBySubject(ctx, "alice", query.WithLimit(3), query.WithCursor(query.ToCursor(expected[4].Id)))
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assert.Equal(t, expected[5].TradeId, actual[0].TradeId)
		assert.Equal(t, expected[7].TradeId, actual[2].TradeId)

		_, err = s.GetAllBySubject(ctx, "alice", query.WithCursor(query.ToCursor(expected[9].Id)))
		assert.Equal(t, trade.ErrNotFound, err)

		actual, err = s.GetAllByTrader(ctx, "trader1")
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assertEquivalentRecords(t, expected[2*i+1], record)
		}

		actual, err = s.GetAllByTrader(ctx, "trader0")
		require.NoError(t, err)
		assert.Len(t, actual, 15)

		_, err = s.GetAllBySubject(ctx, "alice", query.WithLimit(0))
		assert.Equal(t, query.ErrQueryNotSupported, err)
	})
}

func testValidation(t *testing.T, s trade.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		for _, mutate := range []func(r *trade.Record){
			func(r *trade.Record) { r.TradeId = "" },
			func(r *trade.Record) { r.Subject = "" },
			func(r *trade.Record) { r.Trader = "" },
			func(r *trade.Record) { r.RightsHolder = "" },
			func(r *trade.Record) { r.Direction = trade.DirectionUnknown },
			func(r *trade.Record) { r.Rail = "" },
			func(r *trade.Record) { r.Amount = 0 },
			func(r *trade.Record) { r.Total = nil },
		} {
			record := newRecord("alice", "trader", trade.DirectionBuy)
			mutate(record)
			assert.Error(t, s.Put(ctx, record))
		}

		_, err := s.GetAllBySubject(ctx, "alice")
		assert.Equal(t, trade.ErrNotFound, err)
	})
}

func newRecord(subject, trader string, direction trade.Direction) *trade.Record {
	return &trade.Record{
		TradeId:      uuid.NewString(),
		Subject:      subject,
		Trader:       trader,
		RightsHolder: "holder",
		Referrer:     "referrer",
		Direction:    direction,
		Rail:         "token",
		Amount:       2,
		GrossPrice:   uint256.MustFromDecimal("250000000000000"),
		ProtocolFee:  uint256.NewInt(12500000000000),
		SubjectFee:   uint256.NewInt(12500000000000),
		ReferrerFee:  uint256.NewInt(2500000000000),
		Total:        uint256.NewInt(277500000000000),
		Supply:       3,
	}
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *trade.Record) {
	assert.Equal(t, obj1.Id, obj2.Id)
	assert.Equal(t, obj1.TradeId, obj2.TradeId)
	assert.Equal(t, obj1.Subject, obj2.Subject)
	assert.Equal(t, obj1.Trader, obj2.Trader)
	assert.Equal(t, obj1.RightsHolder, obj2.RightsHolder)
	assert.Equal(t, obj1.Referrer, obj2.Referrer)
	assert.Equal(t, obj1.Direction, obj2.Direction)
	assert.Equal(t, obj1.Rail, obj2.Rail)
	assert.Equal(t, obj1.Amount, obj2.Amount)
	assert.Equal(t, obj1.GrossPrice, obj2.GrossPrice)
	assert.Equal(t, obj1.ProtocolFee, obj2.ProtocolFee)
	assert.Equal(t, obj1.SubjectFee, obj2.SubjectFee)
	assert.Equal(t, obj1.ReferrerFee, obj2.ReferrerFee)
	assert.Equal(t, obj1.Total, obj2.Total)
	assert.Equal(t, obj1.Supply, obj2.Supply)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
}
