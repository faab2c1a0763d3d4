package fees

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/curve"
)

func defaultPercentages() Percentages {
	return Percentages{
		Protocol: MustParsePercent("0.05"),
		Subject:  MustParsePercent("0.05"),
		Referrer: MustParsePercent("0.01"),
	}
}

func TestOf(t *testing.T) {
	gross := uint256.NewInt(1_000_000)

	fee, err := Of(gross, MustParsePercent("0.05"))
	require.NoError(t, err)
	assert.EqualValues(t, 50_000, fee.Uint64())

	// Rounds toward zero
	fee, err = Of(uint256.NewInt(19), MustParsePercent("0.05"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, fee.Uint64())

	fee, err = Of(gross, new(uint256.Int))
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	fee, err = Of(gross, curve.Scale)
	require.NoError(t, err)
	assert.Equal(t, gross, fee)
}

func TestForBuy(t *testing.T) {
	gross := uint256.NewInt(62_500_000_000_000)

	b, err := ForBuy(gross, defaultPercentages(), false)
	require.NoError(t, err)
	assert.Equal(t, SideBuy, b.Side)
	assert.EqualValues(t, 3_125_000_000_000, b.Protocol.Uint64())
	assert.EqualValues(t, 3_125_000_000_000, b.Subject.Uint64())
	assert.True(t, b.Referrer.IsZero())
	assert.EqualValues(t, 68_750_000_000_000, b.Total.Uint64())

	b, err = ForBuy(gross, defaultPercentages(), true)
	require.NoError(t, err)
	assert.EqualValues(t, 625_000_000_000, b.Referrer.Uint64())
	assert.EqualValues(t, 69_375_000_000_000, b.Total.Uint64())
}

func TestForSell(t *testing.T) {
	gross := uint256.NewInt(62_500_000_000_000)

	b, err := ForSell(gross, defaultPercentages(), false)
	require.NoError(t, err)
	assert.Equal(t, SideSell, b.Side)
	assert.EqualValues(t, 56_250_000_000_000, b.Total.Uint64())

	b, err = ForSell(gross, defaultPercentages(), true)
	require.NoError(t, err)
	assert.EqualValues(t, 55_625_000_000_000, b.Total.Uint64())
}

func TestFeeAdditivity(t *testing.T) {
	pct := Percentages{
		Protocol: MustParsePercent("0.033333333333333333"),
		Subject:  MustParsePercent("0.07"),
		Referrer: MustParsePercent("0.0123"),
	}

	for _, gross := range []uint64{0, 1, 7, 99, 12345, 62_500_000_000_000, 1 << 62} {
		for _, withReferrer := range []bool{false, true} {
			g := uint256.NewInt(gross)

			buy, err := ForBuy(g, pct, withReferrer)
			require.NoError(t, err)

			sell, err := ForSell(g, pct, withReferrer)
			require.NoError(t, err)

			// Fees never exceed the gross price
			assert.False(t, buy.Fees().Gt(g))

			// Buy cost minus sell payout is exactly both fee legs
			spread := new(uint256.Int).Sub(buy.Total, sell.Total)
			bothLegs := new(uint256.Int).Add(buy.Fees(), sell.Fees())
			assert.Equal(t, bothLegs, spread)
		}
	}
}

func TestZeroFeesRoundTrip(t *testing.T) {
	pct := Percentages{Protocol: new(uint256.Int), Subject: new(uint256.Int), Referrer: new(uint256.Int)}
	gross := uint256.NewInt(123_456_789)

	buy, err := ForBuy(gross, pct, true)
	require.NoError(t, err)
	sell, err := ForSell(gross, pct, true)
	require.NoError(t, err)

	assert.Equal(t, gross, buy.Total)
	assert.Equal(t, gross, sell.Total)
}

func TestValidate(t *testing.T) {
	pct := defaultPercentages()
	assert.NoError(t, pct.Validate())

	pct.Referrer = MustParsePercent("0.9")
	assert.Equal(t, ErrFeeTooHigh, pct.Validate())

	_, err := ForBuy(uint256.NewInt(100), pct, false)
	assert.Equal(t, ErrFeeTooHigh, err)

	pct = Percentages{Protocol: MustParsePercent("1"), Subject: new(uint256.Int), Referrer: new(uint256.Int)}
	assert.NoError(t, pct.Validate())

	pct.Subject = uint256.NewInt(1)
	assert.Equal(t, ErrFeeTooHigh, pct.Validate())

	pct.Subject = new(uint256.Int).SetAllOne()
	assert.Equal(t, ErrFeeTooHigh, pct.Validate())

	pct.Subject = nil
	assert.Error(t, pct.Validate())

	cloned := pct.Clone()
	assert.True(t, cloned.Subject.IsZero())
}

func TestParsePercent(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected string
	}{
		{"0", "0"},
		{"0.05", "50000000000000000"},
		{"1", "1000000000000000000"},
		{"0.000000000000000001", "1"},
	} {
		actual, err := ParsePercent(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, actual.Dec())
	}

	for _, invalid := range []string{"", "abc", "-0.01", "1.01", "0.0000000000000000001"} {
		_, err := ParsePercent(invalid)
		assert.Error(t, err, invalid)
	}

	assert.Panics(t, func() { MustParsePercent("2") })

	assert.Equal(t, "0.05", FormatPercent(MustParsePercent("0.05")))
	assert.Equal(t, "0.0000625", FormatAmount(uint256.NewInt(62_500_000_000_000)))
	assert.Equal(t, "0", FormatAmount(nil))
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "buy", SideBuy.String())
	assert.Equal(t, "sell", SideSell.String())
	assert.Equal(t, "unknown", SideUnknown.String())
}
