package tickmath

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeseeker/rebalancer/internal/types"
)

func TestTickFromPriceRoundTrip(t *testing.T) {
	for _, price := range []float64{0.0001, 0.5, 1.0, 1850.0, 4.2e8} {
		tick, err := TickFromPrice(price)
		require.NoError(t, err)
		assert.InEpsilon(t, price, PriceFromTick(tick), 1e-9)
	}
}

func TestTickFromPriceRejectsInvalid(t *testing.T) {
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := TickFromPrice(price)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))
	}
}

func TestAlignmentMultiples(t *testing.T) {
	assert.Equal(t, int32(60), AlignDown(119, 60))
	assert.Equal(t, int32(120), AlignUp(61, 60))
	assert.Equal(t, int32(120), AlignDown(120, 60))
	assert.Equal(t, int32(120), AlignUp(120, 60))

	// Negative ticks keep flooring toward -inf and ceiling toward +inf.
	assert.Equal(t, int32(-120), AlignDown(-61, 60))
	assert.Equal(t, int32(-60), AlignUp(-119, 60))
}

func TestRangeToTicksContainsRequestedRange(t *testing.T) {
	cases := []struct {
		name       string
		priceLower float64
		priceUpper float64
		spacing    int32
	}{
		{"wide eth range", 3000, 4000, 60},
		{"narrow range", 0.998, 1.002, 1},
		{"sub-unit prices", 0.0004, 0.0006, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lower, upper, err := RangeToTicks(tc.priceLower, tc.priceUpper, tc.spacing)
			require.NoError(t, err)
			assert.Less(t, lower, upper)
			assert.Zero(t, lower%tc.spacing)
			assert.Zero(t, upper%tc.spacing)

			// Alignment may only grow the range, never shrink it.
			assert.LessOrEqual(t, PriceFromTick(float64(lower)), tc.priceLower)
			assert.GreaterOrEqual(t, PriceFromTick(float64(upper)), tc.priceUpper)
		})
	}
}

func TestRangeToTicksNegativeTicks(t *testing.T) {
	// Prices below 1.0 map to negative ticks.
	lower, upper, err := RangeToTicks(0.5, 0.6, 10)
	require.NoError(t, err)
	assert.Less(t, lower, int32(0))
	assert.Less(t, upper, int32(0))
	assert.Less(t, lower, upper)
}

func TestRangeToTicksRejectsBadInput(t *testing.T) {
	_, _, err := RangeToTicks(4000, 3000, 60)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))

	_, _, err = RangeToTicks(3000, 4000, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))

	_, _, err = RangeToTicks(-1, 4000, 60)
	require.Error(t, err)
}
