/*

Pure numeric utilities converting between price, tick index and
tick-spacing-aligned ranges. price = 1.0001^tick.

The lower bound always rounds down and the upper bound always rounds up, both
before and after spacing alignment, so the aligned range contains the
requested price range and behaves the same for negative ticks (prices below
1.0). A range that collapses after alignment is a configuration error, never
a silent no-op.

*/

package tickmath

import (
	"fmt"
	"math"

	"github.com/rangeseeker/rebalancer/internal/types"
)

var logTickBase = math.Log(1.0001)

// TickFromPrice returns the unaligned tick index for a price.
func TickFromPrice(price float64) (float64, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: price must be positive and finite, got %f", types.ErrInvalidConfiguration, price)
	}
	return math.Log(price) / logTickBase, nil
}

// PriceFromTick is the inverse of TickFromPrice.
func PriceFromTick(tick float64) float64 {
	return math.Pow(1.0001, tick)
}

// AlignDown floors a tick to the nearest multiple of spacing.
func AlignDown(tick int32, spacing int32) int32 {
	return int32(math.Floor(float64(tick)/float64(spacing))) * spacing
}

// AlignUp ceils a tick to the nearest multiple of spacing.
func AlignUp(tick int32, spacing int32) int32 {
	return int32(math.Ceil(float64(tick)/float64(spacing))) * spacing
}

// RangeToTicks converts a target price range into an aligned tick range for
// the pool's spacing. Guarantees tickLower < tickUpper, or reports
// ErrInvalidConfiguration when alignment collapses the range (an extremely
// narrow range combined with coarse spacing).
func RangeToTicks(priceLower, priceUpper float64, spacing int32) (int32, int32, error) {
	if spacing < 1 {
		return 0, 0, fmt.Errorf("%w: tick spacing must be >= 1, got %d", types.ErrInvalidConfiguration, spacing)
	}
	if priceLower >= priceUpper {
		return 0, 0, fmt.Errorf("%w: price range [%f, %f] is not ascending", types.ErrInvalidConfiguration, priceLower, priceUpper)
	}

	rawLower, err := TickFromPrice(priceLower)
	if err != nil {
		return 0, 0, err
	}
	rawUpper, err := TickFromPrice(priceUpper)
	if err != nil {
		return 0, 0, err
	}

	tickLower := AlignDown(int32(math.Floor(rawLower)), spacing)
	tickUpper := AlignUp(int32(math.Ceil(rawUpper)), spacing)

	if tickLower >= tickUpper {
		return 0, 0, fmt.Errorf(
			"%w: price range [%f, %f] collapsed to ticks [%d, %d] at spacing %d",
			types.ErrInvalidConfiguration, priceLower, priceUpper, tickLower, tickUpper, spacing,
		)
	}

	return tickLower, tickUpper, nil
}
