/*

AllocationCalculator computes the optimal token split for a target price range
and the minimal swap needed to reach it from current holdings. The split is
derived from the concentrated-liquidity invariant: both sides must be addable
at the specific price/range to form valid liquidity.

*/

package allocation

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

var (
	ErrInvalidPrice        = errors.New("current price must be positive")
	ErrInvalidRangePercent = errors.New("range percent must be in (0, 1)")
	ErrInvalidHoldings     = errors.New("holdings contain invalid values")
	ErrInvalidAssetPrices  = errors.New("asset prices must be positive")
	ErrMathematicalError   = errors.New("mathematical calculation error")
)

// Config carries the asset-specific minimum swap sizes, in human token units.
// These are absolute minimums, not percentages; they guard against
// dust-sized, fee-dominated swaps.
type Config struct {
	MinSwapThreshold0 float64
	MinSwapThreshold1 float64
}

// Inputs are the current market and wallet state for one calculation.
type Inputs struct {
	CurrentPrice float64 // token1 per token0
	RangePercent float64 // fraction of price, in (0, 1)
	Amount0      float64
	Amount1      float64
	Price0       float64 // USD
	Price1       float64 // USD
}

// Result is the computed target split and swap leg. SwapAmount is expressed
// in units of the token being sold; zero when SwapDirection is SwapNone.
type Result struct {
	PriceLower    float64
	PriceUpper    float64
	OptimalRatio  float64 // token1 per token0 at this range
	TargetAmount0 float64
	TargetAmount1 float64
	SwapDirection types.SwapDirection
	SwapAmount    float64
}

// Calculator plans token splits for a fixed pair.
type Calculator struct {
	cfg    Config
	logger zerolog.Logger
}

// NewCalculator creates a Calculator with the given dust thresholds.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		cfg:    cfg,
		logger: logger.GetForComponent("allocation_calculator"),
	}
}

// Compute is deterministic given identical inputs and never plans a swap when
// both target diffs are below their thresholds, even if nonzero.
func (c *Calculator) Compute(in Inputs) (Result, error) {
	if err := validateInputs(in); err != nil {
		return Result{}, err
	}

	priceLower := in.CurrentPrice * (1 - in.RangePercent)
	priceUpper := in.CurrentPrice * (1 + in.RangePercent)

	sqrtP := math.Sqrt(in.CurrentPrice)
	sqrtPl := math.Sqrt(priceLower)
	sqrtPu := math.Sqrt(priceUpper)

	// Per unit of liquidity: token0 held above the price, token1 below.
	unit0 := 1/sqrtP - 1/sqrtPu
	unit1 := sqrtP - sqrtPl
	if unit0 <= 0 || unit1 <= 0 {
		return Result{}, fmt.Errorf("%w: degenerate liquidity units (unit0=%g, unit1=%g)", ErrMathematicalError, unit0, unit1)
	}
	optimalRatio := unit1 / unit0

	totalValueUsd := in.Amount1*in.Price1 + in.Amount0*in.Price0
	result := Result{
		PriceLower:    priceLower,
		PriceUpper:    priceUpper,
		OptimalRatio:  optimalRatio,
		SwapDirection: types.SwapNone,
	}

	if totalValueUsd <= 0 {
		// Nothing to allocate.
		return result, nil
	}

	targetAmount0 := totalValueUsd / (in.Price0 + optimalRatio*in.Price1)
	targetAmount1 := targetAmount0 * optimalRatio
	if !isFinite(targetAmount0) || !isFinite(targetAmount1) {
		return Result{}, fmt.Errorf("%w: target amounts are not finite", ErrMathematicalError)
	}
	result.TargetAmount0 = targetAmount0
	result.TargetAmount1 = targetAmount1

	diff0 := targetAmount0 - in.Amount0
	diff1 := targetAmount1 - in.Amount1

	// Boundary-exclusive: a diff exactly at the threshold does not swap.
	switch {
	case diff0 > c.cfg.MinSwapThreshold0:
		// Short on token0: sell the token1 surplus.
		result.SwapDirection = types.SwapOneToZero
		result.SwapAmount = -diff1
	case diff1 > c.cfg.MinSwapThreshold1:
		// Short on token1: sell the token0 surplus.
		result.SwapDirection = types.SwapZeroToOne
		result.SwapAmount = -diff0
	}

	if result.SwapDirection != types.SwapNone && result.SwapAmount <= 0 {
		// The surplus side must be positive when the other side is short;
		// anything else means the inputs were inconsistent.
		return Result{}, fmt.Errorf("%w: computed non-positive swap amount %g", ErrMathematicalError, result.SwapAmount)
	}

	c.logger.Debug().
		Float64("price", in.CurrentPrice).
		Float64("optimalRatio", optimalRatio).
		Float64("target0", targetAmount0).
		Float64("target1", targetAmount1).
		Str("swapDirection", string(result.SwapDirection)).
		Float64("swapAmount", result.SwapAmount).
		Msg("Allocation computed")

	return result, nil
}

func validateInputs(in Inputs) error {
	if in.CurrentPrice <= 0 || !isFinite(in.CurrentPrice) {
		return fmt.Errorf("%w: got %g", ErrInvalidPrice, in.CurrentPrice)
	}
	if in.RangePercent <= 0 || in.RangePercent >= 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidRangePercent, in.RangePercent)
	}
	if in.Amount0 < 0 || in.Amount1 < 0 || !isFinite(in.Amount0) || !isFinite(in.Amount1) {
		return fmt.Errorf("%w: amount0=%g amount1=%g", ErrInvalidHoldings, in.Amount0, in.Amount1)
	}
	if in.Price0 <= 0 || in.Price1 <= 0 || !isFinite(in.Price0) || !isFinite(in.Price1) {
		return fmt.Errorf("%w: price0=%g price1=%g", ErrInvalidAssetPrices, in.Price0, in.Price1)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
