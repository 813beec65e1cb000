package marketdata

import (
	"math"
	"sort"
	"time"

	"github.com/rangeseeker/rebalancer/internal/types"
)

const secondsPerYear = 365 * 24 * 3600

// minDataPoints is the minimum number of usable returns required before any
// statistic is reported.
const minDataPoints = 2

// Volatility computes realized and annualized volatility from swap history
// using log returns over consecutive chronologically ordered observations.
// Degenerate inputs (fewer than two usable returns, zero or negative time
// span) yield zero metrics, never an error and never a division by zero.
func Volatility(observations []types.SwapObservation, window time.Duration, token0Decimals, token1Decimals int) types.VolatilityMetrics {
	if len(observations) < 2 {
		return types.VolatilityMetrics{}
	}

	sorted := make([]types.SwapObservation, len(observations))
	copy(sorted, observations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	prices := make([]float64, 0, len(sorted))
	for _, obs := range sorted {
		price := PriceFromSqrtX96(obs.SqrtPriceX96, token0Decimals, token1Decimals)
		if price > 0 {
			prices = append(prices, price)
		}
	}
	if len(prices) < 2 {
		return types.VolatilityMetrics{}
	}

	logReturns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		logReturns = append(logReturns, math.Log(prices[i]/prices[i-1]))
	}
	if len(logReturns) < minDataPoints {
		return types.VolatilityMetrics{}
	}

	stdDev := sampleStdDev(logReturns)

	durationSeconds := float64(sorted[len(sorted)-1].Timestamp - sorted[0].Timestamp)
	if durationSeconds <= 0 {
		return types.VolatilityMetrics{}
	}

	// Scale the per-observation deviation to the window and to one year by
	// the observation frequency.
	observationsPerSecond := float64(len(prices)) / durationSeconds
	realized := stdDev * math.Sqrt(observationsPerSecond*window.Seconds())
	annualized := stdDev * math.Sqrt(observationsPerSecond*secondsPerYear)

	if math.IsNaN(realized) || math.IsInf(realized, 0) ||
		math.IsNaN(annualized) || math.IsInf(annualized, 0) {
		return types.VolatilityMetrics{}
	}

	return types.VolatilityMetrics{
		Realized:   realized,
		Annualized: annualized,
	}
}

// sampleStdDev returns the n-1 denominator standard deviation, or 0 for a
// single sample.
func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sumSqDiff float64
	for _, v := range values {
		diff := v - mean
		sumSqDiff += diff * diff
	}

	return math.Sqrt(sumSqDiff / float64(n-1))
}
