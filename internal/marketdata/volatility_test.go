package marketdata

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rangeseeker/rebalancer/internal/types"
)

func obsAt(ts int64, price float64) types.SwapObservation {
	return types.SwapObservation{
		Timestamp:    ts,
		SqrtPriceX96: SqrtX96FromPrice(price, 18, 18),
	}
}

func TestVolatilityDegenerateInputs(t *testing.T) {
	window := 24 * time.Hour

	assert.Zero(t, Volatility(nil, window, 18, 18).Annualized)
	assert.Zero(t, Volatility([]types.SwapObservation{obsAt(0, 100)}, window, 18, 18).Annualized)

	// Two observations give one return, below the minimum sample count.
	two := []types.SwapObservation{obsAt(0, 100), obsAt(60, 101)}
	assert.Zero(t, Volatility(two, window, 18, 18).Annualized)

	// Identical timestamps give a zero-length span.
	same := []types.SwapObservation{obsAt(50, 100), obsAt(50, 101), obsAt(50, 102)}
	assert.Zero(t, Volatility(same, window, 18, 18).Annualized)
}

func TestVolatilityConstantPriceIsZero(t *testing.T) {
	observations := []types.SwapObservation{
		obsAt(0, 100), obsAt(60, 100), obsAt(120, 100), obsAt(180, 100),
	}
	metrics := Volatility(observations, 24*time.Hour, 18, 18)
	assert.Zero(t, metrics.Realized)
	assert.Zero(t, metrics.Annualized)
}

func TestVolatilityOrderIndependence(t *testing.T) {
	ordered := []types.SwapObservation{
		obsAt(0, 100), obsAt(60, 102), obsAt(120, 99), obsAt(180, 103),
	}
	shuffled := []types.SwapObservation{
		obsAt(120, 99), obsAt(0, 100), obsAt(180, 103), obsAt(60, 102),
	}

	want := Volatility(ordered, 24*time.Hour, 18, 18)
	got := Volatility(shuffled, 24*time.Hour, 18, 18)
	assert.InEpsilon(t, want.Annualized, got.Annualized, 1e-12)
	assert.InEpsilon(t, want.Realized, got.Realized, 1e-12)
}

func TestVolatilityMatchesHandComputation(t *testing.T) {
	// Three prices one minute apart: returns ln(102/100), ln(99/102).
	observations := []types.SwapObservation{
		obsAt(0, 100), obsAt(60, 102), obsAt(120, 99),
	}

	r1 := math.Log(102.0 / 100.0)
	r2 := math.Log(99.0 / 102.0)
	mean := (r1 + r2) / 2
	stdDev := math.Sqrt(((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 1)

	obsPerSecond := 3.0 / 120.0
	window := 24 * time.Hour
	wantRealized := stdDev * math.Sqrt(obsPerSecond*window.Seconds())
	wantAnnualized := stdDev * math.Sqrt(obsPerSecond*365*24*3600)

	metrics := Volatility(observations, window, 18, 18)
	assert.InEpsilon(t, wantRealized, metrics.Realized, 1e-6)
	assert.InEpsilon(t, wantAnnualized, metrics.Annualized, 1e-6)
	assert.Greater(t, metrics.Annualized, metrics.Realized)
}
