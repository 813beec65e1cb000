package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeseeker/rebalancer/internal/types"
)

func testDefinition() *types.StrategyDefinition {
	return &types.StrategyDefinition{
		Rules: []types.StrategyRule{
			{
				Type:     types.RuleTypeRangeWidth,
				Priority: 3,
				RangeWidth: &types.RangeWidthParameters{
					BaseRangePercent: 2.0,
					RebalanceBuffer:  0.1,
					DynamicWidening: &types.DynamicWidening{
						Enabled:             true,
						VolatilityThreshold: 0.05,
						WidenToPercent:      10.0,
					},
				},
			},
			{
				Type:     types.RuleTypePriceThreshold,
				Priority: 1,
				PriceThreshold: &types.PriceThresholdParameters{
					Asset:       "WETH",
					Operator:    types.OperatorLessThan,
					PriceUsd:    3000,
					Action:      types.ActionExitToStable,
					TargetAsset: "USDC",
				},
			},
			{
				Type:     types.RuleTypeVolatilityTrigger,
				Priority: 2,
				VolatilityTrigger: &types.VolatilityTriggerParameters{
					Threshold: 0.08,
					Window:    "24h",
					Action:    types.ActionPauseRebalancing,
				},
			},
		},
	}
}

func inRangePosition() *types.Position {
	return &types.Position{TickLower: -1000, TickUpper: 1000}
}

func marketAt(priceUsd float64, tick int32, annualizedVol float64) MarketState {
	return MarketState{
		CurrentPrice:   priceUsd,
		CurrentTick:    tick,
		Volatility:     types.VolatilityMetrics{Annualized: annualizedVol},
		AssetPricesUsd: map[string]float64{"WETH": priceUsd, "USDC": 1.0},
	}
}

func TestEvaluatePriceThresholdExitWinsByPriority(t *testing.T) {
	evaluator := NewEvaluator()

	// WETH below $3000: exit fires even though the position is far out of
	// range and a rebalance would otherwise trigger.
	decision, err := evaluator.Evaluate(testDefinition(), marketAt(2999, 5000, 0.5), inRangePosition())
	require.NoError(t, err)
	assert.Equal(t, ActionExit, decision.Action)
	assert.Equal(t, "USDC", decision.ExitTargetAsset)

	// Exactly at the threshold LESS_THAN does not fire.
	decision, err = evaluator.Evaluate(testDefinition(), marketAt(3000, 0, 0.01), inRangePosition())
	require.NoError(t, err)
	assert.NotEqual(t, ActionExit, decision.Action)

	decision, err = evaluator.Evaluate(testDefinition(), marketAt(3001, 0, 0.01), inRangePosition())
	require.NoError(t, err)
	assert.Equal(t, ActionNoAction, decision.Action)
}

func TestEvaluateVolatilityPauseVetoesRebalance(t *testing.T) {
	evaluator := NewEvaluator()

	// Out of range and volatility above the pause threshold: paused wins.
	decision, err := evaluator.Evaluate(testDefinition(), marketAt(3200, 5000, 0.09), inRangePosition())
	require.NoError(t, err)
	assert.Equal(t, ActionPaused, decision.Action)
}

func TestEvaluateDynamicWidening(t *testing.T) {
	evaluator := NewEvaluator()

	// Volatility above the widening threshold but below the pause threshold:
	// range percent widens from 2% to 10% (as a fraction, 0.02 to 0.10).
	decision, err := evaluator.Evaluate(testDefinition(), marketAt(3200, 5000, 0.06), inRangePosition())
	require.NoError(t, err)
	assert.Equal(t, ActionRebalance, decision.Action)
	assert.InEpsilon(t, 0.10, decision.RangePercent, 1e-12)

	// Calm market keeps the base width.
	decision, err = evaluator.Evaluate(testDefinition(), marketAt(3200, 5000, 0.04), inRangePosition())
	require.NoError(t, err)
	assert.Equal(t, ActionRebalance, decision.Action)
	assert.InEpsilon(t, 0.02, decision.RangePercent, 1e-12)
}

func TestEvaluateRebalanceTriggers(t *testing.T) {
	evaluator := NewEvaluator()
	market := marketAt(3200, 0, 0.01)

	cases := []struct {
		name string
		tick int32
		want Action
	}{
		{"centered", 0, ActionNoAction},
		{"out of range above", 1500, ActionRebalance},
		{"out of range below", -1500, ActionRebalance},
		{"inside buffer near upper edge", 950, ActionRebalance},
		{"inside buffer near lower edge", -950, ActionRebalance},
		{"just outside buffer", 800, ActionNoAction},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			market.CurrentTick = tc.tick
			decision, err := evaluator.Evaluate(testDefinition(), market, inRangePosition())
			require.NoError(t, err)
			assert.Equal(t, tc.want, decision.Action)
		})
	}
}

func TestEvaluateNilPositionIsNoAction(t *testing.T) {
	evaluator := NewEvaluator()
	decision, err := evaluator.Evaluate(testDefinition(), marketAt(3200, 0, 0.01), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionNoAction, decision.Action)
	assert.Equal(t, "no active position", decision.Reason)
}

func TestEvaluateMissingAssetPriceFails(t *testing.T) {
	evaluator := NewEvaluator()
	market := marketAt(3200, 0, 0.01)
	market.AssetPricesUsd = map[string]float64{"USDC": 1.0}

	_, err := evaluator.Evaluate(testDefinition(), market, inRangePosition())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestEvaluateEmptyDefinitionFails(t *testing.T) {
	evaluator := NewEvaluator()
	_, err := evaluator.Evaluate(nil, marketAt(3200, 0, 0.01), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))

	_, err = evaluator.Evaluate(&types.StrategyDefinition{}, marketAt(3200, 0, 0.01), nil)
	require.Error(t, err)
}
