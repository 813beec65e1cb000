package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeseeker/rebalancer/internal/types"
)

const fullDefinitionJSON = `{
	"rules": [
		{
			"type": "PRICE_THRESHOLD",
			"priority": 1,
			"parameters": {
				"asset": "WETH",
				"operator": "LESS_THAN",
				"priceUsd": 3000,
				"action": "EXIT_TO_STABLE",
				"targetAsset": "USDC"
			}
		},
		{
			"type": "VOLATILITY_TRIGGER",
			"priority": 2,
			"parameters": {
				"threshold": 0.08,
				"window": "24h",
				"action": "PAUSE_REBALANCING"
			}
		},
		{
			"type": "RANGE_WIDTH",
			"priority": 3,
			"parameters": {
				"baseRangePercent": 2.0,
				"rebalanceBuffer": 0.1,
				"dynamicWidening": {
					"enabled": true,
					"volatilityThreshold": 0.05,
					"widenToPercent": 10.0
				}
			}
		}
	],
	"feedRequirements": ["WETH/USD"],
	"summary": ""
}`

func TestParseDefinitionFullRuleSet(t *testing.T) {
	def, err := ParseDefinition([]byte(fullDefinitionJSON))
	require.NoError(t, err)
	require.Len(t, def.Rules, 3)

	price := def.Rules[0]
	assert.Equal(t, types.RuleTypePriceThreshold, price.Type)
	require.NotNil(t, price.PriceThreshold)
	assert.Equal(t, "WETH", price.PriceThreshold.Asset)
	assert.Equal(t, types.OperatorLessThan, price.PriceThreshold.Operator)
	assert.Equal(t, 3000.0, price.PriceThreshold.PriceUsd)
	assert.Equal(t, "USDC", price.PriceThreshold.TargetAsset)

	vol := def.Rules[1]
	require.NotNil(t, vol.VolatilityTrigger)
	assert.Equal(t, 0.08, vol.VolatilityTrigger.Threshold)
	assert.Equal(t, "24h", vol.VolatilityTrigger.Window)

	rangeRule := def.Rules[2]
	require.NotNil(t, rangeRule.RangeWidth)
	assert.Equal(t, 2.0, rangeRule.RangeWidth.BaseRangePercent)
	require.NotNil(t, rangeRule.RangeWidth.DynamicWidening)
	assert.True(t, rangeRule.RangeWidth.DynamicWidening.Enabled)
	assert.Equal(t, 10.0, rangeRule.RangeWidth.DynamicWidening.WidenToPercent)

	// Empty summary is backfilled from the rule set.
	assert.NotEmpty(t, def.Summary)
}

func TestParseDefinitionRejectsUnknownRuleType(t *testing.T) {
	_, err := ParseDefinition([]byte(`{"rules":[{"type":"MOON_PHASE","priority":1,"parameters":{}}]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))
}

func TestValidateDefinitionRequiresExactlyOneRangeRule(t *testing.T) {
	noRange := types.StrategyDefinition{
		Rules: []types.StrategyRule{{
			Type:              types.RuleTypeVolatilityTrigger,
			Priority:          1,
			VolatilityTrigger: &types.VolatilityTriggerParameters{Threshold: 0.1, Window: "24h", Action: types.ActionPauseRebalancing},
		}},
	}
	err := ValidateDefinition(&noRange)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))

	twoRanges := types.StrategyDefinition{
		Rules: []types.StrategyRule{
			{Type: types.RuleTypeRangeWidth, Priority: 1, RangeWidth: &types.RangeWidthParameters{BaseRangePercent: 2}},
			{Type: types.RuleTypeRangeWidth, Priority: 2, RangeWidth: &types.RangeWidthParameters{BaseRangePercent: 4}},
		},
	}
	err = ValidateDefinition(&twoRanges)
	require.Error(t, err)
}

func TestValidateDefinitionParameterDomains(t *testing.T) {
	base := func() types.StrategyDefinition {
		return types.StrategyDefinition{
			Rules: []types.StrategyRule{
				{Type: types.RuleTypeRangeWidth, Priority: 1, RangeWidth: &types.RangeWidthParameters{BaseRangePercent: 2, RebalanceBuffer: 0.1}},
			},
		}
	}

	negative := base()
	negative.Rules[0].RangeWidth.BaseRangePercent = -1
	assert.Error(t, ValidateDefinition(&negative))

	badBuffer := base()
	badBuffer.Rules[0].RangeWidth.RebalanceBuffer = 1.0
	assert.Error(t, ValidateDefinition(&badBuffer))

	badWiden := base()
	badWiden.Rules[0].RangeWidth.DynamicWidening = &types.DynamicWidening{Enabled: true, VolatilityThreshold: 0.05}
	assert.Error(t, ValidateDefinition(&badWiden))

	badOperator := base()
	badOperator.Rules = append(badOperator.Rules, types.StrategyRule{
		Type:           types.RuleTypePriceThreshold,
		Priority:       2,
		PriceThreshold: &types.PriceThresholdParameters{Asset: "WETH", Operator: "NEAR", PriceUsd: 3000},
	})
	assert.Error(t, ValidateDefinition(&badOperator))
}

func TestWindowHours(t *testing.T) {
	assert.Equal(t, 24, WindowHours("24h"))
	assert.Equal(t, 6, WindowHours(" 6h "))
	assert.Equal(t, 24, WindowHours("soon"))
	assert.Equal(t, 24, WindowHours(""))
	assert.Equal(t, 24, WindowHours("-3h"))
}

func TestSummarize(t *testing.T) {
	def, err := ParseDefinition([]byte(fullDefinitionJSON))
	require.NoError(t, err)

	summary := Summarize(&def)
	assert.Contains(t, summary, "±2%")
	assert.Contains(t, summary, "widen to ±10%")
	assert.Contains(t, summary, "exit to USDC")
	assert.Contains(t, summary, "pause if 24h volatility")
}
