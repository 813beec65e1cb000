/*

Strategy rule types. A StrategyDefinition is an ordered list of rules over a
small tagged union; it is produced upstream (the natural-language parser emits
the same JSON shape) and is immutable once attached to an agent.

*/

package types

// Rule type discriminators as they appear in the rules JSON.
const (
	RuleTypeRangeWidth        = "RANGE_WIDTH"
	RuleTypePriceThreshold    = "PRICE_THRESHOLD"
	RuleTypeVolatilityTrigger = "VOLATILITY_TRIGGER"
)

// Comparison operators for price threshold rules.
const (
	OperatorLessThan    = "LESS_THAN"
	OperatorGreaterThan = "GREATER_THAN"
)

// Rule actions.
const (
	ActionExitToStable     = "EXIT_TO_STABLE"
	ActionPauseRebalancing = "PAUSE_REBALANCING"
)

// DynamicWidening widens the active range when volatility exceeds a threshold.
type DynamicWidening struct {
	Enabled             bool    `json:"enabled"`
	VolatilityThreshold float64 `json:"volatilityThreshold"`
	WidenToPercent      float64 `json:"widenToPercent"`
}

// RangeWidthParameters controls how tight or wide the liquidity range is,
// expressed as a percent offset from the current price.
type RangeWidthParameters struct {
	BaseRangePercent float64          `json:"baseRangePercent"`
	DynamicWidening  *DynamicWidening `json:"dynamicWidening"`
	RebalanceBuffer  float64          `json:"rebalanceBuffer"`
}

// PriceThresholdParameters exits the position when an asset price crosses a
// threshold. Evaluated before range rules.
type PriceThresholdParameters struct {
	Asset       string  `json:"asset"`
	Operator    string  `json:"operator"`
	PriceUsd    float64 `json:"priceUsd"`
	Action      string  `json:"action"`
	TargetAsset string  `json:"targetAsset"`
}

// VolatilityTriggerParameters reacts to market volatility changes, typically
// by pausing rebalancing for the cycle.
type VolatilityTriggerParameters struct {
	Threshold float64 `json:"threshold"`
	Window    string  `json:"window"`
	Action    string  `json:"action"`
}

// StrategyRule is one member of the tagged union. Exactly one of the
// parameter pointers is non-nil, matching Type. Lower priority values are
// evaluated first.
type StrategyRule struct {
	Type              string                       `json:"type"`
	Priority          int32                        `json:"priority"`
	RangeWidth        *RangeWidthParameters        `json:"rangeWidth,omitempty"`
	PriceThreshold    *PriceThresholdParameters    `json:"priceThreshold,omitempty"`
	VolatilityTrigger *VolatilityTriggerParameters `json:"volatilityTrigger,omitempty"`
}

// StrategyDefinition is the full rule set attached to an agent.
type StrategyDefinition struct {
	Rules            []StrategyRule `json:"rules"`
	FeedRequirements []string       `json:"feedRequirements"`
	Summary          string         `json:"summary"`
}

// RangeWidthRule returns the single range width rule, or nil if absent.
func (d *StrategyDefinition) RangeWidthRule() *RangeWidthParameters {
	for i := range d.Rules {
		if d.Rules[i].Type == RuleTypeRangeWidth {
			return d.Rules[i].RangeWidth
		}
	}
	return nil
}
