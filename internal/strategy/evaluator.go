/*

StrategyEvaluator decides, for one position and one market snapshot, whether
the agent needs no action, a standard rebalance, an exit to stable, or is
paused for the cycle. Rules are evaluated in ascending priority order; price
threshold exits short-circuit everything below them, and a pause veto stops a
rebalance even when one is otherwise due.

*/

package strategy

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

// Action is the terminal state of one evaluation.
type Action string

const (
	ActionNoAction  Action = "NO_ACTION"
	ActionRebalance Action = "REBALANCE"
	ActionExit      Action = "EXIT"
	ActionPaused    Action = "PAUSED"
)

// MarketState is the market snapshot an evaluation runs against.
type MarketState struct {
	CurrentPrice float64
	CurrentTick  int32
	Volatility   types.VolatilityMetrics
	// AssetPricesUsd maps asset symbols to USD prices for threshold rules.
	AssetPricesUsd map[string]float64
}

// Decision is the evaluation output. RangePercent is a fraction of price
// (0.02 for a ±2% range) and is set for Rebalance decisions; ExitTargetAsset
// is set for Exit decisions.
type Decision struct {
	Action          Action
	RangePercent    float64
	RebalanceBuffer float64
	ExitTargetAsset string
	Reason          string
}

// Evaluator runs strategy definitions against market and position state.
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		logger: logger.GetForComponent("strategy_evaluator"),
	}
}

// Evaluate runs one Check → {NoAction, Rebalance, Exit, Paused} pass.
// position may be nil when the agent holds no position; the evaluator then
// reports NoAction (deposits are driven by the funding flow, not the
// scheduler).
func (e *Evaluator) Evaluate(def *types.StrategyDefinition, market MarketState, position *types.Position) (Decision, error) {
	if def == nil || len(def.Rules) == 0 {
		return Decision{}, fmt.Errorf("%w: empty strategy definition", types.ErrInvalidConfiguration)
	}

	rules := make([]types.StrategyRule, len(def.Rules))
	copy(rules, def.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	var rangeRule *types.RangeWidthParameters

	for i := range rules {
		rule := &rules[i]
		switch rule.Type {
		case types.RuleTypePriceThreshold:
			triggered, err := e.priceThresholdHolds(rule.PriceThreshold, market)
			if err != nil {
				return Decision{}, err
			}
			if triggered {
				e.logger.Info().
					Str("asset", rule.PriceThreshold.Asset).
					Float64("threshold", rule.PriceThreshold.PriceUsd).
					Str("operator", rule.PriceThreshold.Operator).
					Msg("Price threshold triggered, exiting to stable")
				return Decision{
					Action:          ActionExit,
					ExitTargetAsset: rule.PriceThreshold.TargetAsset,
					Reason: fmt.Sprintf("%s crossed %s $%.2f", rule.PriceThreshold.Asset,
						rule.PriceThreshold.Operator, rule.PriceThreshold.PriceUsd),
				}, nil
			}
		case types.RuleTypeVolatilityTrigger:
			params := rule.VolatilityTrigger
			if params.Action == types.ActionPauseRebalancing && market.Volatility.Annualized > params.Threshold {
				e.logger.Info().
					Float64("volatility", market.Volatility.Annualized).
					Float64("threshold", params.Threshold).
					Msg("Volatility trigger fired, pausing rebalancing this cycle")
				return Decision{
					Action: ActionPaused,
					Reason: fmt.Sprintf("volatility %.4f > %.4f", market.Volatility.Annualized, params.Threshold),
				}, nil
			}
		case types.RuleTypeRangeWidth:
			rangeRule = rule.RangeWidth
		}
	}

	if rangeRule == nil {
		return Decision{}, fmt.Errorf("%w: no range width rule in strategy", types.ErrInvalidConfiguration)
	}

	rangePercent := rangeRule.BaseRangePercent
	if dw := rangeRule.DynamicWidening; dw != nil && dw.Enabled && market.Volatility.Annualized > dw.VolatilityThreshold {
		e.logger.Info().
			Float64("volatility", market.Volatility.Annualized).
			Float64("threshold", dw.VolatilityThreshold).
			Float64("widenToPercent", dw.WidenToPercent).
			Msg("Dynamic widening active")
		rangePercent = dw.WidenToPercent
	}

	decision := Decision{
		Action:          ActionNoAction,
		RangePercent:    rangePercent / 100.0,
		RebalanceBuffer: rangeRule.RebalanceBuffer,
	}

	if position == nil {
		decision.Reason = "no active position"
		return decision, nil
	}

	if needs, reason := needsRebalance(market.CurrentTick, position.TickLower, position.TickUpper, rangeRule.RebalanceBuffer); needs {
		decision.Action = ActionRebalance
		decision.Reason = reason
	} else {
		decision.Reason = "position in range"
	}

	return decision, nil
}

// needsRebalance reports whether the current tick is outside the position
// range (hard out-of-range) or within the buffer fraction of the range width
// from either edge (proactive edge rebalance).
func needsRebalance(currentTick, tickLower, tickUpper int32, buffer float64) (bool, string) {
	if currentTick < tickLower || currentTick > tickUpper {
		return true, fmt.Sprintf("tick %d outside [%d, %d]", currentTick, tickLower, tickUpper)
	}

	rangeWidth := float64(tickUpper - tickLower)
	edgeThreshold := rangeWidth * buffer
	distanceFromLower := float64(currentTick - tickLower)
	distanceFromUpper := float64(tickUpper - currentTick)

	if distanceFromLower < edgeThreshold || distanceFromUpper < edgeThreshold {
		return true, fmt.Sprintf("tick %d within buffer of range edge [%d, %d]", currentTick, tickLower, tickUpper)
	}

	return false, ""
}

func (e *Evaluator) priceThresholdHolds(params *types.PriceThresholdParameters, market MarketState) (bool, error) {
	price, ok := market.AssetPricesUsd[params.Asset]
	if !ok {
		return false, fmt.Errorf("%w: no USD price for asset %s", types.ErrInsufficientData, params.Asset)
	}
	switch params.Operator {
	case types.OperatorLessThan:
		return price < params.PriceUsd, nil
	case types.OperatorGreaterThan:
		return price > params.PriceUsd, nil
	}
	return false, fmt.Errorf("%w: unknown price operator %q", types.ErrInvalidConfiguration, params.Operator)
}
