/*

Rule set parsing and validation. Definitions arrive as JSON in the same shape
the natural-language parser emits: an ordered list of {type, priority,
parameters} envelopes plus feed requirements and a summary. Parsing is
strict about the tagged union; validation enforces the single-range-rule
invariant.

*/

package strategy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

// defaultWindowHours is used when a volatility trigger window cannot be
// parsed; the feed requirement list is advisory, so a bad window degrades
// rather than failing the whole strategy.
const defaultWindowHours = 24

type ruleEnvelope struct {
	Type       string          `json:"type"`
	Priority   int32           `json:"priority"`
	Parameters json.RawMessage `json:"parameters"`
}

type definitionEnvelope struct {
	Rules            []ruleEnvelope `json:"rules"`
	FeedRequirements []string       `json:"feedRequirements"`
	Summary          string         `json:"summary"`
}

// ParseDefinition decodes and validates a strategy definition from its JSON
// wire form.
func ParseDefinition(raw []byte) (types.StrategyDefinition, error) {
	var envelope definitionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return types.StrategyDefinition{}, fmt.Errorf("%w: decoding strategy definition: %w", types.ErrInvalidConfiguration, err)
	}

	def := types.StrategyDefinition{
		Rules:            make([]types.StrategyRule, 0, len(envelope.Rules)),
		FeedRequirements: envelope.FeedRequirements,
		Summary:          envelope.Summary,
	}

	for i, env := range envelope.Rules {
		rule, err := parseRule(env)
		if err != nil {
			return types.StrategyDefinition{}, fmt.Errorf("rule %d: %w", i, err)
		}
		def.Rules = append(def.Rules, rule)
	}

	if err := ValidateDefinition(&def); err != nil {
		return types.StrategyDefinition{}, err
	}

	if def.Summary == "" {
		def.Summary = Summarize(&def)
	}

	return def, nil
}

func parseRule(env ruleEnvelope) (types.StrategyRule, error) {
	rule := types.StrategyRule{
		Type:     env.Type,
		Priority: env.Priority,
	}

	switch env.Type {
	case types.RuleTypeRangeWidth:
		var params types.RangeWidthParameters
		if err := json.Unmarshal(env.Parameters, &params); err != nil {
			return rule, fmt.Errorf("%w: range width parameters: %w", types.ErrInvalidConfiguration, err)
		}
		rule.RangeWidth = &params
	case types.RuleTypePriceThreshold:
		var params types.PriceThresholdParameters
		if err := json.Unmarshal(env.Parameters, &params); err != nil {
			return rule, fmt.Errorf("%w: price threshold parameters: %w", types.ErrInvalidConfiguration, err)
		}
		rule.PriceThreshold = &params
	case types.RuleTypeVolatilityTrigger:
		var params types.VolatilityTriggerParameters
		if err := json.Unmarshal(env.Parameters, &params); err != nil {
			return rule, fmt.Errorf("%w: volatility trigger parameters: %w", types.ErrInvalidConfiguration, err)
		}
		rule.VolatilityTrigger = &params
	default:
		return rule, fmt.Errorf("%w: unknown rule type %q", types.ErrInvalidConfiguration, env.Type)
	}

	return rule, nil
}

// ValidateDefinition enforces the structural invariants: exactly one range
// width rule defining the active range shape, sane parameter domains.
func ValidateDefinition(def *types.StrategyDefinition) error {
	rangeRules := 0
	for i := range def.Rules {
		rule := &def.Rules[i]
		switch rule.Type {
		case types.RuleTypeRangeWidth:
			rangeRules++
			params := rule.RangeWidth
			if params == nil {
				return fmt.Errorf("%w: range width rule missing parameters", types.ErrInvalidConfiguration)
			}
			if params.BaseRangePercent <= 0 {
				return fmt.Errorf("%w: baseRangePercent must be positive, got %g", types.ErrInvalidConfiguration, params.BaseRangePercent)
			}
			if params.RebalanceBuffer < 0 || params.RebalanceBuffer >= 1 {
				return fmt.Errorf("%w: rebalanceBuffer must be in [0, 1), got %g", types.ErrInvalidConfiguration, params.RebalanceBuffer)
			}
			if dw := params.DynamicWidening; dw != nil && dw.Enabled && dw.WidenToPercent <= 0 {
				return fmt.Errorf("%w: widenToPercent must be positive when widening is enabled", types.ErrInvalidConfiguration)
			}
		case types.RuleTypePriceThreshold:
			params := rule.PriceThreshold
			if params == nil {
				return fmt.Errorf("%w: price threshold rule missing parameters", types.ErrInvalidConfiguration)
			}
			if params.Operator != types.OperatorLessThan && params.Operator != types.OperatorGreaterThan {
				return fmt.Errorf("%w: unknown price operator %q", types.ErrInvalidConfiguration, params.Operator)
			}
			if params.PriceUsd <= 0 {
				return fmt.Errorf("%w: priceUsd must be positive, got %g", types.ErrInvalidConfiguration, params.PriceUsd)
			}
		case types.RuleTypeVolatilityTrigger:
			params := rule.VolatilityTrigger
			if params == nil {
				return fmt.Errorf("%w: volatility trigger rule missing parameters", types.ErrInvalidConfiguration)
			}
			if params.Threshold <= 0 {
				return fmt.Errorf("%w: volatility threshold must be positive, got %g", types.ErrInvalidConfiguration, params.Threshold)
			}
		default:
			return fmt.Errorf("%w: unknown rule type %q", types.ErrInvalidConfiguration, rule.Type)
		}
	}

	if rangeRules != 1 {
		return fmt.Errorf("%w: exactly one range width rule required, got %d", types.ErrInvalidConfiguration, rangeRules)
	}

	return nil
}

// WindowHours parses a trigger window like "24h" into hours, falling back to
// the default for anything unparseable.
func WindowHours(window string) int {
	trimmed := strings.TrimSuffix(strings.TrimSpace(window), "h")
	hours, err := strconv.Atoi(trimmed)
	if err != nil || hours <= 0 {
		windowLogger := logger.GetForComponent("strategy_rules")
		windowLogger.Warn().Str("window", window).Int("fallbackHours", defaultWindowHours).Msg("Unparseable volatility window, using default")
		return defaultWindowHours
	}
	return hours
}

// Summarize renders a short human-readable description of the rule set.
func Summarize(def *types.StrategyDefinition) string {
	parts := make([]string, 0, len(def.Rules))
	for i := range def.Rules {
		rule := &def.Rules[i]
		switch rule.Type {
		case types.RuleTypeRangeWidth:
			params := rule.RangeWidth
			parts = append(parts, fmt.Sprintf("Maintain ±%g%% range", params.BaseRangePercent))
			if dw := params.DynamicWidening; dw != nil && dw.Enabled {
				parts = append(parts, fmt.Sprintf("widen to ±%g%% if volatility > %g%%", dw.WidenToPercent, dw.VolatilityThreshold*100))
			}
		case types.RuleTypePriceThreshold:
			params := rule.PriceThreshold
			opText := "above"
			if params.Operator == types.OperatorLessThan {
				opText = "below"
			}
			actionText := strings.ToLower(params.Action)
			if params.Action == types.ActionExitToStable {
				actionText = "exit to " + params.TargetAsset
			}
			parts = append(parts, fmt.Sprintf("%s if %s %s $%.0f", actionText, params.Asset, opText, params.PriceUsd))
		case types.RuleTypeVolatilityTrigger:
			params := rule.VolatilityTrigger
			parts = append(parts, fmt.Sprintf("pause if %s volatility > %g%%", params.Window, params.Threshold*100))
		}
	}
	return strings.Join(parts, ", ")
}
