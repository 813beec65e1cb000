// Agent and strategy persistence. Both are read-mostly: agents are registered
// out of band and the scheduler only ever loads the active set.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rangeseeker/rebalancer/internal/strategy"
	"github.com/rangeseeker/rebalancer/internal/types"
)

// LoadActiveAgents returns every agent marked active, in stable agent_id
// order so cycles process agents deterministically.
func LoadActiveAgents() ([]types.Agent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT agent_id, wallet_address, pool_address, strategy_id, active
		FROM agents
		WHERE active = TRUE
		ORDER BY agent_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active agents: %w", err)
	}
	defer rows.Close()

	var agents []types.Agent
	for rows.Next() {
		var agent types.Agent
		var wallet, pool string
		if err := rows.Scan(&agent.AgentID, &wallet, &pool, &agent.StrategyID, &agent.Active); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		agent.WalletAddress = common.HexToAddress(wallet)
		agent.PoolAddress = common.HexToAddress(pool)
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating agent rows: %w", err)
	}

	return agents, nil
}

// GetAgent loads one agent by ID regardless of active flag.
func GetAgent(agentID string) (types.Agent, error) {
	if DB == nil {
		return types.Agent{}, fmt.Errorf("database not initialized")
	}

	var agent types.Agent
	var wallet, pool string
	err := DB.QueryRow(`
		SELECT agent_id, wallet_address, pool_address, strategy_id, active
		FROM agents
		WHERE agent_id = $1;
	`, agentID).Scan(&agent.AgentID, &wallet, &pool, &agent.StrategyID, &agent.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Agent{}, fmt.Errorf("%w: agent %s", types.ErrNotFound, agentID)
	}
	if err != nil {
		return types.Agent{}, fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}
	agent.WalletAddress = common.HexToAddress(wallet)
	agent.PoolAddress = common.HexToAddress(pool)

	return agent, nil
}

// SaveAgent upserts an agent registration.
func SaveAgent(agent types.Agent) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := DB.Exec(`
		INSERT INTO agents (agent_id, wallet_address, pool_address, strategy_id, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			pool_address = EXCLUDED.pool_address,
			strategy_id = EXCLUDED.strategy_id,
			active = EXCLUDED.active;
	`, agent.AgentID, agent.WalletAddress.Hex(), agent.PoolAddress.Hex(), agent.StrategyID, agent.Active)
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", agent.AgentID, err)
	}
	return nil
}

// GetStrategy loads and parses a strategy definition by ID. Parsing happens
// at load time so a corrupt definition surfaces as a configuration error for
// the one agent, not a runtime panic mid-workflow.
func GetStrategy(strategyID string) (types.StrategyDefinition, error) {
	if DB == nil {
		return types.StrategyDefinition{}, fmt.Errorf("database not initialized")
	}

	var raw []byte
	err := DB.QueryRow(`
		SELECT definition FROM strategies WHERE strategy_id = $1;
	`, strategyID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StrategyDefinition{}, fmt.Errorf("%w: strategy %s", types.ErrNotFound, strategyID)
	}
	if err != nil {
		return types.StrategyDefinition{}, fmt.Errorf("failed to load strategy %s: %w", strategyID, err)
	}

	def, err := strategy.ParseDefinition(raw)
	if err != nil {
		return types.StrategyDefinition{}, fmt.Errorf("strategy %s: %w", strategyID, err)
	}
	return def, nil
}

// SaveStrategy validates and upserts a strategy definition.
func SaveStrategy(strategyID string, def types.StrategyDefinition) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := strategy.ValidateDefinition(&def); err != nil {
		return err
	}

	raw, err := json.Marshal(definitionWire(def))
	if err != nil {
		return fmt.Errorf("failed to marshal strategy definition: %w", err)
	}

	_, err = DB.Exec(`
		INSERT INTO strategies (strategy_id, definition, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (strategy_id) DO UPDATE SET
			definition = EXCLUDED.definition,
			summary = EXCLUDED.summary,
			updated_at = CURRENT_TIMESTAMP;
	`, strategyID, raw, def.Summary)
	if err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", strategyID, err)
	}
	return nil
}

// definitionWire rebuilds the {type, priority, parameters} envelope shape that
// ParseDefinition expects, so stored rows round-trip through the parser.
func definitionWire(def types.StrategyDefinition) map[string]interface{} {
	rules := make([]map[string]interface{}, 0, len(def.Rules))
	for i := range def.Rules {
		rule := &def.Rules[i]
		var params interface{}
		switch rule.Type {
		case types.RuleTypeRangeWidth:
			params = rule.RangeWidth
		case types.RuleTypePriceThreshold:
			params = rule.PriceThreshold
		case types.RuleTypeVolatilityTrigger:
			params = rule.VolatilityTrigger
		}
		rules = append(rules, map[string]interface{}{
			"type":       rule.Type,
			"priority":   rule.Priority,
			"parameters": params,
		})
	}
	return map[string]interface{}{
		"rules":            rules,
		"feedRequirements": def.FeedRequirements,
		"summary":          def.Summary,
	}
}
