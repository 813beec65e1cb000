package state

import "github.com/rangeseeker/rebalancer/internal/types"

// PgStore adapts the package-level persistence functions to a value that can
// be passed behind collaborator interfaces.
type PgStore struct{}

func (PgStore) LoadActiveAgents() ([]types.Agent, error) { return LoadActiveAgents() }

func (PgStore) GetAgent(agentID string) (types.Agent, error) { return GetAgent(agentID) }

func (PgStore) GetStrategy(strategyID string) (types.StrategyDefinition, error) {
	return GetStrategy(strategyID)
}

func (PgStore) GetCheckpoint(agentID string) (*WorkflowCheckpoint, error) {
	return GetCheckpoint(agentID)
}

func (PgStore) SaveCheckpoint(cp WorkflowCheckpoint) error { return SaveCheckpoint(cp) }

func (PgStore) ClearCheckpoint(agentID string) error { return ClearCheckpoint(agentID) }

func (PgStore) RecordOutcome(outcome types.RebalanceOutcome) error { return RecordOutcome(outcome) }

func (PgStore) ListRecentOutcomes(agentID string, limit int) ([]types.RebalanceOutcome, error) {
	return ListRecentOutcomes(agentID, limit)
}
