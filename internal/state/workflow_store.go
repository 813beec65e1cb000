// Workflow checkpoint persistence. One row per agent, overwritten as the
// rebalance workflow advances, cleared on terminal success or failure. A row
// that survives a crash tells the next run where to resume.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rangeseeker/rebalancer/internal/types"
)

// WorkflowCheckpoint is the persisted progress of one in-flight workflow.
// RangePercent is the range width decided before execution started; a resume
// that finds no plan yet rebuilds it from this value instead of re-evaluating
// against moved market data.
type WorkflowCheckpoint struct {
	AgentID      string
	RunID        string
	Step         types.WorkflowStep
	Plan         *types.RebalancePlan
	RangePercent float64
	TxHashes     []string
}

// SaveCheckpoint upserts the agent's workflow progress.
func SaveCheckpoint(cp WorkflowCheckpoint) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var planJSON []byte
	if cp.Plan != nil {
		var err error
		planJSON, err = json.Marshal(cp.Plan)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint plan: %w", err)
		}
	}

	_, err := DB.Exec(`
		INSERT INTO workflow_checkpoints (agent_id, run_id, step, plan, range_percent, tx_hashes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (agent_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			step = EXCLUDED.step,
			plan = EXCLUDED.plan,
			range_percent = EXCLUDED.range_percent,
			tx_hashes = EXCLUDED.tx_hashes,
			updated_at = CURRENT_TIMESTAMP;
	`, cp.AgentID, cp.RunID, cp.Step.String(), planJSON, cp.RangePercent, pq.Array(cp.TxHashes))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for agent %s: %w", cp.AgentID, err)
	}
	return nil
}

// GetCheckpoint loads the agent's checkpoint, or nil if none exists.
func GetCheckpoint(agentID string) (*WorkflowCheckpoint, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var cp WorkflowCheckpoint
	var stepName string
	var planJSON []byte
	err := DB.QueryRow(`
		SELECT agent_id, run_id, step, plan, range_percent, tx_hashes
		FROM workflow_checkpoints
		WHERE agent_id = $1;
	`, agentID).Scan(&cp.AgentID, &cp.RunID, &stepName, &planJSON, &cp.RangePercent, pq.Array(&cp.TxHashes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for agent %s: %w", agentID, err)
	}

	cp.Step = types.WorkflowStepFromString(stepName)
	if len(planJSON) > 0 {
		var plan types.RebalancePlan
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint plan for agent %s: %w", agentID, err)
		}
		cp.Plan = &plan
	}

	return &cp, nil
}

// ClearCheckpoint removes the agent's checkpoint after a terminal outcome.
func ClearCheckpoint(agentID string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := DB.Exec(`DELETE FROM workflow_checkpoints WHERE agent_id = $1;`, agentID)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint for agent %s: %w", agentID, err)
	}
	return nil
}
