package state

import (
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/rangeseeker/rebalancer/internal/types"
)

// RecordOutcome appends one terminal outcome to the audit trail.
func RecordOutcome(outcome types.RebalanceOutcome) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := DB.Exec(`
		INSERT INTO rebalance_outcomes (agent_id, run_id, kind, reason, tx_hashes)
		VALUES ($1, $2, $3, $4, $5);
	`, outcome.AgentID, outcome.RunID, string(outcome.Kind), outcome.Reason, pq.Array(outcome.TxHashes))
	if err != nil {
		return fmt.Errorf("failed to record outcome for agent %s: %w", outcome.AgentID, err)
	}

	log.Info().
		Str("agent_id", outcome.AgentID).
		Str("run_id", outcome.RunID).
		Str("kind", string(outcome.Kind)).
		Str("reason", outcome.Reason).
		Msg("Rebalance outcome recorded")

	return nil
}

// ListRecentOutcomes returns the agent's latest outcomes, newest first.
func ListRecentOutcomes(agentID string, limit int) ([]types.RebalanceOutcome, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := DB.Query(`
		SELECT agent_id, run_id, kind, reason, tx_hashes
		FROM rebalance_outcomes
		WHERE agent_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2;
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var outcomes []types.RebalanceOutcome
	for rows.Next() {
		var outcome types.RebalanceOutcome
		var kind string
		if err := rows.Scan(&outcome.AgentID, &outcome.RunID, &kind, &outcome.Reason, pq.Array(&outcome.TxHashes)); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcome.Kind = types.OutcomeKind(kind)
		outcomes = append(outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating outcome rows: %w", err)
	}

	return outcomes, nil
}
