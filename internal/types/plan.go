/*

Ephemeral planning and outcome types. A RebalancePlan is produced by the
evaluator/calculator pair and consumed exactly once by the orchestrator.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapDirection identifies which side of the pair is sold.
type SwapDirection string

const (
	SwapNone      SwapDirection = "NONE"
	SwapZeroToOne SwapDirection = "TOKEN0_TO_TOKEN1"
	SwapOneToZero SwapDirection = "TOKEN1_TO_TOKEN0"
)

// RebalancePlan describes the swap and deposit needed to move an agent's
// holdings into a new price range.
type RebalancePlan struct {
	SwapDirection   SwapDirection `json:"swap_direction"`
	SwapAmountRaw   *big.Int      `json:"swap_amount_raw"`
	TargetTickLower int32         `json:"target_tick_lower"`
	TargetTickUpper int32         `json:"target_tick_upper"`
	DepositAmount0  *big.Int      `json:"deposit_amount0"`
	DepositAmount1  *big.Int      `json:"deposit_amount1"`
	// ExitOnly plans convert everything to the target asset and skip the
	// deposit (price threshold exits).
	ExitOnly    bool           `json:"exit_only"`
	TargetAsset common.Address `json:"target_asset,omitempty"`
}

// NeedsSwap reports whether the plan includes a swap leg.
func (p *RebalancePlan) NeedsSwap() bool {
	return p.SwapDirection != SwapNone && p.SwapAmountRaw != nil && p.SwapAmountRaw.Sign() > 0
}

// OutcomeKind classifies the result of one evaluateAndRebalance run.
type OutcomeKind string

const (
	OutcomeNoAction   OutcomeKind = "NO_ACTION"
	OutcomeRebalanced OutcomeKind = "REBALANCED"
	OutcomeExited     OutcomeKind = "EXITED"
	OutcomePaused     OutcomeKind = "PAUSED"
	OutcomeFailed     OutcomeKind = "FAILED"
	OutcomeSkipped    OutcomeKind = "SKIPPED"
)

// RebalanceOutcome is the terminal report of one run for one agent.
type RebalanceOutcome struct {
	AgentID  string      `json:"agent_id"`
	RunID    string      `json:"run_id"`
	Kind     OutcomeKind `json:"kind"`
	Reason   string      `json:"reason,omitempty"`
	TxHashes []string    `json:"tx_hashes,omitempty"`
}

// WorkflowStep enumerates the checkpointable steps of the execution workflow,
// in strict order.
type WorkflowStep int

const (
	StepPending WorkflowStep = iota
	StepWithdrawn
	StepSwapped
	StepDeposited
)

// String returns the step name for logs and persistence.
func (s WorkflowStep) String() string {
	switch s {
	case StepPending:
		return "PENDING"
	case StepWithdrawn:
		return "WITHDRAWN"
	case StepSwapped:
		return "SWAPPED"
	case StepDeposited:
		return "DEPOSITED"
	}
	return "UNKNOWN"
}

// WorkflowStepFromString parses a persisted step name. Unknown names map to
// StepPending so a corrupt checkpoint degrades to a full re-run.
func WorkflowStepFromString(s string) WorkflowStep {
	switch s {
	case "WITHDRAWN":
		return StepWithdrawn
	case "SWAPPED":
		return StepSwapped
	case "DEPOSITED":
		return StepDeposited
	}
	return StepPending
}
