/*

RebalanceScheduler drives the periodic evaluation loop: every interval it
loads the active agent set and runs each agent through the orchestrator in
turn. One agent's failure never touches the others; a panic inside a run is
contained to that agent and logged as a failed cycle entry.

*/

package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

// Runner executes one full evaluation-and-rebalance pass for an agent.
type Runner interface {
	EvaluateAndRebalance(ctx context.Context, agentID, runID string) types.RebalanceOutcome
}

// AgentSource lists the agents eligible for scheduling.
type AgentSource interface {
	LoadActiveAgents() ([]types.Agent, error)
}

// Scheduler owns the periodic rebalance loop.
type Scheduler struct {
	runner     Runner
	agents     AgentSource
	interval   time.Duration
	cycleCount int
	logger     zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, agents AgentSource, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		agents:   agents,
		interval: interval,
		logger:   logger.GetForComponent("rebalance_scheduler"),
	}
}

// RunLoop starts the scheduler loop with the configured interval. The first
// cycle runs immediately; the loop exits when the context is cancelled.
func (s *Scheduler) RunLoop(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting rebalance scheduler loop")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycleCount++
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.cycleCount++
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one pass over every active agent.
func (s *Scheduler) RunCycle(ctx context.Context) {
	cycleStart := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := s.logger.With().Str("cycle_id", cycleID).Int("cycle", s.cycleCount).Logger()

	cycleLogger.Info().Msg("--- Starting rebalance cycle ---")

	agents, err := s.agents.LoadActiveAgents()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to load active agents")
		return
	}
	if len(agents) == 0 {
		cycleLogger.Info().Msg("No active agents, cycle complete")
		return
	}

	var failures int
	for _, agent := range agents {
		if ctx.Err() != nil {
			cycleLogger.Warn().Msg("Cycle interrupted by shutdown")
			return
		}

		outcome := s.runAgent(ctx, cycleLogger, agent)
		if outcome.Kind == types.OutcomeFailed {
			failures++
		}
	}

	cycleLogger.Info().
		Int("agents", len(agents)).
		Int("failures", failures).
		Dur("elapsed", time.Since(cycleStart)).
		Msg("--- Rebalance cycle complete ---")
}

// runAgent isolates one agent's run; a panic is converted into a failed
// outcome instead of taking down the loop.
func (s *Scheduler) runAgent(ctx context.Context, cycleLogger zerolog.Logger, agent types.Agent) (outcome types.RebalanceOutcome) {
	runID := uuid.New().String()
	agentLogger := cycleLogger.With().Str("agent_id", agent.AgentID).Str("run_id", runID).Logger()

	defer func() {
		if r := recover(); r != nil {
			agentLogger.Error().Interface("panic", r).Msg("Agent run panicked")
			outcome = types.RebalanceOutcome{
				AgentID: agent.AgentID,
				RunID:   runID,
				Kind:    types.OutcomeFailed,
				Reason:  "internal panic during run",
			}
		}
	}()

	agentLogger.Info().Msg("Running agent evaluation")
	outcome = s.runner.EvaluateAndRebalance(ctx, agent.AgentID, runID)
	agentLogger.Info().
		Str("kind", string(outcome.Kind)).
		Str("reason", outcome.Reason).
		Int("txs", len(outcome.TxHashes)).
		Msg("Agent run complete")

	return outcome
}
