package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rangeseeker/rebalancer/internal/types"
)

type scriptedRunner struct {
	mu       sync.Mutex
	outcomes map[string]types.OutcomeKind
	panicsOn map[string]bool
	ran      []string
}

func (r *scriptedRunner) EvaluateAndRebalance(_ context.Context, agentID, runID string) types.RebalanceOutcome {
	r.mu.Lock()
	r.ran = append(r.ran, agentID)
	r.mu.Unlock()
	if r.panicsOn[agentID] {
		panic("boom")
	}
	kind, ok := r.outcomes[agentID]
	if !ok {
		kind = types.OutcomeNoAction
	}
	return types.RebalanceOutcome{AgentID: agentID, RunID: runID, Kind: kind}
}

func (r *scriptedRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

type staticAgents struct {
	agents []types.Agent
	err    error
}

func (s *staticAgents) LoadActiveAgents() ([]types.Agent, error) { return s.agents, s.err }

func agents(ids ...string) []types.Agent {
	out := make([]types.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Agent{AgentID: id, Active: true})
	}
	return out
}

func TestRunCycleProcessesAgentsInOrder(t *testing.T) {
	runner := &scriptedRunner{outcomes: map[string]types.OutcomeKind{}}
	sched := NewScheduler(runner, &staticAgents{agents: agents("a", "b", "c")}, time.Minute)

	sched.RunCycle(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, runner.ran)
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	runner := &scriptedRunner{
		outcomes: map[string]types.OutcomeKind{
			"a": types.OutcomeFailed,
			"b": types.OutcomeRebalanced,
			"c": types.OutcomeFailed,
		},
	}
	sched := NewScheduler(runner, &staticAgents{agents: agents("a", "b", "c")}, time.Minute)

	sched.RunCycle(context.Background())

	// Every agent runs regardless of earlier failures.
	assert.Equal(t, []string{"a", "b", "c"}, runner.ran)
}

func TestRunCycleContainsPanics(t *testing.T) {
	runner := &scriptedRunner{
		outcomes: map[string]types.OutcomeKind{},
		panicsOn: map[string]bool{"b": true},
	}
	sched := NewScheduler(runner, &staticAgents{agents: agents("a", "b", "c")}, time.Minute)

	assert.NotPanics(t, func() { sched.RunCycle(context.Background()) })
	assert.Equal(t, []string{"a", "b", "c"}, runner.ran, "agents after the panicking one still run")
}

func TestRunCycleAbortsWhenAgentLoadFails(t *testing.T) {
	runner := &scriptedRunner{outcomes: map[string]types.OutcomeKind{}}
	sched := NewScheduler(runner, &staticAgents{err: fmt.Errorf("database down")}, time.Minute)

	sched.RunCycle(context.Background())
	assert.Empty(t, runner.ran)
}

func TestRunCycleStopsOnCancelledContext(t *testing.T) {
	runner := &scriptedRunner{outcomes: map[string]types.OutcomeKind{}}
	sched := NewScheduler(runner, &staticAgents{agents: agents("a", "b")}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched.RunCycle(ctx)
	assert.Empty(t, runner.ran)
}

func TestRunLoopRunsFirstCycleImmediately(t *testing.T) {
	runner := &scriptedRunner{outcomes: map[string]types.OutcomeKind{}}
	sched := NewScheduler(runner, &staticAgents{agents: agents("a")}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.RunLoop(ctx)
		close(done)
	}()

	// The first cycle fires before any tick.
	assert.Eventually(t, func() bool { return runner.runCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not stop after context cancellation")
	}
}
