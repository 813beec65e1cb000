package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeseeker/rebalancer/internal/types"
)

type stubRunner struct {
	outcome types.RebalanceOutcome
	calls   int
}

func (s *stubRunner) EvaluateAndRebalance(_ context.Context, agentID, runID string) types.RebalanceOutcome {
	s.calls++
	out := s.outcome
	out.AgentID = agentID
	out.RunID = runID
	return out
}

type stubOutcomes struct {
	agents   map[string]types.Agent
	outcomes []types.RebalanceOutcome
}

func (s *stubOutcomes) GetAgent(agentID string) (types.Agent, error) {
	agent, ok := s.agents[agentID]
	if !ok {
		return types.Agent{}, fmt.Errorf("%w: agent %s", types.ErrNotFound, agentID)
	}
	return agent, nil
}

func (s *stubOutcomes) ListRecentOutcomes(_ string, _ int) ([]types.RebalanceOutcome, error) {
	return s.outcomes, nil
}

func newTestServer(runner *stubRunner, outcomes *stubOutcomes) *WebServer {
	return NewWebServer(":0", runner, outcomes)
}

func TestTriggerRebalanceReturnsOutcome(t *testing.T) {
	runner := &stubRunner{outcome: types.RebalanceOutcome{Kind: types.OutcomeRebalanced, TxHashes: []string{"0x1"}}}
	source := &stubOutcomes{agents: map[string]types.Agent{"agent-1": {AgentID: "agent-1"}}}
	server := newTestServer(runner, source)

	req := httptest.NewRequest(http.MethodPost, "/agents/agent-1/rebalance", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)

	var outcome types.RebalanceOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, "agent-1", outcome.AgentID)
	assert.Equal(t, types.OutcomeRebalanced, outcome.Kind)
}

func TestTriggerRebalanceUnknownAgent(t *testing.T) {
	server := newTestServer(&stubRunner{}, &stubOutcomes{agents: map[string]types.Agent{}})

	req := httptest.NewRequest(http.MethodPost, "/agents/nope/rebalance", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRebalanceStatusByOutcomeKind(t *testing.T) {
	cases := []struct {
		kind types.OutcomeKind
		want int
	}{
		{types.OutcomeNoAction, http.StatusOK},
		{types.OutcomeFailed, http.StatusInternalServerError},
		{types.OutcomeSkipped, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			runner := &stubRunner{outcome: types.RebalanceOutcome{Kind: tc.kind}}
			source := &stubOutcomes{agents: map[string]types.Agent{"agent-1": {AgentID: "agent-1"}}}
			server := newTestServer(runner, source)

			req := httptest.NewRequest(http.MethodPost, "/agents/agent-1/rebalance", nil)
			rec := httptest.NewRecorder()
			server.router.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestListOutcomes(t *testing.T) {
	source := &stubOutcomes{
		agents: map[string]types.Agent{"agent-1": {AgentID: "agent-1"}},
		outcomes: []types.RebalanceOutcome{
			{AgentID: "agent-1", Kind: types.OutcomeRebalanced},
			{AgentID: "agent-1", Kind: types.OutcomeNoAction},
		},
	}
	server := newTestServer(&stubRunner{}, source)

	req := httptest.NewRequest(http.MethodGet, "/agents/agent-1/outcomes", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var outcomes []types.RebalanceOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	assert.Len(t, outcomes, 2)
}

func TestListOutcomesEmptyIsArray(t *testing.T) {
	source := &stubOutcomes{agents: map[string]types.Agent{"agent-1": {AgentID: "agent-1"}}}
	server := newTestServer(&stubRunner{}, source)

	req := httptest.NewRequest(http.MethodGet, "/agents/agent-1/outcomes", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
