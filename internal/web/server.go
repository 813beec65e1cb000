/*

Admin web server. Three surfaces: a health probe, a manual rebalance trigger
for one agent, and the agent's recent outcome history. The trigger runs the
same orchestrator path as the scheduler; the per-agent lease arbitrates when
both fire at once.

*/

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/state"
	"github.com/rangeseeker/rebalancer/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// Runner executes one evaluation-and-rebalance pass for an agent.
type Runner interface {
	EvaluateAndRebalance(ctx context.Context, agentID, runID string) types.RebalanceOutcome
}

// OutcomeSource reads recorded outcomes.
type OutcomeSource interface {
	GetAgent(agentID string) (types.Agent, error)
	ListRecentOutcomes(agentID string, limit int) ([]types.RebalanceOutcome, error)
}

// WebServer handles HTTP requests for the admin surface.
type WebServer struct {
	router   *mux.Router
	addr     string
	runner   Runner
	outcomes OutcomeSource
}

// NewWebServer creates a web server bound to addr.
func NewWebServer(addr string, runner Runner, outcomes OutcomeSource) *WebServer {
	if addr == "" {
		addr = ":8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		addr:     addr,
		runner:   runner,
		outcomes: outcomes,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.HandleFunc("/agents/{agentID}/rebalance", ws.handleTriggerRebalance).Methods("POST")
	ws.router.HandleFunc("/agents/{agentID}/outcomes", ws.handleListOutcomes).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server and blocks until it exits.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("addr", ws.addr).Msg("Starting admin web server")

	server := &http.Server{
		Addr:         ws.addr,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // manual rebalances block until terminal
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := state.TestDBConnection(); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["database"] = "ok"
	writeJSON(w, http.StatusOK, status)
}

// handleTriggerRebalance runs one synchronous rebalance pass for the agent
// and returns the terminal outcome.
func (ws *WebServer) handleTriggerRebalance(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]

	if _, err := ws.outcomes.GetAgent(agentID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	runID := uuid.New().String()
	webLogger.Info().Str("agent_id", agentID).Str("run_id", runID).Msg("Manual rebalance triggered")

	outcome := ws.runner.EvaluateAndRebalance(r.Context(), agentID, runID)

	status := http.StatusOK
	switch outcome.Kind {
	case types.OutcomeFailed:
		status = http.StatusInternalServerError
	case types.OutcomeSkipped:
		status = http.StatusConflict
	}
	writeJSON(w, status, outcome)
}

func (ws *WebServer) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]

	if _, err := ws.outcomes.GetAgent(agentID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	outcomes, err := ws.outcomes.ListRecentOutcomes(agentID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if outcomes == nil {
		outcomes = []types.RebalanceOutcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
