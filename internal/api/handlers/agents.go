package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/networth-tracker/internal/api/response"
	"github.com/ndewijer/networth-tracker/internal/service"
	"github.com/ndewijer/networth-tracker/internal/validation"
)

// AgentHandler handles HTTP requests for the background agents.
type AgentHandler struct {
	runner *service.AgentRunner
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(runner *service.AgentRunner) *AgentHandler {
	return &AgentHandler{runner: runner}
}

// Agents returns the status of every agent.
//
// Endpoint: GET /api/agents
// Response: 200 OK with array of model.AgentStatus
func (h *AgentHandler) Agents(w http.ResponseWriter, _ *http.Request) {
	response.RespondJSON(w, http.StatusOK, h.runner.Statuses())
}

// Agent returns the status of one agent.
//
// Endpoint: GET /api/agents/{name}
// Response: 200 OK with model.AgentStatus
// Error: 404 Not Found if no agent has that name
func (h *AgentHandler) Agent(w http.ResponseWriter, r *http.Request) {
	st, err := h.runner.Status(chi.URLParam(r, "name"))
	if err != nil {
		response.RespondServiceError(w, "failed to get agent status", err)
		return
	}
	response.RespondJSON(w, http.StatusOK, st)
}

// Run starts an agent in the background. The body is passed to the agent as its parameters;
// backfill accepts {"currency", "start_date", "end_date"}.
//
// Endpoint: POST /api/agents/{name}/run
// Response: 202 Accepted with the agent status
// Error: 400 Bad Request if the body is not JSON
// Error: 404 Not Found if no agent has that name
// Error: 409 Conflict if the agent is already running
func (h *AgentHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	params, err := rawBody(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if name == service.AgentBackfill && len(params) > 0 {
		if err := validateBackfillParams(params); err != nil {
			response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
			return
		}
	}

	if err := h.runner.Start(name, params); err != nil {
		response.RespondServiceError(w, "failed to start agent", err)
		return
	}
	st, err := h.runner.Status(name)
	if err != nil {
		response.RespondServiceError(w, "failed to get agent status", err)
		return
	}
	response.RespondJSON(w, http.StatusAccepted, st)
}

// Stop cancels a running agent. Work already committed is kept.
//
// Endpoint: POST /api/agents/{name}/stop
// Response: 202 Accepted
// Error: 404 Not Found if no agent has that name
// Error: 409 Conflict if the agent is not running
func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Stop(chi.URLParam(r, "name")); err != nil {
		response.RespondServiceError(w, "failed to stop agent", err)
		return
	}
	response.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// UpdateConfig merges integer settings into an agent's configuration.
//
// Endpoint: PUT /api/agents/{name}/config
// Request Body: {"<setting>": <int>, ...}
// Response: 200 OK with the new configuration
// Error: 400 Bad Request for unknown keys or invalid values
// Error: 404 Not Found if no agent has that name
func (h *AgentHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	updates, err := parseJSON[map[string]int](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := validation.ValidateConfigUpdate(updates); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	cfg, err := h.runner.UpdateConfig(chi.URLParam(r, "name"), updates)
	if err != nil {
		response.RespondServiceError(w, "failed to update agent config", err)
		return
	}
	response.RespondJSON(w, http.StatusOK, cfg)
}

func validateBackfillParams(raw []byte) error {
	var p service.BackfillParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if p.Currency != "" {
		if _, err := validation.ValidateSymbol(p.Currency); err != nil {
			return err
		}
	}
	_, err := p.Request()
	return err
}
