package api

import (
	"net/http"

	"github.com/im-zhong/eduagent/agent"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

// ListAgents handles GET /api/v1/agents, returning registered agents and
// tools for discovery.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"agents": h.manager.ListAgents(),
		"tools":  h.manager.ListTools(),
	})
}

// AgentStatus handles GET /api/v1/agents/status.
func (h *Handler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.Status())
}

// agentRequest is a free-form request routed by the manager's table.
type agentRequest struct {
	Type    string         `json:"type"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// AgentRequest handles POST /api/v1/agents/requests. Tutoring and other
// request types without a dedicated endpoint go through here.
func (h *Handler) AgentRequest(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Type == "" {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "type is required"))
		return
	}

	resp, err := h.manager.HandleRequest(r.Context(), agent.Request{
		Type:    req.Type,
		Action:  req.Action,
		Payload: req.Payload,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if e, ok := err.(*eduerrors.Error); ok {
			status = e.HTTPStatusCode()
		}
		h.writeJSON(w, status, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
