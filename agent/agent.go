// Package agent coordinates educational AI agents and the tools they use.
// A manager routes typed requests to registered agents and tracks per-agent
// outcomes.
package agent

import (
	"context"
)

// Request is a routed unit of work. Type selects the agent; Action selects
// the operation within the agent; Payload carries operation parameters.
type Request struct {
	Type    string         `json:"type"`
	Action  string         `json:"action,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Capabilities is an agent's static routing and discovery metadata.
type Capabilities struct {
	AgentType string         `json:"agent_type"`
	Actions   []string       `json:"actions"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Agent handles one family of educational requests.
type Agent interface {
	ID() string
	Name() string
	Description() string
	Capabilities() Capabilities
	Validate(req Request) error
	Process(ctx context.Context, req Request) (map[string]any, error)
}

// Tool is a reusable capability agents and handlers can invoke directly.
type Tool interface {
	Name() string
	Description() string
	Version() string
	Capabilities() map[string]any
	Schema() map[string]any
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// AgentInfo is the discovery view of a registered agent.
type AgentInfo struct {
	AgentID      string       `json:"agent_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Capabilities Capabilities `json:"capabilities"`
}

// ToolInfo is the discovery view of a registered tool.
type ToolInfo struct {
	ToolName     string         `json:"tool_name"`
	Description  string         `json:"description"`
	Version      string         `json:"version"`
	Capabilities map[string]any `json:"capabilities"`
	Schema       map[string]any `json:"schema"`
}

// AgentStatus summarizes one agent's request history.
type AgentStatus struct {
	TotalRequests int     `json:"total_requests"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	Active        bool    `json:"active"`
}
