package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

// Request types recognized by the routing table.
const (
	AgentTypeTutor             = "tutor"
	AgentTypeAssessment        = "assessment"
	AgentTypeQuestionGenerator = "question_generator"
)

// requestTypeToAgentType is the static routing table from request type to
// agent type. Unlisted request types fall through to the default agent.
var requestTypeToAgentType = map[string]string{
	"question_generation": AgentTypeQuestionGenerator,
	"generate_questions":  AgentTypeQuestionGenerator,
	"assessment":          AgentTypeAssessment,
	"evaluate_answers":    AgentTypeAssessment,
	"tutoring":            AgentTypeTutor,
	"explanation":         AgentTypeTutor,
	"learning_support":    AgentTypeTutor,
}

type logEntry struct {
	timestamp time.Time
	agentID   string
	status    string
	err       string
}

// Manager registers agents and tools and routes requests. Safe for
// concurrent use.
type Manager struct {
	mu           sync.RWMutex
	agents       map[string]Agent
	agentOrder   []string
	agentMapping map[string]string
	tools        map[string]Tool
	toolOrder    []string
	requestLog   []logEntry
	logger       *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		agents:       make(map[string]Agent),
		agentMapping: make(map[string]string),
		tools:        make(map[string]Tool),
		logger:       logger,
	}
}

// AddAgent registers an agent and maps its agent type for routing. A second
// agent of the same type takes over the mapping.
func (m *Manager) AddAgent(a Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[a.ID()]; !exists {
		m.agentOrder = append(m.agentOrder, a.ID())
	}
	m.agents[a.ID()] = a
	m.agentMapping[a.Capabilities().AgentType] = a.ID()
	m.logger.Info("agent registered", "agent_id", a.ID(), "agent_type", a.Capabilities().AgentType)
}

// AddTool registers a tool by name.
func (m *Manager) AddTool(t Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[t.Name()]; !exists {
		m.toolOrder = append(m.toolOrder, t.Name())
	}
	m.tools[t.Name()] = t
}

// GetTool returns a registered tool by name.
func (m *Manager) GetTool(name string) (Tool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tools[name]
	return t, ok
}

// FindAgentForRequest resolves the agent id for a request type. Unknown
// types route to the first registered agent; an empty id means no agents
// are registered at all.
func (m *Manager) FindAgentForRequest(req Request) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if agentType, ok := requestTypeToAgentType[req.Type]; ok {
		if id, ok := m.agentMapping[agentType]; ok {
			return id
		}
	}
	if len(m.agentOrder) > 0 {
		return m.agentOrder[0]
	}
	return ""
}

// HandleRequest routes a request to its agent, logs the outcome, and wraps
// failures in a recovery-oriented error response.
func (m *Manager) HandleRequest(ctx context.Context, req Request) (map[string]any, error) {
	agentID := m.FindAgentForRequest(req)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, logEntry{timestamp: time.Now().UTC(), agentID: agentID, status: "processing"})
	idx := len(m.requestLog) - 1
	a, ok := m.agents[agentID]
	m.mu.Unlock()

	if agentID == "" || !ok {
		return map[string]any{
			"error":            "no suitable agent found for this request",
			"available_agents": m.agentIDs(),
		}, eduerrors.NewAgentError(agentID, "no suitable agent for request type "+req.Type)
	}

	if err := a.Validate(req); err != nil {
		m.setLogStatus(idx, "failed", err.Error())
		return map[string]any{
			"error":              "request not valid for this agent",
			"agent_id":           agentID,
			"agent_capabilities": a.Capabilities(),
		}, err
	}

	start := time.Now()
	resp, err := a.Process(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		m.setLogStatus(idx, "failed", err.Error())
		m.logger.Error("agent request failed", "agent_id", agentID, "type", req.Type, "duration", elapsed, "error", err)
		return m.errorResponse(agentID, err), err
	}

	m.setLogStatus(idx, "completed", "")
	m.logger.Info("agent request completed", "agent_id", agentID, "type", req.Type, "duration", elapsed)
	return resp, nil
}

// errorResponse builds the uniform failure envelope with recovery
// suggestions and the ids of the other registered agents.
func (m *Manager) errorResponse(agentID string, err error) map[string]any {
	var others []string
	for _, id := range m.agentIDs() {
		if id != agentID {
			others = append(others, id)
		}
	}
	return map[string]any{
		"error":         "agent " + agentID + " encountered an error",
		"error_details": err.Error(),
		"suggestions":   []string{"try_again", "use_different_agent"},
		"other_agents":  others,
	}
}

func (m *Manager) setLogStatus(idx int, status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx >= 0 && idx < len(m.requestLog) {
		m.requestLog[idx].status = status
		m.requestLog[idx].err = errMsg
	}
}

func (m *Manager) agentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.agentOrder))
	copy(ids, m.agentOrder)
	return ids
}

// ListAgents returns discovery information for every registered agent in
// registration order.
func (m *Manager) ListAgents() []AgentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AgentInfo, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		a := m.agents[id]
		out = append(out, AgentInfo{
			AgentID:      a.ID(),
			Name:         a.Name(),
			Description:  a.Description(),
			Capabilities: a.Capabilities(),
		})
	}
	return out
}

// ListTools returns discovery information for every registered tool in
// registration order.
func (m *Manager) ListTools() []ToolInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ToolInfo, 0, len(m.toolOrder))
	for _, name := range m.toolOrder {
		t := m.tools[name]
		out = append(out, ToolInfo{
			ToolName:     t.Name(),
			Description:  t.Description(),
			Version:      t.Version(),
			Capabilities: t.Capabilities(),
			Schema:       t.Schema(),
		})
	}
	return out
}

// Status reports per-agent request statistics. An agent with no history is
// active; one with history is active while its success rate stays above
// one half.
func (m *Manager) Status() map[string]AgentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]AgentStatus, len(m.agentOrder))
	for _, id := range m.agentOrder {
		var st AgentStatus
		for _, entry := range m.requestLog {
			if entry.agentID != id {
				continue
			}
			st.TotalRequests++
			switch entry.status {
			case "completed":
				st.Completed++
			case "failed":
				st.Failed++
			}
		}
		// In-flight requests have no outcome yet; the rate covers settled
		// requests only.
		settled := st.Completed + st.Failed
		if settled > 0 {
			st.SuccessRate = float64(st.Completed) / float64(settled)
			st.Active = st.SuccessRate > 0.5
		} else {
			st.Active = true
		}
		out[id] = st
	}
	return out
}
