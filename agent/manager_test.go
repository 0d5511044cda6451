package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAgent is a scriptable agent for manager tests.
type stubAgent struct {
	id          string
	agentType   string
	validateErr error
	processErr  error
	response    map[string]any

	// When set, Process signals started and parks until release is closed.
	started chan struct{}
	release chan struct{}
}

func (s *stubAgent) ID() string          { return s.id }
func (s *stubAgent) Name() string        { return s.id }
func (s *stubAgent) Description() string { return "stub" }
func (s *stubAgent) Capabilities() Capabilities {
	return Capabilities{AgentType: s.agentType, Actions: []string{"noop"}}
}
func (s *stubAgent) Validate(Request) error { return s.validateErr }
func (s *stubAgent) Process(context.Context, Request) (map[string]any, error) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	if s.processErr != nil {
		return nil, s.processErr
	}
	return s.response, nil
}

func TestManager_FindAgentForRequest_RoutingTable(t *testing.T) {
	m := NewManager(nil)
	tutor := &stubAgent{id: "tutor-1", agentType: AgentTypeTutor}
	qgen := &stubAgent{id: "qgen-1", agentType: AgentTypeQuestionGenerator}
	m.AddAgent(tutor)
	m.AddAgent(qgen)

	assert.Equal(t, "tutor-1", m.FindAgentForRequest(Request{Type: "tutoring"}))
	assert.Equal(t, "tutor-1", m.FindAgentForRequest(Request{Type: "explanation"}))
	assert.Equal(t, "qgen-1", m.FindAgentForRequest(Request{Type: "generate_questions"}))
	// Unknown types default to the first registered agent.
	assert.Equal(t, "tutor-1", m.FindAgentForRequest(Request{Type: "something_else"}))
}

func TestManager_FindAgentForRequest_NoAgents(t *testing.T) {
	m := NewManager(nil)
	assert.Equal(t, "", m.FindAgentForRequest(Request{Type: "tutoring"}))
}

func TestManager_HandleRequest_Success(t *testing.T) {
	m := NewManager(nil)
	m.AddAgent(&stubAgent{id: "tutor-1", agentType: AgentTypeTutor, response: map[string]any{"ok": true}})

	resp, err := m.HandleRequest(context.Background(), Request{Type: "tutoring", Action: "noop"})
	require.NoError(t, err)
	assert.Equal(t, true, resp["ok"])

	status := m.Status()["tutor-1"]
	assert.Equal(t, 1, status.TotalRequests)
	assert.Equal(t, 1, status.Completed)
	assert.True(t, status.Active)
}

func TestManager_HandleRequest_AgentFailure(t *testing.T) {
	m := NewManager(nil)
	m.AddAgent(&stubAgent{id: "tutor-1", agentType: AgentTypeTutor, processErr: assert.AnError})
	m.AddAgent(&stubAgent{id: "qgen-1", agentType: AgentTypeQuestionGenerator})

	resp, err := m.HandleRequest(context.Background(), Request{Type: "tutoring"})
	require.Error(t, err)
	assert.Equal(t, []string{"try_again", "use_different_agent"}, resp["suggestions"])
	assert.Equal(t, []string{"qgen-1"}, resp["other_agents"])
	assert.Contains(t, resp["error"], "tutor-1")
}

func TestManager_HandleRequest_NoSuitableAgent(t *testing.T) {
	m := NewManager(nil)
	resp, err := m.HandleRequest(context.Background(), Request{Type: "tutoring"})
	require.Error(t, err)
	assert.Contains(t, resp, "error")
	assert.Empty(t, resp["available_agents"])
}

func TestManager_Status_SuccessRateThreshold(t *testing.T) {
	m := NewManager(nil)
	a := &stubAgent{id: "tutor-1", agentType: AgentTypeTutor, response: map[string]any{}}
	m.AddAgent(a)

	// One success, two failures: rate 1/3, below the active threshold.
	_, _ = m.HandleRequest(context.Background(), Request{Type: "tutoring"})
	a.processErr = assert.AnError
	_, _ = m.HandleRequest(context.Background(), Request{Type: "tutoring"})
	_, _ = m.HandleRequest(context.Background(), Request{Type: "tutoring"})

	status := m.Status()["tutor-1"]
	assert.Equal(t, 3, status.TotalRequests)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 2, status.Failed)
	assert.InDelta(t, 1.0/3.0, status.SuccessRate, 1e-9)
	assert.False(t, status.Active)
}

func TestManager_Status_InFlightRequestsDoNotDilute(t *testing.T) {
	m := NewManager(nil)
	a := &stubAgent{id: "tutor-1", agentType: AgentTypeTutor, response: map[string]any{}}
	m.AddAgent(a)

	_, err := m.HandleRequest(context.Background(), Request{Type: "tutoring"})
	require.NoError(t, err)

	a.started = make(chan struct{})
	a.release = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.HandleRequest(context.Background(), Request{Type: "tutoring"})
	}()
	<-a.started

	// One completed, one in flight: the rate is over settled requests only.
	status := m.Status()["tutor-1"]
	assert.Equal(t, 2, status.TotalRequests)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 0, status.Failed)
	assert.InDelta(t, 1.0, status.SuccessRate, 1e-9)
	assert.True(t, status.Active)

	close(a.release)
	<-done
}

func TestManager_ListAgentsAndTools(t *testing.T) {
	m := NewManager(nil)
	m.AddAgent(&stubAgent{id: "tutor-1", agentType: AgentTypeTutor})

	agents := m.ListAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, "tutor-1", agents[0].AgentID)
	assert.Equal(t, AgentTypeTutor, agents[0].Capabilities.AgentType)

	assert.Empty(t, m.ListTools())
}

func TestManager_SecondAgentOfSameTypeTakesOverRouting(t *testing.T) {
	m := NewManager(nil)
	m.AddAgent(&stubAgent{id: "tutor-1", agentType: AgentTypeTutor})
	m.AddAgent(&stubAgent{id: "tutor-2", agentType: AgentTypeTutor})

	assert.Equal(t, "tutor-2", m.FindAgentForRequest(Request{Type: "tutoring"}))
	assert.Len(t, m.ListAgents(), 2)
}
