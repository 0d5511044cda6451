package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/rag"
)

// TutorAgent explains concepts and suggests learning activities, grounding
// every answer in retrieved knowledge. With a chat client configured the
// explanation is model-written; without one it is assembled from the
// retrieved descriptions.
type TutorAgent struct {
	id        string
	retrieval rag.RetrievalStrategy
	chat      rag.ChatClient
}

// NewTutorAgent creates the tutoring agent. The chat client is optional.
func NewTutorAgent(retrieval rag.RetrievalStrategy, chat rag.ChatClient) *TutorAgent {
	return &TutorAgent{id: "tutor_agent_001", retrieval: retrieval, chat: chat}
}

func (a *TutorAgent) ID() string   { return a.id }
func (a *TutorAgent) Name() string { return "Tutor Agent" }
func (a *TutorAgent) Description() string {
	return "Explains concepts, answers student questions, and suggests learning activities"
}

var tutorActions = []string{
	"provide_explanation",
	"answer_student_question",
	"suggest_learning_activities",
}

func (a *TutorAgent) Capabilities() Capabilities {
	return Capabilities{
		AgentType: AgentTypeTutor,
		Actions:   tutorActions,
		Extra: map[string]any{
			"teaching_style": []string{"socratic", "direct_instruction", "guided_discovery"},
		},
	}
}

func (a *TutorAgent) Validate(req Request) error {
	for _, action := range tutorActions {
		if req.Action == action {
			if _, err := payloadString(req.Payload, "topic"); err != nil {
				return err
			}
			return nil
		}
	}
	return eduerrors.NewInvalidRequestError(a.id, "unsupported action "+req.Action)
}

func (a *TutorAgent) Process(ctx context.Context, req Request) (map[string]any, error) {
	topic, err := payloadString(req.Payload, "topic")
	if err != nil {
		return nil, err
	}

	opts := rag.RetrievalOptions{Limit: 5}
	if raw := payloadOptionalString(req.Payload, "textbook_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, eduerrors.NewInvalidRequestError(a.id, "textbook_id must be a UUID")
		}
		opts.TextbookID = &id
	}

	bundle, err := a.retrieval.RetrieveRelevantKnowledge(ctx, topic, opts)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case "provide_explanation", "answer_student_question":
		explanation, err := a.explain(ctx, topic, bundle)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"topic":            topic,
			"explanation":      explanation,
			"knowledge_points": bundle.Items,
			"strategy":         bundle.Strategy,
		}, nil
	case "suggest_learning_activities":
		return map[string]any{
			"topic":      topic,
			"activities": suggestActivities(bundle),
		}, nil
	default:
		return nil, eduerrors.NewInvalidRequestError(a.id, "unsupported action "+req.Action)
	}
}

func (a *TutorAgent) explain(ctx context.Context, topic string, bundle *rag.ContextBundle) (string, error) {
	if a.chat != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Explain %q to a student. Ground your explanation in these concepts:\n", topic)
		for _, item := range bundle.Items {
			fmt.Fprintf(&b, "- %s: %s\n", item.KnowledgePoint.Name, item.KnowledgePoint.Description)
		}
		return a.chat.Complete(ctx, "You are a patient tutor. Keep explanations concrete and stepwise.", b.String())
	}

	if len(bundle.Items) == 0 {
		return fmt.Sprintf("No course material matched %q. Try rephrasing or naming the chapter.", topic), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here is what the course material says about %q:\n", topic)
	for _, item := range bundle.Items {
		fmt.Fprintf(&b, "%s: %s\n", item.KnowledgePoint.Name, item.KnowledgePoint.Description)
	}
	return b.String(), nil
}

func suggestActivities(bundle *rag.ContextBundle) []map[string]any {
	activities := make([]map[string]any, 0, len(bundle.Items))
	for _, item := range bundle.Items {
		kind := "review"
		if item.KnowledgePoint.ImportanceScore >= 0.7 {
			kind = "practice_problems"
		}
		activities = append(activities, map[string]any{
			"knowledge_point": item.KnowledgePoint.Name,
			"activity":        kind,
			"priority":        item.Score,
		})
	}
	return activities
}
