package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// QuestionReader fetches questions and their recorded distractors. The
// persistence gateway implements it.
type QuestionReader interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*types.Question, error)
	ListDistractorPatterns(ctx context.Context, questionID uuid.UUID) ([]types.DistractorPattern, error)
}

// AssessmentAgent evaluates submitted answers against the stored question
// and maps wrong multiple-choice picks back to the mistake pattern their
// distractor was built from.
type AssessmentAgent struct {
	id        string
	questions QuestionReader
}

// NewAssessmentAgent creates the assessment agent.
func NewAssessmentAgent(questions QuestionReader) *AssessmentAgent {
	return &AssessmentAgent{id: "assessment_agent_001", questions: questions}
}

func (a *AssessmentAgent) ID() string   { return a.id }
func (a *AssessmentAgent) Name() string { return "Assessment Agent" }
func (a *AssessmentAgent) Description() string {
	return "Evaluates student answers and produces targeted feedback"
}

var assessmentActions = []string{"evaluate_answer", "provide_feedback"}

func (a *AssessmentAgent) Capabilities() Capabilities {
	return Capabilities{AgentType: AgentTypeAssessment, Actions: assessmentActions}
}

func (a *AssessmentAgent) Validate(req Request) error {
	for _, action := range assessmentActions {
		if req.Action == action {
			if _, err := payloadUUID(req.Payload, "question_id"); err != nil {
				return err
			}
			if _, err := payloadString(req.Payload, "answer"); err != nil {
				return err
			}
			return nil
		}
	}
	return eduerrors.NewInvalidRequestError(a.id, "unsupported action "+req.Action)
}

func (a *AssessmentAgent) Process(ctx context.Context, req Request) (map[string]any, error) {
	questionID, err := payloadUUID(req.Payload, "question_id")
	if err != nil {
		return nil, err
	}
	answer, err := payloadString(req.Payload, "answer")
	if err != nil {
		return nil, err
	}

	question, err := a.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	result := a.evaluate(question, answer)
	if !result.correct {
		if mistakeID, pattern := a.matchMistake(ctx, question, answer); pattern != "" {
			result.feedback += " This matches a known pitfall: " + pattern + "."
			if mistakeID != uuid.Nil {
				result.mistakeID = &mistakeID
			}
		}
	}

	resp := map[string]any{
		"question_id": question.ID,
		"is_correct":  result.correct,
		"score":       result.score,
		"feedback":    result.feedback,
	}
	if result.mistakeID != nil {
		resp["mistake_pattern_id"] = *result.mistakeID
	}
	if req.Action == "provide_feedback" && question.Explanation != "" {
		resp["explanation"] = question.Explanation
		resp["solution_steps"] = question.SolutionSteps
	}
	return resp, nil
}

type evaluation struct {
	correct   bool
	score     float64
	feedback  string
	mistakeID *uuid.UUID
}

func (a *AssessmentAgent) evaluate(q *types.Question, answer string) evaluation {
	normalized := normalizeAnswer(answer)

	// Multiple choice compares against the flagged correct option first,
	// falling back to the correct_answer column.
	expected := normalizeAnswer(q.CorrectAnswer)
	for _, opt := range q.Options {
		if opt.Correct {
			expected = normalizeAnswer(opt.Text)
			break
		}
	}

	if expected != "" && normalized == expected {
		return evaluation{correct: true, score: 1.0, feedback: "Correct."}
	}
	return evaluation{correct: false, score: 0.0, feedback: "Not quite."}
}

// matchMistake resolves a wrong answer to the mistake pattern behind the
// matching distractor, when one was recorded.
func (a *AssessmentAgent) matchMistake(ctx context.Context, q *types.Question, answer string) (uuid.UUID, string) {
	normalized := normalizeAnswer(answer)

	var pattern string
	for _, opt := range q.Options {
		if !opt.Correct && normalizeAnswer(opt.Text) == normalized {
			pattern = opt.MistakePattern
			break
		}
	}
	if pattern == "" {
		return uuid.Nil, ""
	}

	distractors, err := a.questions.ListDistractorPatterns(ctx, q.ID)
	if err != nil {
		return uuid.Nil, pattern
	}
	for _, dp := range distractors {
		if normalizeAnswer(dp.DistractorText) == normalized {
			return dp.CommonMistakeID, pattern
		}
	}
	return uuid.Nil, pattern
}

func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
