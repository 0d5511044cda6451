package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// KnowledgeReader fetches knowledge points and their mistake catalog. The
// persistence gateway implements it.
type KnowledgeReader interface {
	GetKnowledgePoint(ctx context.Context, id uuid.UUID) (*types.KnowledgePoint, error)
	ListCommonMistakes(ctx context.Context, knowledgePointID uuid.UUID) ([]types.CommonMistake, error)
}

// QuestionGeneratorAgent builds assessment questions from knowledge points.
// Multiple-choice distractors come from the knowledge point's catalogued
// common mistakes, most frequent first.
type QuestionGeneratorAgent struct {
	id        string
	knowledge KnowledgeReader
}

// NewQuestionGeneratorAgent creates the question generation agent.
func NewQuestionGeneratorAgent(knowledge KnowledgeReader) *QuestionGeneratorAgent {
	return &QuestionGeneratorAgent{id: "question_generator_001", knowledge: knowledge}
}

func (a *QuestionGeneratorAgent) ID() string   { return a.id }
func (a *QuestionGeneratorAgent) Name() string { return "Question Generator Agent" }
func (a *QuestionGeneratorAgent) Description() string {
	return "Generates educational questions from knowledge points and their mistake patterns"
}

var questionGenActions = []string{
	"generate_questions",
	"adjust_difficulty",
	"generate_distractors",
	"batch_generate_questions",
}

func (a *QuestionGeneratorAgent) Capabilities() Capabilities {
	return Capabilities{
		AgentType: AgentTypeQuestionGenerator,
		Actions:   questionGenActions,
		Extra: map[string]any{
			"question_types": []string{string(types.QuestionMultipleChoice), string(types.QuestionShortAnswer)},
		},
	}
}

func (a *QuestionGeneratorAgent) Validate(req Request) error {
	switch req.Action {
	case "generate_questions", "generate_distractors":
		_, err := payloadUUID(req.Payload, "knowledge_point_id")
		return err
	case "adjust_difficulty":
		if _, err := payloadString(req.Payload, "difficulty"); err != nil {
			return err
		}
		return nil
	case "batch_generate_questions":
		if _, ok := req.Payload["knowledge_point_ids"].([]any); !ok {
			if _, ok := req.Payload["knowledge_point_ids"].([]string); !ok {
				return eduerrors.NewInvalidRequestError(a.id, "knowledge_point_ids must be a list")
			}
		}
		return nil
	default:
		return eduerrors.NewInvalidRequestError(a.id, "unsupported action "+req.Action)
	}
}

func (a *QuestionGeneratorAgent) Process(ctx context.Context, req Request) (map[string]any, error) {
	switch req.Action {
	case "generate_questions":
		return a.generateForKnowledgePoint(ctx, req)
	case "generate_distractors":
		return a.generateDistractors(ctx, req)
	case "adjust_difficulty":
		return a.adjustDifficulty(req)
	case "batch_generate_questions":
		return a.batchGenerate(ctx, req)
	default:
		return nil, eduerrors.NewInvalidRequestError(a.id, "unsupported action "+req.Action)
	}
}

func (a *QuestionGeneratorAgent) generateForKnowledgePoint(ctx context.Context, req Request) (map[string]any, error) {
	kpID, err := payloadUUID(req.Payload, "knowledge_point_id")
	if err != nil {
		return nil, err
	}
	count := payloadInt(req.Payload, "count", 1)
	difficulty := types.DifficultyLevel(payloadOptionalString(req.Payload, "difficulty"))
	if difficulty == "" {
		difficulty = types.DifficultyMedium
	}

	kp, err := a.knowledge.GetKnowledgePoint(ctx, kpID)
	if err != nil {
		return nil, err
	}
	mistakes, err := a.knowledge.ListCommonMistakes(ctx, kpID)
	if err != nil {
		return nil, err
	}

	questions := make([]types.Question, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, a.buildQuestion(kp, mistakes, difficulty))
	}
	return map[string]any{
		"knowledge_point_id": kpID,
		"questions":          questions,
	}, nil
}

// buildQuestion assembles a definition-style multiple-choice question. The
// correct option is the knowledge point's description; distractors are the
// descriptions of its most frequent mistake patterns.
func (a *QuestionGeneratorAgent) buildQuestion(kp *types.KnowledgePoint, mistakes []types.CommonMistake, difficulty types.DifficultyLevel) types.Question {
	options := []types.QuestionOption{
		{Text: kp.Description, Correct: true},
	}
	for _, cm := range mistakes {
		if len(options) >= 4 {
			break
		}
		options = append(options, types.QuestionOption{
			Text:           cm.Description,
			Correct:        false,
			MistakePattern: cm.PatternName,
		})
	}

	q := types.Question{
		ID:                  uuid.New(),
		QuestionText:        fmt.Sprintf("Which statement best describes %s?", kp.Name),
		QuestionType:        types.QuestionMultipleChoice,
		Difficulty:          difficulty,
		CognitiveLevel:      types.CognitiveUnderstanding,
		Subject:             kp.Subject,
		Options:             options,
		CorrectAnswer:       kp.Description,
		Explanation:         fmt.Sprintf("%s: %s", kp.Name, kp.Description),
		EstimatedDifficulty: estimateDifficulty(difficulty, kp.ImportanceScore),
		SourceTextbookID:    &kp.TextbookID,
		KnowledgePointIDs:   []uuid.UUID{kp.ID},
		GeneratedByAI:       true,
		CreatedAt:           time.Now().UTC(),
	}
	// Too few catalogued mistakes for a usable choice set.
	if len(options) < 3 {
		q.QuestionType = types.QuestionShortAnswer
		q.QuestionText = fmt.Sprintf("In your own words, describe %s.", kp.Name)
		q.Options = nil
	}
	return q
}

func (a *QuestionGeneratorAgent) generateDistractors(ctx context.Context, req Request) (map[string]any, error) {
	kpID, err := payloadUUID(req.Payload, "knowledge_point_id")
	if err != nil {
		return nil, err
	}
	mistakes, err := a.knowledge.ListCommonMistakes(ctx, kpID)
	if err != nil {
		return nil, err
	}
	if len(mistakes) == 0 {
		return nil, eduerrors.NewUnsupportedInputError(a.id, "knowledge point has no catalogued mistakes to build distractors from")
	}

	distractors := make([]map[string]any, 0, len(mistakes))
	for _, cm := range mistakes {
		distractors = append(distractors, map[string]any{
			"text":            cm.Description,
			"mistake_pattern": cm.PatternName,
			"mistake_id":      cm.ID,
			"frequency":       cm.Frequency,
		})
	}
	return map[string]any{
		"knowledge_point_id": kpID,
		"distractors":        distractors,
	}, nil
}

func (a *QuestionGeneratorAgent) adjustDifficulty(req Request) (map[string]any, error) {
	difficulty := types.DifficultyLevel(payloadOptionalString(req.Payload, "difficulty"))
	adjusted, ok := shiftDifficulty(difficulty, payloadOptionalString(req.Payload, "direction"))
	if !ok {
		return nil, eduerrors.NewInvalidRequestError(a.id, "unknown difficulty "+string(difficulty))
	}
	return map[string]any{
		"previous_difficulty": difficulty,
		"difficulty":          adjusted,
	}, nil
}

func (a *QuestionGeneratorAgent) batchGenerate(ctx context.Context, req Request) (map[string]any, error) {
	ids, err := uuidList(req.Payload["knowledge_point_ids"])
	if err != nil {
		return nil, eduerrors.NewInvalidRequestError(a.id, err.Error())
	}

	// Best effort across the batch: per-id failures are reported, not fatal.
	results := make([]map[string]any, 0, len(ids))
	for _, kpID := range ids {
		sub := Request{Action: "generate_questions", Payload: map[string]any{
			"knowledge_point_id": kpID.String(),
			"count":              payloadInt(req.Payload, "count_per_point", 1),
			"difficulty":         payloadOptionalString(req.Payload, "difficulty"),
		}}
		resp, err := a.generateForKnowledgePoint(ctx, sub)
		if err != nil {
			results = append(results, map[string]any{"knowledge_point_id": kpID, "error": err.Error()})
			continue
		}
		results = append(results, resp)
	}
	return map[string]any{"batches": results}, nil
}

// difficultyOrder is the progression used by adjust_difficulty.
var difficultyOrder = []types.DifficultyLevel{
	types.DifficultyEasy,
	types.DifficultyMedium,
	types.DifficultyHard,
}

func shiftDifficulty(current types.DifficultyLevel, direction string) (types.DifficultyLevel, bool) {
	for i, d := range difficultyOrder {
		if d != current {
			continue
		}
		switch direction {
		case "down":
			if i > 0 {
				return difficultyOrder[i-1], true
			}
			return current, true
		default:
			if i < len(difficultyOrder)-1 {
				return difficultyOrder[i+1], true
			}
			return current, true
		}
	}
	return current, false
}

func estimateDifficulty(level types.DifficultyLevel, importance float64) float64 {
	base := map[types.DifficultyLevel]float64{
		types.DifficultyEasy:   0.25,
		types.DifficultyMedium: 0.5,
		types.DifficultyHard:   0.75,
	}[level]
	return base + 0.1*importance
}

func uuidList(raw any) ([]uuid.UUID, error) {
	var out []uuid.UUID
	switch list := raw.(type) {
	case []string:
		for _, s := range list {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", s)
			}
			out = append(out, id)
		}
	case []any:
		for _, v := range list {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("ids must be strings")
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", s)
			}
			out = append(out, id)
		}
	default:
		return nil, fmt.Errorf("knowledge_point_ids must be a list")
	}
	return out, nil
}
