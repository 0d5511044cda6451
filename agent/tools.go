package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/internal/store"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/rag"
)

// RAGTool exposes retrieval as a directly invocable tool.
type RAGTool struct {
	retrieval rag.RetrievalStrategy
}

// NewRAGTool wraps a retrieval strategy.
func NewRAGTool(retrieval rag.RetrievalStrategy) *RAGTool {
	return &RAGTool{retrieval: retrieval}
}

func (t *RAGTool) Name() string        { return "rag_tool" }
func (t *RAGTool) Description() string { return "Retrieves relevant knowledge for a query" }
func (t *RAGTool) Version() string     { return "1.0.0" }

func (t *RAGTool) Capabilities() map[string]any {
	return map[string]any{"strategy": t.retrieval.Name()}
}

func (t *RAGTool) Schema() map[string]any {
	return map[string]any{
		"query":       "string, required",
		"textbook_id": "uuid string, optional",
		"limit":       "int, optional",
	}
}

func (t *RAGTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := payloadString(params, "query")
	if err != nil {
		return nil, err
	}

	opts := rag.RetrievalOptions{Limit: payloadInt(params, "limit", 0)}
	if raw := payloadOptionalString(params, "textbook_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, eduerrors.NewInvalidRequestError(t.Name(), "textbook_id must be a UUID")
		}
		opts.TextbookID = &id
	}

	bundle, err := t.retrieval.RetrieveRelevantKnowledge(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"query":       bundle.Query,
		"strategy":    bundle.Strategy,
		"items":       bundle.Items,
		"diagnostics": bundle.Diagnostics,
	}, nil
}

// AnalyticsReader aggregates practice history. The persistence gateway
// implements it.
type AnalyticsReader interface {
	PerformanceSummary(ctx context.Context, studentID uuid.UUID) (*store.StudentPerformance, error)
	MistakeFrequency(ctx context.Context, studentID uuid.UUID) ([]store.MistakeCount, error)
}

// AnalyticsTool reports a student's performance and mistake frequencies.
type AnalyticsTool struct {
	analytics AnalyticsReader
}

// NewAnalyticsTool wraps an analytics reader.
func NewAnalyticsTool(analytics AnalyticsReader) *AnalyticsTool {
	return &AnalyticsTool{analytics: analytics}
}

func (t *AnalyticsTool) Name() string        { return "analytics_tool" }
func (t *AnalyticsTool) Description() string { return "Summarizes student performance and mistakes" }
func (t *AnalyticsTool) Version() string     { return "1.0.0" }

func (t *AnalyticsTool) Capabilities() map[string]any {
	return map[string]any{"reports": []string{"performance", "mistakes"}}
}

func (t *AnalyticsTool) Schema() map[string]any {
	return map[string]any{
		"student_id": "uuid string, required",
		"report":     "performance | mistakes, default performance",
	}
}

func (t *AnalyticsTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	studentID, err := payloadUUID(params, "student_id")
	if err != nil {
		return nil, err
	}

	switch report := payloadOptionalString(params, "report"); report {
	case "", "performance":
		perf, err := t.analytics.PerformanceSummary(ctx, studentID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"report": "performance", "performance": perf}, nil
	case "mistakes":
		mistakes, err := t.analytics.MistakeFrequency(ctx, studentID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"report": "mistakes", "mistakes": mistakes}, nil
	default:
		return nil, eduerrors.NewInvalidRequestError(t.Name(), "unknown report "+report)
	}
}

// AssessmentTool exposes answer evaluation as a tool.
type AssessmentTool struct {
	agent *AssessmentAgent
}

// NewAssessmentTool wraps the assessment agent's evaluation logic.
func NewAssessmentTool(questions QuestionReader) *AssessmentTool {
	return &AssessmentTool{agent: NewAssessmentAgent(questions)}
}

func (t *AssessmentTool) Name() string        { return "assessment_tool" }
func (t *AssessmentTool) Description() string { return "Evaluates an answer against a stored question" }
func (t *AssessmentTool) Version() string     { return "1.0.0" }

func (t *AssessmentTool) Capabilities() map[string]any {
	return map[string]any{"grading": "exact_match", "mistake_mapping": true}
}

func (t *AssessmentTool) Schema() map[string]any {
	return map[string]any{
		"question_id": "uuid string, required",
		"answer":      "string, required",
	}
}

func (t *AssessmentTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return t.agent.Process(ctx, Request{Action: "evaluate_answer", Payload: params})
}

// QuestionTool exposes question generation as a tool.
type QuestionTool struct {
	agent *QuestionGeneratorAgent
}

// NewQuestionTool wraps the question generator.
func NewQuestionTool(knowledge KnowledgeReader) *QuestionTool {
	return &QuestionTool{agent: NewQuestionGeneratorAgent(knowledge)}
}

func (t *QuestionTool) Name() string        { return "question_tool" }
func (t *QuestionTool) Description() string { return "Generates questions for a knowledge point" }
func (t *QuestionTool) Version() string     { return "1.0.0" }

func (t *QuestionTool) Capabilities() map[string]any {
	return map[string]any{"distractor_source": "common_mistakes"}
}

func (t *QuestionTool) Schema() map[string]any {
	return map[string]any{
		"knowledge_point_id": "uuid string, required",
		"count":              "int, default 1",
		"difficulty":         "easy | medium | hard, default medium",
	}
}

func (t *QuestionTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return t.agent.Process(ctx, Request{Action: "generate_questions", Payload: params})
}
