package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// modelExtraction delegates extraction to a chat completion model and
// parses the structured JSON it returns. With no client configured every
// operation fails loudly rather than degrading to empty results.
type modelExtraction struct {
	chat ChatClient
}

// NewModelExtraction creates the model-backed extraction strategy.
// The chat client may be nil, in which case every call returns an
// unsupported input error.
func NewModelExtraction(chat ChatClient) ExtractionStrategy {
	return &modelExtraction{chat: chat}
}

func (s *modelExtraction) Name() string { return ExtractionModel }

const extractionSystemPrompt = `You are a curriculum analyst. Respond with a single JSON object and nothing else.`

type modelKnowledgePoint struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Chapter         string  `json:"chapter"`
	Section         string  `json:"section"`
	ImportanceScore float64 `json:"importance_score"`
}

type modelAbilityTarget struct {
	CognitiveLevel string `json:"cognitive_level"`
	Description    string `json:"description"`
}

type modelMistake struct {
	PatternName string  `json:"pattern_name"`
	Description string  `json:"description"`
	Frequency   float64 `json:"frequency"`
	Severity    float64 `json:"severity"`
}

func (s *modelExtraction) ExtractKnowledgePoints(ctx context.Context, sections []Section, textbookID uuid.UUID) ([]types.KnowledgePoint, error) {
	if s.chat == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no chat model configured")
	}
	if len(sections) == 0 {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no document sections to process")
	}

	var b strings.Builder
	b.WriteString("Extract the knowledge points taught by the following textbook sections. ")
	b.WriteString(`Return {"knowledge_points": [{"name", "description", "chapter", "section", "importance_score"}]}.` + "\n\n")
	for _, section := range sections {
		fmt.Fprintf(&b, "## %s (chapter %q, position %d)\n%s\n\n", section.Title, section.Chapter, section.Position, section.Content)
	}

	raw, err := s.chat.Complete(ctx, extractionSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		KnowledgePoints []modelKnowledgePoint `json:"knowledge_points"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), fmt.Sprintf("model returned malformed JSON: %v", err))
	}
	if len(parsed.KnowledgePoints) == 0 {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "model returned no knowledge points")
	}

	points := make([]types.KnowledgePoint, 0, len(parsed.KnowledgePoints))
	for _, mp := range parsed.KnowledgePoints {
		if strings.TrimSpace(mp.Name) == "" {
			continue
		}
		points = append(points, types.KnowledgePoint{
			ID:              uuid.New(),
			TextbookID:      textbookID,
			Name:            strings.TrimSpace(mp.Name),
			Description:     strings.TrimSpace(mp.Description),
			Chapter:         mp.Chapter,
			Section:         mp.Section,
			ImportanceScore: clamp01(mp.ImportanceScore),
			CreatedAt:       time.Now().UTC(),
		})
	}
	if len(points) == 0 {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "model returned only unnamed knowledge points")
	}
	return points, nil
}

func (s *modelExtraction) ExtractAbilityTargets(ctx context.Context, kp types.KnowledgePoint, ec ExtractionContext) ([]types.AbilityTarget, error) {
	if s.chat == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no chat model configured")
	}

	prompt := fmt.Sprintf(
		`For the %s knowledge point %q (%s), grade level %q, list the ability targets students should reach. Return {"ability_targets": [{"cognitive_level", "description"}]} where cognitive_level is one of %v.`,
		ec.Subject, kp.Name, kp.Description, ec.GradeLevel, types.CognitiveLevels(),
	)
	raw, err := s.chat.Complete(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AbilityTargets []modelAbilityTarget `json:"ability_targets"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), fmt.Sprintf("model returned malformed JSON: %v", err))
	}

	targets := make([]types.AbilityTarget, 0, len(parsed.AbilityTargets))
	for _, mt := range parsed.AbilityTargets {
		level, ok := parseCognitiveLevel(mt.CognitiveLevel)
		if !ok {
			continue
		}
		targets = append(targets, types.AbilityTarget{
			ID:               uuid.New(),
			KnowledgePointID: kp.ID,
			CognitiveLevel:   level,
			Description:      strings.TrimSpace(mt.Description),
			CreatedAt:        time.Now().UTC(),
		})
	}
	return targets, nil
}

func (s *modelExtraction) ExtractCommonMistakes(ctx context.Context, kp types.KnowledgePoint, ec ExtractionContext) ([]types.CommonMistake, error) {
	if s.chat == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no chat model configured")
	}

	prompt := fmt.Sprintf(
		`For the %s knowledge point %q (%s), list the mistakes students commonly make. Return {"mistakes": [{"pattern_name", "description", "frequency", "severity"}]} with frequency and severity in [0,1].`,
		ec.Subject, kp.Name, kp.Description,
	)
	raw, err := s.chat.Complete(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Mistakes []modelMistake `json:"mistakes"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), fmt.Sprintf("model returned malformed JSON: %v", err))
	}

	mistakes := make([]types.CommonMistake, 0, len(parsed.Mistakes))
	for _, mm := range parsed.Mistakes {
		if strings.TrimSpace(mm.PatternName) == "" {
			continue
		}
		mistakes = append(mistakes, types.CommonMistake{
			ID:               uuid.New(),
			KnowledgePointID: kp.ID,
			PatternName:      strings.TrimSpace(mm.PatternName),
			Description:      strings.TrimSpace(mm.Description),
			Frequency:        clamp01(mm.Frequency),
			Severity:         clamp01(mm.Severity),
			CreatedAt:        time.Now().UTC(),
		})
	}
	return mistakes, nil
}

// stripFences removes a markdown code fence that chat models often wrap
// around JSON output.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseCognitiveLevel(raw string) (types.CognitiveLevel, bool) {
	candidate := types.CognitiveLevel(strings.ToLower(strings.TrimSpace(raw)))
	for _, level := range types.CognitiveLevels() {
		if candidate == level {
			return level, true
		}
	}
	return "", false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
