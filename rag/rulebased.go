package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// ruleBasedExtraction extracts knowledge using predefined rules over
// structured section text: headings become candidate concepts, definition
// sentences refine descriptions, and cue phrases surface mistakes.
type ruleBasedExtraction struct{}

// NewRuleBasedExtraction creates the rule-based extraction strategy.
func NewRuleBasedExtraction() ExtractionStrategy {
	return &ruleBasedExtraction{}
}

func (s *ruleBasedExtraction) Name() string { return ExtractionRuleBased }

// definitionCues mark sentences that define a concept.
var definitionCues = []string{
	" is defined as ",
	" is a ",
	" is an ",
	" is the ",
	" refers to ",
	" means ",
	" are called ",
	" is known as ",
}

// importanceCues bump the importance score of a section's concept.
var importanceCues = []string{
	"important",
	"key concept",
	"fundamental",
	"essential",
	"remember",
	"theorem",
	"definition",
}

func (s *ruleBasedExtraction) ExtractKnowledgePoints(_ context.Context, sections []Section, textbookID uuid.UUID) ([]types.KnowledgePoint, error) {
	if len(sections) == 0 {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no document sections to process")
	}

	points := make([]types.KnowledgePoint, 0, len(sections))
	for _, section := range sections {
		if strings.TrimSpace(section.Title) == "" && strings.TrimSpace(section.Content) == "" {
			continue
		}

		name := strings.TrimSpace(section.Title)
		if name == "" {
			name = firstSentence(section.Content)
		}
		if name == "" {
			continue
		}

		points = append(points, types.KnowledgePoint{
			ID:              uuid.New(),
			TextbookID:      textbookID,
			Name:            name,
			Description:     bestDefinition(section.Content),
			Chapter:         section.Chapter,
			Section:         fmt.Sprintf("%d", section.Position),
			ImportanceScore: importanceOf(section),
			CreatedAt:       time.Now().UTC(),
		})
	}

	if len(points) == 0 {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "sections contain no titled or definitional content")
	}
	return points, nil
}

// verbLevels maps instruction verbs to the cognitive level they exercise.
var verbLevels = []struct {
	verb  string
	level types.CognitiveLevel
}{
	{"define", types.CognitiveMemory},
	{"list", types.CognitiveMemory},
	{"recall", types.CognitiveMemory},
	{"explain", types.CognitiveUnderstanding},
	{"describe", types.CognitiveUnderstanding},
	{"summarize", types.CognitiveUnderstanding},
	{"apply", types.CognitiveApplication},
	{"solve", types.CognitiveApplication},
	{"calculate", types.CognitiveApplication},
	{"use", types.CognitiveApplication},
	{"compare", types.CognitiveAnalysis},
	{"analyze", types.CognitiveAnalysis},
	{"classify", types.CognitiveAnalysis},
	{"evaluate", types.CognitiveEvaluation},
	{"justify", types.CognitiveEvaluation},
	{"design", types.CognitiveCreation},
	{"construct", types.CognitiveCreation},
}

func (s *ruleBasedExtraction) ExtractAbilityTargets(_ context.Context, kp types.KnowledgePoint, _ ExtractionContext) ([]types.AbilityTarget, error) {
	if kp.Name == "" {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "knowledge point has no name")
	}

	text := strings.ToLower(kp.Name + " " + kp.Description)
	seen := make(map[types.CognitiveLevel]bool)
	targets := make([]types.AbilityTarget, 0, 2)
	for _, vl := range verbLevels {
		if !strings.Contains(text, vl.verb) || seen[vl.level] {
			continue
		}
		seen[vl.level] = true
		targets = append(targets, types.AbilityTarget{
			ID:               uuid.New(),
			KnowledgePointID: kp.ID,
			CognitiveLevel:   vl.level,
			Description:      fmt.Sprintf("%s: %s", vl.level, kp.Name),
			CreatedAt:        time.Now().UTC(),
		})
	}

	// Every concept carries at least the baseline recall and comprehension targets.
	for _, level := range []types.CognitiveLevel{types.CognitiveMemory, types.CognitiveUnderstanding} {
		if seen[level] {
			continue
		}
		targets = append(targets, types.AbilityTarget{
			ID:               uuid.New(),
			KnowledgePointID: kp.ID,
			CognitiveLevel:   level,
			Description:      fmt.Sprintf("%s: %s", level, kp.Name),
			CreatedAt:        time.Now().UTC(),
		})
	}
	return targets, nil
}

// mistakeCues mark sentences that describe error patterns.
var mistakeCues = []string{
	"common mistake",
	"common error",
	"often confuse",
	"do not confuse",
	"be careful",
	"watch out",
	"a frequent error",
	"students often",
}

func (s *ruleBasedExtraction) ExtractCommonMistakes(_ context.Context, kp types.KnowledgePoint, _ ExtractionContext) ([]types.CommonMistake, error) {
	if kp.Name == "" {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "knowledge point has no name")
	}

	mistakes := make([]types.CommonMistake, 0, 2)
	for _, sentence := range splitSentences(kp.Description) {
		lower := strings.ToLower(sentence)
		for _, cue := range mistakeCues {
			if !strings.Contains(lower, cue) {
				continue
			}
			mistakes = append(mistakes, types.CommonMistake{
				ID:               uuid.New(),
				KnowledgePointID: kp.ID,
				PatternName:      fmt.Sprintf("%s: flagged pitfall", kp.Name),
				Description:      strings.TrimSpace(sentence),
				Frequency:        0.3,
				Severity:         0.5,
				CreatedAt:        time.Now().UTC(),
			})
			break
		}
	}

	// Generic confusion pattern as a fallback, so downstream distractor
	// generation always has at least one seed per concept.
	if len(mistakes) == 0 {
		mistakes = append(mistakes, types.CommonMistake{
			ID:               uuid.New(),
			KnowledgePointID: kp.ID,
			PatternName:      fmt.Sprintf("%s: concept confusion", kp.Name),
			Description:      fmt.Sprintf("Confusing %s with a related concept from the same chapter", kp.Name),
			Frequency:        0.2,
			Severity:         0.4,
			CreatedAt:        time.Now().UTC(),
		})
	}
	return mistakes, nil
}

func firstSentence(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	s := strings.TrimSpace(sentences[0])
	const maxLen = 120
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

func bestDefinition(content string) string {
	for _, sentence := range splitSentences(content) {
		lower := strings.ToLower(sentence)
		for _, cue := range definitionCues {
			if strings.Contains(lower, cue) {
				return strings.TrimSpace(sentence)
			}
		}
	}
	return firstSentence(content)
}

func importanceOf(section Section) float64 {
	score := 0.5
	lower := strings.ToLower(section.Title + " " + section.Content)
	for _, cue := range importanceCues {
		if strings.Contains(lower, cue) {
			score += 0.1
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
