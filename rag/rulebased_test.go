package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

func TestRuleBasedExtraction_ExtractKnowledgePoints(t *testing.T) {
	s := NewRuleBasedExtraction()
	textbookID := uuid.New()
	sections := []Section{
		{
			Title:    "Photosynthesis",
			Content:  "Photosynthesis is the process by which plants convert light into energy. This is an important key concept.",
			Chapter:  "3",
			Position: 1,
		},
		{
			Title:    "Cellular Respiration",
			Content:  "Cellular respiration refers to the breakdown of glucose.",
			Chapter:  "3",
			Position: 2,
		},
	}

	points, err := s.ExtractKnowledgePoints(context.Background(), sections, textbookID)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "Photosynthesis", points[0].Name)
	assert.Equal(t, textbookID, points[0].TextbookID)
	assert.Contains(t, points[0].Description, "Photosynthesis is the process")
	assert.Greater(t, points[0].ImportanceScore, 0.5)
	assert.Equal(t, "Cellular Respiration", points[1].Name)
	assert.NotEqual(t, points[0].ID, points[1].ID)
}

func TestRuleBasedExtraction_EmptySections(t *testing.T) {
	s := NewRuleBasedExtraction()
	_, err := s.ExtractKnowledgePoints(context.Background(), nil, uuid.New())
	require.Error(t, err)
	assert.True(t, eduerrors.IsUnsupportedInput(err))

	_, err = s.ExtractKnowledgePoints(context.Background(), []Section{{Title: " ", Content: "\n"}}, uuid.New())
	require.Error(t, err)
	assert.True(t, eduerrors.IsUnsupportedInput(err))
}

func TestRuleBasedExtraction_ExtractAbilityTargets(t *testing.T) {
	s := NewRuleBasedExtraction()
	kp := types.KnowledgePoint{
		ID:          uuid.New(),
		Name:        "Quadratic Equations",
		Description: "Students learn to solve quadratic equations and compare solution methods.",
	}

	targets, err := s.ExtractAbilityTargets(context.Background(), kp, ExtractionContext{})
	require.NoError(t, err)

	levels := make(map[types.CognitiveLevel]bool)
	for _, at := range targets {
		assert.Equal(t, kp.ID, at.KnowledgePointID)
		assert.False(t, levels[at.CognitiveLevel], "duplicate level %s", at.CognitiveLevel)
		levels[at.CognitiveLevel] = true
	}
	// "solve" and "compare" plus the baseline recall and comprehension targets.
	assert.True(t, levels[types.CognitiveApplication])
	assert.True(t, levels[types.CognitiveAnalysis])
	assert.True(t, levels[types.CognitiveMemory])
	assert.True(t, levels[types.CognitiveUnderstanding])
}

func TestRuleBasedExtraction_ExtractCommonMistakes(t *testing.T) {
	s := NewRuleBasedExtraction()
	kp := types.KnowledgePoint{
		ID:          uuid.New(),
		Name:        "Sign Rules",
		Description: "A common mistake is dropping the negative sign when expanding. Practice carefully.",
	}

	mistakes, err := s.ExtractCommonMistakes(context.Background(), kp, ExtractionContext{})
	require.NoError(t, err)
	require.Len(t, mistakes, 1)
	assert.Equal(t, kp.ID, mistakes[0].KnowledgePointID)
	assert.Contains(t, mistakes[0].Description, "dropping the negative sign")
}

func TestRuleBasedExtraction_CommonMistakesFallback(t *testing.T) {
	s := NewRuleBasedExtraction()
	kp := types.KnowledgePoint{ID: uuid.New(), Name: "Osmosis", Description: "Movement of water across a membrane."}

	mistakes, err := s.ExtractCommonMistakes(context.Background(), kp, ExtractionContext{})
	require.NoError(t, err)
	require.NotEmpty(t, mistakes)
	assert.Contains(t, mistakes[0].PatternName, "Osmosis")
}
