package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

func TestFactory_CreateExtractionStrategy_AllTypes(t *testing.T) {
	f := NewFactory(Deps{})
	for _, name := range AvailableExtractionStrategies() {
		strategy, err := f.CreateExtractionStrategy(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, strategy.Name())
	}
}

func TestFactory_CreateExtractionStrategy_UnknownType(t *testing.T) {
	f := NewFactory(Deps{})
	strategy, err := f.CreateExtractionStrategy("unknown_x")
	require.Error(t, err)
	assert.Nil(t, strategy)
	assert.Contains(t, err.Error(), "unknown_x")
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeUnknownStrategy))
}

func TestFactory_CreateRetrievalStrategy_AllTypes(t *testing.T) {
	f := NewFactory(Deps{})
	for _, name := range AvailableRetrievalStrategies() {
		strategy, err := f.CreateRetrievalStrategy(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, strategy.Name())
	}
}

func TestFactory_CreateRetrievalStrategy_UnknownType(t *testing.T) {
	f := NewFactory(Deps{})
	strategy, err := f.CreateRetrievalStrategy("unknown_x")
	require.Error(t, err)
	assert.Nil(t, strategy)
	assert.Contains(t, err.Error(), "unknown_x")
}

func TestFactory_ModelStrategyWithoutClient_FailsLoudly(t *testing.T) {
	f := NewFactory(Deps{})
	strategy, err := f.CreateExtractionStrategy(ExtractionModel)
	require.NoError(t, err)

	sections := []Section{{Title: "Fractions", Content: "A fraction is a part of a whole."}}
	points, err := strategy.ExtractKnowledgePoints(context.Background(), sections, uuid.New())
	require.Error(t, err)
	assert.Empty(t, points)
	assert.True(t, eduerrors.IsUnsupportedInput(err))
}

func TestFactory_HybridExtractionPropagatesDelegateFailure(t *testing.T) {
	// The hybrid composes the model strategy first. With no chat client the
	// whole call must fail rather than fall back to rule-based output only.
	f := NewFactory(Deps{})
	strategy, err := f.CreateExtractionStrategy(ExtractionHybrid)
	require.NoError(t, err)

	sections := []Section{{Title: "Fractions", Content: "A fraction is a part of a whole."}}
	_, err = strategy.ExtractKnowledgePoints(context.Background(), sections, uuid.New())
	require.Error(t, err)
	assert.True(t, eduerrors.IsUnsupportedInput(err))
}
