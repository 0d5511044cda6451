package rag

import (
	"log/slog"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

// Extraction strategy type names.
const (
	ExtractionRuleBased = "rule_based"
	ExtractionModel     = "model"
	ExtractionHybrid    = "hybrid"
)

// Retrieval strategy type names.
const (
	RetrievalSemantic    = "semantic"
	RetrievalKeyword     = "keyword"
	RetrievalHybrid      = "hybrid"
	RetrievalEducational = "educational"
)

// Deps holds everything strategies may need. A nil dependency disables the
// strategies that require it: the factory still constructs them, and the
// strategy fails loudly at call time with an unsupported-input error.
type Deps struct {
	Chat        ChatClient
	Embedder    Embedder
	VectorStore vectorstore.Store
	Knowledge   KnowledgeSource
	Logger      *slog.Logger
}

// Factory constructs extraction and retrieval strategies by type name.
// It is an explicit object passed by reference; there is no package-level
// default instance.
type Factory struct {
	deps Deps
}

// NewFactory creates a strategy factory with the given dependencies.
func NewFactory(deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps}
}

// CreateExtractionStrategy builds an extraction strategy.
// An unrecognized type fails with an unknown-strategy error naming the type;
// the factory never silently returns a default.
func (f *Factory) CreateExtractionStrategy(strategyType string) (ExtractionStrategy, error) {
	switch strategyType {
	case ExtractionRuleBased:
		return NewRuleBasedExtraction(), nil
	case ExtractionModel:
		return NewModelExtraction(f.deps.Chat), nil
	case ExtractionHybrid:
		return NewHybridExtraction(NewModelExtraction(f.deps.Chat), NewRuleBasedExtraction()), nil
	default:
		return nil, eduerrors.NewUnknownStrategyError(strategyType)
	}
}

// CreateRetrievalStrategy builds a retrieval strategy.
// Same unknown-type contract as CreateExtractionStrategy.
func (f *Factory) CreateRetrievalStrategy(strategyType string) (RetrievalStrategy, error) {
	switch strategyType {
	case RetrievalSemantic:
		return NewSemanticRetrieval(f.deps.Embedder, f.deps.VectorStore), nil
	case RetrievalKeyword:
		return NewKeywordRetrieval(f.deps.Knowledge), nil
	case RetrievalHybrid:
		semantic := NewSemanticRetrieval(f.deps.Embedder, f.deps.VectorStore)
		keyword := NewKeywordRetrieval(f.deps.Knowledge)
		return NewHybridRetrieval(semantic, keyword), nil
	case RetrievalEducational:
		return NewEducationalRetrieval(f.deps.Knowledge), nil
	default:
		return nil, eduerrors.NewUnknownStrategyError(strategyType)
	}
}

// AvailableExtractionStrategies returns all extraction strategy type names.
func AvailableExtractionStrategies() []string {
	return []string{ExtractionRuleBased, ExtractionModel, ExtractionHybrid}
}

// AvailableRetrievalStrategies returns all retrieval strategy type names.
func AvailableRetrievalStrategies() []string {
	return []string{RetrievalSemantic, RetrievalKeyword, RetrievalHybrid, RetrievalEducational}
}
