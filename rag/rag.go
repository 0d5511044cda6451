// Package rag decouples how knowledge is pulled out of a document and how a
// query is matched against stored knowledge from the call sites, so strategies
// can be swapped without touching ingestion or query code.
package rag

import (
	"context"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/pkg/types"
)

// Section is one segmented unit of an uploaded document, in document order.
type Section struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Chapter  string         `json:"chapter,omitempty"`
	Position int            `json:"position"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExtractionContext carries ambient information for per-knowledge-point
// extraction calls.
type ExtractionContext struct {
	TextbookID uuid.UUID         `json:"textbook_id"`
	Subject    types.SubjectArea `json:"subject,omitempty"`
	GradeLevel string            `json:"grade_level,omitempty"`
}

// ExtractionStrategy turns document sections into knowledge points,
// ability targets, and common mistakes.
//
// A strategy that cannot process its input must fail with an
// unsupported-input error rather than silently returning an empty list, so
// the ingestion pipeline can distinguish "nothing found" from "cannot process".
// Every produced knowledge point carries a back-reference to the textbook.
type ExtractionStrategy interface {
	Name() string
	ExtractKnowledgePoints(ctx context.Context, sections []Section, textbookID uuid.UUID) ([]types.KnowledgePoint, error)
	ExtractAbilityTargets(ctx context.Context, kp types.KnowledgePoint, ec ExtractionContext) ([]types.AbilityTarget, error)
	ExtractCommonMistakes(ctx context.Context, kp types.KnowledgePoint, ec ExtractionContext) ([]types.CommonMistake, error)
}

// ScoredKnowledgePoint pairs a knowledge point with a strategy-assigned
// relevance score. Scores are internally consistent per strategy but carry
// no universal scale across strategies.
type ScoredKnowledgePoint struct {
	KnowledgePoint types.KnowledgePoint `json:"knowledge_point"`
	Score          float64              `json:"score"`
}

// ContextBundle is the structured result of a retrieval call: matched
// knowledge plus strategy-specific diagnostics.
type ContextBundle struct {
	Query       string                 `json:"query"`
	Strategy    string                 `json:"strategy"`
	Items       []ScoredKnowledgePoint `json:"items"`
	Diagnostics map[string]any         `json:"diagnostics,omitempty"`
}

// RetrievalOptions restricts the candidate set of a retrieval call.
// Nil TextbookID and empty KnowledgePointIDs mean unscoped search.
type RetrievalOptions struct {
	TextbookID        *uuid.UUID     `json:"textbook_id,omitempty"`
	KnowledgePointIDs []uuid.UUID    `json:"knowledge_point_ids,omitempty"`
	Filters           map[string]any `json:"filters,omitempty"`
	Limit             int            `json:"limit,omitempty"`
}

// RankingCriteria parameterizes RankResults. Zero weights fall back to the
// strategy's defaults.
type RankingCriteria struct {
	RelevanceWeight  float64              `json:"relevance_weight,omitempty"`
	ImportanceWeight float64              `json:"importance_weight,omitempty"`
	PreferLevel      types.CognitiveLevel `json:"prefer_level,omitempty"`
}

// RetrievalStrategy matches a query against stored knowledge.
// RankResults must be deterministic given identical inputs.
type RetrievalStrategy interface {
	Name() string
	RetrieveRelevantKnowledge(ctx context.Context, query string, opts RetrievalOptions) (*ContextBundle, error)
	CalculateRelevanceScores(ctx context.Context, query string, items []types.KnowledgePoint) (map[uuid.UUID]float64, error)
	RankResults(bundle *ContextBundle, criteria RankingCriteria) *ContextBundle
}

// KnowledgeSource lists candidate knowledge points for non-vector strategies.
// The persistence gateway implements it.
type KnowledgeSource interface {
	ListKnowledgePoints(ctx context.Context, textbookID *uuid.UUID, ids []uuid.UUID) ([]types.KnowledgePoint, error)
}

// ChatClient is the LLM completion surface the model-based strategies need.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder turns text into fixed-dimension vectors for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Metadata keys used when knowledge points are mirrored into the vector store
// during ingestion.
const (
	MetaKnowledgePointID = "knowledge_point_id"
	MetaTextbookID       = "textbook_id"
	MetaSubject          = "subject"
	MetaChapter          = "chapter"
)
