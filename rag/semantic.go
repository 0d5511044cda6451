package rag

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/vectorstore"
)

// semanticRetrieval embeds the query and searches the vector store where
// ingested knowledge points are mirrored as documents.
type semanticRetrieval struct {
	embedder Embedder
	store    vectorstore.Store
}

// NewSemanticRetrieval creates the embedding-based retrieval strategy.
// Either dependency may be nil; calls then fail with an unsupported-input
// error.
func NewSemanticRetrieval(embedder Embedder, store vectorstore.Store) RetrievalStrategy {
	return &semanticRetrieval{embedder: embedder, store: store}
}

func (s *semanticRetrieval) Name() string { return RetrievalSemantic }

func (s *semanticRetrieval) RetrieveRelevantKnowledge(ctx context.Context, query string, opts RetrievalOptions) (*ContextBundle, error) {
	if s.embedder == nil || s.store == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no embedder or vector store configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, eduerrors.NewInvalidRequestError(s.Name(), "query must not be empty")
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, eduerrors.NewInternalError(s.Name(), "embedder returned unexpected vector count")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	filter := make(map[string]any, len(opts.Filters)+1)
	for k, v := range opts.Filters {
		filter[k] = v
	}
	if opts.TextbookID != nil {
		filter[MetaTextbookID] = opts.TextbookID.String()
	}
	if len(filter) == 0 {
		filter = nil
	}

	results, err := s.store.Search(ctx, vectorstore.SearchQuery{
		Embedding:      vectors[0],
		Limit:          limit,
		FilterMetadata: filter,
	})
	if err != nil {
		return nil, err
	}

	wanted := make(map[uuid.UUID]bool, len(opts.KnowledgePointIDs))
	for _, id := range opts.KnowledgePointIDs {
		wanted[id] = true
	}

	items := make([]ScoredKnowledgePoint, 0, len(results))
	for _, res := range results {
		kp, ok := knowledgePointFromDocument(res.Document)
		if !ok {
			continue
		}
		if len(wanted) > 0 && !wanted[kp.ID] {
			continue
		}
		items = append(items, ScoredKnowledgePoint{KnowledgePoint: kp, Score: float64(res.Score)})
	}
	sortScored(items)

	return &ContextBundle{
		Query:    query,
		Strategy: s.Name(),
		Items:    items,
		Diagnostics: map[string]any{
			"vector_hits": len(results),
			"dimension":   len(vectors[0]),
		},
	}, nil
}

func (s *semanticRetrieval) CalculateRelevanceScores(ctx context.Context, query string, items []types.KnowledgePoint) (map[uuid.UUID]float64, error) {
	if s.embedder == nil {
		return nil, eduerrors.NewUnsupportedInputError(s.Name(), "no embedder configured")
	}
	if len(items) == 0 {
		return map[uuid.UUID]float64{}, nil
	}

	inputs := make([]string, 0, len(items)+1)
	inputs = append(inputs, query)
	for _, kp := range items {
		inputs = append(inputs, kp.Name+"\n"+kp.Description)
	}
	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, eduerrors.NewInternalError(s.Name(), "embedder returned unexpected vector count")
	}

	scores := make(map[uuid.UUID]float64, len(items))
	for i, kp := range items {
		scores[kp.ID] = float64(cosineSimilarity(vectors[0], vectors[i+1]))
	}
	return scores, nil
}

func (s *semanticRetrieval) RankResults(bundle *ContextBundle, criteria RankingCriteria) *ContextBundle {
	return rankByWeights(bundle, criteria)
}

// knowledgePointFromDocument rebuilds a knowledge point from the document
// written during ingestion. Documents without a knowledge point id are
// foreign to this pipeline and are skipped.
func knowledgePointFromDocument(doc vectorstore.Document) (types.KnowledgePoint, bool) {
	rawID, ok := doc.Metadata[MetaKnowledgePointID].(string)
	if !ok {
		return types.KnowledgePoint{}, false
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return types.KnowledgePoint{}, false
	}

	kp := types.KnowledgePoint{ID: id, Description: doc.Content}
	if name, ok := doc.Metadata["name"].(string); ok {
		kp.Name = name
	}
	if chapter, ok := doc.Metadata[MetaChapter].(string); ok {
		kp.Chapter = chapter
	}
	if rawTextbook, ok := doc.Metadata[MetaTextbookID].(string); ok {
		if tid, err := uuid.Parse(rawTextbook); err == nil {
			kp.TextbookID = tid
		}
	}
	switch imp := doc.Metadata["importance_score"].(type) {
	case float64:
		kp.ImportanceScore = imp
	case float32:
		kp.ImportanceScore = float64(imp)
	}
	return kp, true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}
