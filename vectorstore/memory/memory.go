// Package memory provides an in-process vector store backend.
// It performs brute-force scoring over all stored documents, which is exactly
// right for tests and small collections.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

// BackendName is the registry name of this backend.
const BackendName = "memory"

// Store is an in-memory vectorstore.Store implementation.
type Store struct {
	mu sync.RWMutex

	cfg       vectorstore.Config
	connected bool
	dimension int
	docs      map[string]vectorstore.Document
}

// New creates a disconnected in-memory store.
func New(cfg vectorstore.Config) (vectorstore.Store, error) {
	if cfg.DistanceMetric == "" {
		cfg.DistanceMetric = vectorstore.MetricCosine
	}
	switch cfg.DistanceMetric {
	case vectorstore.MetricCosine, vectorstore.MetricEuclidean, vectorstore.MetricDot:
	default:
		return nil, eduerrors.NewIndexError(BackendName, fmt.Sprintf("unsupported distance metric: %s", cfg.DistanceMetric))
	}
	return &Store{cfg: cfg}, nil
}

// Register adds this backend to the registry.
func Register(r *vectorstore.Registry) {
	r.Register(BackendName, New)
}

// Connect implements vectorstore.Store.
func (s *Store) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	s.connected = true
	if s.docs == nil {
		s.docs = make(map[string]vectorstore.Document)
	}
	// Documents survive a disconnect, so the established dimension must too.
	if s.dimension == 0 {
		s.dimension = s.cfg.Dimension
	}
	return nil
}

// Disconnect implements vectorstore.Store. It is safe to call repeatedly and
// in any prior error state.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// IsConnected implements vectorstore.Store.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Store) requireConnected() error {
	if !s.connected {
		return eduerrors.NewConnectionError(BackendName, "vector store is not connected")
	}
	return nil
}

// CreateIndex implements vectorstore.Store. Calling it with a different
// dimension on a non-empty collection fails rather than silently reindexing.
func (s *Store) CreateIndex(_ context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return err
	}
	if dimension <= 0 {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("invalid dimension: %d", dimension))
	}
	if s.dimension != 0 && s.dimension != dimension && len(s.docs) > 0 {
		return eduerrors.NewIndexError(BackendName,
			fmt.Sprintf("index dimension %d conflicts with existing dimension %d on non-empty collection", dimension, s.dimension))
	}
	s.dimension = dimension
	return nil
}

// DropIndex implements vectorstore.Store. The store stays connected.
func (s *Store) DropIndex(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return err
	}
	s.dimension = 0
	s.docs = make(map[string]vectorstore.Document)
	return nil
}

func (s *Store) checkDimension(doc vectorstore.Document) error {
	if len(doc.Embedding) == 0 {
		return eduerrors.NewInvalidRequestError(BackendName, "document has no embedding")
	}
	if s.dimension == 0 {
		s.dimension = len(doc.Embedding)
		return nil
	}
	if len(doc.Embedding) != s.dimension {
		return eduerrors.NewIndexError(BackendName,
			fmt.Sprintf("embedding dimension %d does not match index dimension %d", len(doc.Embedding), s.dimension))
	}
	return nil
}

// AddDocument implements vectorstore.Store.
func (s *Store) AddDocument(_ context.Context, doc vectorstore.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return "", err
	}
	if err := s.checkDimension(doc); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.docs[doc.ID] = doc
	return doc.ID, nil
}

// AddDocuments implements vectorstore.Store. The batch is best-effort: ids of
// successfully stored documents are returned alongside the first error.
func (s *Store) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	var firstErr error
	for _, doc := range docs {
		id, err := s.AddDocument(ctx, doc)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ids = append(ids, id)
	}
	return ids, firstErr
}

// UpdateDocument implements vectorstore.Store. Full replace; no upsert.
func (s *Store) UpdateDocument(_ context.Context, id string, doc vectorstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return err
	}
	if _, ok := s.docs[id]; !ok {
		return eduerrors.NewNotFoundError(BackendName, fmt.Sprintf("document not found: %s", id))
	}
	if err := s.checkDimension(doc); err != nil {
		return err
	}
	doc.ID = id
	s.docs[id] = doc
	return nil
}

// DeleteDocument implements vectorstore.Store. Absence is not an error.
func (s *Store) DeleteDocument(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return false, err
	}
	if _, ok := s.docs[id]; !ok {
		return false, nil
	}
	delete(s.docs, id)
	return true, nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(_ context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	if len(query.Embedding) == 0 {
		return nil, eduerrors.NewQueryError(BackendName, "query embedding is empty")
	}
	if query.Limit <= 0 {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("invalid limit: %d", query.Limit))
	}

	results := make([]vectorstore.SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		if !vectorstore.MatchesMetadata(doc.Metadata, query.FilterMetadata) {
			continue
		}
		score, distance, err := s.score(query.Embedding, doc.Embedding)
		if err != nil {
			return nil, eduerrors.NewQueryError(BackendName, err.Error())
		}
		if query.ScoreThreshold != nil && score < *query.ScoreThreshold {
			continue
		}
		d := distance
		results = append(results, vectorstore.SearchResult{Document: doc, Score: score, Distance: &d})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// GetDocument implements vectorstore.Store. Returns nil, nil when absent.
func (s *Store) GetDocument(_ context.Context, id string) (*vectorstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

// GetDocumentsByMetadata implements vectorstore.Store.
func (s *Store) GetDocumentsByMetadata(_ context.Context, filter map[string]any, limit int) ([]vectorstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	docs := make([]vectorstore.Document, 0)
	for _, doc := range s.docs {
		if !vectorstore.MatchesMetadata(doc.Metadata, filter) {
			continue
		}
		docs = append(docs, doc)
		if len(docs) >= limit {
			break
		}
	}
	return docs, nil
}

// Stats implements vectorstore.Store.
func (s *Store) Stats(_ context.Context) (vectorstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireConnected(); err != nil {
		return vectorstore.Stats{}, err
	}
	return vectorstore.Stats{
		TotalDocuments: len(s.docs),
		TotalVectors:   len(s.docs),
		Dimension:      s.dimension,
		BackendInfo: map[string]any{
			"backend":         BackendName,
			"distance_metric": string(s.cfg.DistanceMetric),
		},
	}, nil
}

// ClearCollection implements vectorstore.Store. The store stays connected and
// the index dimension is preserved.
func (s *Store) ClearCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(); err != nil {
		return err
	}
	s.docs = make(map[string]vectorstore.Document)
	return nil
}

// score computes (similarity score, raw distance) for the configured metric.
// For euclidean the score is 1/(1+distance) so that higher is always better.
func (s *Store) score(query, candidate []float32) (float32, float32, error) {
	switch s.cfg.DistanceMetric {
	case vectorstore.MetricEuclidean:
		d, err := l2Distance(query, candidate)
		if err != nil {
			return 0, 0, err
		}
		return float32(1.0 / (1.0 + d)), float32(d), nil
	case vectorstore.MetricDot:
		d, err := dotProduct(query, candidate)
		if err != nil {
			return 0, 0, err
		}
		return float32(d), float32(-d), nil
	default:
		sim, err := cosineSimilarity(query, candidate)
		if err != nil {
			return 0, 0, err
		}
		return float32(sim), float32(1.0 - sim), nil
	}
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("cosine similarity with zero-magnitude vector")
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

func l2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("L2 distance dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

func dotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dot product dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}
