// Package redisvec provides a Redis-backed vector store.
// Documents live in one hash per id under a key namespace, with an id set for
// enumeration. Scoring happens client-side, which keeps the backend compatible
// with plain Redis (and miniredis in tests) rather than requiring RediSearch.
package redisvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

// BackendName is the registry name of this backend.
const BackendName = "redis"

const (
	fieldContent   = "content"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"
)

// Store implements vectorstore.Store on top of Redis.
type Store struct {
	mu sync.RWMutex

	cfg       vectorstore.Config
	client    goredis.UniversalClient
	connected bool
	dimension int
}

// New creates a disconnected Redis store. ConnectionString is a Redis address
// ("localhost:6379") or a redis:// URL.
func New(cfg vectorstore.Config) (vectorstore.Store, error) {
	if cfg.ConnectionString == "" {
		return nil, eduerrors.NewInvalidRequestError(BackendName, "connection string is required")
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = vectorstore.DefaultConfig().CollectionName
	}
	if cfg.DistanceMetric == "" {
		cfg.DistanceMetric = vectorstore.MetricCosine
	}
	return &Store{cfg: cfg, dimension: cfg.Dimension}, nil
}

// Register adds this backend to the registry.
func Register(r *vectorstore.Registry) {
	r.Register(BackendName, New)
}

func (s *Store) docKey(id string) string {
	return fmt.Sprintf("%s:doc:%s", s.cfg.CollectionName, id)
}

func (s *Store) idsKey() string {
	return s.cfg.CollectionName + ":ids"
}

func (s *Store) dimKey() string {
	return s.cfg.CollectionName + ":dim"
}

// Connect implements vectorstore.Store.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	opts, err := goredis.ParseURL(s.cfg.ConnectionString)
	if err != nil {
		// Fall back to treating the string as a bare host:port address.
		opts = &goredis.Options{Addr: s.cfg.ConnectionString}
	}
	opts.DialTimeout = 5 * time.Second

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return eduerrors.NewConnectionError(BackendName, fmt.Sprintf("redis ping failed: %v", err))
	}

	if dim, err := client.Get(ctx, s.dimKey()).Int(); err == nil && dim > 0 {
		s.dimension = dim
	}

	s.client = client
	s.connected = true
	return nil
}

// Disconnect implements vectorstore.Store.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.connected = false
	return nil
}

// IsConnected implements vectorstore.Store.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Store) conn() (goredis.UniversalClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.client == nil {
		return nil, eduerrors.NewConnectionError(BackendName, "vector store is not connected")
	}
	return s.client, nil
}

// CreateIndex implements vectorstore.Store.
func (s *Store) CreateIndex(ctx context.Context, dimension int) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if dimension <= 0 {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("invalid dimension: %d", dimension))
	}

	s.mu.Lock()
	current := s.dimension
	s.mu.Unlock()

	if current != 0 && current != dimension {
		count, cerr := client.SCard(ctx, s.idsKey()).Result()
		if cerr == nil && count > 0 {
			return eduerrors.NewIndexError(BackendName,
				fmt.Sprintf("index dimension %d conflicts with existing dimension %d on non-empty collection", dimension, current))
		}
	}

	if err := client.Set(ctx, s.dimKey(), dimension, 0).Err(); err != nil {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("failed to persist dimension: %v", err))
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

// DropIndex implements vectorstore.Store. The store stays connected.
func (s *Store) DropIndex(ctx context.Context) error {
	if err := s.ClearCollection(ctx); err != nil {
		return err
	}
	client, err := s.conn()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, s.dimKey()).Err(); err != nil {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("failed to drop index: %v", err))
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Store) checkDimension(doc vectorstore.Document) error {
	if len(doc.Embedding) == 0 {
		return eduerrors.NewInvalidRequestError(BackendName, "document has no embedding")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
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
func (s *Store) AddDocument(ctx context.Context, doc vectorstore.Document) (string, error) {
	client, err := s.conn()
	if err != nil {
		return "", err
	}
	if err := s.checkDimension(doc); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", eduerrors.NewInternalError(BackendName, fmt.Sprintf("failed to encode metadata: %v", err))
	}
	embedding, err := json.Marshal(doc.Embedding)
	if err != nil {
		return "", eduerrors.NewInternalError(BackendName, fmt.Sprintf("failed to encode embedding: %v", err))
	}

	pipe := client.TxPipeline()
	pipe.HSet(ctx, s.docKey(doc.ID), map[string]any{
		fieldContent:   doc.Content,
		fieldMetadata:  string(metadata),
		fieldEmbedding: string(embedding),
	})
	pipe.SAdd(ctx, s.idsKey(), doc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", eduerrors.NewQueryError(BackendName, fmt.Sprintf("failed to store document: %v", err))
	}
	return doc.ID, nil
}

// AddDocuments implements vectorstore.Store. Best-effort: documents are stored
// one by one and ids of the stored ones are returned with the first error.
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

// UpdateDocument implements vectorstore.Store.
func (s *Store) UpdateDocument(ctx context.Context, id string, doc vectorstore.Document) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	exists, err := client.SIsMember(ctx, s.idsKey(), id).Result()
	if err != nil {
		return eduerrors.NewQueryError(BackendName, fmt.Sprintf("existence check failed: %v", err))
	}
	if !exists {
		return eduerrors.NewNotFoundError(BackendName, fmt.Sprintf("document not found: %s", id))
	}
	doc.ID = id
	_, err = s.AddDocument(ctx, doc)
	return err
}

// DeleteDocument implements vectorstore.Store.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	client, err := s.conn()
	if err != nil {
		return false, err
	}
	removed, err := client.SRem(ctx, s.idsKey(), id).Result()
	if err != nil {
		return false, eduerrors.NewQueryError(BackendName, fmt.Sprintf("delete failed: %v", err))
	}
	if removed == 0 {
		return false, nil
	}
	if err := client.Del(ctx, s.docKey(id)).Err(); err != nil {
		return false, eduerrors.NewQueryError(BackendName, fmt.Sprintf("delete failed: %v", err))
	}
	return true, nil
}

// Search implements vectorstore.Store. All candidate documents are fetched and
// scored client-side.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	if len(query.Embedding) == 0 {
		return nil, eduerrors.NewQueryError(BackendName, "query embedding is empty")
	}
	if query.Limit <= 0 {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("invalid limit: %d", query.Limit))
	}

	docs, err := s.allDocuments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]vectorstore.SearchResult, 0, len(docs))
	for _, doc := range docs {
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
func (s *Store) GetDocument(ctx context.Context, id string) (*vectorstore.Document, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	fields, err := client.HGetAll(ctx, s.docKey(id)).Result()
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("get failed: %v", err))
	}
	if len(fields) == 0 {
		return nil, nil
	}
	doc, err := decodeDocument(id, fields)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentsByMetadata implements vectorstore.Store.
func (s *Store) GetDocumentsByMetadata(ctx context.Context, filter map[string]any, limit int) ([]vectorstore.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.allDocuments(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]vectorstore.Document, 0)
	for _, doc := range docs {
		if !vectorstore.MatchesMetadata(doc.Metadata, filter) {
			continue
		}
		matched = append(matched, doc)
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// Stats implements vectorstore.Store.
func (s *Store) Stats(ctx context.Context) (vectorstore.Stats, error) {
	client, err := s.conn()
	if err != nil {
		return vectorstore.Stats{}, err
	}
	count, err := client.SCard(ctx, s.idsKey()).Result()
	if err != nil {
		return vectorstore.Stats{}, eduerrors.NewQueryError(BackendName, fmt.Sprintf("count failed: %v", err))
	}

	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()

	return vectorstore.Stats{
		TotalDocuments: int(count),
		TotalVectors:   int(count),
		Dimension:      dim,
		BackendInfo: map[string]any{
			"backend":    BackendName,
			"collection": s.cfg.CollectionName,
		},
	}, nil
}

// ClearCollection implements vectorstore.Store. The store stays connected and
// the index dimension is preserved.
func (s *Store) ClearCollection(ctx context.Context) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	ids, err := client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return eduerrors.NewQueryError(BackendName, fmt.Sprintf("failed to list documents: %v", err))
	}

	pipe := client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.docKey(id))
	}
	pipe.Del(ctx, s.idsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return eduerrors.NewQueryError(BackendName, fmt.Sprintf("failed to clear collection: %v", err))
	}
	return nil
}

func (s *Store) allDocuments(ctx context.Context) ([]vectorstore.Document, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	ids, err := client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("failed to list documents: %v", err))
	}

	docs := make([]vectorstore.Document, 0, len(ids))
	for _, id := range ids {
		fields, err := client.HGetAll(ctx, s.docKey(id)).Result()
		if err != nil {
			return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("get failed: %v", err))
		}
		if len(fields) == 0 {
			continue
		}
		doc, err := decodeDocument(id, fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeDocument(id string, fields map[string]string) (vectorstore.Document, error) {
	doc := vectorstore.Document{ID: id, Content: fields[fieldContent]}

	if raw := fields[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return vectorstore.Document{}, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt metadata for %s: %v", id, err))
		}
	}
	if raw := fields[fieldEmbedding]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Embedding); err != nil {
			return vectorstore.Document{}, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt embedding for %s: %v", id, err))
		}
	}
	return doc, nil
}

func (s *Store) score(query, candidate []float32) (float32, float32, error) {
	if len(query) != len(candidate) {
		return 0, 0, fmt.Errorf("dimension mismatch: %d vs %d", len(query), len(candidate))
	}

	var dot, nq, nc float64
	for i := range query {
		q := float64(query[i])
		c := float64(candidate[i])
		dot += q * c
		nq += q * q
		nc += c * c
	}

	switch s.cfg.DistanceMetric {
	case vectorstore.MetricDot:
		return float32(dot), float32(-dot), nil
	case vectorstore.MetricEuclidean:
		var sum float64
		for i := range query {
			d := float64(query[i]) - float64(candidate[i])
			sum += d * d
		}
		dist := math.Sqrt(sum)
		return float32(1.0 / (1.0 + dist)), float32(dist), nil
	default:
		if nq == 0 || nc == 0 {
			return 0, 0, fmt.Errorf("cosine similarity with zero-magnitude vector")
		}
		sim := dot / (math.Sqrt(nq) * math.Sqrt(nc))
		return float32(sim), float32(1.0 - sim), nil
	}
}
