// Package qdrant provides a Qdrant-backed vector store using the official
// gRPC client.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

// BackendName is the registry name of this backend.
const BackendName = "qdrant"

const contentPayloadKey = "content"

// Store implements vectorstore.Store for Qdrant.
type Store struct {
	mu sync.RWMutex

	cfg       vectorstore.Config
	client    *qdrant.Client
	connected bool
	dimension int
}

// New creates a disconnected Qdrant store.
func New(cfg vectorstore.Config) (vectorstore.Store, error) {
	if cfg.ConnectionString == "" {
		return nil, eduerrors.NewInvalidRequestError(BackendName, "connection string is required")
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = vectorstore.DefaultConfig().CollectionName
	}
	return &Store{cfg: cfg, dimension: cfg.Dimension}, nil
}

// Register adds this backend to the registry.
func Register(r *vectorstore.Registry) {
	r.Register(BackendName, New)
}

// Connect implements vectorstore.Store.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	host, port, useTLS, apiKey, err := parseConnectionString(s.cfg.ConnectionString)
	if err != nil {
		return eduerrors.NewConnectionError(BackendName, err.Error())
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return eduerrors.NewConnectionError(BackendName, fmt.Sprintf("failed to create qdrant client: %v", err))
	}

	// Health probe so a bad address fails here, not on first data op.
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return eduerrors.NewConnectionError(BackendName, fmt.Sprintf("qdrant health check failed: %v", err))
	}

	s.client = client
	s.connected = true
	return nil
}

// Disconnect implements vectorstore.Store. Resources are released regardless
// of prior error state.
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

func (s *Store) conn() (*qdrant.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.client == nil {
		return nil, eduerrors.NewConnectionError(BackendName, "vector store is not connected")
	}
	return s.client, nil
}

// CreateIndex implements vectorstore.Store. It creates the collection when
// absent; a dimension conflict on a non-empty collection is an index error.
func (s *Store) CreateIndex(ctx context.Context, dimension int) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if dimension <= 0 {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("invalid dimension: %d", dimension))
	}

	exists, err := client.CollectionExists(ctx, s.cfg.CollectionName)
	if err != nil {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("failed to check collection: %v", err))
	}
	if exists {
		s.mu.RLock()
		current := s.dimension
		s.mu.RUnlock()
		if current != 0 && current != dimension {
			count, cerr := client.Count(ctx, &qdrant.CountPoints{CollectionName: s.cfg.CollectionName})
			if cerr == nil && count > 0 {
				return eduerrors.NewIndexError(BackendName,
					fmt.Sprintf("index dimension %d conflicts with existing dimension %d on non-empty collection", dimension, current))
			}
		}
		s.mu.Lock()
		s.dimension = dimension
		s.mu.Unlock()
		return nil
	}

	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: s.distance(),
		}),
	})
	if err != nil {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("failed to create collection: %v", err))
	}

	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

// DropIndex implements vectorstore.Store. The store stays connected.
func (s *Store) DropIndex(ctx context.Context) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if err := client.DeleteCollection(ctx, s.cfg.CollectionName); err != nil {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("failed to drop collection: %v", err))
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

	_, err = client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.CollectionName,
		Points:         []*qdrant.PointStruct{toPoint(doc)},
	})
	if err != nil {
		return "", eduerrors.NewQueryError(BackendName, fmt.Sprintf("upsert failed: %v", err))
	}
	return doc.ID, nil
}

// AddDocuments implements vectorstore.Store. The batch is submitted as a single
// upsert; on failure no ids are reported stored (qdrant upserts are atomic per
// request), which keeps the best-effort contract trivially satisfied.
func (s *Store) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for i := range docs {
		if err := s.checkDimension(docs[i]); err != nil {
			return nil, err
		}
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		points = append(points, toPoint(docs[i]))
		ids = append(ids, docs[i].ID)
	}

	if len(points) == 0 {
		return nil, nil
	}
	_, err = client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.CollectionName,
		Points:         points,
	})
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("batch upsert failed: %v", err))
	}
	return ids, nil
}

// UpdateDocument implements vectorstore.Store. Qdrant upserts natively, so the
// not-found contract is enforced with an existence check first.
func (s *Store) UpdateDocument(ctx context.Context, id string, doc vectorstore.Document) error {
	existing, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
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

	existing, err := s.GetDocument(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	_, err = client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.CollectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return false, eduerrors.NewQueryError(BackendName, fmt.Sprintf("delete failed: %v", err))
	}
	return true, nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	if len(query.Embedding) == 0 {
		return nil, eduerrors.NewQueryError(BackendName, "query embedding is empty")
	}
	if query.Limit <= 0 {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("invalid limit: %d", query.Limit))
	}

	limit := uint64(query.Limit)
	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.CollectionName,
		Query:          qdrant.NewQuery(query.Embedding...),
		Limit:          &limit,
		Filter:         buildFilter(query.FilterMetadata),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if query.ScoreThreshold != nil {
		req.ScoreThreshold = query.ScoreThreshold
	}

	points, err := client.Query(ctx, req)
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("search failed: %v", err))
	}

	results := make([]vectorstore.SearchResult, 0, len(points))
	for _, point := range points {
		doc := fromScoredPoint(point)
		score := point.Score
		if query.ScoreThreshold != nil && score < *query.ScoreThreshold {
			continue
		}
		results = append(results, vectorstore.SearchResult{Document: doc, Score: score})
	}
	return results, nil
}

// GetDocument implements vectorstore.Store. Returns nil, nil when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*vectorstore.Document, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	points, err := client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("get failed: %v", err))
	}
	if len(points) == 0 {
		return nil, nil
	}
	doc := fromRetrievedPoint(points[0])
	return &doc, nil
}

// GetDocumentsByMetadata implements vectorstore.Store.
func (s *Store) GetDocumentsByMetadata(ctx context.Context, filter map[string]any, limit int) ([]vectorstore.Document, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	scrollLimit := uint32(limit)
	points, err := client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.CollectionName,
		Filter:         buildFilter(filter),
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("scroll failed: %v", err))
	}

	docs := make([]vectorstore.Document, 0, len(points))
	for _, point := range points {
		docs = append(docs, fromRetrievedPoint(point))
	}
	return docs, nil
}

// Stats implements vectorstore.Store.
func (s *Store) Stats(ctx context.Context) (vectorstore.Stats, error) {
	client, err := s.conn()
	if err != nil {
		return vectorstore.Stats{}, err
	}

	count, err := client.Count(ctx, &qdrant.CountPoints{CollectionName: s.cfg.CollectionName})
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

// ClearCollection implements vectorstore.Store. The collection is recreated
// with the current dimension, leaving the store connected but empty.
func (s *Store) ClearCollection(ctx context.Context) error {
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()

	if err := s.DropIndex(ctx); err != nil {
		return err
	}
	if dim > 0 {
		return s.CreateIndex(ctx, dim)
	}
	return nil
}

func (s *Store) distance() qdrant.Distance {
	switch s.cfg.DistanceMetric {
	case vectorstore.MetricEuclidean:
		return qdrant.Distance_Euclid
	case vectorstore.MetricDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func toPoint(doc vectorstore.Document) *qdrant.PointStruct {
	payload := map[string]any{contentPayloadKey: doc.Content}
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(doc.ID),
		Vectors: qdrant.NewVectors(doc.Embedding...),
		Payload: qdrant.NewValueMap(payload),
	}
}

func fromScoredPoint(point *qdrant.ScoredPoint) vectorstore.Document {
	return assembleDocument(point.Id, point.Payload, point.Vectors)
}

func fromRetrievedPoint(point *qdrant.RetrievedPoint) vectorstore.Document {
	return assembleDocument(point.Id, point.Payload, point.Vectors)
}

func assembleDocument(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) vectorstore.Document {
	doc := vectorstore.Document{Metadata: make(map[string]any)}

	if id != nil {
		if u := id.GetUuid(); u != "" {
			doc.ID = u
		} else {
			doc.ID = strconv.FormatUint(id.GetNum(), 10)
		}
	}
	for k, v := range payload {
		if k == contentPayloadKey {
			doc.Content = v.GetStringValue()
			continue
		}
		doc.Metadata[k] = extractValue(v)
	}
	if vectors != nil {
		if vec := vectors.GetVector(); vec != nil {
			doc.Embedding = vec.GetData()
		}
	}
	return doc
}

func buildFilter(metadata map[string]any) *qdrant.Filter {
	if len(metadata) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(metadata))
	for key, value := range metadata {
		conditions = append(conditions, matchCondition(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func matchCondition(key string, value any) *qdrant.Condition {
	var match *qdrant.Match
	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: match},
		},
	}
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func parseConnectionString(raw string) (host string, port int, useTLS bool, apiKey string, err error) {
	parsed := raw
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "https://" + parsed
	}
	u, err := url.Parse(parsed)
	if err != nil {
		return "", 0, false, "", fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	host = u.Hostname()
	port = 6334
	if u.Port() != "" {
		p, perr := strconv.Atoi(u.Port())
		if perr != nil {
			return "", 0, false, "", fmt.Errorf("invalid port: %w", perr)
		}
		port = p
	}
	if u.User != nil {
		apiKey, _ = u.User.Password()
	}
	return host, port, u.Scheme == "https", apiKey, nil
}
