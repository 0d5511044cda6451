// Package pgvector provides a PostgreSQL + pgvector backed vector store.
// Vectors are stored in a single table per collection; queries use the
// pgvector distance operators and lib/pq as the driver.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

// BackendName is the registry name of this backend.
const BackendName = "pgvector"

// Store implements vectorstore.Store on top of PostgreSQL with pgvector.
type Store struct {
	mu sync.RWMutex

	cfg       vectorstore.Config
	db        *sql.DB
	connected bool
	dimension int
	table     string
}

// New creates a disconnected pgvector store. ConnectionString is a lib/pq DSN.
func New(cfg vectorstore.Config) (vectorstore.Store, error) {
	if cfg.ConnectionString == "" {
		return nil, eduerrors.NewInvalidRequestError(BackendName, "connection string is required")
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = vectorstore.DefaultConfig().CollectionName
	}
	if !validTableName(cfg.CollectionName) {
		return nil, eduerrors.NewInvalidRequestError(BackendName,
			fmt.Sprintf("collection name must be a valid identifier: %s", cfg.CollectionName))
	}
	return &Store{cfg: cfg, dimension: cfg.Dimension, table: cfg.CollectionName}, nil
}

// Register adds this backend to the registry.
func Register(r *vectorstore.Registry) {
	r.Register(BackendName, New)
}

func validTableName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}

// Connect implements vectorstore.Store.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.ConnectionString)
	if err != nil {
		return eduerrors.NewConnectionError(BackendName, fmt.Sprintf("open failed: %v", err))
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return eduerrors.NewConnectionError(BackendName, fmt.Sprintf("ping failed: %v", err))
	}

	s.db = db
	s.connected = true
	return nil
}

// Disconnect implements vectorstore.Store.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
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

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.db == nil {
		return nil, eduerrors.NewConnectionError(BackendName, "vector store is not connected")
	}
	return s.db, nil
}

// CreateIndex implements vectorstore.Store. It creates the extension, table,
// and an approximate index matching cfg.IndexType.
func (s *Store) CreateIndex(ctx context.Context, dimension int) error {
	db, err := s.conn()
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
		var count int
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&count); err == nil && count > 0 {
			return eduerrors.NewIndexError(BackendName,
				fmt.Sprintf("index dimension %d conflicts with existing dimension %d on non-empty collection", dimension, current))
		}
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
	}
	if s.cfg.IndexType == "hnsw" || s.cfg.IndexType == "ivfflat" {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING %s (embedding %s)`,
			s.table, s.table, s.cfg.IndexType, s.opClass()))
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return eduerrors.NewIndexError(BackendName, fmt.Sprintf("index creation failed: %v", err))
		}
	}

	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

// DropIndex implements vectorstore.Store. The store stays connected.
func (s *Store) DropIndex(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return eduerrors.NewIndexError(BackendName, fmt.Sprintf("drop failed: %v", err))
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
	db, err := s.conn()
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

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content,
			metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table),
		doc.ID, doc.Content, metadata, encodeVector(doc.Embedding))
	if err != nil {
		return "", eduerrors.NewQueryError(BackendName, fmt.Sprintf("insert failed: %v", err))
	}
	return doc.ID, nil
}

// AddDocuments implements vectorstore.Store. Best-effort per document.
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
	db, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.checkDimension(doc); err != nil {
		return err
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return eduerrors.NewInternalError(BackendName, fmt.Sprintf("failed to encode metadata: %v", err))
	}

	res, err := db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET content = $2, metadata = $3, embedding = $4::vector WHERE id = $1`, s.table),
		id, doc.Content, metadata, encodeVector(doc.Embedding))
	if err != nil {
		return eduerrors.NewQueryError(BackendName, fmt.Sprintf("update failed: %v", err))
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return eduerrors.NewNotFoundError(BackendName, fmt.Sprintf("document not found: %s", id))
	}
	return nil
}

// DeleteDocument implements vectorstore.Store.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return false, eduerrors.NewQueryError(BackendName, fmt.Sprintf("delete failed: %v", err))
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if len(query.Embedding) == 0 {
		return nil, eduerrors.NewQueryError(BackendName, "query embedding is empty")
	}
	if query.Limit <= 0 {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("invalid limit: %d", query.Limit))
	}

	where := ""
	args := []any{encodeVector(query.Embedding), query.Limit}
	if len(query.FilterMetadata) > 0 {
		filter, err := json.Marshal(query.FilterMetadata)
		if err != nil {
			return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("bad metadata filter: %v", err))
		}
		where = "WHERE metadata @> $3"
		args = append(args, filter)
	}

	// Cosine distance operator; score = 1 - distance.
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content, metadata, embedding::text, embedding %[2]s $1::vector AS distance
		FROM %[1]s %[3]s
		ORDER BY distance ASC
		LIMIT $2`, s.table, s.operator(), where), args...)
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("search failed: %v", err))
	}
	defer rows.Close()

	results := make([]vectorstore.SearchResult, 0, query.Limit)
	for rows.Next() {
		var (
			doc      vectorstore.Document
			metadata []byte
			rawVec   string
			distance float32
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &rawVec, &distance); err != nil {
			return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("scan failed: %v", err))
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				return nil, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt metadata for %s: %v", doc.ID, err))
			}
		}
		doc.Embedding, err = decodeVector(rawVec)
		if err != nil {
			return nil, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt embedding for %s: %v", doc.ID, err))
		}

		score := s.scoreFromDistance(distance)
		if query.ScoreThreshold != nil && score < *query.ScoreThreshold {
			continue
		}
		d := distance
		results = append(results, vectorstore.SearchResult{Document: doc, Score: score, Distance: &d})
	}
	if err := rows.Err(); err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("search failed: %v", err))
	}
	return results, nil
}

// GetDocument implements vectorstore.Store. Returns nil, nil when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*vectorstore.Document, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var (
		doc      vectorstore.Document
		metadata []byte
		rawVec   string
	)
	err = db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, content, metadata, embedding::text FROM %s WHERE id = $1`, s.table), id).
		Scan(&doc.ID, &doc.Content, &metadata, &rawVec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("get failed: %v", err))
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt metadata for %s: %v", id, err))
		}
	}
	doc.Embedding, err = decodeVector(rawVec)
	if err != nil {
		return nil, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt embedding for %s: %v", id, err))
	}
	return &doc, nil
}

// GetDocumentsByMetadata implements vectorstore.Store.
func (s *Store) GetDocumentsByMetadata(ctx context.Context, filter map[string]any, limit int) ([]vectorstore.Document, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	encoded, err := json.Marshal(filter)
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("bad metadata filter: %v", err))
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, content, metadata, embedding::text FROM %s WHERE metadata @> $1 LIMIT $2`, s.table),
		encoded, limit)
	if err != nil {
		return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("metadata query failed: %v", err))
	}
	defer rows.Close()

	docs := make([]vectorstore.Document, 0)
	for rows.Next() {
		var (
			doc      vectorstore.Document
			metadata []byte
			rawVec   string
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &rawVec); err != nil {
			return nil, eduerrors.NewQueryError(BackendName, fmt.Sprintf("scan failed: %v", err))
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				return nil, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt metadata for %s: %v", doc.ID, err))
			}
		}
		doc.Embedding, err = decodeVector(rawVec)
		if err != nil {
			return nil, eduerrors.NewInternalError(BackendName, fmt.Sprintf("corrupt embedding for %s: %v", doc.ID, err))
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Stats implements vectorstore.Store.
func (s *Store) Stats(ctx context.Context) (vectorstore.Stats, error) {
	db, err := s.conn()
	if err != nil {
		return vectorstore.Stats{}, err
	}
	var count int
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&count); err != nil {
		return vectorstore.Stats{}, eduerrors.NewQueryError(BackendName, fmt.Sprintf("count failed: %v", err))
	}

	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()

	return vectorstore.Stats{
		TotalDocuments: count,
		TotalVectors:   count,
		Dimension:      dim,
		BackendInfo: map[string]any{
			"backend": BackendName,
			"table":   s.table,
		},
	}, nil
}

// ClearCollection implements vectorstore.Store.
func (s *Store) ClearCollection(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return eduerrors.NewQueryError(BackendName, fmt.Sprintf("clear failed: %v", err))
	}
	return nil
}

func (s *Store) operator() string {
	switch s.cfg.DistanceMetric {
	case vectorstore.MetricEuclidean:
		return "<->"
	case vectorstore.MetricDot:
		return "<#>"
	default:
		return "<=>"
	}
}

func (s *Store) opClass() string {
	switch s.cfg.DistanceMetric {
	case vectorstore.MetricEuclidean:
		return "vector_l2_ops"
	case vectorstore.MetricDot:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func (s *Store) scoreFromDistance(distance float32) float32 {
	switch s.cfg.DistanceMetric {
	case vectorstore.MetricEuclidean:
		return 1.0 / (1.0 + distance)
	case vectorstore.MetricDot:
		// pgvector's <#> is negative inner product.
		return -distance
	default:
		return 1.0 - distance
	}
}

// encodeVector renders a pgvector literal: "[1,2,3]".
func encodeVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func decodeVector(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector element %q: %w", part, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
