// Package vectorstore defines the abstraction every similarity-search backend
// must satisfy, so retrieval strategies and the ingestion pipeline stay
// backend-agnostic. Backends register with a Registry and are created from
// a Config; zero global state is involved.
package vectorstore

import (
	"context"
)

// Document is an opaque unit of retrievable content owned by the vector store.
// Content is immutable once stored except through UpdateDocument.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// SearchQuery is an ephemeral per-call query against the store.
type SearchQuery struct {
	Embedding      []float32      `json:"embedding"`
	Limit          int            `json:"limit"`
	FilterMetadata map[string]any `json:"filter_metadata,omitempty"`
	// ScoreThreshold, when non-nil, drops results scoring below it.
	ScoreThreshold *float32 `json:"score_threshold,omitempty"`
}

// SearchResult pairs a document with its similarity score.
// Higher score means more similar for the cosine metric.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float32  `json:"score"`
	// Distance is the raw backend distance, when the backend exposes one.
	Distance *float32 `json:"distance,omitempty"`
}

// Stats reflects the state of the store at call time.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	TotalVectors   int            `json:"total_vectors"`
	Dimension      int            `json:"dimension,omitempty"`
	BackendInfo    map[string]any `json:"backend_info,omitempty"`
}

// DistanceMetric selects how similarity is computed.
type DistanceMetric string

// Supported distance metrics.
const (
	MetricCosine    DistanceMetric = "cosine"
	MetricEuclidean DistanceMetric = "euclidean"
	MetricDot       DistanceMetric = "dot"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend          string         `yaml:"backend" json:"backend"`
	ConnectionString string         `yaml:"connection_string" json:"connection_string,omitempty"`
	CollectionName   string         `yaml:"collection_name" json:"collection_name"`
	Dimension        int            `yaml:"dimension" json:"dimension,omitempty"`
	IndexType        string         `yaml:"index_type" json:"index_type,omitempty"`
	DistanceMetric   DistanceMetric `yaml:"distance_metric" json:"distance_metric,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        "memory",
		CollectionName: "eduagent_vectors",
		IndexType:      "flat",
		DistanceMetric: MetricCosine,
	}
}

// Store is the contract every vector store backend implements.
//
// Lifecycle: Disconnected -> Connect -> Connected -> Disconnect -> Disconnected.
// All data operations require Connected state and fail with a connection-kind
// error otherwise. Callers are expected to pair Connect with a deferred
// Disconnect; Disconnect releases backend resources regardless of prior errors.
//
// Implementations must uphold:
//   - Once connected with a dimension, added embeddings must match it or the
//     add fails with an index-kind error.
//   - Search returns at most query.Limit results, sorted by descending score,
//     filtered to scores >= ScoreThreshold when set, and restricted to
//     documents whose metadata matches every FilterMetadata pair exactly.
//   - DeleteDocument reports absence via the boolean, never via an error.
//   - ClearCollection and DropIndex leave the store connected but empty.
//
// The interface does not guarantee serializability across concurrent writers
// to the same document id; the platform-wide policy is last-write-wins.
type Store interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	CreateIndex(ctx context.Context, dimension int) error
	DropIndex(ctx context.Context) error

	AddDocument(ctx context.Context, doc Document) (string, error)
	// AddDocuments is best-effort: it returns the ids actually stored, plus the
	// first error encountered. It is at least as efficient as repeated single adds.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)
	// UpdateDocument is a full replace and fails with a not-found error when
	// the id does not exist. It never upserts.
	UpdateDocument(ctx context.Context, id string, doc Document) error
	DeleteDocument(ctx context.Context, id string) (bool, error)

	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentsByMetadata(ctx context.Context, filter map[string]any, limit int) ([]Document, error)

	Stats(ctx context.Context) (Stats, error)
	ClearCollection(ctx context.Context) error
}

// MatchesMetadata reports whether doc metadata satisfies every key/value pair
// in filter with exact equality. A nil or empty filter matches everything.
// Numeric values compare by value, not by Go type: backends that persist
// metadata as JSON return integers as float64, and filter semantics must be
// identical across backends.
func MatchesMetadata(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || !metadataValueEqual(got, want) {
			return false
		}
	}
	return true
}

func metadataValueEqual(got, want any) bool {
	if got == want {
		return true
	}
	gf, gok := asFloat(got)
	wf, wok := asFloat(want)
	return gok && wok && gf == wf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
