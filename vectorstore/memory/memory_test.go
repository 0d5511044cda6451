package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

func newConnected(t *testing.T) vectorstore.Store {
	t.Helper()
	s, err := New(vectorstore.Config{Backend: BackendName, CollectionName: "test"})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func doc(id string, embedding []float32, metadata map[string]any) vectorstore.Document {
	return vectorstore.Document{
		ID:        id,
		Content:   "content of " + id,
		Metadata:  metadata,
		Embedding: embedding,
	}
}

func TestStore_DataOpsRequireConnection(t *testing.T) {
	s, err := New(vectorstore.Config{Backend: BackendName})
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, s.IsConnected())

	_, err = s.AddDocument(ctx, doc("a", []float32{1, 0}, nil))
	assert.True(t, eduerrors.IsConnection(err))

	_, err = s.Search(ctx, vectorstore.SearchQuery{Embedding: []float32{1, 0}, Limit: 1})
	assert.True(t, eduerrors.IsConnection(err))

	_, err = s.Stats(ctx)
	assert.True(t, eduerrors.IsConnection(err))
}

func TestStore_ConnectDisconnectIdempotent(t *testing.T) {
	s, err := New(vectorstore.Config{Backend: BackendName})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Connect(ctx))
	assert.True(t, s.IsConnected())

	require.NoError(t, s.Disconnect(ctx))
	require.NoError(t, s.Disconnect(ctx))
	assert.False(t, s.IsConnected())
}

func TestStore_AddDocumentsRoundTrip(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	ids, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("a", []float32{1, 0, 0}, map[string]any{"subject": "math"}),
		doc("b", []float32{0, 1, 0}, map[string]any{"subject": "physics"}),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for _, id := range ids {
		got, err := s.GetDocument(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "content of "+id, got.Content)
	}
}

func TestStore_AddDocument_GeneratesID(t *testing.T) {
	s := newConnected(t)

	id, err := s.AddDocument(context.Background(), vectorstore.Document{
		Content:   "anonymous",
		Embedding: []float32{1, 2, 3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestStore_DimensionMismatchRejected(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocument(ctx, doc("a", []float32{1, 0, 0}, nil))
	require.NoError(t, err)

	_, err = s.AddDocument(ctx, doc("b", []float32{1, 0}, nil))
	require.Error(t, err)
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeIndex))
}

func TestStore_AddDocuments_BestEffort(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	ids, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("a", []float32{1, 0, 0}, nil),
		doc("bad", []float32{1, 0}, nil), // wrong dimension
		doc("c", []float32{0, 0, 1}, nil),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestStore_CreateIndex_DimensionConflict(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIndex(ctx, 3))
	_, err := s.AddDocument(ctx, doc("a", []float32{1, 0, 0}, nil))
	require.NoError(t, err)

	err = s.CreateIndex(ctx, 4)
	require.Error(t, err)
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeIndex))

	// Same dimension is fine.
	require.NoError(t, s.CreateIndex(ctx, 3))
}

func TestStore_Search_OrderedLimitedThresholded(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("exact", []float32{1, 0, 0}, nil),
		doc("close", []float32{0.9, 0.1, 0}, nil),
		doc("far", []float32{0, 1, 0}, nil),
		doc("opposite", []float32{-1, 0, 0}, nil),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, vectorstore.SearchQuery{
		Embedding: []float32{1, 0, 0},
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "exact", results[0].Document.ID)

	threshold := float32(0.5)
	results, err = s.Search(ctx, vectorstore.SearchQuery{
		Embedding:      []float32{1, 0, 0},
		Limit:          10,
		ScoreThreshold: &threshold,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, threshold)
	}
	assert.Len(t, results, 2)
}

func TestStore_Search_MetadataFilter(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("math1", []float32{1, 0}, map[string]any{"subject": "math"}),
		doc("math2", []float32{0.8, 0.2}, map[string]any{"subject": "math"}),
		doc("phys", []float32{0.9, 0.1}, map[string]any{"subject": "physics"}),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, vectorstore.SearchQuery{
		Embedding:      []float32{1, 0},
		Limit:          10,
		FilterMetadata: map[string]any{"subject": "math"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "math", r.Document.Metadata["subject"])
	}
}

func TestStore_Search_InvalidQuery(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.Search(ctx, vectorstore.SearchQuery{Embedding: nil, Limit: 5})
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeQuery))

	_, err = s.Search(ctx, vectorstore.SearchQuery{Embedding: []float32{1}, Limit: 0})
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeQuery))
}

func TestStore_DeleteDocument(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocument(ctx, doc("a", []float32{1, 0}, nil))
	require.NoError(t, err)

	deleted, err := s.DeleteDocument(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err = s.DeleteDocument(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_UpdateDocument_NotFound(t *testing.T) {
	s := newConnected(t)

	err := s.UpdateDocument(context.Background(), "missing", doc("missing", []float32{1, 0}, nil))
	require.Error(t, err)
	assert.True(t, eduerrors.IsNotFound(err))
}

func TestStore_UpdateDocument_FullReplace(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocument(ctx, doc("a", []float32{1, 0}, map[string]any{"v": 1}))
	require.NoError(t, err)

	err = s.UpdateDocument(ctx, "a", vectorstore.Document{
		Content:   "replaced",
		Embedding: []float32{0, 1},
	})
	require.NoError(t, err)

	got, err := s.GetDocument(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "replaced", got.Content)
	assert.Empty(t, got.Metadata)
}

func TestStore_GetDocumentsByMetadata(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("a", []float32{1, 0}, map[string]any{"chapter": "1"}),
		doc("b", []float32{0, 1}, map[string]any{"chapter": "1"}),
		doc("c", []float32{1, 1}, map[string]any{"chapter": "2"}),
	})
	require.NoError(t, err)

	docs, err := s.GetDocumentsByMetadata(ctx, map[string]any{"chapter": "1"}, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = s.GetDocumentsByMetadata(ctx, map[string]any{"chapter": "1"}, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStore_StatsAndClear(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("a", []float32{1, 0}, nil),
		doc("b", []float32{0, 1}, nil),
	})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 2, stats.Dimension)

	require.NoError(t, s.ClearCollection(ctx))
	assert.True(t, s.IsConnected())

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalDocuments)
	// Dimension survives a clear.
	assert.Equal(t, 2, stats.Dimension)
}

func TestStore_EuclideanMetric(t *testing.T) {
	s, err := New(vectorstore.Config{
		Backend:        BackendName,
		DistanceMetric: vectorstore.MetricEuclidean,
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	_, err = s.AddDocuments(ctx, []vectorstore.Document{
		doc("near", []float32{1, 1}, nil),
		doc("far", []float32{10, 10}, nil),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, vectorstore.SearchQuery{Embedding: []float32{1, 1}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Document.ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestNew_UnsupportedMetric(t *testing.T) {
	_, err := New(vectorstore.Config{Backend: BackendName, DistanceMetric: "hamming"})
	require.Error(t, err)
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeIndex))
}

func TestStore_DimensionSurvivesReconnect(t *testing.T) {
	s, err := New(vectorstore.Config{Backend: BackendName})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.CreateIndex(ctx, 2))
	_, err = s.AddDocument(ctx, doc("a", []float32{1, 0}, nil))
	require.NoError(t, err)

	require.NoError(t, s.Disconnect(ctx))
	require.NoError(t, s.Connect(ctx))

	// The populated index still enforces the established dimension.
	_, err = s.AddDocument(ctx, doc("b", []float32{1, 0, 1}, nil))
	require.Error(t, err)
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeIndex))

	got, err := s.GetDocument(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Dimension)
}
