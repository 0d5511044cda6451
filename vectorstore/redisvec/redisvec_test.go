package redisvec

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/vectorstore"
)

func newConnected(t *testing.T) vectorstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := New(vectorstore.Config{
		Backend:          BackendName,
		ConnectionString: mr.Addr(),
		CollectionName:   "test",
	})
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

func TestStore_RequiresConnection(t *testing.T) {
	s, err := New(vectorstore.Config{Backend: BackendName, ConnectionString: "localhost:0"})
	require.NoError(t, err)

	_, err = s.AddDocument(context.Background(), doc("a", []float32{1}, nil))
	assert.True(t, eduerrors.IsConnection(err))
}

func TestStore_Connect_BadAddress(t *testing.T) {
	s, err := New(vectorstore.Config{Backend: BackendName, ConnectionString: "localhost:1"})
	require.NoError(t, err)

	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, eduerrors.IsConnection(err))
	assert.False(t, s.IsConnected())
}

func TestStore_RoundTrip(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	id, err := s.AddDocument(ctx, doc("a", []float32{1, 0}, map[string]any{"subject": "math"}))
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	got, err := s.GetDocument(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "content of a", got.Content)
	assert.Equal(t, "math", got.Metadata["subject"])
	assert.Equal(t, []float32{1, 0}, got.Embedding)
}

func TestStore_GetDocument_Absent(t *testing.T) {
	s := newConnected(t)

	got, err := s.GetDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Search_SortedAndFiltered(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("exact", []float32{1, 0}, map[string]any{"subject": "math"}),
		doc("close", []float32{0.9, 0.1}, map[string]any{"subject": "math"}),
		doc("other", []float32{0.95, 0.05}, map[string]any{"subject": "physics"}),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, vectorstore.SearchQuery{
		Embedding:      []float32{1, 0},
		Limit:          5,
		FilterMetadata: map[string]any{"subject": "math"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Document.ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestStore_DeleteDocument(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocument(ctx, doc("a", []float32{1, 0}, nil))
	require.NoError(t, err)

	deleted, err := s.DeleteDocument(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

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

func TestStore_DimensionPersistsAcrossReconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := vectorstore.Config{
		Backend:          BackendName,
		ConnectionString: mr.Addr(),
		CollectionName:   "test",
	}

	s1, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Connect(ctx))
	require.NoError(t, s1.CreateIndex(ctx, 4))
	require.NoError(t, s1.Disconnect(ctx))

	s2, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s2.Connect(ctx))
	defer s2.Disconnect(ctx)

	stats, err := s2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Dimension)
}

func TestStore_ClearCollection_StaysConnected(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("a", []float32{1, 0}, nil),
		doc("b", []float32{0, 1}, nil),
	})
	require.NoError(t, err)

	require.NoError(t, s.ClearCollection(ctx))
	assert.True(t, s.IsConnected())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalDocuments)
}

func TestStore_CreateIndex_DimensionConflict(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIndex(ctx, 2))
	_, err := s.AddDocument(ctx, doc("a", []float32{1, 0}, nil))
	require.NoError(t, err)

	err = s.CreateIndex(ctx, 3)
	require.Error(t, err)
	assert.True(t, eduerrors.IsKind(err, eduerrors.TypeIndex))
}

func TestStore_Search_NumericMetadataFilter(t *testing.T) {
	s := newConnected(t)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []vectorstore.Document{
		doc("p3", []float32{1, 0}, map[string]any{"page": 3}),
		doc("p4", []float32{0.9, 0.1}, map[string]any{"page": 4}),
	})
	require.NoError(t, err)

	// Metadata persists as JSON, so the stored 3 comes back as float64.
	// An int filter must still match it.
	results, err := s.Search(ctx, vectorstore.SearchQuery{
		Embedding:      []float32{1, 0},
		Limit:          5,
		FilterMetadata: map[string]any{"page": 3},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p3", results[0].Document.ID)

	docs, err := s.GetDocumentsByMetadata(ctx, map[string]any{"page": 4}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p4", docs[0].ID)
}
