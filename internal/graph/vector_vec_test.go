//go:build sqlite_vec && cgo

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexEmbeddingReplacesExistingRow(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.vectorExt, "sqlite-vec extension not loaded")
	require.NoError(t, s.CreateVectorIndex("article_embeddings", "articulo", "embedding", 3, "cosine"))

	require.NoError(t, s.IndexEmbedding("article_embeddings", "a1", []float32{1, 0, 0}))
	// Re-ingestion indexes the same node again with a new vector.
	require.NoError(t, s.IndexEmbedding("article_embeddings", "a1", []float32{0, 1, 0}))

	row, err := s.RunQuerySingle(`SELECT COUNT(*) AS n FROM "article_embeddings" WHERE node_id = ?`, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, row["n"])

	hits, err := s.VectorSearch([]float32{0, 1, 0}, 5, "article_embeddings")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1", hits[0].NodeID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
}
