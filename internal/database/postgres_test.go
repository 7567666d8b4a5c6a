package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swim-rules-rag/internal/models"
)

func TestToVector(t *testing.T) {
	v := ToVector([]float64{0.25, -1, 3})
	assert.Equal(t, []float32{0.25, -1, 3}, v.Slice())

	assert.Empty(t, ToVector(nil).Slice())
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(0), 1e-9)
	assert.InDelta(t, 0.75, Similarity(0.25), 1e-9)
	assert.InDelta(t, -1.0, Similarity(2), 1e-9)
}

func TestStoreChunks_DimensionMismatch(t *testing.T) {
	db := &DB{Dimensions: 3}

	err := db.StoreChunks(context.Background(), []models.TextChunk{
		{ID: "ok", Embedding: []float64{1, 2, 3}},
		{ID: "short", Embedding: []float64{1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk short has 1 dimensions")
}
