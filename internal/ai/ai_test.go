package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 1}))
	assert.Zero(t, Cosine(nil, nil))
}

func TestLines(t *testing.T) {
	text := "\n- Electronics leads revenue\n* Clothing is growing\n3. Garden demand is seasonal\n4) extra line\n"
	assert.Equal(t, []string{
		"Electronics leads revenue",
		"Clothing is growing",
		"Garden demand is seasonal",
	}, Lines(text, 3))

	assert.Equal(t, []string{"2.5% growth in Q3"}, Lines("2.5% growth in Q3", 3))
	assert.Empty(t, Lines("  \n \n", 3))
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimensions, e.Dimensions)
	assert.Equal(t, "hash", e.Name())

	vecs, err := e.Embed(context.Background(), []string{
		"iPhone 15 Electronics smartphone",
		"iPhone 15 Pro Electronics smartphone",
		"Garden Tools Set Home & Garden",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	for _, v := range vecs {
		assert.Len(t, v, DefaultHashDimensions)
	}

	same := Cosine(vecs[0], vecs[1])
	different := Cosine(vecs[0], vecs[2])
	assert.Greater(t, same, different)
	assert.InDelta(t, 1.0, Cosine(vecs[0], vecs[0]), 1e-6)
	assert.Zero(t, Cosine(vecs[0], vecs[3]))

	again, _ := e.Embed(context.Background(), []string{"iPhone 15 Electronics smartphone"})
	assert.Equal(t, vecs[0], again[0])
}

func TestGenAIRequiresKey(t *testing.T) {
	_, err := NewGenAIGenerator(context.Background(), "", "")
	assert.Error(t, err)
	_, err = NewGenAIEmbedder(context.Background(), "", "")
	assert.Error(t, err)
}
