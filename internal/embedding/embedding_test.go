package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-rag/internal/config"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestChromemFunc_Normalizes(t *testing.T) {
	fn := ChromemFunc(&fakeEmbedder{vec: []float32{3, 4}})

	vec, err := fn(context.Background(), "hello")

	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestChromemFunc_Errors(t *testing.T) {
	boom := errors.New("connection refused")

	_, err := ChromemFunc(&fakeEmbedder{err: boom})(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	_, err = ChromemFunc(&fakeEmbedder{})(context.Background(), "x")
	assert.Error(t, err)
}

func TestHashFunc(t *testing.T) {
	fn := NewHashFunc(64)
	ctx := context.Background()

	a, err := fn(ctx, "Photosynthesis converts light energy")
	require.NoError(t, err)
	b, err := fn(ctx, "photosynthesis converts LIGHT energy")
	require.NoError(t, err)
	empty, err := fn(ctx, "   ")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
	assert.InDelta(t, 1.0, norm(empty), 1e-5)
}

func TestNewEmbeddingFunc(t *testing.T) {
	fn, err := NewEmbeddingFunc(&config.LLMConfig{Provider: "hash"})
	require.NoError(t, err)
	assert.NotNil(t, fn)

	_, err = NewEmbeddingFunc(&config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)

	// construction does not contact the server
	fn, err = NewEmbeddingFunc(&config.LLMConfig{Provider: "ollama", BaseURL: config.DefaultOllamaURL, Model: config.DefaultEmbedModel})
	require.NoError(t, err)
	assert.NotNil(t, fn)
}
