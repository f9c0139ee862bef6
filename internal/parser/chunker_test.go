package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_FixedSizeSlices(t *testing.T) {
	text := strings.Repeat("a", 1000) + strings.Repeat("b", 1000) + strings.Repeat("c", 500)

	chunks := ChunkText(text, 1000)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Content, 1000)
	assert.Len(t, chunks[1].Content, 1000)
	assert.Len(t, chunks[2].Content, 500)
	assert.Equal(t, "chunk_0", chunks[0].ID)
	assert.Equal(t, "chunk_2", chunks[2].ID)
	assert.Equal(t, 2, chunks[2].Index)
}

func TestChunkText_ConcatenationReproducesText(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 97)

	chunks := ChunkText(text, 120)

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	assert.Equal(t, text, sb.String())
	assert.Len(t, chunks, (len(text)+119)/120)
}

func TestChunkText_DropsWhitespaceSlices(t *testing.T) {
	text := "abcd" + "    " + "\n\n\t " + "efgh"

	chunks := ChunkText(text, 4)

	require.Len(t, chunks, 2)
	assert.Equal(t, "abcd", chunks[0].Content)
	assert.Equal(t, "efgh", chunks[1].Content)
	assert.Equal(t, "chunk_1", chunks[1].ID)
}

func TestChunkText_CountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("é", 5)

	chunks := ChunkText(text, 2)

	require.Len(t, chunks, 3)
	assert.Equal(t, "éé", chunks[0].Content)
	assert.Equal(t, "é", chunks[2].Content)
}

func TestChunkText_EmptyAndDefaults(t *testing.T) {
	assert.Empty(t, ChunkText("", 1000))
	assert.Empty(t, ChunkText("   \n  ", 1000))

	chunks := ChunkText(strings.Repeat("x", 1500), 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Content, 1000)
}
