package parser

import (
	"fmt"
	"strings"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

// ChunkText slices text into consecutive, non-overlapping pieces of chunkSize
// characters. Slices may cut words or sentences; whitespace-only slices are dropped.
// Chunk ids are sequential over the kept slices.
func ChunkText(text string, chunkSize int) []models.Chunk {
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}

	runes := []rune(text)
	var chunks []models.Chunk
	for start := 0; start < len(runes); start += chunkSize {
		end := min(start+chunkSize, len(runes))
		content := string(runes[start:end])
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			ID:      fmt.Sprintf(models.ChunkIDFormat, len(chunks)),
			Index:   len(chunks),
			Content: content,
		})
	}
	return chunks
}
