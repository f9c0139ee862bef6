package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

// KnowledgeStore wraps an in-memory chromem database holding at most one
// collection. The collection always reflects the most recent Build.
type KnowledgeStore struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embed          chromem.EmbeddingFunc
	concurrency    int
}

// NewKnowledgeStore initializes an empty, ephemeral knowledge store
func NewKnowledgeStore(embed chromem.EmbeddingFunc, collectionName string, concurrency int) *KnowledgeStore {
	if collectionName == "" {
		collectionName = config.DefaultCollectionName
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &KnowledgeStore{
		db:             chromem.NewDB(),
		collectionName: collectionName,
		embed:          embed,
		concurrency:    concurrency,
	}
}

// Build replaces the collection with a fresh one holding chunks.
// Failing to delete the previous collection is logged, not returned.
func (m *KnowledgeStore) Build(ctx context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCollection()

	c, err := m.db.CreateCollection(m.collectionName, nil, m.embed)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	m.collection = c

	if len(chunks) == 0 {
		log.Info().Str("collection", m.collectionName).Msg("Created empty collection")
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:      chunk.ID,
			Content: chunk.Content,
			Metadata: map[string]string{
				"index": strconv.Itoa(chunk.Index),
			},
		})
	}

	log.Info().Msgf("Adding %d chunks to collection %s", len(docs), m.collectionName)
	if err := c.AddDocuments(ctx, docs, m.concurrency); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns the texts of the k chunks most similar to text, best first.
// An empty or missing collection yields no results and no error.
func (m *KnowledgeStore) Query(ctx context.Context, text string, k int) ([]string, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.collection == nil || k <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	n := min(k, m.collection.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := m.collection.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Content)
	}
	return texts, nil
}

// Count returns the number of chunks in the current collection.
func (m *KnowledgeStore) Count() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// Reset drops the current collection.
func (m *KnowledgeStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCollection()
}

func (m *KnowledgeStore) deleteCollection() {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		log.Warn().Err(err).Str("collection", m.collectionName).Msg("Failed to delete collection, continuing")
	}
	m.collection = nil
}
