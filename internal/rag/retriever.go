package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

// Searcher is the similarity query side of a knowledge store.
type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Retrieve returns the k chunks closest to query joined by blank lines, or
// models.MsgNoResults when there are none.
func Retrieve(ctx context.Context, store Searcher, query string, k int) (string, error) {
	if k <= 0 {
		k = config.DefaultTopK
	}
	if store == nil {
		return models.MsgNoResults, nil
	}

	texts, err := store.Query(ctx, query, k)
	if err != nil {
		return "", fmt.Errorf("failed to search knowledge store: %w", err)
	}
	log.Debug().Int("matches", len(texts)).Msg("Retrieved context")

	if len(texts) == 0 {
		return models.MsgNoResults, nil
	}
	return strings.Join(texts, models.ContextSeparator), nil
}
