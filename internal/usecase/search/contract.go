package search

import (
	"context"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

// Repository lists stored transcripts for in-memory ranking.
type Repository interface {
	List(ctx context.Context) ([]domain.Transcript, error)
}

// Embedder vectorizes the query text. In production this is the embedding
// accessor, which rate-limits, retries and records usage around the cached
// provider, so a cache-missed query cannot bypass the provider windows.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
