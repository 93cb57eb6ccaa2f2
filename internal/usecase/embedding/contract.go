package embedding

import (
	"context"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

// Embedder vectorizes a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// BatchEmbedder vectorizes a slice of texts in one provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Limiter gates provider calls. Reserve blocks until the estimated tokens
// fit the provider windows; RecordUsage reconciles with the real count.
type Limiter interface {
	Reserve(ctx context.Context, estimatedTokens int) error
	RecordUsage(actualTokens int)
}

// VectorWriter persists computed embeddings.
type VectorWriter interface {
	SaveVector(ctx context.Context, filename string, vector []float32) error
}

// UsageRecorder tracks monthly provider consumption.
type UsageRecorder interface {
	AddTokens(ctx context.Context, tokens int64) (int64, error)
	AddRequests(ctx context.Context, requests int64) (int64, error)
}
