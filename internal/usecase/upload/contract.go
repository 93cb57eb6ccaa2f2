package upload

import (
	"context"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

// Repository provides transcript persistence for the upload flow.
type Repository interface {
	Save(ctx context.Context, t *domain.Transcript) error
	Get(ctx context.Context, filename string) (domain.Transcript, error)
	List(ctx context.Context) ([]domain.Transcript, error)
	Delete(ctx context.Context, filename string) error
	DeleteAll(ctx context.Context) (int, error)
}

// Vectorizer produces and persists the transcript's embedding.
type Vectorizer interface {
	GetOrCreate(ctx context.Context, t *domain.Transcript) ([]float32, error)
}

// Analyzer classifies a transcript and persists the outcome.
type Analyzer interface {
	Classify(ctx context.Context, t *domain.Transcript) (domain.Classification, error)
}

// BudgetGate rejects provider spend once the monthly budget is exhausted.
type BudgetGate interface {
	Authorize(ctx context.Context) error
}
