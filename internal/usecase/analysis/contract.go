package analysis

import (
	"context"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

// Classifier extracts a category, main topic and keywords from cleaned
// transcript text.
type Classifier interface {
	Analyze(ctx context.Context, cleanedText string) (domain.Classification, error)
}

// Repository provides the transcript operations the analysis flow needs.
type Repository interface {
	Get(ctx context.Context, filename string) (domain.Transcript, error)
	List(ctx context.Context) ([]domain.Transcript, error)
	SaveAnalysis(ctx context.Context, filename string, c domain.Classification) error
}
