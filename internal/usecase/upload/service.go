// Package upload ingests transcript files: validate, redact, persist, then
// best-effort enrichment (embedding and classification). Enrichment failures
// never fail the upload; they are reported as notes so the caller can see
// what will be retried later.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/cleaner"
	"github.com/Bryant-Tello/Entel/internal/domain"
)

// Result reports an upload's outcome, including enrichment notes.
type Result struct {
	Filename  string
	Category  domain.Category
	MainTopic string
	Embedded  bool
	Notes     []string
}

// Service owns the transcript ingestion flow.
type Service struct {
	repo       Repository
	vectorizer Vectorizer
	analyzer   Analyzer
	budget     BudgetGate
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an upload service. budget can be nil (unlimited mode).
func New(repo Repository, vectorizer Vectorizer, analyzer Analyzer, budget BudgetGate, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		vectorizer: vectorizer,
		analyzer:   analyzer,
		budget:     budget,
		logger:     logger,
		now:        time.Now,
	}
}

// Upload validates and stores one transcript, then tries to embed and
// classify it. Re-uploading a filename replaces the stored record and its
// derived data.
func (s *Service) Upload(ctx context.Context, filename, content string) (Result, error) {
	filename = strings.TrimSpace(filename)
	if !strings.HasSuffix(strings.ToLower(filename), ".txt") || filename == ".txt" {
		return Result{}, fmt.Errorf("%q: %w", filename, domain.ErrInvalidFilename)
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("%q: %w", filename, domain.ErrEmptyTranscript)
	}

	cleaned := cleaner.Normalize(content)
	if strings.TrimSpace(cleaned) == "" {
		return Result{}, fmt.Errorf("%q has no content after redaction: %w", filename, domain.ErrEmptyTranscript)
	}

	now := s.now().UTC()
	t := domain.Transcript{
		Filename:       filename,
		RawContent:     content,
		CleanedContent: cleaned,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Save(ctx, &t); err != nil {
		return Result{}, fmt.Errorf("save transcript %s: %w", filename, err)
	}

	result := Result{Filename: filename}
	result.Notes = append(result.Notes, s.enrich(ctx, &t, &result)...)
	return result, nil
}

// enrich runs the best-effort post-save steps. Classification only runs once
// the embedding exists, matching search's visibility rule.
func (s *Service) enrich(ctx context.Context, t *domain.Transcript, result *Result) []string {
	var notes []string

	if s.budget != nil {
		if err := s.budget.Authorize(ctx); err != nil {
			s.logger.Warn("Skipping enrichment, budget exhausted",
				zap.String("filename", t.Filename), zap.Error(err))
			return append(notes, "budget exhausted, embedding deferred to next search")
		}
	}

	vector, err := s.vectorizer.GetOrCreate(ctx, t)
	switch {
	case err != nil:
		s.logger.Warn("Embedding failed during upload",
			zap.String("filename", t.Filename), zap.Error(err))
		notes = append(notes, "embedding failed, will retry on next search")
	case vector == nil:
		notes = append(notes, "no embeddable content")
	default:
		result.Embedded = true
	}

	if !result.Embedded {
		return notes
	}

	c, err := s.analyzer.Classify(ctx, t)
	switch {
	case err != nil:
		s.logger.Warn("Classification failed during upload",
			zap.String("filename", t.Filename), zap.Error(err))
		notes = append(notes, "classification failed")
	case !c.Classified():
		notes = append(notes, "classification inconclusive: "+c.Reason())
	default:
		result.Category = c.Category()
		result.MainTopic = c.MainTopic()
	}

	return notes
}

// Get returns one stored transcript.
func (s *Service) Get(ctx context.Context, filename string) (domain.Transcript, error) {
	return s.repo.Get(ctx, filename)
}

// List returns all stored transcripts.
func (s *Service) List(ctx context.Context) ([]domain.Transcript, error) {
	return s.repo.List(ctx)
}

// Delete removes one stored transcript.
func (s *Service) Delete(ctx context.Context, filename string) error {
	return s.repo.Delete(ctx, filename)
}

// DeleteAll removes every stored transcript and returns how many were removed.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	return s.repo.DeleteAll(ctx)
}
