// Package analysis classifies transcripts and reports the extracted topics.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

const (
	// categoryUnclassified groups transcripts the classifier has not
	// labeled yet.
	categoryUnclassified = "sin_clasificar"
	topicUnknown         = "N/A"
)

// Entry is one transcript's extracted analysis.
type Entry struct {
	Filename  string
	Category  string
	MainTopic string
	Keywords  []string
}

// Report groups analyzed transcripts by category.
type Report struct {
	Total  int
	Groups map[string][]Entry
}

// Service runs classification and builds topic reports.
type Service struct {
	repo       Repository
	classifier Classifier
	logger     *zap.Logger
}

// New creates an analysis service.
func New(repo Repository, classifier Classifier, logger *zap.Logger) *Service {
	return &Service{repo: repo, classifier: classifier, logger: logger}
}

// Classify analyzes one transcript and persists the outcome. The
// classification is returned even when the model could not produce a usable
// label; callers inspect Classified().
func (s *Service) Classify(ctx context.Context, t *domain.Transcript) (domain.Classification, error) {
	c, err := s.classifier.Analyze(ctx, t.CleanedContent)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify %s: %w", t.Filename, err)
	}

	if !c.Classified() {
		s.logger.Warn("Transcript could not be classified",
			zap.String("filename", t.Filename),
			zap.String("reason", c.Reason()))
		return c, nil
	}

	if err := s.repo.SaveAnalysis(ctx, t.Filename, c); err != nil {
		return domain.Classification{}, fmt.Errorf("save analysis %s: %w", t.Filename, err)
	}

	t.Category = c.Category()
	t.MainTopic = c.MainTopic()
	t.Keywords = c.Keywords()
	return c, nil
}

// ClassifyPending backfills classification for stored transcripts. With an
// explicit filename list it classifies exactly those, re-labeling ones that
// already carry a category; otherwise it sweeps every embedded transcript
// that has no category yet. Unknown filenames and per-transcript failures
// are skipped so one bad record does not stop the sweep.
func (s *Service) ClassifyPending(ctx context.Context, filenames []string) ([]Entry, error) {
	var targets []domain.Transcript
	if len(filenames) > 0 {
		for _, name := range filenames {
			t, err := s.repo.Get(ctx, name)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					s.logger.Warn("Skipping unknown transcript", zap.String("filename", name))
					continue
				}
				return nil, fmt.Errorf("get %s: %w", name, err)
			}
			targets = append(targets, t)
		}
	} else {
		all, err := s.repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list transcripts: %w", err)
		}
		for _, t := range all {
			if len(t.Embedding) == 0 || t.Category != "" {
				continue
			}
			targets = append(targets, t)
		}
	}

	var results []Entry
	for i := range targets {
		t := &targets[i]
		if t.CleanedContent == "" {
			continue
		}

		c, err := s.Classify(ctx, t)
		if err != nil {
			s.logger.Warn("Backfill classification failed",
				zap.String("filename", t.Filename), zap.Error(err))
			continue
		}
		if !c.Classified() {
			continue
		}

		results = append(results, Entry{
			Filename:  t.Filename,
			Category:  string(t.Category),
			MainTopic: t.MainTopic,
			Keywords:  t.Keywords,
		})
	}
	return results, nil
}

// Topics groups every embedded transcript by its category. Transcripts
// without a category land in the sin_clasificar group.
func (s *Service) Topics(ctx context.Context) (Report, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list transcripts: %w", err)
	}

	report := Report{Groups: make(map[string][]Entry)}
	for _, t := range all {
		if len(t.Embedding) == 0 {
			continue
		}

		category := string(t.Category)
		if category == "" {
			category = categoryUnclassified
		}
		topic := t.MainTopic
		if topic == "" {
			topic = topicUnknown
		}

		report.Groups[category] = append(report.Groups[category], Entry{
			Filename:  t.Filename,
			Category:  category,
			MainTopic: topic,
			Keywords:  t.Keywords,
		})
		report.Total++
	}

	return report, nil
}
