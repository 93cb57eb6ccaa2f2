// Package search ranks transcripts against a query by fusing semantic
// similarity with exact keyword matching. Only transcripts that already have
// an embedding participate, in either phase.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/cleaner"
	"github.com/Bryant-Tello/Entel/internal/domain"
	domsearch "github.com/Bryant-Tello/Entel/internal/domain/search"
	"github.com/Bryant-Tello/Entel/internal/metrics"
)

// Fallbacks when neither the request nor the config sets a value.
const (
	defaultThreshold = 0.5
	defaultLimit     = 10
)

// Service runs hybrid transcript search.
type Service struct {
	repo         Repository
	embed        Embedder
	dims         int
	contextChars int
	defLimit     int
	defThreshold float64
	logger       *zap.Logger
}

// New creates a search service. dims is the expected embedding dimension,
// contextChars the snippet window on each side of a match.
func New(repo Repository, embed Embedder, dims, contextChars int, logger *zap.Logger) *Service {
	if dims <= 0 {
		dims = domain.DefaultEmbeddingDimensions
	}
	if contextChars <= 0 {
		contextChars = cleaner.DefaultContextChars
	}
	return &Service{
		repo:         repo,
		embed:        embed,
		dims:         dims,
		contextChars: contextChars,
		defLimit:     defaultLimit,
		defThreshold: defaultThreshold,
		logger:       logger,
	}
}

// WithDefaults overrides the fallback limit and threshold applied when a
// request leaves them unset.
func (s *Service) WithDefaults(limit int, threshold float64) *Service {
	if limit > 0 {
		s.defLimit = limit
	}
	if threshold > 0 {
		s.defThreshold = threshold
	}
	return s
}

// Search runs both phases and fuses the ranked lists. A blank query is
// rejected; limit and threshold fall back to defaults when non-positive.
func (s *Service) Search(ctx context.Context, query string, limit int, threshold float64) ([]domsearch.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.defLimit
	}
	if threshold <= 0 {
		threshold = s.defThreshold
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	// Both phases rank only transcripts that have been embedded; everything
	// else is invisible to search until its vector exists.
	embedded := all[:0:0]
	for _, t := range all {
		if len(t.Embedding) > 0 {
			embedded = append(embedded, t)
		}
	}
	if len(embedded) == 0 {
		return nil, nil
	}

	semantic := s.semanticPhase(ctx, query, embedded, 2*limit, threshold)
	keyword := s.keywordPhase(query, embedded, limit)

	mode := "hybrid"
	if len(semantic) == 0 {
		mode = "keyword_only"
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode).Inc()

	results := fuse(semantic, keyword)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// semanticPhase embeds the query and ranks transcripts by cosine similarity.
// A provider failure degrades to an empty phase instead of failing the whole
// search; keyword matching still works with the provider down.
func (s *Service) semanticPhase(
	ctx context.Context, query string, embedded []domain.Transcript, limit int, threshold float64,
) []domsearch.Result {
	embResult, err := s.embed.EmbedText(ctx, query)
	if err != nil {
		s.logger.Warn("Query embedding failed, skipping semantic phase",
			zap.String("query", query), zap.Error(err))
		return nil
	}
	queryVec := embResult.Embedding
	if len(queryVec) != s.dims {
		s.logger.Warn("Query embedding has unexpected dimension, skipping semantic phase",
			zap.Int("got", len(queryVec)), zap.Int("expected", s.dims))
		return nil
	}

	var results []domsearch.Result
	for _, t := range embedded {
		if len(t.Embedding) != len(queryVec) {
			s.logger.Warn("Stored embedding has wrong dimension, skipping",
				zap.String("filename", t.Filename),
				zap.Int("stored", len(t.Embedding)),
				zap.Int("expected", len(queryVec)))
			continue
		}

		score := domain.CosineSimilarity(queryVec, t.Embedding)
		if score < threshold {
			continue
		}

		results = append(results, domsearch.Result{
			Filename: t.Filename,
			Category: t.Category,
			Score:    score,
			Snippet:  cleaner.Snippet(t.CleanedContent, query, s.contextChars),
			Source:   domsearch.SourceSemantic,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// keywordPhase scores transcripts by the fraction of query words they
// contain, case-insensitive.
func (s *Service) keywordPhase(query string, embedded []domain.Transcript, limit int) []domsearch.Result {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}

	var results []domsearch.Result
	for _, t := range embedded {
		if t.CleanedContent == "" {
			continue
		}
		content := strings.ToLower(t.CleanedContent)

		matches := 0
		for _, w := range words {
			if strings.Contains(content, w) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}

		results = append(results, domsearch.Result{
			Filename: t.Filename,
			Category: t.Category,
			Score:    float64(matches) / float64(len(words)),
			Snippet:  cleaner.Snippet(t.CleanedContent, query, s.contextChars),
			Source:   domsearch.SourceKeyword,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
