// Package embedding owns every path that produces a transcript vector:
// single lazy computation for one transcript and bulk backfill for many.
// All provider traffic goes through the rate limiter and the usage tracker.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

const (
	// maxEmbedChars truncates transcripts before embedding; the model's
	// context window does not fit arbitrarily long calls.
	maxEmbedChars = 32000
	// minTokenEstimate floors the 4-chars-per-token heuristic so tiny texts
	// still reserve realistic capacity.
	minTokenEstimate = 100
	// batchSize is the provider's maximum inputs per embedding request.
	batchSize = 100

	maxRetries = 3
	retryBase  = 2 * time.Second
)

// Accessor computes transcript embeddings on demand.
type Accessor struct {
	embedder Embedder
	batch    BatchEmbedder
	vectors  VectorWriter
	limiter  Limiter
	usage    UsageRecorder
	dims     int
	logger   *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an embedding accessor. dims is the expected vector dimension;
// stored vectors of any other size are recomputed.
func New(
	embedder Embedder,
	batch BatchEmbedder,
	vectors VectorWriter,
	limiter Limiter,
	usage UsageRecorder,
	dims int,
	logger *zap.Logger,
) *Accessor {
	if dims <= 0 {
		dims = domain.DefaultEmbeddingDimensions
	}
	return &Accessor{
		embedder: embedder,
		batch:    batch,
		vectors:  vectors,
		limiter:  limiter,
		usage:    usage,
		dims:     dims,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// GetOrCreate returns the transcript's embedding, computing and persisting
// it when missing. A stored vector with the wrong dimension is treated as
// missing. An empty cleaned transcript yields nil without a provider call.
func (a *Accessor) GetOrCreate(ctx context.Context, t *domain.Transcript) ([]float32, error) {
	if t.HasVector(a.dims) {
		return t.Embedding, nil
	}
	if t.CleanedContent == "" {
		return nil, nil
	}

	result, err := a.EmbedText(ctx, t.CleanedContent)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", t.Filename, err)
	}

	if err := a.vectors.SaveVector(ctx, t.Filename, result.Embedding); err != nil {
		// The vector is valid even if persisting it failed; the next call
		// will recompute.
		a.logger.Warn("Failed to persist embedding",
			zap.String("filename", t.Filename), zap.Error(err))
	}
	t.Embedding = result.Embedding

	return result.Embedding, nil
}

// EmbedText vectorizes one free-form text under the same limiter, usage
// tracking and retry policy as transcript embeddings. Search query vectors
// come through here, so a query that misses the cache still waits for
// provider capacity.
func (a *Accessor) EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	text = truncate(text)

	result, err := a.embedWithRetry(ctx, text, estimateTokens(text))
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	a.recordUsage(ctx, result.TotalTokens, 1)
	return result, nil
}

// EnsureBatch computes embeddings for every transcript that is missing one,
// in provider-sized chunks. The returned slice is aligned with the input;
// entries stay nil for empty transcripts and for chunks that failed after
// all retries, so one bad chunk does not discard the rest of the backfill.
func (a *Accessor) EnsureBatch(ctx context.Context, transcripts []domain.Transcript) ([][]float32, error) {
	out := make([][]float32, len(transcripts))

	// Collect indexes that actually need a provider call.
	var pending []int
	for i := range transcripts {
		if transcripts[i].HasVector(a.dims) {
			out[i] = transcripts[i].Embedding
			continue
		}
		if transcripts[i].CleanedContent == "" {
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		texts := make([]string, len(chunk))
		estimated := 0
		for j, idx := range chunk {
			texts[j] = truncate(transcripts[idx].CleanedContent)
			estimated += estimateTokens(texts[j])
		}

		result, err := a.batchEmbedWithRetry(ctx, texts, estimated)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			a.logger.Error("Embedding chunk failed, leaving placeholders",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			continue
		}

		a.recordUsage(ctx, result.TotalTokens, 1)

		for j, idx := range chunk {
			vec := result.Embeddings[j]
			out[idx] = vec
			if err := a.vectors.SaveVector(ctx, transcripts[idx].Filename, vec); err != nil {
				a.logger.Warn("Failed to persist embedding",
					zap.String("filename", transcripts[idx].Filename), zap.Error(err))
			}
		}
	}

	return out, nil
}

// embedWithRetry reserves limiter capacity and calls the provider, backing
// off exponentially on rate-limit errors: 2s, 4s, 8s.
func (a *Accessor) embedWithRetry(ctx context.Context, text string, estimated int) (domain.EmbeddingResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := a.limiter.Reserve(ctx, estimated); err != nil {
			return domain.EmbeddingResult{}, err
		}

		result, err := a.embedder.Embed(ctx, text)
		if err == nil {
			a.limiter.RecordUsage(result.TotalTokens)
			return result, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrRateLimited) || attempt == maxRetries-1 {
			return domain.EmbeddingResult{}, err
		}

		wait := retryBase << attempt
		a.logger.Warn("Provider rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))
		if err := a.sleep(ctx, wait); err != nil {
			return domain.EmbeddingResult{}, err
		}
	}
	return domain.EmbeddingResult{}, lastErr
}

func (a *Accessor) batchEmbedWithRetry(ctx context.Context, texts []string, estimated int) (domain.BatchEmbeddingResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := a.limiter.Reserve(ctx, estimated); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		result, err := a.batch.BatchEmbed(ctx, texts)
		if err == nil {
			a.limiter.RecordUsage(result.TotalTokens)
			return result, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrRateLimited) || attempt == maxRetries-1 {
			return domain.BatchEmbeddingResult{}, err
		}

		wait := retryBase << attempt
		a.logger.Warn("Provider rate limited on batch, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))
		if err := a.sleep(ctx, wait); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
	}
	return domain.BatchEmbeddingResult{}, lastErr
}

// recordUsage feeds the monthly tracker; failures are logged, never fatal.
func (a *Accessor) recordUsage(ctx context.Context, tokens, requests int) {
	if a.usage == nil {
		return
	}
	if _, err := a.usage.AddTokens(ctx, int64(tokens)); err != nil {
		a.logger.Warn("Failed to record token usage", zap.Error(err))
	}
	if _, err := a.usage.AddRequests(ctx, int64(requests)); err != nil {
		a.logger.Warn("Failed to record request usage", zap.Error(err))
	}
}

// truncate caps text at maxEmbedChars, snapping the cut to a rune boundary
// so accented text is never split mid-sequence.
func truncate(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	cut := maxEmbedChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// estimateTokens approximates token count as one per four characters.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < minTokenEstimate {
		return minTokenEstimate
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
