package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

type mockEmbedder struct {
	results []domain.EmbeddingResult
	errs    []error
	calls   int
	texts   []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	i := m.calls
	m.calls++
	m.texts = append(m.texts, text)
	if i < len(m.errs) && m.errs[i] != nil {
		return domain.EmbeddingResult{}, m.errs[i]
	}
	if i < len(m.results) {
		return m.results[i], nil
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3}, TotalTokens: 5}, nil
}

type mockBatchEmbedder struct {
	errs  []error
	calls int
	sizes []int
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	i := m.calls
	m.calls++
	m.sizes = append(m.sizes, len(texts))
	if i < len(m.errs) && m.errs[i] != nil {
		return domain.BatchEmbeddingResult{}, m.errs[i]
	}
	embeddings := make([][]float32, len(texts))
	for j := range texts {
		embeddings[j] = []float32{float32(j)}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, TotalTokens: 10 * len(texts)}, nil
}

type mockLimiter struct {
	reserved []int
	recorded []int
}

func (m *mockLimiter) Reserve(_ context.Context, estimated int) error {
	m.reserved = append(m.reserved, estimated)
	return nil
}

func (m *mockLimiter) RecordUsage(actual int) {
	m.recorded = append(m.recorded, actual)
}

type mockVectorWriter struct {
	saved map[string][]float32
	err   error
}

func (m *mockVectorWriter) SaveVector(_ context.Context, filename string, vec []float32) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string][]float32)
	}
	m.saved[filename] = vec
	return nil
}

type mockUsage struct {
	tokens   int64
	requests int64
}

func (m *mockUsage) AddTokens(_ context.Context, n int64) (int64, error) {
	m.tokens += n
	return m.tokens, nil
}

func (m *mockUsage) AddRequests(_ context.Context, n int64) (int64, error) {
	m.requests += n
	return m.requests, nil
}

type fixture struct {
	acc     *Accessor
	emb     *mockEmbedder
	batch   *mockBatchEmbedder
	limiter *mockLimiter
	vectors *mockVectorWriter
	usage   *mockUsage
	slept   []time.Duration
}

func newFixture(t *testing.T, dims int) *fixture {
	t.Helper()
	f := &fixture{
		emb:     &mockEmbedder{},
		batch:   &mockBatchEmbedder{},
		limiter: &mockLimiter{},
		vectors: &mockVectorWriter{},
		usage:   &mockUsage{},
	}
	f.acc = New(f.emb, f.batch, f.vectors, f.limiter, f.usage, dims, zap.NewNop())
	f.acc.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
}

func TestGetOrCreate_ExistingVectorSkipsProvider(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{
		Filename:       "a.txt",
		CleanedContent: "texto",
		Embedding:      []float32{1, 2, 3},
	}

	vec, err := f.acc.GetOrCreate(context.Background(), &tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected stored vector, got %v", vec)
	}
	if f.emb.calls != 0 {
		t.Errorf("provider called %d times for a stored vector", f.emb.calls)
	}
}

func TestGetOrCreate_WrongDimensionRecomputes(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{
		Filename:       "a.txt",
		CleanedContent: "texto",
		Embedding:      []float32{1, 2}, // stale dimension
	}
	f.emb.results = []domain.EmbeddingResult{{Embedding: []float32{9, 9, 9}, TotalTokens: 7}}

	vec, err := f.acc.GetOrCreate(context.Background(), &tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 9 {
		t.Fatalf("expected recomputed vector, got %v", vec)
	}
	if f.emb.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", f.emb.calls)
	}
}

func TestGetOrCreate_EmptyContentIsNil(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{Filename: "empty.txt"}

	vec, err := f.acc.GetOrCreate(context.Background(), &tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil vector, got %v", vec)
	}
	if f.emb.calls != 0 {
		t.Errorf("provider must not be called for empty content")
	}
}

func TestGetOrCreate_TruncatesAndEstimates(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{
		Filename:       "long.txt",
		CleanedContent: strings.Repeat("x", maxEmbedChars+500),
	}

	if _, err := f.acc.GetOrCreate(context.Background(), &tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.emb.texts[0]) != maxEmbedChars {
		t.Errorf("text length = %d, want %d", len(f.emb.texts[0]), maxEmbedChars)
	}
	if f.limiter.reserved[0] != maxEmbedChars/4 {
		t.Errorf("reserved = %d, want %d", f.limiter.reserved[0], maxEmbedChars/4)
	}
}

func TestGetOrCreate_MinimumTokenEstimate(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{Filename: "tiny.txt", CleanedContent: "hola"}

	if _, err := f.acc.GetOrCreate(context.Background(), &tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.limiter.reserved[0] != minTokenEstimate {
		t.Errorf("reserved = %d, want %d", f.limiter.reserved[0], minTokenEstimate)
	}
}

func TestGetOrCreate_RetriesOnRateLimit(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{Filename: "a.txt", CleanedContent: "texto"}
	f.emb.errs = []error{domain.ErrRateLimited, domain.ErrRateLimited, nil}
	f.emb.results = []domain.EmbeddingResult{{}, {}, {Embedding: []float32{1, 1, 1}, TotalTokens: 3}}

	vec, err := f.acc.GetOrCreate(context.Background(), &tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec == nil {
		t.Fatal("expected vector after retries")
	}
	if f.emb.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", f.emb.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(f.slept) != 2 || f.slept[0] != want[0] || f.slept[1] != want[1] {
		t.Errorf("backoff = %v, want %v", f.slept, want)
	}
}

func TestGetOrCreate_GivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{Filename: "a.txt", CleanedContent: "texto"}
	f.emb.errs = []error{domain.ErrRateLimited, domain.ErrRateLimited, domain.ErrRateLimited}

	_, err := f.acc.GetOrCreate(context.Background(), &tr)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if f.emb.calls != maxRetries {
		t.Errorf("expected %d attempts, got %d", maxRetries, f.emb.calls)
	}
}

func TestGetOrCreate_NonRateLimitErrorFailsFast(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{Filename: "a.txt", CleanedContent: "texto"}
	f.emb.errs = []error{domain.ErrProviderUnavailable}

	_, err := f.acc.GetOrCreate(context.Background(), &tr)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if f.emb.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", f.emb.calls)
	}
}

func TestGetOrCreate_PersistsAndRecordsUsage(t *testing.T) {
	f := newFixture(t, 3)
	tr := domain.Transcript{Filename: "a.txt", CleanedContent: "texto"}
	f.emb.results = []domain.EmbeddingResult{{Embedding: []float32{1, 2, 3}, TotalTokens: 42}}

	if _, err := f.acc.GetOrCreate(context.Background(), &tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.vectors.saved["a.txt"]; len(got) != 3 {
		t.Errorf("vector not persisted: %v", got)
	}
	if len(f.limiter.recorded) != 1 || f.limiter.recorded[0] != 42 {
		t.Errorf("limiter usage = %v, want [42]", f.limiter.recorded)
	}
	if f.usage.tokens != 42 || f.usage.requests != 1 {
		t.Errorf("usage tokens=%d requests=%d", f.usage.tokens, f.usage.requests)
	}
	if len(tr.Embedding) != 3 {
		t.Error("transcript embedding not updated in place")
	}
}

func TestEmbedText_ReservesAndRecordsUsage(t *testing.T) {
	f := newFixture(t, 3)
	f.emb.results = []domain.EmbeddingResult{{Embedding: []float32{1, 0, 0}, TotalTokens: 17}}

	result, err := f.acc.EmbedText(context.Background(), "problema con la boleta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if len(f.limiter.reserved) != 1 || f.limiter.reserved[0] != minTokenEstimate {
		t.Errorf("reserved = %v, want [%d]", f.limiter.reserved, minTokenEstimate)
	}
	if len(f.limiter.recorded) != 1 || f.limiter.recorded[0] != 17 {
		t.Errorf("limiter usage = %v, want [17]", f.limiter.recorded)
	}
	if f.usage.tokens != 17 || f.usage.requests != 1 {
		t.Errorf("usage tokens=%d requests=%d", f.usage.tokens, f.usage.requests)
	}
}

func TestEmbedText_RetriesOnRateLimit(t *testing.T) {
	f := newFixture(t, 3)
	f.emb.errs = []error{domain.ErrRateLimited, nil}
	f.emb.results = []domain.EmbeddingResult{{}, {Embedding: []float32{1, 1, 1}, TotalTokens: 3}}

	if _, err := f.acc.EmbedText(context.Background(), "texto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.emb.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", f.emb.calls)
	}
	if len(f.limiter.reserved) != 2 {
		t.Errorf("each attempt must reserve capacity, got %v", f.limiter.reserved)
	}
	if len(f.slept) != 1 || f.slept[0] != 2*time.Second {
		t.Errorf("backoff = %v, want [2s]", f.slept)
	}
}

func TestEmbedText_TruncatesLongText(t *testing.T) {
	f := newFixture(t, 3)

	if _, err := f.acc.EmbedText(context.Background(), strings.Repeat("x", maxEmbedChars+99)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.emb.texts[0]) != maxEmbedChars {
		t.Errorf("text length = %d, want %d", len(f.emb.texts[0]), maxEmbedChars)
	}
}

func TestEnsureBatch_ChunksAtProviderLimit(t *testing.T) {
	f := newFixture(t, 1)

	transcripts := make([]domain.Transcript, 150)
	for i := range transcripts {
		transcripts[i] = domain.Transcript{Filename: "f.txt", CleanedContent: "texto"}
	}

	out, err := f.acc.EnsureBatch(context.Background(), transcripts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 150 {
		t.Fatalf("expected 150 results, got %d", len(out))
	}
	if f.batch.calls != 2 {
		t.Fatalf("expected 2 chunks, got %d", f.batch.calls)
	}
	if f.batch.sizes[0] != 100 || f.batch.sizes[1] != 50 {
		t.Errorf("chunk sizes = %v, want [100 50]", f.batch.sizes)
	}
}

func TestEnsureBatch_SkipsStoredAndEmpty(t *testing.T) {
	f := newFixture(t, 2)

	transcripts := []domain.Transcript{
		{Filename: "stored.txt", CleanedContent: "a", Embedding: []float32{1, 2}},
		{Filename: "empty.txt"},
		{Filename: "pending.txt", CleanedContent: "b"},
	}

	out, err := f.acc.EnsureBatch(context.Background(), transcripts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0][0] != 1 {
		t.Errorf("stored vector not passed through: %v", out[0])
	}
	if out[1] != nil {
		t.Errorf("empty transcript must stay nil, got %v", out[1])
	}
	if out[2] == nil {
		t.Error("pending transcript not embedded")
	}
	if f.batch.sizes[0] != 1 {
		t.Errorf("expected a single pending text, got %v", f.batch.sizes)
	}
}

func TestEnsureBatch_FailedChunkLeavesPlaceholders(t *testing.T) {
	f := newFixture(t, 1)
	f.batch.errs = []error{
		domain.ErrProviderUnavailable, // first chunk fails outright
		nil,                           // second chunk succeeds
	}

	transcripts := make([]domain.Transcript, 101)
	for i := range transcripts {
		transcripts[i] = domain.Transcript{Filename: "f.txt", CleanedContent: "texto"}
	}

	out, err := f.acc.EnsureBatch(context.Background(), transcripts)
	if err != nil {
		t.Fatalf("a failed chunk must not abort the batch: %v", err)
	}
	for i := 0; i < 100; i++ {
		if out[i] != nil {
			t.Fatalf("index %d should be a nil placeholder", i)
		}
	}
	if out[100] == nil {
		t.Error("second chunk should have succeeded")
	}
}

func TestEnsureBatch_ReservesChunkEstimate(t *testing.T) {
	f := newFixture(t, 1)

	transcripts := []domain.Transcript{
		{Filename: "a.txt", CleanedContent: strings.Repeat("x", 800)},
		{Filename: "b.txt", CleanedContent: "corto"},
	}

	if _, err := f.acc.EnsureBatch(context.Background(), transcripts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 800/4 = 200 plus the 100-token floor for the short text.
	if f.limiter.reserved[0] != 300 {
		t.Errorf("reserved = %d, want 300", f.limiter.reserved[0])
	}
}
