package upload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

type mockRepo struct {
	saved      *domain.Transcript
	saveErr    error
	deleted    string
	deleteErr  error
	deletedAll int
	listed     []domain.Transcript
}

func (m *mockRepo) Save(ctx context.Context, t *domain.Transcript) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *t
	m.saved = &cp
	return nil
}

func (m *mockRepo) Get(ctx context.Context, filename string) (domain.Transcript, error) {
	if m.saved != nil && m.saved.Filename == filename {
		return *m.saved, nil
	}
	return domain.Transcript{}, domain.ErrNotFound
}

func (m *mockRepo) List(ctx context.Context) ([]domain.Transcript, error) { return m.listed, nil }

func (m *mockRepo) Delete(ctx context.Context, filename string) error {
	m.deleted = filename
	return m.deleteErr
}

func (m *mockRepo) DeleteAll(ctx context.Context) (int, error) { return m.deletedAll, nil }

type mockVectorizer struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockVectorizer) GetOrCreate(ctx context.Context, t *domain.Transcript) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	t.Embedding = m.vector
	return m.vector, nil
}

type mockAnalyzer struct {
	result domain.Classification
	err    error
	calls  int
}

func (m *mockAnalyzer) Classify(ctx context.Context, t *domain.Transcript) (domain.Classification, error) {
	m.calls++
	return m.result, m.err
}

type mockBudget struct {
	err error
}

func (m *mockBudget) Authorize(ctx context.Context) error { return m.err }

const sampleTranscript = `[00:00:05] AGENTE: Buenas tardes, le atiende Carolina.
[00:00:12] CLIENTE: Hola, llamo por un cobro doble en mi boleta.`

func newService(repo *mockRepo, vec *mockVectorizer, an *mockAnalyzer, budget BudgetGate) *Service {
	svc := New(repo, vec, an, budget, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestUploadHappyPath(t *testing.T) {
	repo := &mockRepo{}
	vec := &mockVectorizer{vector: []float32{1, 0}}
	an := &mockAnalyzer{result: domain.Classified(domain.CategoryComplaint, "cobro doble", []string{"cobro"})}
	svc := newService(repo, vec, an, nil)

	result, err := svc.Upload(context.Background(), "llamada_001.txt", sampleTranscript)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !result.Embedded {
		t.Fatal("expected embedded result")
	}
	if result.Category != domain.CategoryComplaint || result.MainTopic != "cobro doble" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Notes) != 0 {
		t.Fatalf("unexpected notes: %v", result.Notes)
	}

	if repo.saved == nil {
		t.Fatal("transcript not saved")
	}
	if repo.saved.RawContent != sampleTranscript {
		t.Error("raw content not preserved")
	}
	if strings.Contains(repo.saved.CleanedContent, "Carolina") {
		t.Error("agent name leaked into cleaned content")
	}
	if strings.Contains(repo.saved.CleanedContent, "[00:00:05]") {
		t.Error("timestamp leaked into cleaned content")
	}
	if repo.saved.CreatedAt != time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) {
		t.Errorf("created_at = %v", repo.saved.CreatedAt)
	}
}

func TestUploadRejectsNonTxt(t *testing.T) {
	svc := newService(&mockRepo{}, &mockVectorizer{}, &mockAnalyzer{}, nil)

	for _, name := range []string{"llamada.pdf", "llamada", "", ".txt"} {
		if _, err := svc.Upload(context.Background(), name, "contenido"); !errors.Is(err, domain.ErrInvalidFilename) {
			t.Errorf("%q: expected ErrInvalidFilename, got %v", name, err)
		}
	}
}

func TestUploadRejectsEmptyContent(t *testing.T) {
	svc := newService(&mockRepo{}, &mockVectorizer{}, &mockAnalyzer{}, nil)

	if _, err := svc.Upload(context.Background(), "a.txt", "   \n  "); !errors.Is(err, domain.ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestUploadRejectsContentEmptyAfterRedaction(t *testing.T) {
	svc := newService(&mockRepo{}, &mockVectorizer{}, &mockAnalyzer{}, nil)

	// System lines are dropped entirely by normalization.
	content := "SISTEMA: llamada iniciada\nSISTEMA: grabando"
	if _, err := svc.Upload(context.Background(), "a.txt", content); !errors.Is(err, domain.ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestUploadSaveError(t *testing.T) {
	repo := &mockRepo{saveErr: errors.New("write failed")}
	vec := &mockVectorizer{}
	svc := newService(repo, vec, &mockAnalyzer{}, nil)

	if _, err := svc.Upload(context.Background(), "a.txt", sampleTranscript); err == nil {
		t.Fatal("expected error")
	}
	if vec.calls != 0 {
		t.Fatal("enrichment should not run when save fails")
	}
}

func TestUploadEmbeddingFailureIsNote(t *testing.T) {
	repo := &mockRepo{}
	vec := &mockVectorizer{err: domain.ErrProviderUnavailable}
	an := &mockAnalyzer{}
	svc := newService(repo, vec, an, nil)

	result, err := svc.Upload(context.Background(), "a.txt", sampleTranscript)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.Embedded {
		t.Fatal("embedding should have failed")
	}
	if len(result.Notes) != 1 || !strings.Contains(result.Notes[0], "embedding failed") {
		t.Fatalf("notes = %v", result.Notes)
	}
	if an.calls != 0 {
		t.Fatal("classification must not run without an embedding")
	}
	if repo.saved == nil {
		t.Fatal("transcript should still be saved")
	}
}

func TestUploadClassificationFailureIsNote(t *testing.T) {
	repo := &mockRepo{}
	vec := &mockVectorizer{vector: []float32{1, 0}}
	an := &mockAnalyzer{err: domain.ErrRateLimited}
	svc := newService(repo, vec, an, nil)

	result, err := svc.Upload(context.Background(), "a.txt", sampleTranscript)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !result.Embedded {
		t.Fatal("expected embedded result")
	}
	if result.Category != "" {
		t.Fatalf("category = %q, want empty", result.Category)
	}
	if len(result.Notes) != 1 || !strings.Contains(result.Notes[0], "classification failed") {
		t.Fatalf("notes = %v", result.Notes)
	}
}

func TestUploadUnclassifiedIsNote(t *testing.T) {
	repo := &mockRepo{}
	vec := &mockVectorizer{vector: []float32{1, 0}}
	an := &mockAnalyzer{result: domain.Unclassified("unknown category")}
	svc := newService(repo, vec, an, nil)

	result, err := svc.Upload(context.Background(), "a.txt", sampleTranscript)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(result.Notes) != 1 || !strings.Contains(result.Notes[0], "unknown category") {
		t.Fatalf("notes = %v", result.Notes)
	}
}

func TestUploadBudgetExhaustedSkipsEnrichment(t *testing.T) {
	repo := &mockRepo{}
	vec := &mockVectorizer{vector: []float32{1, 0}}
	an := &mockAnalyzer{}
	svc := newService(repo, vec, an, &mockBudget{err: domain.ErrBudgetExceeded})

	result, err := svc.Upload(context.Background(), "a.txt", sampleTranscript)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if vec.calls != 0 || an.calls != 0 {
		t.Fatal("no provider calls expected with exhausted budget")
	}
	if len(result.Notes) != 1 || !strings.Contains(result.Notes[0], "budget") {
		t.Fatalf("notes = %v", result.Notes)
	}
	if repo.saved == nil {
		t.Fatal("transcript should still be saved")
	}
}

func TestDeletePassthrough(t *testing.T) {
	repo := &mockRepo{deletedAll: 3}
	svc := newService(repo, &mockVectorizer{}, &mockAnalyzer{}, nil)

	if err := svc.Delete(context.Background(), "a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if repo.deleted != "a.txt" {
		t.Fatalf("deleted = %q", repo.deleted)
	}

	n, err := svc.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted count = %d", n)
	}
}
