package transcript

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

// --- Save / Get ---

func TestSave_WritesAllFields(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	tr := testTranscript(t)

	var gotKey string
	var gotFields map[string]string
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		gotKey = key
		gotFields = fields
		return nil
	}

	if err := repo.Save(ctx, &tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "entel:transcript:llamada_001.txt" {
		t.Errorf("unexpected key: %s", gotKey)
	}
	if gotFields[fieldRawContent] != tr.RawContent {
		t.Errorf("raw_content = %q", gotFields[fieldRawContent])
	}
	if gotFields[fieldCategory] != "reclamo" {
		t.Errorf("category = %q", gotFields[fieldCategory])
	}
	if gotFields[fieldKeywords] != `["factura","cobro"]` {
		t.Errorf("keywords = %q", gotFields[fieldKeywords])
	}
	if len(gotFields[fieldEmbedding]) != 8*4 {
		t.Errorf("embedding field length = %d, want 32", len(gotFields[fieldEmbedding]))
	}
}

func TestGet_RoundTrip(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	tr := testTranscript(t)

	stored := buildHashFields(&tr)
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key != "entel:transcript:llamada_001.txt" {
			t.Errorf("unexpected key: %s", key)
		}
		return stored, nil
	}

	got, err := repo.Get(ctx, "llamada_001.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, tr) {
		t.Errorf("round trip mismatch:\ngot:  %+v\nwant: %+v", got, tr)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{}, nil
	}

	_, err := repo.Get(context.Background(), "missing.txt")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got %v", err)
	}
}

func TestGet_WithoutOptionalFields(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{
			fieldRawContent:     "raw",
			fieldCleanedContent: "clean",
			fieldCreatedAt:      "2025-05-01T10:00:00Z",
			fieldUpdatedAt:      "2025-05-01T10:00:00Z",
		}, nil
	}

	got, err := repo.Get(context.Background(), "plain.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Embedding != nil {
		t.Errorf("expected nil embedding, got %v", got.Embedding)
	}
	if got.Category != "" || got.MainTopic != "" || got.Keywords != nil {
		t.Errorf("expected empty analysis fields, got %+v", got)
	}
}

// --- List ---

func TestList_ScansAndFetches(t *testing.T) {
	repo, ms := newTestRepo(t)
	tr := testTranscript(t)

	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != "entel:transcript:*" {
			t.Errorf("unexpected pattern: %s", pattern)
		}
		return []string{"entel:transcript:a.txt", "entel:transcript:b.txt"}, nil
	}
	ms.hgetAllMultiF = func(_ context.Context, keys []string) ([]map[string]string, error) {
		if len(keys) != 2 {
			t.Errorf("expected 2 keys, got %d", len(keys))
		}
		return []map[string]string{buildHashFields(&tr), buildHashFields(&tr)}, nil
	}

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(got))
	}
	if got[0].Filename != "a.txt" || got[1].Filename != "b.txt" {
		t.Errorf("filenames = %q, %q", got[0].Filename, got[1].Filename)
	}
}

func TestList_SkipsVanishedKeys(t *testing.T) {
	repo, ms := newTestRepo(t)
	tr := testTranscript(t)

	ms.scanFn = func(_ context.Context, _ string) ([]string, error) {
		return []string{"entel:transcript:a.txt", "entel:transcript:gone.txt"}, nil
	}
	ms.hgetAllMultiF = func(_ context.Context, _ []string) ([]map[string]string, error) {
		return []map[string]string{buildHashFields(&tr), {}}, nil
	}

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(got))
	}
}

func TestList_Empty(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.scanFn = func(_ context.Context, _ string) ([]string, error) { return nil, nil }

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

// --- Delete ---

func TestDelete_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return false, nil }

	err := repo.Delete(context.Background(), "missing.txt")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got %v", err)
	}
}

func TestDelete_Existing(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }

	var deleted string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = key
		return nil
	}

	if err := repo.Delete(context.Background(), "llamada_001.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "entel:transcript:llamada_001.txt" {
		t.Errorf("deleted key = %q", deleted)
	}
}

func TestDeleteAll_CountsKeys(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.scanFn = func(_ context.Context, _ string) ([]string, error) {
		return []string{"entel:transcript:a.txt", "entel:transcript:b.txt", "entel:transcript:c.txt"}, nil
	}

	n, err := repo.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}
}

// --- Partial updates ---

func TestSaveVector_WritesOnlyEmbeddingFields(t *testing.T) {
	repo, ms := newTestRepo(t)

	var gotFields map[string]string
	ms.hsetFn = func(_ context.Context, _ string, fields map[string]string) error {
		gotFields = fields
		return nil
	}

	if err := repo.SaveVector(context.Background(), "a.txt", testVector(4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gotFields[fieldEmbedding]; !ok {
		t.Error("expected embedding field")
	}
	if _, ok := gotFields[fieldUpdatedAt]; !ok {
		t.Error("expected updated_at field")
	}
	if _, ok := gotFields[fieldRawContent]; ok {
		t.Error("raw_content must not be touched by SaveVector")
	}
}

func TestSaveAnalysis_Classified(t *testing.T) {
	repo, ms := newTestRepo(t)

	var gotFields map[string]string
	ms.hsetFn = func(_ context.Context, _ string, fields map[string]string) error {
		gotFields = fields
		return nil
	}

	c := domain.Classified(domain.CategoryTechnical, "corte de internet", []string{"internet", "corte"})
	if err := repo.SaveAnalysis(context.Background(), "a.txt", c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFields[fieldCategory] != "problema_tecnico" {
		t.Errorf("category = %q", gotFields[fieldCategory])
	}
	if gotFields[fieldMainTopic] != "corte de internet" {
		t.Errorf("main_topic = %q", gotFields[fieldMainTopic])
	}
	if gotFields[fieldKeywords] != `["internet","corte"]` {
		t.Errorf("keywords = %q", gotFields[fieldKeywords])
	}
}

func TestSaveAnalysis_UnclassifiedIsNoop(t *testing.T) {
	repo, ms := newTestRepo(t)

	called := false
	ms.hsetFn = func(_ context.Context, _ string, _ map[string]string) error {
		called = true
		return nil
	}

	c := domain.Unclassified("provider unavailable")
	if err := repo.SaveAnalysis(context.Background(), "a.txt", c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("unclassified result must not be persisted")
	}
}

// --- Vector codec ---

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.14159}
	out := bytesToVector(vectorToBytes(in))
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch: got %v, want %v", out, in)
	}
}

func TestBytesToVector_TruncatedPayload(t *testing.T) {
	if got := bytesToVector("abc"); got != nil {
		t.Errorf("expected nil for misaligned payload, got %v", got)
	}
}
