package transcript

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/Bryant-Tello/Entel/internal/domain"
)

// Hash field names. The embedding is stored as raw little-endian float32
// bytes, keywords as a JSON array.
const (
	fieldRawContent     = "raw_content"
	fieldCleanedContent = "cleaned_content"
	fieldEmbedding      = "embedding"
	fieldCategory       = "category"
	fieldMainTopic      = "main_topic"
	fieldKeywords       = "keywords"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
)

// buildHashFields converts a domain Transcript into a flat map for HSET.
func buildHashFields(t *domain.Transcript) map[string]string {
	m := map[string]string{
		fieldRawContent:     t.RawContent,
		fieldCleanedContent: t.CleanedContent,
		fieldCreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		fieldUpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if len(t.Embedding) > 0 {
		m[fieldEmbedding] = vectorToBytes(t.Embedding)
	}
	if t.Category != "" {
		m[fieldCategory] = string(t.Category)
	}
	if t.MainTopic != "" {
		m[fieldMainTopic] = t.MainTopic
	}
	if len(t.Keywords) > 0 {
		if kw, err := marshalKeywords(t.Keywords); err == nil {
			m[fieldKeywords] = kw
		}
	}
	return m
}

// parseHashFields converts a flat hash map back into a domain Transcript.
func parseHashFields(filename string, m map[string]string) domain.Transcript {
	t := domain.Transcript{
		Filename:       filename,
		RawContent:     m[fieldRawContent],
		CleanedContent: m[fieldCleanedContent],
		Category:       domain.Category(m[fieldCategory]),
		MainTopic:      m[fieldMainTopic],
	}
	if raw := m[fieldEmbedding]; raw != "" {
		t.Embedding = bytesToVector(raw)
	}
	if raw := m[fieldKeywords]; raw != "" {
		var kw []string
		if err := json.Unmarshal([]byte(raw), &kw); err == nil {
			t.Keywords = kw
		}
	}
	if ts, err := time.Parse(time.RFC3339, m[fieldCreatedAt]); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, m[fieldUpdatedAt]); err == nil {
		t.UpdatedAt = ts
	}
	return t
}

func marshalKeywords(kw []string) (string, error) {
	b, err := json.Marshal(kw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
