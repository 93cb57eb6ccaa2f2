package domain

import "time"

// DefaultEmbeddingDimensions is the vector size of text-embedding-3-small.
const DefaultEmbeddingDimensions = 1536

// Transcript is a call-center transcript record. Filename is the stable key
// across uploads. RawContent may be empty: only the cleaned text is required
// for search and classification. Embedding is nil until the record has been
// vectorized; only embedded records are search-eligible.
type Transcript struct {
	Filename       string
	RawContent     string
	CleanedContent string
	Embedding      []float32
	Category       Category
	MainTopic      string
	Keywords       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasVector reports whether the record carries a vector of the given dimension.
func (t *Transcript) HasVector(dims int) bool {
	return len(t.Embedding) == dims
}
