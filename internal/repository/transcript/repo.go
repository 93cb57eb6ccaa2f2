// Package transcript persists call transcripts as Redis hashes, one hash
// per transcript keyed by filename.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Bryant-Tello/Entel/internal/db"
	"github.com/Bryant-Tello/Entel/internal/domain"
)

// store is the consumer interface for transcript storage (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements the transcript repositories consumed by the usecase layer.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates a transcript repository. keyPrefix namespaces every key,
// e.g. "entel:".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix}
}

// Save writes the full transcript hash, overwriting any previous version.
func (r *Repo) Save(ctx context.Context, t *domain.Transcript) error {
	key := r.key(t.Filename)
	if err := r.store.HSet(ctx, key, buildHashFields(t)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Get returns a transcript by filename.
func (r *Repo) Get(ctx context.Context, filename string) (domain.Transcript, error) {
	key := r.key(filename)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return domain.Transcript{}, domain.ErrNotFound
	}
	return parseHashFields(filename, m), nil
}

// Exists reports whether a transcript is stored under the filename.
func (r *Repo) Exists(ctx context.Context, filename string) (bool, error) {
	ok, err := r.store.Exists(ctx, r.key(filename))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", filename, err)
	}
	return ok, nil
}

// List returns all stored transcripts.
func (r *Repo) List(ctx context.Context) ([]domain.Transcript, error) {
	keys, err := r.store.Scan(ctx, r.pattern())
	if err != nil {
		return nil, fmt.Errorf("scan transcripts: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w", err)
	}

	out := make([]domain.Transcript, 0, len(keys))
	for i, m := range maps {
		if len(m) == 0 {
			// Deleted between SCAN and HGETALL.
			continue
		}
		out = append(out, parseHashFields(r.filename(keys[i]), m))
	}
	return out, nil
}

// Delete removes a transcript. Returns domain.ErrNotFound when absent.
func (r *Repo) Delete(ctx context.Context, filename string) error {
	key := r.key(filename)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every stored transcript and returns the count.
func (r *Repo) DeleteAll(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.pattern())
	if err != nil {
		return 0, fmt.Errorf("scan transcripts: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("del multi: %w", err)
	}
	return len(keys), nil
}

// SaveVector updates only the embedding fields of an existing transcript.
func (r *Repo) SaveVector(ctx context.Context, filename string, vector []float32) error {
	key := r.key(filename)
	fields := map[string]string{
		fieldEmbedding: vectorToBytes(vector),
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset vector %s: %w", key, err)
	}
	return nil
}

// SaveAnalysis updates the classification fields of an existing transcript.
// Unclassified results are not persisted.
func (r *Repo) SaveAnalysis(ctx context.Context, filename string, c domain.Classification) error {
	if !c.Classified() {
		return nil
	}
	key := r.key(filename)
	kw, err := marshalKeywords(c.Keywords())
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	fields := map[string]string{
		fieldCategory:  string(c.Category()),
		fieldMainTopic: c.MainTopic(),
		fieldKeywords:  kw,
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset analysis %s: %w", key, err)
	}
	return nil
}

// IsNotFound reports whether err means the transcript does not exist,
// either at the domain or storage level.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, db.ErrKeyNotFound)
}

func (r *Repo) key(filename string) string {
	return r.keyPrefix + "transcript:" + filename
}

func (r *Repo) pattern() string {
	return r.keyPrefix + "transcript:*"
}

func (r *Repo) filename(key string) string {
	return strings.TrimPrefix(key, r.keyPrefix+"transcript:")
}
