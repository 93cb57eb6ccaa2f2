// Package usage persists monthly provider consumption counters.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Bryant-Tello/Entel/internal/db"
)

// store is the consumer interface for usage counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// monthTTL keeps a finished month readable for a full billing cycle after
// it rolls over.
const monthTTL = 62 * 24 * time.Hour

// Store tracks token and request counters per calendar month
// (INCRBY + EXPIRE NX).
type Store struct {
	store     store
	keyPrefix string
	now       func() time.Time
}

// New creates a usage store. keyPrefix namespaces every key, e.g. "entel:".
func New(s store, keyPrefix string) *Store {
	return &Store{store: s, keyPrefix: keyPrefix, now: time.Now}
}

// AddTokens atomically adds consumed tokens to the current month and returns
// the new monthly total.
func (s *Store) AddTokens(ctx context.Context, tokens int64) (int64, error) {
	key := s.tokenKey(s.currentMonth())

	total, err := s.store.IncrBy(ctx, key, tokens)
	if err != nil {
		return 0, fmt.Errorf("usage INCRBY %s: %w", key, err)
	}

	// Set TTL only if the key has no expiry yet (NX, not reset on repeat).
	if err := s.store.Expire(ctx, key, monthTTL, true); err != nil {
		return 0, fmt.Errorf("usage EXPIRE %s: %w", key, err)
	}

	return total, nil
}

// AddRequests atomically adds provider requests to the current month.
func (s *Store) AddRequests(ctx context.Context, requests int64) (int64, error) {
	key := s.requestKey(s.currentMonth())

	total, err := s.store.IncrBy(ctx, key, requests)
	if err != nil {
		return 0, fmt.Errorf("usage INCRBY %s: %w", key, err)
	}
	if err := s.store.Expire(ctx, key, monthTTL, true); err != nil {
		return 0, fmt.Errorf("usage EXPIRE %s: %w", key, err)
	}
	return total, nil
}

// Tokens returns the token total for the current month, 0 when the key does
// not exist.
func (s *Store) Tokens(ctx context.Context) (int64, error) {
	return s.read(ctx, s.tokenKey(s.currentMonth()))
}

// Requests returns the request total for the current month.
func (s *Store) Requests(ctx context.Context) (int64, error) {
	return s.read(ctx, s.requestKey(s.currentMonth()))
}

func (s *Store) read(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("usage GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage GET %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) currentMonth() string {
	return s.now().UTC().Format("2006-01")
}

func (s *Store) tokenKey(month string) string {
	return s.keyPrefix + "usage:tokens:" + month
}

func (s *Store) requestKey(month string) string {
	return s.keyPrefix + "usage:requests:" + month
}
