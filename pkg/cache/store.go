package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/offline-shell/pkg/storage"
)

// Store is a handle to one named store mapping RequestKey to StoredResponse.
type Store struct {
	name    string
	backend storage.Backend
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Put stores entry under key, overwriting any previous entry.
// Only 2xx responses are accepted.
func (s *Store) Put(ctx context.Context, key RequestKey, entry *StoredResponse) error {
	if !key.valid() {
		return ErrNotKeyable
	}
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if !entry.OK() {
		return fmt.Errorf("%w: status %d", ErrNotCacheable, entry.Status)
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.backend.Put(ctx, s.name, key.String(), data); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("store put: %w", err)
	}

	CacheWrites.WithLabelValues(s.name).Inc()
	return nil
}

// Match returns the entry stored under key.
// Returns ErrCacheMiss if there is none.
func (s *Store) Match(ctx context.Context, key RequestKey) (*StoredResponse, error) {
	if !key.valid() {
		return nil, ErrNotKeyable
	}

	data, err := s.backend.Get(ctx, s.name, key.String())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("store get: %w", err)
	}

	var entry StoredResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(s.name).Inc()
	return &entry, nil
}

// Delete removes the entry stored under key.
func (s *Store) Delete(ctx context.Context, key RequestKey) error {
	if err := s.backend.Delete(ctx, s.name, key.String()); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("store delete: %w", err)
	}
	return nil
}

// Keys returns all keys in the store in lexicographic order of their
// string form.
func (s *Store) Keys(ctx context.Context) ([]RequestKey, error) {
	raw, err := s.backend.Keys(ctx, s.name)
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("store keys: %w", err)
	}

	keys := make([]RequestKey, 0, len(raw))
	for _, r := range raw {
		k, err := ParseRequestKey(r)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
