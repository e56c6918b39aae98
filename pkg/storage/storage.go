// Package storage provides the persistent blob store behind named cache stores.
//
// A Backend holds any number of named stores. Each store maps string keys to
// opaque byte values. Keys are always enumerated in lexicographic order, which
// callers rely on for FIFO queues with sortable keys.
//
// Implementations must be safe for concurrent use. Every single read or write is
// atomic; there are no multi-key transactions.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the key does not exist in the store.
	ErrNotFound = errors.New("key not found")

	// ErrStoreNotFound indicates the named store does not exist.
	ErrStoreNotFound = errors.New("store not found")
)

// Backend is a persistent mapping of store name -> key -> value.
type Backend interface {
	// CreateStore creates the store if it does not exist yet. Idempotent.
	CreateStore(ctx context.Context, store string) error

	// HasStore reports whether the store exists.
	HasStore(ctx context.Context, store string) (bool, error)

	// Stores returns the names of all existing stores, sorted.
	Stores(ctx context.Context) ([]string, error)

	// DropStore deletes the store and every entry in it.
	// Dropping a missing store is not an error.
	DropStore(ctx context.Context, store string) error

	// Get returns the value for key, or ErrNotFound.
	// Reading from a missing store returns ErrNotFound as well.
	Get(ctx context.Context, store, key string) ([]byte, error)

	// Put writes value under key, overwriting any previous value.
	// Returns ErrStoreNotFound if the store has not been created.
	Put(ctx context.Context, store, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, store, key string) error

	// Keys returns all keys in the store in lexicographic order.
	Keys(ctx context.Context, store string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
