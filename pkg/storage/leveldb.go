package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	levelStorePrefix = "s:"
	levelEntryPrefix = "e:"
	levelSeparator   = "\x00"
)

// LevelDBBackend keeps stores in an embedded LevelDB directory.
//
// Layout:
//
//	s:<store>              registry marker
//	e:<store>\x00<key>     entry value
type LevelDBBackend struct {
	db *leveldb.DB
}

// NewLevelDBBackend opens (or creates) the database directory at path.
func NewLevelDBBackend(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBBackend{db: db}, nil
}

func storeMarker(store string) []byte {
	return []byte(levelStorePrefix + store)
}

func entryPrefix(store string) []byte {
	return []byte(levelEntryPrefix + store + levelSeparator)
}

func entryKey(store, key string) []byte {
	return append(entryPrefix(store), key...)
}

func (l *LevelDBBackend) CreateStore(_ context.Context, store string) error {
	if err := l.db.Put(storeMarker(store), nil, nil); err != nil {
		return fmt.Errorf("leveldb create store: %w", err)
	}
	return nil
}

func (l *LevelDBBackend) HasStore(_ context.Context, store string) (bool, error) {
	ok, err := l.db.Has(storeMarker(store), nil)
	if err != nil {
		return false, fmt.Errorf("leveldb has store: %w", err)
	}
	return ok, nil
}

func (l *LevelDBBackend) Stores(_ context.Context) ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(levelStorePrefix)), nil)
	defer it.Release()

	names := make([]string, 0)
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte(levelStorePrefix))))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("leveldb list stores: %w", err)
	}
	return names, nil
}

func (l *LevelDBBackend) DropStore(_ context.Context, store string) error {
	batch := new(leveldb.Batch)

	it := l.db.NewIterator(util.BytesPrefix(entryPrefix(store)), nil)
	for it.Next() {
		key := make([]byte, len(it.Key()))
		copy(key, it.Key())
		batch.Delete(key)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("leveldb scan store: %w", err)
	}
	batch.Delete(storeMarker(store))

	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb drop store: %w", err)
	}
	return nil
}

func (l *LevelDBBackend) Get(_ context.Context, store, key string) ([]byte, error) {
	value, err := l.db.Get(entryKey(store, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return value, nil
}

func (l *LevelDBBackend) Put(ctx context.Context, store, key string, value []byte) error {
	exists, err := l.HasStore(ctx, store)
	if err != nil {
		return err
	}
	if !exists {
		return ErrStoreNotFound
	}
	if err := l.db.Put(entryKey(store, key), value, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (l *LevelDBBackend) Delete(_ context.Context, store, key string) error {
	if err := l.db.Delete(entryKey(store, key), nil); err != nil {
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

func (l *LevelDBBackend) Keys(_ context.Context, store string) ([]string, error) {
	prefix := entryPrefix(store)
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	keys := make([]string, 0)
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("leveldb keys: %w", err)
	}
	return keys, nil
}

func (l *LevelDBBackend) Close() error {
	return l.db.Close()
}
