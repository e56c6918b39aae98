package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteBackend keeps stores in a single SQLite database file.
// Writes are serialized through a mutex; reads go straight to the pool.
type SQLiteBackend struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteBackend opens (or creates) the database at filename.
// An empty filename opens a private in-memory database.
func NewSQLiteBackend(filename string) (*SQLiteBackend, error) {
	if filename == "" {
		filename = ":memory:"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if filename == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			store TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			PRIMARY KEY (store, key)
		)`,
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}

	return &SQLiteBackend{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteBackend) CreateStore(ctx context.Context, store string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO stores (name) VALUES (?)", store)
	if err != nil {
		return fmt.Errorf("sqlite create store: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) HasStore(ctx context.Context, store string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM stores WHERE name = ?", store).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite has store: %w", err)
	}
	return true, nil
}

func (s *SQLiteBackend) Stores(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM stores ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite list stores: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite scan store: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteBackend) DropStore(ctx context.Context, store string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE store = ?", store); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite drop entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM stores WHERE name = ?", store); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite drop store: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Get(ctx context.Context, store, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM entries WHERE store = ? AND key = ?", store, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	return value, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, store, key string, value []byte) error {
	exists, err := s.HasStore(ctx, store)
	if err != nil {
		return err
	}
	if !exists {
		return ErrStoreNotFound
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (store, key, value) VALUES (?, ?, ?)", store, key, value)
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, store, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE store = ? AND key = ?", store, key)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Keys(ctx context.Context, store string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM entries WHERE store = ? ORDER BY key", store)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
