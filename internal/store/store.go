// Package store is the persistent graph backing: two SurrealDB tables
// (nodes, edges) written under upsert semantics, a small schema-version
// ladder, and the per-file invalidation operations the ingestion driver
// drives. Traversal reads edges one node at a time through this package;
// it does not walk SQL recursively (see internal/traversal).
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/surrealdb/surrealdb.go"

	"github.com/heefoo/codeloom/internal/config"
)

// Storage is a single-writer, multi-reader handle onto one SurrealDB
// namespace/database pair.
type Storage struct {
	db        *surrealdb.DB
	namespace string
	database  string

	fileLocksMu sync.Mutex
	fileLocks   map[string]*fileLock
}

type fileLock struct {
	mu    sync.Mutex
	count int
}

// lockFile serializes remove_file_nodes/delete_file against the same path,
// matching the single-writer model in §5: store writes are serialized, but
// two different files' invalidations can proceed concurrently.
func (s *Storage) lockFile(path string) {
	s.fileLocksMu.Lock()
	if s.fileLocks == nil {
		s.fileLocks = make(map[string]*fileLock)
	}
	fl, ok := s.fileLocks[path]
	if !ok {
		fl = &fileLock{}
		s.fileLocks[path] = fl
	}
	fl.count++
	s.fileLocksMu.Unlock()

	fl.mu.Lock()
}

func (s *Storage) unlockFile(path string) {
	s.fileLocksMu.Lock()
	defer s.fileLocksMu.Unlock()

	fl, ok := s.fileLocks[path]
	if !ok {
		return
	}
	fl.mu.Unlock()
	fl.count--
	if fl.count == 0 {
		delete(s.fileLocks, path)
	}
}

// NewStorage connects and selects the configured namespace/database. It does
// not run migrations — call RunMigrations once the caller has decided how to
// handle a SchemaError.
func NewStorage(cfg config.SurrealDBConfig) (*Storage, error) {
	ctx := context.Background()
	db, err := surrealdb.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to surrealdb: %w", err)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, map[string]interface{}{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("sign in to surrealdb: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("select namespace/database: %w", err)
	}

	return &Storage{db: db, namespace: cfg.Namespace, database: cfg.Database}, nil
}

func (s *Storage) Close() error {
	return s.db.Close(context.Background())
}

// SchemaError is returned by RunMigrations when the database's stored schema
// version is newer than this build understands. Per §7 this is fatal: the
// caller must refuse to open the store.
type SchemaError struct {
	StoredVersion  int
	CurrentVersion int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("stored schema version %d is newer than this build's version %d", e.StoredVersion, e.CurrentVersion)
}

func (s *Storage) query(ctx context.Context, q string, params map[string]any) error {
	_, err := surrealdb.Query[any](ctx, s.db, q, params)
	return err
}
