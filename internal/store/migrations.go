package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// currentSchemaVersion is the schema version this build understands. Bump it
// whenever the migration ladder below gains a new rung.
const currentSchemaVersion = 2

type schemaMetaRow struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// v1Migrations defines the nodes/edges/embeddings tables without
// content_hash — the shape a v1 database was created with.
var v1Migrations = []string{
	`DEFINE TABLE nodes SCHEMALESS`,
	`DEFINE FIELD id ON nodes TYPE string`,
	`DEFINE FIELD kind ON nodes TYPE string`,
	`DEFINE FIELD name ON nodes TYPE string`,
	`DEFINE FIELD package ON nodes TYPE option<string>`,
	`DEFINE FIELD file_path ON nodes TYPE string`,
	`DEFINE FIELD start_line ON nodes TYPE int`,
	`DEFINE FIELD end_line ON nodes TYPE int`,
	`DEFINE FIELD exported ON nodes TYPE bool`,
	`DEFINE FIELD properties ON nodes TYPE object`,
	`DEFINE INDEX idx_nodes_id ON nodes FIELDS id UNIQUE`,
	`DEFINE INDEX idx_nodes_file ON nodes FIELDS file_path`,
	`DEFINE INDEX idx_nodes_kind ON nodes FIELDS kind`,
	`DEFINE INDEX idx_nodes_name ON nodes FIELDS name`,
	`DEFINE INDEX idx_nodes_package ON nodes FIELDS package`,
	`DEFINE INDEX idx_nodes_exported ON nodes FIELDS exported`,

	`DEFINE TABLE edges SCHEMALESS`,
	`DEFINE FIELD id ON edges TYPE string`,
	`DEFINE FIELD source_id ON edges TYPE string`,
	`DEFINE FIELD target_id ON edges TYPE string`,
	`DEFINE FIELD kind ON edges TYPE string`,
	`DEFINE FIELD call_count ON edges TYPE option<int>`,
	`DEFINE FIELD call_sites ON edges TYPE option<array>`,
	`DEFINE FIELD is_type_only ON edges TYPE option<bool>`,
	`DEFINE FIELD imported_symbols ON edges TYPE option<array>`,
	`DEFINE FIELD context ON edges TYPE option<string>`,
	`DEFINE FIELD reference_context ON edges TYPE option<string>`,
	`DEFINE INDEX idx_edges_id ON edges FIELDS id UNIQUE`,
	`DEFINE INDEX idx_edges_source ON edges FIELDS source_id`,
	`DEFINE INDEX idx_edges_target ON edges FIELDS target_id`,
	`DEFINE INDEX idx_edges_kind ON edges FIELDS kind`,
	`DEFINE INDEX idx_edges_source_kind ON edges FIELDS source_id, kind`,
	`DEFINE INDEX idx_edges_target_kind ON edges FIELDS target_id, kind`,

	`DEFINE TABLE embeddings SCHEMALESS`,
	`DEFINE FIELD node_id ON embeddings TYPE string`,
	`DEFINE FIELD vector ON embeddings TYPE array<float>`,
	`DEFINE INDEX idx_embeddings_node ON embeddings FIELDS node_id UNIQUE`,
}

// v2AdditiveMigrations is the single additive rung §4.2 allows: adding
// content_hash to an existing v1 nodes table.
var v2AdditiveMigrations = []string{
	`DEFINE FIELD content_hash ON nodes TYPE option<string>`,
}

var dropTables = []string{
	`REMOVE TABLE IF EXISTS nodes`,
	`REMOVE TABLE IF EXISTS edges`,
	`REMOVE TABLE IF EXISTS embeddings`,
	`REMOVE TABLE IF EXISTS schema_meta`,
}

// RunMigrations brings the database up to currentSchemaVersion. A missing
// schema_meta row is treated as a fresh database. A stored version greater
// than currentSchemaVersion is fatal per §7 (*SchemaError). Version 1 → 2 is
// the one additive migration §4.2 names; anything else drops and recreates,
// which is acceptable because the store is a cache of source code.
func (s *Storage) RunMigrations(ctx context.Context) error {
	stored, found, err := s.readSchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case !found:
		if err := s.applyAll(ctx, v1Migrations); err != nil {
			return err
		}
		if err := s.applyAll(ctx, v2AdditiveMigrations); err != nil {
			return err
		}
	case stored > currentSchemaVersion:
		return &SchemaError{StoredVersion: stored, CurrentVersion: currentSchemaVersion}
	case stored == currentSchemaVersion:
		return nil
	case stored == 1 && currentSchemaVersion == 2:
		if err := s.applyAll(ctx, v2AdditiveMigrations); err != nil {
			return err
		}
	default:
		if err := s.applyAll(ctx, dropTables); err != nil {
			return err
		}
		if err := s.applyAll(ctx, v1Migrations); err != nil {
			return err
		}
		if err := s.applyAll(ctx, v2AdditiveMigrations); err != nil {
			return err
		}
	}

	return s.writeSchemaVersion(ctx, currentSchemaVersion)
}

func (s *Storage) readSchemaVersion(ctx context.Context) (version int, found bool, err error) {
	results, err := surrealdb.Query[[]schemaMetaRow](ctx, s.db, `SELECT * FROM schema_meta:version`, nil)
	if err != nil {
		// "table schema_meta not found" on first run — treat as not found.
		return 0, false, nil
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, false, nil
	}
	return (*results)[0].Result[0].Version, true, nil
}

func (s *Storage) writeSchemaVersion(ctx context.Context, version int) error {
	query := `UPSERT schema_meta SET id = $id, version = $version WHERE id = $id`
	_, err := surrealdb.Query[any](ctx, s.db, query, map[string]any{
		"id":      "schema_meta:version",
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// applyAll runs each migration statement, tolerating "already exists"-class
// errors (the migration ladder is applied unconditionally on every open) and
// logging anything else as a warning rather than aborting — a single DEFINE
// statement failing for a real reason (permissions, syntax) shouldn't stop
// every other table from coming up.
func (s *Storage) applyAll(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if err := s.query(ctx, stmt, nil); err != nil {
			if isBenignSchemaError(err) {
				continue
			}
			log.Printf("Warning: migration statement failed: %s: %v", stmt, err)
		}
	}
	return nil
}

func isBenignSchemaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already defined") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate index") ||
		strings.Contains(msg, "duplicate field")
}
