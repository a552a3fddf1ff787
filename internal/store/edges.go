package store

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

// AddEdges upserts a batch of edges inside a single transaction, keyed on
// the synthetic (source, target, kind) row id — §4.3's add_edges.
func (s *Storage) AddEdges(ctx context.Context, edges []graphmodel.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	rows := make([]edgeRow, len(edges))
	for i, e := range edges {
		rows[i] = toEdgeRow(e)
	}

	query := `
		BEGIN TRANSACTION;
		FOR $row IN $rows {
			UPSERT edges SET
				id = $row.id,
				source_id = $row.source_id,
				target_id = $row.target_id,
				kind = $row.kind,
				call_count = $row.call_count,
				call_sites = $row.call_sites,
				is_type_only = $row.is_type_only,
				imported_symbols = $row.imported_symbols,
				context = $row.context,
				reference_context = $row.reference_context
			WHERE id = $row.id;
		};
		COMMIT TRANSACTION;
	`
	if err := s.query(ctx, query, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("add edges: %w", err)
	}
	return nil
}

// OutgoingEdges returns edges whose source is nodeID, optionally filtered to
// a set of kinds. An empty kinds slice means no filter.
func (s *Storage) OutgoingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error) {
	query := `SELECT * FROM edges WHERE source_id = $id`
	params := map[string]any{"id": nodeID}
	if len(kinds) > 0 {
		query += ` AND kind IN $kinds`
		params["kinds"] = kindStrings(kinds)
	}
	results, err := surrealdb.Query[[]edgeRow](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("outgoing edges for %s: %w", nodeID, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return edgesFromRows((*results)[0].Result), nil
}

// IncomingEdges returns edges whose target is nodeID, optionally filtered to
// a set of kinds.
func (s *Storage) IncomingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error) {
	query := `SELECT * FROM edges WHERE target_id = $id`
	params := map[string]any{"id": nodeID}
	if len(kinds) > 0 {
		query += ` AND kind IN $kinds`
		params["kinds"] = kindStrings(kinds)
	}
	results, err := surrealdb.Query[[]edgeRow](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("incoming edges for %s: %w", nodeID, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return edgesFromRows((*results)[0].Result), nil
}

func kindStrings(kinds []graphmodel.EdgeKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func edgesFromRows(rows []edgeRow) []graphmodel.Edge {
	edges := make([]graphmodel.Edge, len(rows))
	for i, row := range rows {
		edges[i] = fromEdgeRow(row)
	}
	return edges
}

// RemoveFileNodes deletes edges whose source is the file itself or a
// declaration in it, then deletes the file's nodes. Incoming edges (target
// in this file) are deliberately preserved — §4.3: another file in the same
// reindexing batch may be about to recreate them.
func (s *Storage) RemoveFileNodes(ctx context.Context, path string) error {
	s.lockFile(path)
	defer s.unlockFile(path)

	prefix := path + ":"
	query := `
		BEGIN TRANSACTION;
		DELETE FROM edges WHERE source_id = $path OR string::startsWith(source_id, $prefix);
		DELETE FROM nodes WHERE file_path = $path;
		COMMIT TRANSACTION;
	`
	if err := s.query(ctx, query, map[string]any{"path": path, "prefix": prefix}); err != nil {
		return fmt.Errorf("remove file nodes %s: %w", path, err)
	}
	return nil
}

// DeleteFile does everything RemoveFileNodes does, plus deletes edges whose
// target is the file or a declaration in it — §4.3's delete_file, used when
// a source file has actually been removed from the project rather than just
// being re-extracted.
func (s *Storage) DeleteFile(ctx context.Context, path string) error {
	s.lockFile(path)
	defer s.unlockFile(path)

	prefix := path + ":"
	query := `
		BEGIN TRANSACTION;
		DELETE FROM edges WHERE source_id = $path OR string::startsWith(source_id, $prefix)
			OR target_id = $path OR string::startsWith(target_id, $prefix);
		DELETE FROM nodes WHERE file_path = $path;
		COMMIT TRANSACTION;
	`
	if err := s.query(ctx, query, map[string]any{"path": path, "prefix": prefix}); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}
