package store

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

// AddNodes upserts a batch of nodes inside a single transaction, replacing
// every column (including properties) on conflict — §4.3's add_nodes.
func (s *Storage) AddNodes(ctx context.Context, nodes []graphmodel.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	rows := make([]nodeRow, len(nodes))
	for i, n := range nodes {
		row, err := toNodeRow(n)
		if err != nil {
			return err
		}
		rows[i] = row
	}

	query := `
		BEGIN TRANSACTION;
		FOR $row IN $rows {
			UPSERT nodes SET
				id = $row.id,
				kind = $row.kind,
				name = $row.name,
				package = $row.package,
				file_path = $row.file_path,
				start_line = $row.start_line,
				end_line = $row.end_line,
				exported = $row.exported,
				content_hash = $row.content_hash,
				properties = $row.properties
			WHERE id = $row.id;
		};
		COMMIT TRANSACTION;
	`
	if err := s.query(ctx, query, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("add nodes: %w", err)
	}
	return nil
}

// GetNode looks up a node by its exact ID.
func (s *Storage) GetNode(ctx context.Context, id string) (*graphmodel.Node, error) {
	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, `SELECT * FROM nodes WHERE id = $id LIMIT 1`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	n, err := fromNodeRow((*results)[0].Result[0])
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// NodesByIDs batch-fetches nodes, tolerating IDs with no matching row —
// dangling edges mean a traversal frontier can name nodes that no longer
// exist, and the caller is expected to simply get fewer rows back.
func (s *Storage) NodesByIDs(ctx context.Context, ids []string) ([]graphmodel.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, `SELECT * FROM nodes WHERE id IN $ids`, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("nodes by ids: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return nodesFromRows((*results)[0].Result)
}

// NodesByFile returns every node whose file_path matches exactly.
func (s *Storage) NodesByFile(ctx context.Context, path string) ([]graphmodel.Node, error) {
	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, `SELECT * FROM nodes WHERE file_path = $path`, map[string]any{"path": path})
	if err != nil {
		return nil, fmt.Errorf("nodes by file %s: %w", path, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return nodesFromRows((*results)[0].Result)
}

// NodesByName selects nodes whose bare name matches exactly, optionally
// narrowed by file and/or package — the Resolver's name-lookup step.
func (s *Storage) NodesByName(ctx context.Context, name, file, pkg string) ([]graphmodel.Node, error) {
	query := `SELECT * FROM nodes WHERE name = $name`
	params := map[string]any{"name": name}
	if file != "" {
		query += ` AND file_path = $file`
		params["file"] = file
	}
	if pkg != "" {
		query += ` AND package = $package`
		params["package"] = pkg
	}
	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("nodes by name %s: %w", name, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return nodesFromRows((*results)[0].Result)
}

// NodesByIDSuffix selects nodes whose ID ends with the given suffix — used
// for the dotted-symbol short-form lookup `id LIKE file:%:symbol`.
func (s *Storage) NodesByIDSuffix(ctx context.Context, suffix string) ([]graphmodel.Node, error) {
	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, `SELECT * FROM nodes WHERE string::endsWith(id, $suffix)`, map[string]any{"suffix": suffix})
	if err != nil {
		return nil, fmt.Errorf("nodes by id suffix %s: %w", suffix, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return nodesFromRows((*results)[0].Result)
}

// NodesByNameContains is the fuzzy-suggestion source query: any node whose
// name contains the substring, case-sensitively — the Resolver applies its
// own case-insensitive Levenshtein ranking on top of this candidate set.
func (s *Storage) NodesByNameContains(ctx context.Context, substr string, limit int) ([]graphmodel.Node, error) {
	query := `SELECT * FROM nodes WHERE name CONTAINS $substr LIMIT $limit`
	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, query, map[string]any{"substr": substr, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("nodes by name contains %s: %w", substr, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return nodesFromRows((*results)[0].Result)
}

func nodesFromRows(rows []nodeRow) ([]graphmodel.Node, error) {
	nodes := make([]graphmodel.Node, 0, len(rows))
	for _, row := range rows {
		n, err := fromNodeRow(row)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ClearAll drops and recreates nodes, edges and embeddings — §4.3's
// clear_all, used before a full-project reindex.
func (s *Storage) ClearAll(ctx context.Context) error {
	if err := s.applyAll(ctx, dropTables); err != nil {
		return err
	}
	if err := s.applyAll(ctx, v1Migrations); err != nil {
		return err
	}
	if err := s.applyAll(ctx, v2AdditiveMigrations); err != nil {
		return err
	}
	return s.writeSchemaVersion(ctx, currentSchemaVersion)
}
