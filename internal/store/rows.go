package store

import (
	"encoding/json"
	"fmt"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

// nodeRow is the on-disk shape of a nodes table row. Kind-specific payload
// collapses into a single "properties" object, matching §4.2's
// `properties JSON` column; toNodeRow/fromNodeRow do the (de)serialization
// dance so the rest of the package only ever sees graphmodel.Node.
type nodeRow struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Package     string         `json:"package"`
	FilePath    string         `json:"file_path"`
	StartLine   int            `json:"start_line"`
	EndLine     int            `json:"end_line"`
	Exported    bool           `json:"exported"`
	ContentHash string         `json:"content_hash,omitempty"`
	Properties  map[string]any `json:"properties"`
}

func propsToMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func mapToProps(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func toNodeRow(n graphmodel.Node) (nodeRow, error) {
	row := nodeRow{
		ID:          n.ID,
		Kind:        string(n.Kind),
		Name:        n.Name,
		Package:     n.Package,
		FilePath:    n.FilePath,
		StartLine:   n.StartLine,
		EndLine:     n.EndLine,
		Exported:    n.Exported,
		ContentHash: n.ContentHash,
	}

	var props any
	switch n.Kind {
	case graphmodel.KindFunction, graphmodel.KindMethod:
		props = n.Function
	case graphmodel.KindClass:
		props = n.Class
	case graphmodel.KindInterface:
		props = n.Interface
	case graphmodel.KindTypeAlias:
		props = n.TypeAlias
	case graphmodel.KindVariable:
		props = n.Variable
	case graphmodel.KindProperty:
		props = n.Property
	case graphmodel.KindFile:
		props = n.File
	}

	m, err := propsToMap(props)
	if err != nil {
		return nodeRow{}, fmt.Errorf("marshal properties for %s: %w", n.ID, err)
	}
	row.Properties = m
	return row, nil
}

func fromNodeRow(row nodeRow) (graphmodel.Node, error) {
	n := graphmodel.Node{
		ID:          row.ID,
		Kind:        graphmodel.NodeKind(row.Kind),
		Name:        row.Name,
		Package:     row.Package,
		FilePath:    row.FilePath,
		StartLine:   row.StartLine,
		EndLine:     row.EndLine,
		Exported:    row.Exported,
		ContentHash: row.ContentHash,
	}

	var err error
	switch n.Kind {
	case graphmodel.KindFunction, graphmodel.KindMethod:
		n.Function = &graphmodel.FunctionProps{}
		err = mapToProps(row.Properties, n.Function)
	case graphmodel.KindClass:
		n.Class = &graphmodel.ClassProps{}
		err = mapToProps(row.Properties, n.Class)
	case graphmodel.KindInterface:
		n.Interface = &graphmodel.InterfaceProps{}
		err = mapToProps(row.Properties, n.Interface)
	case graphmodel.KindTypeAlias:
		n.TypeAlias = &graphmodel.TypeAliasProps{}
		err = mapToProps(row.Properties, n.TypeAlias)
	case graphmodel.KindVariable:
		n.Variable = &graphmodel.VariableProps{}
		err = mapToProps(row.Properties, n.Variable)
	case graphmodel.KindProperty:
		n.Property = &graphmodel.PropertyProps{}
		err = mapToProps(row.Properties, n.Property)
	case graphmodel.KindFile:
		n.File = &graphmodel.FileProps{}
		err = mapToProps(row.Properties, n.File)
	}
	if err != nil {
		return graphmodel.Node{}, fmt.Errorf("unmarshal properties for %s: %w", n.ID, err)
	}
	return n, nil
}

// edgeRow is the on-disk shape of an edges table row. id is a synthetic key
// derived from (source, target, kind) so UPSERT ... WHERE id = $id can stand
// in for the composite primary key from §4.2 — SurrealDB upserts by record
// id, not by an arbitrary column tuple.
type edgeRow struct {
	ID               string               `json:"id"`
	SourceID         string               `json:"source_id"`
	TargetID         string               `json:"target_id"`
	Kind             string               `json:"kind"`
	CallCount        int                  `json:"call_count,omitempty"`
	CallSites        []graphmodel.LineRange `json:"call_sites,omitempty"`
	IsTypeOnly       bool                 `json:"is_type_only,omitempty"`
	ImportedSymbols  []string             `json:"imported_symbols,omitempty"`
	Context          string               `json:"context,omitempty"`
	ReferenceContext string               `json:"reference_context,omitempty"`
}

// edgeRowID derives an edge row's synthetic key from (source, target, kind);
// toEdgeRow is its only caller, so the same edge always maps to the same row.
func edgeRowID(sourceID, targetID string, kind graphmodel.EdgeKind) string {
	return sourceID + "->" + targetID + ":" + string(kind)
}

func toEdgeRow(e graphmodel.Edge) edgeRow {
	return edgeRow{
		ID:               edgeRowID(e.SourceID, e.TargetID, e.Kind),
		SourceID:         e.SourceID,
		TargetID:         e.TargetID,
		Kind:             string(e.Kind),
		CallCount:        e.CallCount,
		CallSites:        e.CallSites,
		IsTypeOnly:       e.IsTypeOnly,
		ImportedSymbols:  e.ImportedSymbols,
		Context:          string(e.Context),
		ReferenceContext: string(e.ReferenceContext),
	}
}

func fromEdgeRow(row edgeRow) graphmodel.Edge {
	return graphmodel.Edge{
		SourceID:         row.SourceID,
		TargetID:         row.TargetID,
		Kind:             graphmodel.EdgeKind(row.Kind),
		CallCount:        row.CallCount,
		CallSites:        row.CallSites,
		IsTypeOnly:       row.IsTypeOnly,
		ImportedSymbols:  row.ImportedSymbols,
		Context:          graphmodel.TypeUsageContext(row.Context),
		ReferenceContext: graphmodel.ReferenceContext(row.ReferenceContext),
	}
}
