// Package extractor turns one parsed file (an astsrc.SourceFile) into the
// nodes and edges that belong to the code graph. It never touches storage
// and never reads other files directly — cross-file resolution goes through
// the SymbolIndex the ingestion driver builds across the whole project.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/heefoo/codeloom/internal/astsrc"
	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
)

// ExtractionContext carries the per-file facts the extractor needs beyond
// what astsrc.SourceFile already exposes.
type ExtractionContext struct {
	FilePath string
	Package  string
}

// SymbolIndex resolves a bare name to a node, either within the same file or
// through an already-resolved cross-file import, without the extractor ever
// having to open another file itself.
type SymbolIndex interface {
	// LookupInFile resolves name against file's own declarations.
	LookupInFile(file, name string) (id string, kind graphmodel.NodeKind, ok bool)
	// ResolveModule turns the literal specifier written after `from` in
	// fromFile into a project-relative file path. ok is false for anything
	// outside the project (bare package names, node_modules).
	ResolveModule(fromFile, moduleSpec string) (file string, ok bool)
}

var ignoredIdentifiers = map[string]bool{
	"this": true, "super": true, "undefined": true, "null": true,
	"true": true, "false": true, "console": true, "require": true,
	"module": true, "exports": true, "arguments": true,
}

// Extract builds every node and edge this file contributes to the graph.
func Extract(ctx ExtractionContext, sf *astsrc.SourceFile, index SymbolIndex) ([]graphmodel.Node, []graphmodel.Edge, error) {
	e := &extraction{ctx: ctx, sf: sf, index: index, localByName: map[string]astsrc.Declaration{}}
	for _, d := range sf.Declarations {
		if d.Kind == graphmodel.KindFile {
			continue
		}
		if len(d.SymbolPath) > 0 {
			e.localByName[d.SymbolPath[len(d.SymbolPath)-1]] = d
		}
	}

	fileID := ident.MakeID(ctx.FilePath, graphmodel.KindFile)
	for _, d := range sf.Declarations {
		n, err := e.toNode(d)
		if err != nil {
			return nil, nil, err
		}
		e.nodes = append(e.nodes, n)

		switch {
		case d.Kind == graphmodel.KindFile:
			// no CONTAINS for the file node itself
		case len(d.SymbolPath) == 1:
			e.addEdge(graphmodel.Edge{SourceID: fileID, TargetID: n.ID, Kind: graphmodel.EdgeContains})
		case len(d.SymbolPath) == 2:
			if owner, ok := e.localByName[d.SymbolPath[0]]; ok {
				ownerID := e.idFor(owner)
				e.addEdge(graphmodel.Edge{SourceID: ownerID, TargetID: n.ID, Kind: graphmodel.EdgeContains})
				if d.Kind == graphmodel.KindProperty {
					e.addEdge(graphmodel.Edge{SourceID: ownerID, TargetID: n.ID, Kind: graphmodel.EdgeHasProp})
				}
			}
		}
	}

	e.extractImports(fileID)

	for _, d := range sf.Declarations {
		switch d.Kind {
		case graphmodel.KindFunction, graphmodel.KindMethod:
			srcID := e.idFor(d)
			e.extractCalls(srcID, d)
			e.extractReferences(srcID, d)
			e.extractFunctionTypes(srcID, d)
		case graphmodel.KindClass:
			e.extractClassHeritage(d)
		case graphmodel.KindInterface:
			e.extractInterfaceHeritage(d)
		case graphmodel.KindVariable:
			e.extractVariableType(d)
			e.extractReferences(e.idFor(d), d)
		case graphmodel.KindProperty:
			e.extractPropertyType(d)
		case graphmodel.KindTypeAlias:
			e.extractTypeAlias(d)
		}
	}

	return e.nodes, e.edges, nil
}

type extraction struct {
	ctx         ExtractionContext
	sf          *astsrc.SourceFile
	index       SymbolIndex
	localByName map[string]astsrc.Declaration

	nodes []graphmodel.Node
	edges []graphmodel.Edge
	// syntheticSeen dedupes SyntheticType nodes created for unresolvable
	// type expressions within this file.
	syntheticSeen map[string]string
}

func (e *extraction) idFor(d astsrc.Declaration) string {
	if d.Kind == graphmodel.KindFile {
		return ident.MakeID(e.ctx.FilePath, graphmodel.KindFile)
	}
	return ident.MakeID(e.ctx.FilePath, d.Kind, d.SymbolPath...)
}

func (e *extraction) addEdge(edge graphmodel.Edge) {
	e.edges = append(e.edges, edge)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

func (e *extraction) toNode(d astsrc.Declaration) (graphmodel.Node, error) {
	n := graphmodel.Node{
		ID:          e.idFor(d),
		Kind:        d.Kind,
		Name:        d.Name,
		Package:     e.ctx.Package,
		FilePath:    e.ctx.FilePath,
		StartLine:   d.StartLine,
		EndLine:     d.EndLine,
		Exported:    d.Exported,
		ContentHash: contentHash(d.Text),
	}
	switch d.Kind {
	case graphmodel.KindFunction, graphmodel.KindMethod:
		if d.Function != nil {
			n.Function = &graphmodel.FunctionProps{
				Parameters: d.Function.Parameters,
				ReturnType: d.Function.ReturnType,
				Async:      d.Function.Async,
				Static:     d.Function.Static,
				Visibility: d.Function.Visibility,
			}
		}
	case graphmodel.KindClass:
		if d.Class != nil {
			n.Class = &graphmodel.ClassProps{Extends: d.Class.Extends, Implements: d.Class.Implements}
		}
	case graphmodel.KindInterface:
		if d.Interface != nil {
			n.Interface = &graphmodel.InterfaceProps{Extends: d.Interface.Extends}
		}
	case graphmodel.KindTypeAlias:
		if d.TypeAlias != nil {
			n.TypeAlias = &graphmodel.TypeAliasProps{AliasedType: d.TypeAlias.AliasedType}
		}
	case graphmodel.KindVariable:
		if d.Variable != nil {
			n.Variable = &graphmodel.VariableProps{VariableType: d.Variable.VariableType, IsConst: d.Variable.IsConst}
		}
	case graphmodel.KindProperty:
		if d.Property != nil {
			n.Property = &graphmodel.PropertyProps{
				PropertyType: d.Property.PropertyType,
				Optional:     d.Property.Optional,
				Readonly:     d.Property.Readonly,
			}
		}
	case graphmodel.KindFile:
		if d.File != nil {
			n.File = &graphmodel.FileProps{Extension: d.File.Extension}
		}
	}
	return n, nil
}

// extractImports resolves each import statement's module specifier to a
// project file (when possible) and emits one IMPORTS edge per resolved
// target, carrying the bound symbol names for the resolver's benefit.
func (e *extraction) extractImports(fileID string) {
	for _, imp := range e.sf.Imports {
		target, ok := e.index.ResolveModule(e.ctx.FilePath, imp.ModuleSpec)
		if !ok {
			continue
		}
		targetID := ident.MakeID(target, graphmodel.KindFile)
		names := make([]string, 0, len(imp.Symbols)+1)
		for _, s := range imp.Symbols {
			names = append(names, s.Name)
		}
		if imp.Namespace != "" {
			names = append(names, imp.Namespace)
		}
		e.addEdge(graphmodel.Edge{
			SourceID:        fileID,
			TargetID:        targetID,
			Kind:            graphmodel.EdgeImports,
			IsTypeOnly:      imp.IsTypeOnly,
			ImportedSymbols: names,
		})
	}
}

// resolveName looks for name first among this file's own declarations, then
// falls back to the project-wide index (which itself checks cross-file
// import bindings). member, if non-empty, is looked up in place of name,
// which is then not tried at all (e.g. "service.save" looks up "save"
// directly, since method names are unique enough within a project to
// approximate instance dispatch without a full type checker).
func (e *extraction) resolveName(name, member string) (string, graphmodel.NodeKind, bool) {
	lookup := name
	if member != "" {
		lookup = member
	}
	if d, ok := e.localByName[lookup]; ok {
		return e.followAlias(d)
	}
	if id, kind, ok := e.index.LookupInFile(e.ctx.FilePath, lookup); ok {
		return id, kind, ok
	}
	return "", "", false
}

// followAlias resolves a local Variable declaration that is itself just a
// bare reference to another local declaration (`const f = target;`) to that
// underlying declaration, so a call made through the alias attributes to the
// real target rather than to the alias variable (§4.4: "the alias is
// resolved transitively to the underlying declaration"). Bounded to ten
// hops so a pathological alias cycle can't loop forever.
func (e *extraction) followAlias(d astsrc.Declaration) (string, graphmodel.NodeKind, bool) {
	for i := 0; i < 10 && d.Kind == graphmodel.KindVariable && d.Variable != nil && d.Variable.AliasTarget != ""; i++ {
		next, ok := e.localByName[d.Variable.AliasTarget]
		if !ok {
			if id, kind, ok := e.index.LookupInFile(e.ctx.FilePath, d.Variable.AliasTarget); ok {
				return id, kind, true
			}
			break
		}
		d = next
	}
	return e.idFor(d), d.Kind, true
}

func splitCallee(callee string) (base, member string) {
	if i := strings.IndexByte(callee, '.'); i >= 0 {
		return callee[:i], callee[i+1:]
	}
	return callee, ""
}
