package extractor

import (
	"strings"

	"github.com/heefoo/codeloom/internal/astsrc"
	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
)

var primitiveTypeNames = map[string]bool{
	"string": true, "number": true, "boolean": true, "void": true,
	"any": true, "unknown": true, "never": true, "null": true,
	"undefined": true, "object": true, "bigint": true, "symbol": true,
}

// extractTypeIdentifier pulls the most specific custom type name out of a
// type expression: array suffixes are stripped, and a wrapper generic
// (Promise<User>, Array<string>) yields its first type argument rather than
// the wrapper itself, since the wrapper is rarely the graph-relevant
// dependency.
func extractTypeIdentifier(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "[]")
	if i := strings.IndexByte(t, '<'); i >= 0 {
		if j := strings.LastIndexByte(t, '>'); j > i {
			inner := t[i+1 : j]
			parts := strings.Split(inner, ",")
			return extractTypeIdentifier(parts[0])
		}
	}
	return t
}

// resolveType resolves a type expression to a node id: a locally or
// project-declared type if one matches, otherwise a SyntheticType node
// standing in for the unresolvable shape (§3: SyntheticType nodes cover
// structural/inline types the extractor can't tie to a declaration).
// Returns ok=false only for primitive/empty types, which get no edge at all.
func (e *extraction) resolveType(typeText string) (string, bool) {
	name := extractTypeIdentifier(typeText)
	if name == "" || primitiveTypeNames[name] {
		return "", false
	}
	if d, ok := e.localByName[name]; ok {
		return e.idFor(d), true
	}
	if id, _, ok := e.index.LookupInFile(e.ctx.FilePath, name); ok {
		return id, true
	}
	return e.syntheticTypeID(name), true
}

func (e *extraction) syntheticTypeID(text string) string {
	if e.syntheticSeen == nil {
		e.syntheticSeen = map[string]string{}
	}
	if id, ok := e.syntheticSeen[text]; ok {
		return id
	}
	id := ident.MakeID(e.ctx.FilePath, graphmodel.KindSyntheticType, text)
	e.syntheticSeen[text] = id
	e.nodes = append(e.nodes, graphmodel.Node{
		ID:       id,
		Kind:     graphmodel.KindSyntheticType,
		Name:     text,
		FilePath: e.ctx.FilePath,
	})
	return id
}

func (e *extraction) extractFunctionTypes(srcID string, d astsrc.Declaration) {
	if d.Function == nil {
		return
	}
	for _, p := range d.Function.Parameters {
		if p.Type == "" {
			continue
		}
		if id, ok := e.resolveType(p.Type); ok {
			e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeUsesType, Context: graphmodel.CtxParameter})
		}
	}
	if d.Function.ReturnType != "" {
		if id, ok := e.resolveType(d.Function.ReturnType); ok {
			e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeReturns})
		}
	}
}

func (e *extraction) extractVariableType(d astsrc.Declaration) {
	if d.Variable == nil || d.Variable.VariableType == "" {
		return
	}
	srcID := e.idFor(d)
	if id, ok := e.resolveType(d.Variable.VariableType); ok {
		e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeUsesType, Context: graphmodel.CtxVariable})
	}
}

func (e *extraction) extractPropertyType(d astsrc.Declaration) {
	if d.Property == nil || d.Property.PropertyType == "" {
		return
	}
	srcID := e.idFor(d)
	if id, ok := e.resolveType(d.Property.PropertyType); ok {
		e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeHasType})
	}
}

func (e *extraction) extractClassHeritage(d astsrc.Declaration) {
	if d.Class == nil {
		return
	}
	srcID := e.idFor(d)
	if d.Class.Extends != "" {
		if id, _, ok := e.resolveName(d.Class.Extends, ""); ok {
			e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeExtends})
		}
	}
	for _, impl := range d.Class.Implements {
		if id, _, ok := e.resolveName(impl, ""); ok {
			e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeImplements})
		}
	}
}

func (e *extraction) extractInterfaceHeritage(d astsrc.Declaration) {
	if d.Interface == nil {
		return
	}
	srcID := e.idFor(d)
	for _, ext := range d.Interface.Extends {
		if id, _, ok := e.resolveName(ext, ""); ok {
			e.addEdge(graphmodel.Edge{SourceID: srcID, TargetID: id, Kind: graphmodel.EdgeExtends})
		}
	}
}

// extractTypeAlias handles the `type X = ReturnType<typeof fn>` pattern: the
// referenced function RETURNS a SyntheticType, and the declared alias X is
// ALIAS_FOR that SyntheticType (§3: source is the TypeAlias, target is the
// SyntheticType) — see ident.BuildAliasMap for how the formatter rewrites
// the synthetic's display name back to X.
func (e *extraction) extractTypeAlias(d astsrc.Declaration) {
	if d.TypeAlias == nil || d.TypeAlias.ReturnTypeOfExpr == "" {
		return
	}
	fnName := parseTypeofTarget(d.TypeAlias.ReturnTypeOfExpr)
	if fnName == "" {
		return
	}
	fnID, _, ok := e.resolveName(fnName, "")
	if !ok {
		return
	}
	aliasID := e.idFor(d)
	syntheticID := e.syntheticTypeID(ident.NormalizeTypeText(d.TypeAlias.ReturnTypeOfExpr))
	e.addEdge(graphmodel.Edge{SourceID: fnID, TargetID: syntheticID, Kind: graphmodel.EdgeReturns})
	e.addEdge(graphmodel.Edge{SourceID: aliasID, TargetID: syntheticID, Kind: graphmodel.EdgeAliasFor})
}

func parseTypeofTarget(expr string) string {
	idx := strings.Index(expr, "typeof")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(expr[idx+len("typeof"):])
	end := strings.IndexAny(rest, ">,) ")
	if end < 0 {
		return rest
	}
	return rest[:end]
}
