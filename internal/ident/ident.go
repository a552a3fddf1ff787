// Package ident implements node identity and path handling: building and
// tearing apart node IDs, and the small text-normalization helpers the
// extractor and formatter both need.
package ident

import (
	"strings"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

// NormalizePath collapses backslashes to forward slashes. It does not
// resolve ".." segments — callers are expected to pass paths already
// relative to a known root.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// MakeID builds a node ID from a normalized file path and an optional
// kind tag plus dotted symbol path. With no symbolParts it returns the bare
// file path (a File node's ID). With symbolParts it writes the long form
// "file:Kind:a.b.c".
func MakeID(file string, kind graphmodel.NodeKind, symbolParts ...string) string {
	file = NormalizePath(file)
	if len(symbolParts) == 0 {
		return file
	}
	return file + ":" + string(kind) + ":" + strings.Join(symbolParts, ".")
}

// ExtractSymbol returns the dotted symbol portion of an ID, tolerating both
// "file:symbol" and "file:Kind:symbol" forms — the long form's Kind tag is
// stripped so callers building a display name or an alias-map key never see
// it. If id has no ':' it is returned unchanged (a File node's own ID).
func ExtractSymbol(id string) string {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return id
	}
	tail := id[i+1:]
	j := strings.IndexByte(tail, ':')
	if j < 0 {
		return tail
	}
	if isKnownKind(graphmodel.NodeKind(tail[:j])) {
		return tail[j+1:]
	}
	return tail
}

// ExtractFile returns the portion of an ID before its first ':'. If id has
// no ':' it is returned unchanged.
func ExtractFile(id string) string {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return id
	}
	return id[:i]
}

// ExtractKindAndSymbol splits the long-form "file:Kind:symbol" tail into its
// kind tag and bare symbol path. The short form "file:symbol" has no kind
// tag, so ok is false and symbol is the whole tail after the file.
func ExtractKindAndSymbol(id string) (kind graphmodel.NodeKind, symbol string, ok bool) {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return "", "", false
	}
	tail := id[i+1:]
	j := strings.IndexByte(tail, ':')
	if j < 0 {
		return "", tail, false
	}
	candidate := graphmodel.NodeKind(tail[:j])
	if !isKnownKind(candidate) {
		return "", tail, false
	}
	return candidate, tail[j+1:], true
}

func isKnownKind(k graphmodel.NodeKind) bool {
	switch k {
	case graphmodel.KindFile, graphmodel.KindFunction, graphmodel.KindMethod,
		graphmodel.KindClass, graphmodel.KindInterface, graphmodel.KindTypeAlias,
		graphmodel.KindVariable, graphmodel.KindProperty, graphmodel.KindSyntheticType:
		return true
	default:
		return false
	}
}

// BuildAliasMap walks ALIAS_FOR edges and maps each synthetic type's bare
// symbol to the symbol it aliases, for display-name rewriting in the
// formatter. Per §3 an ALIAS_FOR edge runs TypeAlias (source) -> its
// SyntheticType (target), so the map is keyed by the target's symbol.
func BuildAliasMap(edges []graphmodel.Edge) map[string]string {
	out := make(map[string]string)
	for _, e := range edges {
		if e.Kind != graphmodel.EdgeAliasFor {
			continue
		}
		out[ExtractSymbol(e.TargetID)] = ExtractSymbol(e.SourceID)
	}
	return out
}

// NormalizeTypeText collapses runs of whitespace in a type expression to a
// single space and trims the ends, so "Array< string ,  number>" becomes
// "Array< string , number>". Spacing around punctuation is kept, so that
// result still differs from "Array<string, number>".
func NormalizeTypeText(t string) string {
	fields := strings.Fields(t)
	return strings.Join(fields, " ")
}
