// Package resolver turns a user-typed symbol query into one node id (or a
// clear reason it couldn't): not found, ambiguous among several candidates,
// or resolved — with a class-to-its-sole-dependency-bearing-method fallback
// and fuzzy name suggestions when nothing matches outright.
package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
)

// Disposition classifies how a query resolved.
type Disposition string

const (
	NotFound  Disposition = "not_found"
	Unique    Disposition = "unique"
	Ambiguous Disposition = "ambiguous"
)

// SymbolQuery is a user-supplied request to resolve a symbol to a node.
type SymbolQuery struct {
	Symbol string
	File   string // optional — narrows matches to this file
	Package string // optional — narrows matches to this package
}

// Resolution is the outcome of resolving a SymbolQuery.
type Resolution struct {
	Disposition Disposition
	Node        *graphmodel.Node  // set only when Disposition == Unique
	Candidates  []graphmodel.Node // set when Disposition == Ambiguous
	Suggestions []string          // fuzzy name suggestions when Disposition == NotFound

	// FallbackFrom is set when Node was substituted in by the class-method
	// fallback (§4.5 step 4): the class the caller actually queried for,
	// distinct from Node which is the method resolution landed on. Callers
	// use it to prepend the "Resolved X to X.method" notice.
	FallbackFrom *graphmodel.Node
}

// GraphReader is the slice of store.Storage the resolver needs.
type GraphReader interface {
	GetNode(ctx context.Context, id string) (*graphmodel.Node, error)
	NodesByIDSuffix(ctx context.Context, suffix string) ([]graphmodel.Node, error)
	NodesByName(ctx context.Context, name, file, pkg string) ([]graphmodel.Node, error)
	NodesByNameContains(ctx context.Context, substr string, limit int) ([]graphmodel.Node, error)
	OutgoingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error)
	NodesByFile(ctx context.Context, path string) ([]graphmodel.Node, error)
}

const maxSuggestions = 5
const fuzzyDistanceCeiling = 3

// Resolve runs the fixed 5-step resolution algorithm: literal ID lookup
// (anchored to file when one is given), short-form id-suffix tolerance,
// name lookup narrowed by file/package with a dotted-symbol id-suffix
// check, file-path auto-resolution, then — if nothing matched — fuzzy
// suggestions.
func Resolve(ctx context.Context, g GraphReader, q SymbolQuery) (Resolution, error) {
	symbol := strings.TrimSpace(q.Symbol)
	if symbol == "" {
		return Resolution{Disposition: NotFound}, nil
	}

	// Step 1: literal lookup. A bare literal id resolves directly; when a
	// file is given, also try "file:symbol" and the short-form
	// "file:...:symbol" suffix (§4.5 step 1).
	if n, err := g.GetNode(ctx, symbol); err != nil {
		return Resolution{}, err
	} else if n != nil {
		return maybeFallback(ctx, g, Resolution{Disposition: Unique, Node: n})
	}
	if q.File != "" {
		if n, err := g.GetNode(ctx, q.File+":"+symbol); err != nil {
			return Resolution{}, err
		} else if n != nil {
			return maybeFallback(ctx, g, Resolution{Disposition: Unique, Node: n})
		}
		suffixMatches, err := g.NodesByIDSuffix(ctx, ":"+symbol)
		if err != nil {
			return Resolution{}, err
		}
		inFile := filterByFilePrefix(suffixMatches, q.File)
		if len(inFile) == 1 {
			return maybeFallback(ctx, g, Resolution{Disposition: Unique, Node: &inFile[0]})
		}
		if len(inFile) > 1 {
			return Resolution{Disposition: Ambiguous, Candidates: inFile}, nil
		}
	}

	// Step 2: short-form id suffix when the query already looks like an id
	// ("file:symbol" tolerance, §4.1), independent of any file/package hint.
	if strings.Contains(symbol, ":") {
		matches, err := g.NodesByIDSuffix(ctx, symbol)
		if err != nil {
			return Resolution{}, err
		}
		if len(matches) == 1 {
			return maybeFallback(ctx, g, Resolution{Disposition: Unique, Node: &matches[0]})
		}
		if len(matches) > 1 {
			return Resolution{Disposition: Ambiguous, Candidates: matches}, nil
		}
	}

	// Step 3: name lookup on the last dotted segment ("User.save" looks up
	// "save"), narrowed by file/package; when the query is dotted, also
	// require the id to end in ":"+symbol so "User.save" doesn't match some
	// unrelated class's "save" method (§4.5 step 2).
	name := lastSegment(symbol)
	matches, err := g.NodesByName(ctx, name, q.File, q.Package)
	if err != nil {
		return Resolution{}, err
	}
	if strings.Contains(symbol, ".") {
		matches = filterByIDSuffix(matches, ":"+symbol)
	}
	if len(matches) == 1 {
		return maybeFallback(ctx, g, Resolution{Disposition: Unique, Node: &matches[0]})
	}
	if len(matches) > 1 {
		return Resolution{Disposition: Ambiguous, Candidates: matches}, nil
	}

	// Step 4: file-path auto-resolution — the query names a whole file.
	fileNodes, err := g.NodesByFile(ctx, ident.NormalizePath(symbol))
	if err != nil {
		return Resolution{}, err
	}
	for _, n := range fileNodes {
		if n.Kind == graphmodel.KindFile {
			return Resolution{Disposition: Unique, Node: &n}, nil
		}
	}

	// Step 5: nothing matched — offer fuzzy suggestions.
	suggestions, err := fuzzySuggestions(ctx, g, symbol)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Disposition: NotFound, Suggestions: suggestions}, nil
}

// lastSegment returns the portion of a dotted symbol after its final ".",
// or the whole string when it isn't dotted — "User.save" -> "save",
// "formatDate" -> "formatDate" (§4.5 step 2).
func lastSegment(symbol string) string {
	if i := strings.LastIndexByte(symbol, '.'); i >= 0 {
		return symbol[i+1:]
	}
	return symbol
}

// filterByIDSuffix keeps only nodes whose id ends with suffix.
func filterByIDSuffix(nodes []graphmodel.Node, suffix string) []graphmodel.Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if strings.HasSuffix(n.ID, suffix) {
			out = append(out, n)
		}
	}
	return out
}

// filterByFilePrefix keeps only nodes whose id starts with file+":" — used
// to anchor a short-form id-suffix match to a specific file.
func filterByFilePrefix(nodes []graphmodel.Node, file string) []graphmodel.Node {
	prefix := file + ":"
	out := nodes[:0:0]
	for _, n := range nodes {
		if strings.HasPrefix(n.ID, prefix) {
			out = append(out, n)
		}
	}
	return out
}

// maybeFallback implements the class-method fallback (§4.5 step 4): if the
// resolved node is a Class with none of the dependency-relevant edge kinds
// outgoing, but it has methods, a single dependency-bearing method resolves
// transparently; two or more make the query Ambiguous over every method (in
// file order), each annotated "(no dependencies)" when it has none, so the
// caller can retry with a fully-qualified name.
func maybeFallback(ctx context.Context, g GraphReader, r Resolution) (Resolution, error) {
	if r.Node == nil || r.Node.Kind != graphmodel.KindClass {
		return r, nil
	}
	direct, err := g.OutgoingEdges(ctx, r.Node.ID, graphmodel.DependencyRelevantKinds)
	if err != nil {
		return Resolution{}, err
	}
	if len(direct) > 0 {
		return r, nil
	}

	members, err := g.NodesByFile(ctx, r.Node.FilePath)
	if err != nil {
		return Resolution{}, err
	}
	prefix := r.Node.Name + "."
	var methods []graphmodel.Node
	var dependencyBearing []graphmodel.Node
	for i := range members {
		m := members[i]
		if m.Kind != graphmodel.KindMethod || !strings.HasPrefix(ident.ExtractSymbol(m.ID), prefix) {
			continue
		}
		methods = append(methods, m)
		edges, err := g.OutgoingEdges(ctx, m.ID, graphmodel.DependencyRelevantKinds)
		if err != nil {
			return Resolution{}, err
		}
		if len(edges) > 0 {
			dependencyBearing = append(dependencyBearing, m)
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].StartLine < methods[j].StartLine })

	switch len(dependencyBearing) {
	case 0:
		return r, nil
	case 1:
		return Resolution{Disposition: Unique, Node: &dependencyBearing[0], FallbackFrom: r.Node}, nil
	default:
		return Resolution{Disposition: Ambiguous, Candidates: methods, FallbackFrom: r.Node}, nil
	}
}

func fuzzySuggestions(ctx context.Context, g GraphReader, symbol string) ([]string, error) {
	candidates, err := g.NodesByNameContains(ctx, symbol, 200)
	if err != nil {
		return nil, err
	}
	type scored struct {
		name string
		dist int
	}
	seen := map[string]bool{}
	var ranked []scored
	lowerSymbol := strings.ToLower(symbol)
	for _, c := range candidates {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		d := levenshtein(lowerSymbol, strings.ToLower(c.Name))
		if d <= fuzzyDistanceCeiling {
			ranked = append(ranked, scored{name: c.Name, dist: d})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.name
	}
	return out, nil
}

// levenshtein is a case-sensitive rolling two-row edit distance; callers
// lowercase both inputs first for the case-insensitive metric §4.5 wants.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
