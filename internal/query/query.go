// Package query implements the four query entry points (§6.2): resolving a
// user's symbol query through internal/resolver, walking the graph through
// internal/traversal, and rendering the result through internal/formatter.
// Every entry point returns both the textual and Mermaid views so a caller
// picks whichever it needs without re-running the query.
package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heefoo/codeloom/internal/formatter"
	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
	"github.com/heefoo/codeloom/internal/resolver"
	"github.com/heefoo/codeloom/internal/traversal"
)

// Store is the slice of store.Storage the query layer needs: resolver and
// traversal's read contracts, plus a batch node fetch for rendering.
type Store interface {
	resolver.GraphReader
	traversal.GraphReader
	NodesByIDs(ctx context.Context, ids []string) ([]graphmodel.Node, error)
}

// Options narrows rendering; MaxDepth defaults to traversal.DefaultMaxDepth
// when zero.
type Options struct {
	MaxNodes int
	MaxDepth int
}

// Result is one query's rendered output in both forms §6.4 promises.
type Result struct {
	Text    string
	Mermaid string
}

// dependencyEdgeKinds is the set of edge kinds dependencies_of/dependents_of
// walk — every relation the extractor emits except containment (CONTAINS)
// and file-level IMPORTS, which aren't "dependencies" in the sense these
// queries report.
var dependencyEdgeKinds = []graphmodel.EdgeKind{
	graphmodel.EdgeCalls, graphmodel.EdgeReferences, graphmodel.EdgeExtends,
	graphmodel.EdgeImplements, graphmodel.EdgeUsesType, graphmodel.EdgeHasProp,
	graphmodel.EdgeHasType, graphmodel.EdgeReturns, graphmodel.EdgeAliasFor,
}

// SymbolRef names a symbol, optionally scoped to a file — used by
// paths_between and search_graph seeds.
type SymbolRef struct {
	FilePath string
	Symbol   string
}

func resolve(ctx context.Context, s Store, ref SymbolRef) (resolver.Resolution, error) {
	return resolver.Resolve(ctx, s, resolver.SymbolQuery{Symbol: ref.Symbol, File: ref.FilePath})
}

// renderResolutionFailure renders a NotFound/Ambiguous resolution the same
// way for every entry point — callers short-circuit on non-nil text. The
// class-method-fallback Ambiguous case (§4.5 step 4) additionally marks
// each candidate method "(no dependencies)" when it has none of the
// dependency-relevant edge kinds outgoing.
func renderResolutionFailure(ctx context.Context, s Store, res resolver.Resolution, querySymbol string) (string, bool) {
	switch res.Disposition {
	case resolver.NotFound:
		var b strings.Builder
		b.WriteString(formatter.SymbolNotFoundMessage(querySymbol))
		if len(res.Suggestions) > 0 {
			b.WriteString("\nDid you mean: " + strings.Join(res.Suggestions, ", ") + "?")
		}
		return b.String(), true
	case resolver.Ambiguous:
		var b strings.Builder
		if res.FallbackFrom != nil {
			fmt.Fprintf(&b, "%q has multiple methods; pick one to see its dependencies:\n", res.FallbackFrom.Name)
		} else {
			fmt.Fprintf(&b, "Ambiguous symbol %q — %d candidates:\n", querySymbol, len(res.Candidates))
		}
		for _, c := range res.Candidates {
			suffix := ""
			if res.FallbackFrom != nil {
				edges, err := s.OutgoingEdges(ctx, c.ID, graphmodel.DependencyRelevantKinds)
				if err == nil && len(edges) == 0 {
					suffix = " (no dependencies)"
				}
			}
			fmt.Fprintf(&b, "  - %s (%s) %s:%d%s\n", c.Name, c.Kind, c.FilePath, c.StartLine, suffix)
		}
		b.WriteString("Retry with a fully-qualified name (file and/or package) to disambiguate.")
		return b.String(), true
	}
	return "", false
}

func resolvedFallbackNote(res resolver.Resolution) string {
	if res.FallbackFrom == nil || res.Node == nil {
		return ""
	}
	return fmt.Sprintf("Resolved %q to %s\n\n", res.FallbackFrom.Name, ident.ExtractSymbol(res.Node.ID))
}

func depth(opts Options) int {
	if opts.MaxDepth > 0 {
		return opts.MaxDepth
	}
	return traversal.DefaultMaxDepth
}

func maxNodes(opts Options) int {
	if opts.MaxNodes > 0 {
		return opts.MaxNodes
	}
	return 0
}

// render walks edges to their node set, builds display names and an alias
// map, then renders both views. cap is the caller's optional max_nodes
// (§6.2), applied before §4.7's own adaptive table — which then decides
// snippet verbosity, or truncates to 50 nodes with a note, from whatever N
// results.
func render(ctx context.Context, s Store, projectRoot string, edges []graphmodel.Edge, exclude map[string]bool, cap int) (Result, error) {
	ids := collectNodeIDs(edges, exclude)
	nodes, err := s.NodesByIDs(ctx, ids)
	if err != nil {
		return Result{}, err
	}

	if cap > 0 && len(nodes) > cap {
		nodes = nodes[:cap]
	}

	total := len(nodes)
	if _, mode := formatter.AdaptiveContext(len(nodes)); mode == "truncate" {
		nodes = nodes[:50]
	}
	kept := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		kept[n.ID] = true
	}
	// An excluded id (the queried root) is left out of the Nodes section but
	// still counts as an endpoint, so its own edges stay in the graph.
	filtered := edges[:0:0]
	for _, e := range edges {
		if (kept[e.SourceID] || exclude[e.SourceID]) && (kept[e.TargetID] || exclude[e.TargetID]) {
			filtered = append(filtered, e)
		}
	}
	edges = filtered

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	aliasMap := ident.BuildAliasMap(edges)
	names := formatter.DisplayNames(nodes, aliasMap)
	callSites := formatter.CallSitesBySource(edges)

	fileText := loadFileText(projectRoot, nodes)

	var b strings.Builder
	b.WriteString("## Graph\n")
	b.WriteString(formatter.FormatGraph(edges, names))
	if total > len(nodes) {
		fmt.Fprintf(&b, "\ntruncated (%d/%d nodes displayed)", len(nodes), total)
	}
	b.WriteString("\n\n## Nodes\n")
	b.WriteString(formatter.FormatNodesSection(nodes, names, fileText, callSites))

	mermaid := formatter.FormatMermaid(nodes, edges, names, total)

	return Result{Text: b.String(), Mermaid: mermaid}, nil
}

func collectNodeIDs(edges []graphmodel.Edge, exclude map[string]bool) []string {
	seen := map[string]bool{}
	var ids []string
	for _, e := range edges {
		for _, id := range [2]string{e.SourceID, e.TargetID} {
			if exclude[id] || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// loadFileText reads every distinct file the node set touches, tolerating
// unreadable files (the snippet section simply renders without a body for
// that node) since source availability is an I/O concern orthogonal to the
// graph query itself.
func loadFileText(projectRoot string, nodes []graphmodel.Node) map[string][]string {
	out := map[string][]string{}
	seen := map[string]bool{}
	for _, n := range nodes {
		if n.FilePath == "" || seen[n.FilePath] {
			continue
		}
		seen[n.FilePath] = true
		content, err := os.ReadFile(filepath.Join(projectRoot, n.FilePath))
		if err != nil {
			continue
		}
		out[n.FilePath] = strings.Split(string(content), "\n")
	}
	return out
}

// Dependencies implements dependencies_of: every edge forward-reachable
// from the resolved symbol.
func Dependencies(ctx context.Context, s Store, projectRoot string, ref SymbolRef, opts Options) (Result, error) {
	res, err := resolve(ctx, s, ref)
	if err != nil {
		return Result{}, err
	}
	if text, fail := renderResolutionFailure(ctx, s, res, ref.Symbol); fail {
		return Result{Text: text}, nil
	}

	edges, err := traversal.DependencyEdges(ctx, s, res.Node.ID, dependencyEdgeKinds, depth(opts))
	if err != nil {
		return Result{}, err
	}
	result, err := render(ctx, s, projectRoot, edges, map[string]bool{res.Node.ID: true}, maxNodes(opts))
	if err != nil {
		return Result{}, err
	}
	result.Text = resolvedFallbackNote(res) + result.Text
	return result, nil
}

// Dependents implements dependents_of: every edge backward-reachable from
// the resolved symbol — "what depends on this".
func Dependents(ctx context.Context, s Store, projectRoot string, ref SymbolRef, opts Options) (Result, error) {
	res, err := resolve(ctx, s, ref)
	if err != nil {
		return Result{}, err
	}
	if text, fail := renderResolutionFailure(ctx, s, res, ref.Symbol); fail {
		return Result{Text: text}, nil
	}

	edges, err := traversal.DependentEdges(ctx, s, res.Node.ID, dependencyEdgeKinds, depth(opts))
	if err != nil {
		return Result{}, err
	}
	result, err := render(ctx, s, projectRoot, edges, map[string]bool{res.Node.ID: true}, maxNodes(opts))
	if err != nil {
		return Result{}, err
	}
	result.Text = resolvedFallbackNote(res) + result.Text
	return result, nil
}

// PathsBetween implements paths_between: forward shortest path, falling
// back to reverse per traversal.ShortestPath's own bidirectional policy —
// this layer just resolves both endpoints and renders whatever comes back.
func PathsBetween(ctx context.Context, s Store, projectRoot string, from, to SymbolRef, opts Options) (Result, error) {
	fromRes, err := resolve(ctx, s, from)
	if err != nil {
		return Result{}, err
	}
	if text, fail := renderResolutionFailure(ctx, s, fromRes, from.Symbol); fail {
		return Result{Text: text}, nil
	}
	toRes, err := resolve(ctx, s, to)
	if err != nil {
		return Result{}, err
	}
	if text, fail := renderResolutionFailure(ctx, s, toRes, to.Symbol); fail {
		return Result{Text: text}, nil
	}

	path, err := traversal.ShortestPath(ctx, s, fromRes.Node.ID, toRes.Node.ID, dependencyEdgeKinds, depth(opts))
	if err != nil {
		return Result{}, err
	}
	if len(path) == 0 {
		return Result{Text: formatter.NoPathMessage}, nil
	}
	return render(ctx, s, projectRoot, path, nil, maxNodes(opts))
}

// SeedQuery is search_graph's input: either From/To (connect exactly two
// named symbols) or Seeds (connect an arbitrary set, e.g. resolved from a
// topic search upstream of this package).
type SeedQuery struct {
	From  *SymbolRef
	To    *SymbolRef
	Seeds []string // already-resolved node IDs, e.g. from the search collaborator
}

// SearchGraph implements search_graph: resolves any named seeds, unions
// them with already-resolved IDs, and renders the minimal connecting
// subgraph traversal.ConnectSeeds finds.
func SearchGraph(ctx context.Context, s Store, projectRoot string, q SeedQuery, opts Options) (Result, error) {
	var seeds []string
	for _, ref := range []*SymbolRef{q.From, q.To} {
		if ref == nil {
			continue
		}
		res, err := resolve(ctx, s, *ref)
		if err != nil {
			return Result{}, err
		}
		if text, fail := renderResolutionFailure(ctx, s, res, ref.Symbol); fail {
			return Result{Text: text}, nil
		}
		seeds = append(seeds, res.Node.ID)
	}
	seeds = append(seeds, q.Seeds...)

	if len(seeds) < 2 {
		return Result{Text: formatter.NoDependenciesMessage}, nil
	}

	edges, err := traversal.ConnectSeeds(ctx, s, seeds, dependencyEdgeKinds, depth(opts))
	if err != nil {
		return Result{}, err
	}
	if len(edges) == 0 {
		return Result{Text: formatter.NoPathMessage}, nil
	}
	return render(ctx, s, projectRoot, edges, nil, maxNodes(opts))
}
