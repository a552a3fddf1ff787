// Package formatter renders a set of nodes and edges into the textual and
// Mermaid views callers read — compacting straight-line dependency chains,
// disambiguating colliding display names, and sizing code snippets to how
// many nodes are in view (§4.7).
package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
)

// Byte-stable strings a caller renders verbatim when a query comes back
// empty — §6.4.
const (
	NoDependenciesMessage = "No dependencies found."
	NoPathMessage         = "No path found."
	NoSymbolsFoundMessage = "(no symbols found)"
)

// SymbolNotFoundMessage formats the resolver's not-found message for id.
func SymbolNotFoundMessage(id string) string {
	return "Symbol not found: " + id
}

// DisplayNames assigns every node a display name: its symbol extracted from
// its ID (so a Method reads "Class.method", not just "method"), rewritten
// through aliasMap when a leading segment matches a synthetic type's name,
// then disambiguated with a "#2", "#3", ... suffix for any name two or more
// distinct nodes would otherwise share (§4.7 steps 1-3).
func DisplayNames(nodes []graphmodel.Node, aliasMap map[string]string) map[string]string {
	base := make(map[string]string, len(nodes))
	for _, n := range nodes {
		base[n.ID] = rewriteAlias(ident.ExtractSymbol(n.ID), aliasMap)
	}

	byName := map[string][]string{}
	for _, n := range nodes {
		byName[base[n.ID]] = append(byName[base[n.ID]], n.ID)
	}

	out := make(map[string]string, len(nodes))
	for name, ids := range byName {
		sort.Strings(ids)
		for i, id := range ids {
			if i == 0 {
				out[id] = name
			} else {
				out[id] = fmt.Sprintf("%s#%d", name, i+1)
			}
		}
	}
	return out
}

// rewriteAlias replaces a leading synthetic-type name in symbol with the
// declared name it aliases, per §4.1/§4.7: "ReturnType<typeof
// createService>.fetchAll" becomes "Service.fetchAll" when an ALIAS_FOR
// edge maps the synthetic name "ReturnType<typeof createService>" to
// "Service".
func rewriteAlias(symbol string, aliasMap map[string]string) string {
	for synthetic, alias := range aliasMap {
		if symbol == synthetic {
			return alias
		}
		if strings.HasPrefix(symbol, synthetic+".") {
			return alias + symbol[len(synthetic):]
		}
	}
	return symbol
}

// AdaptiveContext picks how verbose the Nodes section gets, purely from N,
// the number of nodes it will render (§4.7's adaptive-context table):
//
//	N <= 5        -> 10 lines of context, full snippets
//	5 < N <= 25    -> shrinking context, floor((25-N)/2) lines
//	25 < N <= 35   -> 0 lines: the call-site line itself, nothing around it
//	35 < N <= 50   -> no snippets at all, just a summary line
//	N > 50        -> truncate to 50 nodes before rendering anything
func AdaptiveContext(n int) (contextLines int, mode string) {
	switch {
	case n <= 5:
		return 10, "snippet"
	case n <= 25:
		return (25 - n) / 2, "snippet"
	case n <= 35:
		return 0, "snippet"
	case n <= 50:
		return 0, "omit"
	default:
		return 0, "truncate"
	}
}

// FormatNodesSection renders the "Nodes" section, one entry per node:
//
//	<display_name>:
//	  type: <kind>
//	  file: <file_path>
//	  offset: <start_line>, limit: <end_line - start_line + 1>
//	  snippet:
//	    <L>: <code line>
//	    > <L>: <code line>
//
// callSites maps a node's ID to the line ranges where it makes calls
// (gathered from its outgoing CALLS edges) — present only for
// Function/Method nodes that are themselves callers. Snippet verbosity
// follows AdaptiveContext; "omit" mode still emits every node's header, just
// no snippet body, plus a trailing summary note.
func FormatNodesSection(nodes []graphmodel.Node, displayNames map[string]string, fileText map[string][]string, callSites map[string][]graphmodel.LineRange) string {
	if len(nodes) == 0 {
		return NoSymbolsFoundMessage
	}

	context, mode := AdaptiveContext(len(nodes))

	var b strings.Builder
	for i, node := range nodes {
		if i > 0 {
			b.WriteString("\n")
		}
		name := displayNames[node.ID]
		if name == "" {
			name = node.Name
		}
		fmt.Fprintf(&b, "%s:\n", name)
		fmt.Fprintf(&b, "  type: %s\n", node.Kind)
		fmt.Fprintf(&b, "  file: %s\n", node.FilePath)
		fmt.Fprintf(&b, "  offset: %d, limit: %d\n", node.StartLine, node.EndLine-node.StartLine+1)

		if mode == "omit" {
			continue
		}
		lines := fileText[node.FilePath]
		if lines == nil {
			continue
		}
		b.WriteString("  snippet:\n")
		writeNodeSnippet(&b, lines, node, callSites[node.ID], context)
	}
	if mode == "omit" {
		fmt.Fprintf(&b, "\nSnippets omitted (%d nodes)\n", len(nodes))
	}
	return b.String()
}

// writeNodeSnippet picks the snippet policy (§4.7): no recorded call sites
// means this node is a callee, not a caller, so it gets the first
// contextLines of its own body; a body no larger than 2*contextLines is
// shown whole; otherwise the snippet is windows of +/-contextLines around
// each call site, merged when the gap between windows is small. Call-site
// lines are marked with a leading "> ".
func writeNodeSnippet(b *strings.Builder, lines []string, node graphmodel.Node, sites []graphmodel.LineRange, contextLines int) {
	if len(sites) == 0 {
		start := node.StartLine
		end := start + contextLines - 1
		if end > node.EndLine {
			end = node.EndLine
		}
		writeLineRange(b, lines, start, end, sites)
		return
	}

	bodyLen := node.EndLine - node.StartLine + 1
	if bodyLen <= 2*contextLines {
		writeLineRange(b, lines, node.StartLine, node.EndLine, sites)
		return
	}

	const maxGap = 2
	windows := mergeCallWindows(sites, contextLines, maxGap)
	for i, w := range windows {
		if i > 0 {
			b.WriteString("    ...\n")
		}
		writeLineRange(b, lines, w.StartLine, w.EndLine, sites)
	}
}

// mergeCallWindows expands each call site by +/-contextLines and merges
// adjacent windows whose gap is at most maxGap lines, so two nearby calls
// don't produce two overlapping or near-touching blocks.
func mergeCallWindows(sites []graphmodel.LineRange, contextLines, maxGap int) []graphmodel.LineRange {
	sorted := make([]graphmodel.LineRange, len(sites))
	copy(sorted, sites)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartLine < sorted[j].StartLine })

	var windows []graphmodel.LineRange
	for _, s := range sorted {
		w := graphmodel.LineRange{StartLine: s.StartLine - contextLines, EndLine: s.EndLine + contextLines}
		if len(windows) > 0 && w.StartLine <= windows[len(windows)-1].EndLine+maxGap+1 {
			last := &windows[len(windows)-1]
			if w.EndLine > last.EndLine {
				last.EndLine = w.EndLine
			}
			continue
		}
		windows = append(windows, w)
	}
	return windows
}

func writeLineRange(b *strings.Builder, lines []string, start, end int, sites []graphmodel.LineRange) {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	for i := start; i <= end; i++ {
		prefix := "    "
		if withinAnySite(i, sites) {
			prefix = "    > "
		}
		fmt.Fprintf(b, "%s%d: %s\n", prefix, i, lines[i-1])
	}
}

func withinAnySite(line int, sites []graphmodel.LineRange) bool {
	for _, s := range sites {
		if line >= s.StartLine && line <= s.EndLine {
			return true
		}
	}
	return false
}

// CallSitesBySource collects each node's outgoing CALLS edges' call_sites
// into the map FormatNodesSection's callSites argument expects, sorted
// ascending per the call-site-order invariant (§8 property 6).
func CallSitesBySource(edges []graphmodel.Edge) map[string][]graphmodel.LineRange {
	out := map[string][]graphmodel.LineRange{}
	for _, e := range edges {
		if e.Kind != graphmodel.EdgeCalls || len(e.CallSites) == 0 {
			continue
		}
		out[e.SourceID] = append(out[e.SourceID], e.CallSites...)
	}
	for id := range out {
		sort.Slice(out[id], func(i, j int) bool { return out[id][i].StartLine < out[id][j].StartLine })
	}
	return out
}

// FormatGraph renders edges as compacted dependency chains: a node chains
// onto the next over "--KIND-->" as long as it has exactly one unvisited
// outgoing edge; a node with several unvisited outgoing edges extends the
// current line with the first and starts a fresh line — rooted at that
// branching node — for each additional edge (§4.7 steps 1-4).
func FormatGraph(edges []graphmodel.Edge, displayNames map[string]string) string {
	if len(edges) == 0 {
		return NoDependenciesMessage
	}

	outAdj := map[string][]graphmodel.Edge{}
	inDegree := map[string]int{}
	nodeSet := map[string]bool{}
	for _, e := range edges {
		outAdj[e.SourceID] = append(outAdj[e.SourceID], e)
		inDegree[e.TargetID]++
		nodeSet[e.SourceID] = true
		nodeSet[e.TargetID] = true
	}
	for src := range outAdj {
		sort.Slice(outAdj[src], func(i, j int) bool {
			return outAdj[src][i].TargetID < outAdj[src][j].TargetID
		})
	}

	var roots []string
	for id := range nodeSet {
		if inDegree[id] == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	if len(roots) == 0 {
		// a cycle with no clear entry point — fall back to the first edge's
		// source so output is still produced (§4.7 step 1).
		roots = []string{edges[0].SourceID}
	}

	visited := map[string]bool{}
	var lines []string

	var walk func(id, line string)
	walk = func(id, line string) {
		visited[id] = true
		if line == "" {
			line = displayName(id, displayNames)
		}
		var pending []graphmodel.Edge
		for _, e := range outAdj[id] {
			if !visited[e.TargetID] {
				pending = append(pending, e)
			}
		}
		if len(pending) == 0 {
			lines = append(lines, line)
			return
		}
		first := pending[0]
		extended := fmt.Sprintf("%s --%s--> %s", line, first.Kind, displayName(first.TargetID, displayNames))
		walk(first.TargetID, extended)
		for _, e := range pending[1:] {
			if visited[e.TargetID] {
				continue
			}
			branch := fmt.Sprintf("%s --%s--> %s", displayName(id, displayNames), e.Kind, displayName(e.TargetID, displayNames))
			walk(e.TargetID, branch)
		}
	}

	for _, r := range roots {
		if !visited[r] {
			walk(r, "")
		}
	}
	// any node never reached (isolated by a cycle the roots didn't cover)
	var rest []string
	for id := range nodeSet {
		if !visited[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		if !visited[id] {
			walk(id, "")
		}
	}

	return strings.Join(lines, "\n")
}

func displayName(id string, names map[string]string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return ident.ExtractSymbol(id)
}
