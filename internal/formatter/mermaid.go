package formatter

import (
	"fmt"
	"strings"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

// sanitizeMermaidID replaces anything Mermaid's node-id grammar doesn't
// accept with "_", so dotted symbol paths and file extensions survive.
func sanitizeMermaidID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// assignMermaidIDs gives every node a sanitized, unique Mermaid identifier —
// two different node IDs can sanitize to the same string (e.g. "a.b" and
// "a:b" both become "a_b"), so collisions past the first get a counter
// suffix (§4.7: "counter-suffix to force uniqueness").
func assignMermaidIDs(nodes []graphmodel.Node) map[string]string {
	used := map[string]int{}
	out := make(map[string]string, len(nodes))
	for _, n := range nodes {
		base := sanitizeMermaidID(n.ID)
		used[base]++
		if used[base] == 1 {
			out[n.ID] = base
		} else {
			out[n.ID] = fmt.Sprintf("%s_%d", base, used[base])
		}
	}
	return out
}

// htmlEscapeLabel encodes the two characters Mermaid's label grammar can't
// carry literally — "<" and ">" — so a generic like "Array<User>" or an
// INCLUDES target's "<Name>" wrapper renders instead of breaking the graph.
func htmlEscapeLabel(s string) string {
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// mermaidLabel formats a node's box label: Function/Method get a trailing
// "()" the way a call site would read, and an INCLUDES target (a generic or
// template instantiation) is wrapped in angle brackets per §4.7, both
// HTML-entity encoded.
func mermaidLabel(node graphmodel.Node, name string, isIncludesTarget bool) string {
	if isIncludesTarget {
		return htmlEscapeLabel("<" + name + ">")
	}
	switch node.Kind {
	case graphmodel.KindFunction, graphmodel.KindMethod:
		return htmlEscapeLabel(name) + "()"
	default:
		return htmlEscapeLabel(name)
	}
}

// FormatMermaid renders nodes/edges as a "graph LR" flowchart (§4.7). total
// is the full reachable node count before any truncation the caller already
// applied to nodes/edges; when total exceeds len(nodes) a
// "%% (K/N nodes displayed)" comment is prepended, mirroring the textual
// form's truncation note.
func FormatMermaid(nodes []graphmodel.Node, edges []graphmodel.Edge, displayNames map[string]string, total int) string {
	var b strings.Builder
	if total > len(nodes) {
		fmt.Fprintf(&b, "%%%% (%d/%d nodes displayed)\n", len(nodes), total)
	}
	b.WriteString("graph LR\n")

	ids := assignMermaidIDs(nodes)
	includesTargets := map[string]bool{}
	for _, e := range edges {
		if e.Kind == graphmodel.EdgeIncludes {
			includesTargets[e.TargetID] = true
		}
	}

	for _, n := range nodes {
		name := displayNames[n.ID]
		if name == "" {
			name = n.Name
		}
		label := mermaidLabel(n, name, includesTargets[n.ID])
		fmt.Fprintf(&b, "    %s[%q]\n", ids[n.ID], label)
	}

	for _, e := range edges {
		srcID, ok1 := ids[e.SourceID]
		dstID, ok2 := ids[e.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		fmt.Fprintf(&b, "    %s -->|%s| %s\n", srcID, e.Kind, dstID)
	}

	return b.String()
}
