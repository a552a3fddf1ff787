package extractor

import (
	"github.com/heefoo/codeloom/internal/astsrc"
	"github.com/heefoo/codeloom/internal/graphmodel"
)

// extractCalls aggregates every call site in d's body by resolved target
// into one CALLS edge each, carrying the total call count and every site.
func (e *extraction) extractCalls(srcID string, d astsrc.Declaration) {
	type agg struct {
		id    string
		count int
		sites []graphmodel.LineRange
	}
	byTarget := map[string]*agg{}
	var order []string

	for _, c := range d.Calls {
		base, member := splitCallee(c.Callee)
		targetID, _, ok := e.resolveName(base, member)
		if !ok || targetID == srcID {
			continue
		}
		a, seen := byTarget[targetID]
		if !seen {
			a = &agg{id: targetID}
			byTarget[targetID] = a
			order = append(order, targetID)
		}
		a.count++
		a.sites = append(a.sites, graphmodel.LineRange{StartLine: c.Line, EndLine: c.Line})
	}

	for _, id := range order {
		a := byTarget[id]
		e.addEdge(graphmodel.Edge{
			SourceID:  srcID,
			TargetID:  a.id,
			Kind:      graphmodel.EdgeCalls,
			CallCount: a.count,
			CallSites: a.sites,
		})
	}
}

// extractReferences emits one REFERENCES edge per distinct resolved target a
// declaration's body touches in value position without calling it.
func (e *extraction) extractReferences(srcID string, d astsrc.Declaration) {
	seen := map[string]bool{}
	for _, r := range d.References {
		if ignoredIdentifiers[r.Name] {
			continue
		}
		targetID, _, ok := e.resolveName(r.Name, "")
		if !ok || targetID == srcID || seen[targetID] {
			continue
		}
		seen[targetID] = true
		e.addEdge(graphmodel.Edge{
			SourceID:         srcID,
			TargetID:         targetID,
			Kind:             graphmodel.EdgeReferences,
			ReferenceContext: r.Context,
		})
	}
}
