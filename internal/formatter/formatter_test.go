package formatter

import (
	"strings"
	"testing"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

func TestDisplayNamesDisambiguates(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.ts:Function:foo", Name: "foo"},
		{ID: "b.ts:Function:foo", Name: "foo"},
	}
	names := DisplayNames(nodes, nil)
	if names["a.ts:Function:foo"] != "foo" {
		t.Errorf("first occurrence = %q, want foo", names["a.ts:Function:foo"])
	}
	if names["b.ts:Function:foo"] != "foo#2" {
		t.Errorf("second occurrence = %q, want foo#2", names["b.ts:Function:foo"])
	}
}

func TestDisplayNamesUsesQualifiedSymbol(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.ts:Method:Service.run", Name: "run", Kind: graphmodel.KindMethod},
	}
	names := DisplayNames(nodes, nil)
	if names["a.ts:Method:Service.run"] != "Service.run" {
		t.Errorf("DisplayNames() = %q, want qualified Service.run", names["a.ts:Method:Service.run"])
	}
}

func TestDisplayNamesRewritesSyntheticViaAliasMap(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.ts:SyntheticType:ConfigReturn", Name: "ConfigReturn", Kind: graphmodel.KindSyntheticType},
	}
	aliasMap := map[string]string{"ConfigReturn": "Config"}
	names := DisplayNames(nodes, aliasMap)
	if names["a.ts:SyntheticType:ConfigReturn"] != "Config" {
		t.Errorf("alias rewrite = %q, want Config", names["a.ts:SyntheticType:ConfigReturn"])
	}
}

func TestDisplayNamesRewritesAliasedPrefixOnOtherNode(t *testing.T) {
	// §8 property 10: a node whose symbol is prefixed by a synthetic type's
	// name gets that prefix rewritten to the alias the synthetic stands in
	// for, even though the node itself isn't the SyntheticType.
	nodes := []graphmodel.Node{
		{ID: "a.ts:Method:ReturnType<typeof createService>.fetchAll", Name: "fetchAll", Kind: graphmodel.KindMethod},
	}
	aliasMap := map[string]string{"ReturnType<typeof createService>": "Service"}
	names := DisplayNames(nodes, aliasMap)
	want := "Service.fetchAll"
	if got := names["a.ts:Method:ReturnType<typeof createService>.fetchAll"]; got != want {
		t.Errorf("DisplayNames() = %q, want %q", got, want)
	}
}

func TestFormatGraphEmpty(t *testing.T) {
	if got := FormatGraph(nil, nil); got != NoDependenciesMessage {
		t.Errorf("FormatGraph(nil) = %q, want %q", got, NoDependenciesMessage)
	}
}

func TestFormatGraphCompactsStraightChain(t *testing.T) {
	edges := []graphmodel.Edge{
		{SourceID: "A", TargetID: "B", Kind: graphmodel.EdgeCalls},
		{SourceID: "B", TargetID: "C", Kind: graphmodel.EdgeCalls},
	}
	names := map[string]string{"A": "A", "B": "B", "C": "C"}
	got := FormatGraph(edges, names)
	want := "A --CALLS--> B --CALLS--> C"
	if got != want {
		t.Errorf("FormatGraph() = %q, want %q", got, want)
	}
}

func TestFormatGraphBranches(t *testing.T) {
	edges := []graphmodel.Edge{
		{SourceID: "A", TargetID: "B", Kind: graphmodel.EdgeCalls},
		{SourceID: "A", TargetID: "C", Kind: graphmodel.EdgeCalls},
	}
	names := map[string]string{"A": "A", "B": "B", "C": "C"}
	got := FormatGraph(edges, names)
	if !strings.Contains(got, "A --CALLS--> B") || !strings.Contains(got, "A --CALLS--> C") {
		t.Errorf("FormatGraph() = %q, want branching lines from A", got)
	}
}

func TestFormatNodesSectionEmpty(t *testing.T) {
	if got := FormatNodesSection(nil, nil, nil, nil); got != NoSymbolsFoundMessage {
		t.Errorf("FormatNodesSection(nil) = %q, want %q", got, NoSymbolsFoundMessage)
	}
}

func TestFormatNodesSectionSmallSetShowsFullBody(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.ts:Function:foo", Name: "foo", Kind: graphmodel.KindFunction, FilePath: "a.ts", StartLine: 2, EndLine: 3},
	}
	fileText := map[string][]string{"a.ts": {"function foo() {", "  return 1;", "}"}}
	got := FormatNodesSection(nodes, map[string]string{"a.ts:Function:foo": "foo"}, fileText, nil)
	if !strings.Contains(got, "return 1;") {
		t.Errorf("FormatNodesSection() = %q, want full body snippet", got)
	}
	if !strings.Contains(got, "type: Function") || !strings.Contains(got, "offset: 2, limit: 2") {
		t.Errorf("FormatNodesSection() = %q, want type/offset header", got)
	}
}

func TestFormatNodesSectionMarksCallSites(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.ts:Function:foo", Name: "foo", Kind: graphmodel.KindFunction, FilePath: "a.ts", StartLine: 1, EndLine: 3},
	}
	fileText := map[string][]string{"a.ts": {"function foo() {", "  bar();", "}"}}
	callSites := map[string][]graphmodel.LineRange{
		"a.ts:Function:foo": {{StartLine: 2, EndLine: 2}},
	}
	got := FormatNodesSection(nodes, map[string]string{"a.ts:Function:foo": "foo"}, fileText, callSites)
	if !strings.Contains(got, "> 2: ") {
		t.Errorf("FormatNodesSection() = %q, want call site line 2 marked with '>'", got)
	}
	if strings.Contains(got, "> 1: ") || strings.Contains(got, "> 3: ") {
		t.Errorf("FormatNodesSection() = %q, want only line 2 marked", got)
	}
}

func TestFormatNodesSectionOmitsSnippetsPast35Nodes(t *testing.T) {
	var nodes []graphmodel.Node
	names := map[string]string{}
	for i := 0; i < 40; i++ {
		id := strings.Repeat("x", i+1) + ".ts"
		nodes = append(nodes, graphmodel.Node{ID: id, Name: id, Kind: graphmodel.KindFunction, FilePath: id, StartLine: 1, EndLine: 2})
		names[id] = id
	}
	got := FormatNodesSection(nodes, names, nil, nil)
	if !strings.Contains(got, "Snippets omitted (40 nodes)") {
		t.Errorf("FormatNodesSection() = %q, want omitted-snippets note", got)
	}
}

func TestAdaptiveContextTable(t *testing.T) {
	cases := []struct {
		n        int
		wantMode string
	}{
		{1, "snippet"},
		{5, "snippet"},
		{20, "snippet"},
		{30, "snippet"},
		{40, "omit"},
		{51, "truncate"},
	}
	for _, tc := range cases {
		if _, mode := AdaptiveContext(tc.n); mode != tc.wantMode {
			t.Errorf("AdaptiveContext(%d) mode = %q, want %q", tc.n, mode, tc.wantMode)
		}
	}
}

func TestCallSitesBySourceSortsAscending(t *testing.T) {
	edges := []graphmodel.Edge{
		{SourceID: "A", TargetID: "B", Kind: graphmodel.EdgeCalls, CallSites: []graphmodel.LineRange{{StartLine: 10, EndLine: 10}}},
		{SourceID: "A", TargetID: "C", Kind: graphmodel.EdgeCalls, CallSites: []graphmodel.LineRange{{StartLine: 3, EndLine: 3}}},
	}
	got := CallSitesBySource(edges)["A"]
	if len(got) != 2 || got[0].StartLine != 3 || got[1].StartLine != 10 {
		t.Errorf("CallSitesBySource() = %+v, want ascending by StartLine", got)
	}
}

func TestSanitizeMermaidID(t *testing.T) {
	got := sanitizeMermaidID("src/user.ts:Method:UserService.save")
	if strings.ContainsAny(got, "/:.") {
		t.Errorf("sanitizeMermaidID() = %q, still has disallowed characters", got)
	}
}

func TestFormatMermaidUsesGraphLR(t *testing.T) {
	got := FormatMermaid(nil, nil, nil, 0)
	if !strings.HasPrefix(got, "graph LR\n") {
		t.Errorf("FormatMermaid() = %q, want to start with graph LR", got)
	}
}

func TestFormatMermaidIncludesSuffixAndWrapping(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.ts:Function:foo", Name: "foo", Kind: graphmodel.KindFunction},
		{ID: "a.ts:SyntheticType:T", Name: "T", Kind: graphmodel.KindSyntheticType},
	}
	edges := []graphmodel.Edge{
		{SourceID: "a.ts:Function:foo", TargetID: "a.ts:SyntheticType:T", Kind: graphmodel.EdgeIncludes},
	}
	names := map[string]string{"a.ts:Function:foo": "foo", "a.ts:SyntheticType:T": "T"}
	got := FormatMermaid(nodes, edges, names, len(nodes))
	if !strings.Contains(got, "foo()") {
		t.Errorf("FormatMermaid() = %q, want foo() label", got)
	}
	if !strings.Contains(got, "&lt;T&gt;") {
		t.Errorf("FormatMermaid() = %q, want &lt;T&gt; label for INCLUDES target", got)
	}
}

func TestFormatMermaidTruncationNote(t *testing.T) {
	nodes := []graphmodel.Node{{ID: "a.ts:Function:foo", Name: "foo", Kind: graphmodel.KindFunction}}
	got := FormatMermaid(nodes, nil, nil, 5)
	if !strings.HasPrefix(got, "%% (1/5 nodes displayed)\n") {
		t.Errorf("FormatMermaid() = %q, want truncation comment first", got)
	}
}

func TestFormatMermaidAssignsUniqueIDsOnCollision(t *testing.T) {
	nodes := []graphmodel.Node{
		{ID: "a.b", Name: "a.b", Kind: graphmodel.KindFunction},
		{ID: "a:b", Name: "a:b", Kind: graphmodel.KindFunction},
	}
	got := FormatMermaid(nodes, nil, nil, len(nodes))
	if !strings.Contains(got, "a_b[") || !strings.Contains(got, "a_b_2[") {
		t.Errorf("FormatMermaid() = %q, want a_b and a_b_2 as distinct ids", got)
	}
}
