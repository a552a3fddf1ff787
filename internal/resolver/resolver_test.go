package resolver

import (
	"context"
	"testing"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

type fakeGraph struct {
	nodes map[string]graphmodel.Node
	edges map[string][]graphmodel.Edge
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: map[string]graphmodel.Node{}, edges: map[string][]graphmodel.Edge{}}
}

func (f *fakeGraph) add(n graphmodel.Node) { f.nodes[n.ID] = n }

func (f *fakeGraph) GetNode(ctx context.Context, id string) (*graphmodel.Node, error) {
	if n, ok := f.nodes[id]; ok {
		return &n, nil
	}
	return nil, nil
}

func (f *fakeGraph) NodesByIDSuffix(ctx context.Context, suffix string) ([]graphmodel.Node, error) {
	var out []graphmodel.Node
	for id, n := range f.nodes {
		if len(id) >= len(suffix) && id[len(id)-len(suffix):] == suffix {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeGraph) NodesByName(ctx context.Context, name, file, pkg string) ([]graphmodel.Node, error) {
	var out []graphmodel.Node
	for _, n := range f.nodes {
		if n.Name != name {
			continue
		}
		if file != "" && n.FilePath != file {
			continue
		}
		if pkg != "" && n.Package != pkg {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeGraph) NodesByNameContains(ctx context.Context, substr string, limit int) ([]graphmodel.Node, error) {
	var out []graphmodel.Node
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeGraph) OutgoingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error) {
	return f.edges[nodeID], nil
}

func (f *fakeGraph) NodesByFile(ctx context.Context, path string) ([]graphmodel.Node, error) {
	var out []graphmodel.Node
	for _, n := range f.nodes {
		if n.FilePath == path {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestResolveLiteralID(t *testing.T) {
	g := newFakeGraph()
	g.add(graphmodel.Node{ID: "a.ts:Function:foo", Kind: graphmodel.KindFunction, Name: "foo", FilePath: "a.ts"})

	res, err := Resolve(context.Background(), g, SymbolQuery{Symbol: "a.ts:Function:foo"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Disposition != Unique || res.Node == nil || res.Node.Name != "foo" {
		t.Fatalf("Resolve() = %+v, want unique foo", res)
	}
}

func TestResolveByNameAmbiguous(t *testing.T) {
	g := newFakeGraph()
	g.add(graphmodel.Node{ID: "a.ts:Function:foo", Kind: graphmodel.KindFunction, Name: "foo", FilePath: "a.ts"})
	g.add(graphmodel.Node{ID: "b.ts:Function:foo", Kind: graphmodel.KindFunction, Name: "foo", FilePath: "b.ts"})

	res, err := Resolve(context.Background(), g, SymbolQuery{Symbol: "foo"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Disposition != Ambiguous || len(res.Candidates) != 2 {
		t.Fatalf("Resolve() = %+v, want ambiguous with 2 candidates", res)
	}
}

func TestResolveNotFoundWithSuggestions(t *testing.T) {
	g := newFakeGraph()
	g.add(graphmodel.Node{ID: "a.ts:Function:createUser", Kind: graphmodel.KindFunction, Name: "createUser", FilePath: "a.ts"})

	res, err := Resolve(context.Background(), g, SymbolQuery{Symbol: "createUzer"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Disposition != NotFound {
		t.Fatalf("Disposition = %v, want NotFound", res.Disposition)
	}
	found := false
	for _, s := range res.Suggestions {
		if s == "createUser" {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggestions = %v, want to include createUser", res.Suggestions)
	}
}

func TestClassMethodFallback(t *testing.T) {
	g := newFakeGraph()
	g.add(graphmodel.Node{ID: "a.ts:Class:Service", Kind: graphmodel.KindClass, Name: "Service", FilePath: "a.ts"})
	g.add(graphmodel.Node{ID: "a.ts:Method:Service.run", Kind: graphmodel.KindMethod, Name: "run", FilePath: "a.ts"})
	g.edges["a.ts:Method:Service.run"] = []graphmodel.Edge{
		{SourceID: "a.ts:Method:Service.run", TargetID: "a.ts:Function:helper", Kind: graphmodel.EdgeCalls},
	}

	res, err := Resolve(context.Background(), g, SymbolQuery{Symbol: "a.ts:Class:Service"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Disposition != Unique || res.Node.Kind != graphmodel.KindMethod {
		t.Fatalf("Resolve() = %+v, want fallback to the sole dependency-bearing method", res)
	}
}

func TestResolveDottedSymbol(t *testing.T) {
	g := newFakeGraph()
	g.add(graphmodel.Node{ID: "a.ts:Method:User.save", Kind: graphmodel.KindMethod, Name: "save", FilePath: "a.ts"})
	g.add(graphmodel.Node{ID: "b.ts:Method:Account.save", Kind: graphmodel.KindMethod, Name: "save", FilePath: "b.ts"})

	res, err := Resolve(context.Background(), g, SymbolQuery{Symbol: "User.save"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Disposition != Unique || res.Node == nil || res.Node.ID != "a.ts:Method:User.save" {
		t.Fatalf("Resolve(%q) = %+v, want unique a.ts:Method:User.save", "User.save", res)
	}
}

func TestResolveDottedSymbolNarrowedByFile(t *testing.T) {
	g := newFakeGraph()
	g.add(graphmodel.Node{ID: "a.ts:Method:createService.fetchAll", Kind: graphmodel.KindMethod, Name: "fetchAll", FilePath: "a.ts"})
	g.add(graphmodel.Node{ID: "b.ts:Method:OtherService.fetchAll", Kind: graphmodel.KindMethod, Name: "fetchAll", FilePath: "b.ts"})

	res, err := Resolve(context.Background(), g, SymbolQuery{Symbol: "createService.fetchAll", File: "a.ts"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Disposition != Unique || res.Node == nil || res.Node.ID != "a.ts:Method:createService.fetchAll" {
		t.Fatalf("Resolve() = %+v, want unique a.ts:Method:createService.fetchAll", res)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"kitten", "sitting", 3},
		{"foo", "foo", 0},
		{"a", "", 1},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
