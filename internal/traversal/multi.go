package traversal

import (
	"context"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

func edgeKey(e graphmodel.Edge) string {
	return e.SourceID + "|" + e.TargetID + "|" + string(e.Kind)
}

// excludingReader wraps a GraphReader, hiding edges already consumed by a
// prior k_paths iteration so the next shortest-path search is forced onto a
// disjoint route.
type excludingReader struct {
	inner    GraphReader
	excluded map[string]bool
}

func (r *excludingReader) OutgoingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error) {
	edges, err := r.inner.OutgoingEdges(ctx, nodeID, kinds)
	if err != nil {
		return nil, err
	}
	return r.filter(edges), nil
}

func (r *excludingReader) IncomingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error) {
	edges, err := r.inner.IncomingEdges(ctx, nodeID, kinds)
	if err != nil {
		return nil, err
	}
	return r.filter(edges), nil
}

func (r *excludingReader) filter(edges []graphmodel.Edge) []graphmodel.Edge {
	var out []graphmodel.Edge
	for _, e := range edges {
		if !r.excluded[edgeKey(e)] {
			out = append(out, e)
		}
	}
	return out
}

// KPaths finds up to k edge-disjoint shortest paths from->to: each
// iteration finds the shortest remaining path, then removes its edges from
// consideration before the next — §4.6's k_paths.
func KPaths(ctx context.Context, g GraphReader, from, to string, kinds []graphmodel.EdgeKind, k int, maxDepth int) ([][]graphmodel.Edge, error) {
	if k <= 0 {
		k = 1
	}
	excluded := map[string]bool{}
	wrapped := &excludingReader{inner: g, excluded: excluded}

	var paths [][]graphmodel.Edge
	for i := 0; i < k; i++ {
		path, err := ShortestPath(ctx, wrapped, from, to, kinds, maxDepth)
		if err != nil {
			return nil, err
		}
		if path == nil {
			break
		}
		paths = append(paths, path)
		for _, e := range path {
			excluded[edgeKey(e)] = true
		}
	}
	return paths, nil
}

type seedState struct {
	visited map[string]bool
	parents map[string]pathParent
}

func bfsFromSeed(ctx context.Context, g GraphReader, seed string, kinds []graphmodel.EdgeKind, maxDepth int) (*seedState, error) {
	state := &seedState{visited: map[string]bool{seed: true}, parents: map[string]pathParent{}}
	queue := []frontierNode{{id: seed, depth: 0}}
	for len(queue) > 0 {
		front := queue[0]
		queue = queue[1:]
		if front.depth >= maxDepth {
			continue
		}
		out, err := g.OutgoingEdges(ctx, front.id, kinds)
		if err != nil {
			return nil, err
		}
		in, err := g.IncomingEdges(ctx, front.id, kinds)
		if err != nil {
			return nil, err
		}
		for _, e := range append(out, in...) {
			nbr := e.TargetID
			if nbr == front.id {
				nbr = e.SourceID
			}
			if state.visited[nbr] {
				continue
			}
			state.visited[nbr] = true
			state.parents[nbr] = pathParent{edge: e, from: front.id}
			queue = append(queue, frontierNode{id: nbr, depth: front.depth + 1})
		}
	}
	return state, nil
}

// ConnectSeeds finds a minimal connecting subgraph among several seed
// nodes: each seed grows its own BFS frontier (treating edges as
// undirected, since the point is reachability for display, not direction),
// and as soon as two seeds' frontiers meet, the stitched path between them
// joins the result. Seeds already connected (directly or transitively) are
// skipped — §4.6's connect_seeds.
func ConnectSeeds(ctx context.Context, g GraphReader, seeds []string, kinds []graphmodel.EdgeKind, maxDepth int) ([]graphmodel.Edge, error) {
	if len(seeds) < 2 {
		return nil, nil
	}
	maxDepth = boundedDepth(maxDepth)

	states := make([]*seedState, len(seeds))
	for i, s := range seeds {
		st, err := bfsFromSeed(ctx, g, s, kinds, maxDepth)
		if err != nil {
			return nil, err
		}
		states[i] = st
	}

	parent := make([]int, len(seeds))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	seenEdge := map[string]bool{}
	var result []graphmodel.Edge
	addPath := func(path []graphmodel.Edge) {
		for _, e := range path {
			k := edgeKey(e)
			if !seenEdge[k] {
				seenEdge[k] = true
				result = append(result, e)
			}
		}
	}

	for i := 0; i < len(seeds); i++ {
		for j := i + 1; j < len(seeds); j++ {
			if find(i) == find(j) {
				continue
			}
			common := ""
			for node := range states[i].visited {
				if states[j].visited[node] {
					common = node
					break
				}
			}
			if common == "" {
				continue
			}
			addPath(reconstructPath(states[i].parents, common))
			addPath(reconstructPath(states[j].parents, common))
			union(i, j)
		}
	}
	return result, nil
}
