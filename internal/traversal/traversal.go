// Package traversal implements the bounded graph-walking primitives queries
// are built from: direct and transitive dependency/dependent sets, shortest
// path, k edge-disjoint paths, impact analysis, and multi-seed connection.
// Every primitive is depth-bounded — there is no unbounded walk in this
// package.
package traversal

import (
	"container/list"
	"context"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

// DefaultMaxDepth is the bound every primitive falls back to when the
// caller passes a non-positive depth (§4.6).
const DefaultMaxDepth = 100

// GraphReader is the slice of store.Storage traversal needs: forward and
// backward single-hop edge lookups.
type GraphReader interface {
	OutgoingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error)
	IncomingEdges(ctx context.Context, nodeID string, kinds []graphmodel.EdgeKind) ([]graphmodel.Edge, error)
}

func boundedDepth(d int) int {
	if d <= 0 {
		return DefaultMaxDepth
	}
	return d
}

// DependencyEdges returns every edge reachable forward from root within
// maxDepth hops, one walk frontier at a time (BFS, not recursive — §9).
func DependencyEdges(ctx context.Context, g GraphReader, root string, kinds []graphmodel.EdgeKind, maxDepth int) ([]graphmodel.Edge, error) {
	return bfsEdges(ctx, root, boundedDepth(maxDepth), func(ctx context.Context, id string) ([]graphmodel.Edge, error) {
		return g.OutgoingEdges(ctx, id, kinds)
	}, func(e graphmodel.Edge) string { return e.TargetID })
}

// DependentEdges returns every edge reachable backward from root within
// maxDepth hops — "what depends on this".
func DependentEdges(ctx context.Context, g GraphReader, root string, kinds []graphmodel.EdgeKind, maxDepth int) ([]graphmodel.Edge, error) {
	return bfsEdges(ctx, root, boundedDepth(maxDepth), func(ctx context.Context, id string) ([]graphmodel.Edge, error) {
		return g.IncomingEdges(ctx, id, kinds)
	}, func(e graphmodel.Edge) string { return e.SourceID })
}

func bfsEdges(ctx context.Context, root string, maxDepth int, next func(context.Context, string) ([]graphmodel.Edge, error), advance func(graphmodel.Edge) string) ([]graphmodel.Edge, error) {
	visited := map[string]bool{root: true}
	queue := list.New()
	queue.PushBack(frontierNode{id: root, depth: 0})

	var out []graphmodel.Edge
	for queue.Len() > 0 {
		front := queue.Remove(queue.Front()).(frontierNode)
		if front.depth >= maxDepth {
			continue
		}
		edges, err := next(ctx, front.id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			out = append(out, e)
			nbr := advance(e)
			if !visited[nbr] {
				visited[nbr] = true
				queue.PushBack(frontierNode{id: nbr, depth: front.depth + 1})
			}
		}
	}
	return out, nil
}

type frontierNode struct {
	id    string
	depth int
}

// Impact returns every node reachable backward from root over the fixed
// ImpactKinds set — "what breaks if root changes" (§4.6).
func Impact(ctx context.Context, g GraphReader, root string, maxDepth int) ([]string, error) {
	edges, err := DependentEdges(ctx, g, root, graphmodel.ImpactKinds, maxDepth)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range edges {
		if !seen[e.SourceID] {
			seen[e.SourceID] = true
			out = append(out, e.SourceID)
		}
	}
	return out, nil
}

// ShortestPath finds the shortest forward path from->to within maxDepth
// hops. If none is found forward, it searches the reverse direction, from
// "to" toward "from", and returns that path as found, its edges in their
// stored direction — §4.6's bidirectional fallback policy, which exists
// because a caller can't always tell which direction the dependency runs.
func ShortestPath(ctx context.Context, g GraphReader, from, to string, kinds []graphmodel.EdgeKind, maxDepth int) ([]graphmodel.Edge, error) {
	maxDepth = boundedDepth(maxDepth)
	path, err := bfsPath(ctx, from, to, maxDepth, func(ctx context.Context, id string) ([]graphmodel.Edge, error) {
		return g.OutgoingEdges(ctx, id, kinds)
	}, func(e graphmodel.Edge) (string, string) { return e.SourceID, e.TargetID })
	if err != nil {
		return nil, err
	}
	if path != nil {
		return path, nil
	}

	return bfsPath(ctx, to, from, maxDepth, func(ctx context.Context, id string) ([]graphmodel.Edge, error) {
		return g.OutgoingEdges(ctx, id, kinds)
	}, func(e graphmodel.Edge) (string, string) { return e.SourceID, e.TargetID })
}

// bfsPath returns the edge-labeled path from start to goal, or nil if none
// exists within maxDepth. endpoint extracts (from, to) from an edge in the
// walk's own direction, so the caller can reconstruct parent pointers
// uniformly regardless of which direction it's walking.
func bfsPath(ctx context.Context, start, goal string, maxDepth int, next func(context.Context, string) ([]graphmodel.Edge, error), endpoint func(graphmodel.Edge) (string, string)) ([]graphmodel.Edge, error) {
	if start == goal {
		return []graphmodel.Edge{}, nil
	}
	visited := map[string]bool{start: true}
	parents := map[string]pathParent{}
	queue := list.New()
	queue.PushBack(frontierNode{id: start, depth: 0})

	for queue.Len() > 0 {
		front := queue.Remove(queue.Front()).(frontierNode)
		if front.depth >= maxDepth {
			continue
		}
		edges, err := next(ctx, front.id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			_, to := endpoint(e)
			if visited[to] {
				continue
			}
			visited[to] = true
			parents[to] = pathParent{edge: e, from: front.id}
			if to == goal {
				return reconstructPath(parents, goal), nil
			}
			queue.PushBack(frontierNode{id: to, depth: front.depth + 1})
		}
	}
	return nil, nil
}

type pathParent struct {
	edge graphmodel.Edge
	from string
}

func reconstructPath(parents map[string]pathParent, goal string) []graphmodel.Edge {
	var rev []graphmodel.Edge
	cur := goal
	for {
		p, ok := parents[cur]
		if !ok {
			break
		}
		rev = append(rev, p.edge)
		cur = p.from
	}
	out := make([]graphmodel.Edge, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}
