package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/surrealdb/surrealdb.go"
)

// embeddingRow is kept in its own table, separate from nodes, so the core
// nodes/edges schema matches §4.2 exactly. It backs the optional Search
// provider collaborator (§6.3) used only by search_graph's topic path.
type embeddingRow struct {
	NodeID string    `json:"node_id"`
	Vector []float32 `json:"vector"`
}

// UpsertEmbedding stores or replaces the vector associated with a node.
func (s *Storage) UpsertEmbedding(ctx context.Context, nodeID string, vector []float32) error {
	query := `UPSERT embeddings SET node_id = $node_id, vector = $vector WHERE node_id = $node_id`
	if err := s.query(ctx, query, map[string]any{"node_id": nodeID, "vector": vector}); err != nil {
		return fmt.Errorf("upsert embedding for %s: %w", nodeID, err)
	}
	return nil
}

// SearchEmbeddings ranks every stored embedding against queryVector by cosine
// similarity and returns the top limit node IDs with positive similarity.
func (s *Storage) SearchEmbeddings(ctx context.Context, queryVector []float32, limit int) ([]string, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	results, err := surrealdb.Query[[]embeddingRow](ctx, s.db, `SELECT * FROM embeddings LIMIT 10000`, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch embeddings: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	type scored struct {
		nodeID string
		score  float64
	}
	var ranked []scored
	for _, row := range (*results)[0].Result {
		if len(row.Vector) != len(queryVector) {
			continue
		}
		score := cosineSimilarity(queryVector, row.Vector)
		if score > 0 {
			ranked = append(ranked, scored{nodeID: row.NodeID, score: score})
		}
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.nodeID
	}
	return ids, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
