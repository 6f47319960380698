package icdgraph

import (
	"context"
	"fmt"

	"saludfederada/db"
)

// Load reads cie10_nodes and cie10_edges and builds the graph. The edge list
// is returned as stored, for co-occurrence counts.
func Load(ctx context.Context, q *db.Queries) (*Graph, []Edge, error) {
	dbNodes, err := q.ListNodes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list nodes: %w", err)
	}
	dbEdges, err := q.ListEdges(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list edges: %w", err)
	}

	nodes := make([]Node, len(dbNodes))
	for i, n := range dbNodes {
		nodes[i] = Node{Code: n.Code, Description: n.Descripcion.String}
	}
	edges := make([]Edge, len(dbEdges))
	for i, e := range dbEdges {
		edges[i] = Edge{Source: e.Source, Target: e.Target, RelType: e.RelType.String}
		if e.Weight.Valid {
			w := e.Weight.Float64
			edges[i].Weight = &w
		}
	}
	return New(nodes, edges), edges, nil
}
