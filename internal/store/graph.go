package store

import (
	"context"
	"fmt"

	"github.com/pacledger/pacledger/internal/artifact"
	"github.com/pacledger/pacledger/internal/graph"
)

// SaveNode upserts a graph node's metadata and status. Status is the only
// field expected to change (PENDING -> FINALIZED).
func (s *Store) SaveNode(ctx context.Context, node graph.Node) error {
	meta := artifact.Object{}
	for k, v := range node.Metadata {
		meta[k] = artifact.Text(v)
	}
	metaJSON, err := artifact.MarshalCanonical(meta)
	if err != nil {
		return fmt.Errorf("save node %s: %w", node.ArtifactID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graph_nodes (artifact_id, metadata, status)
		VALUES (?, ?, ?)
		ON CONFLICT(artifact_id) DO UPDATE SET status = excluded.status
	`, node.ArtifactID, string(metaJSON), string(node.Status))
	if err != nil {
		return fmt.Errorf("save node %s: %w", node.ArtifactID, err)
	}
	return nil
}

// SaveEdge persists a dependency edge. Duplicate edges are idempotent.
func (s *Store) SaveEdge(ctx context.Context, e graph.Edge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_edges (upstream_id, downstream_id, edge_type)
		VALUES (?, ?, ?)
		ON CONFLICT(upstream_id, downstream_id, edge_type) DO NOTHING
	`, e.UpstreamID, e.DownstreamID, string(e.Type))
	if err != nil {
		return fmt.Errorf("save edge %s->%s: %w", e.UpstreamID, e.DownstreamID, err)
	}
	return nil
}

// LoadGraph rebuilds the in-memory dependency graph from the persisted
// nodes and edges. Rows load in insertion order so the rebuilt graph
// reproduces the original topological tie-breaks.
func (s *Store) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	g := graph.New()

	nodeRows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, metadata, status FROM graph_nodes ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query graph nodes: %w", err)
	}
	defer nodeRows.Close()

	type nodeStatus struct {
		id     string
		status graph.NodeStatus
	}
	var statuses []nodeStatus

	for nodeRows.Next() {
		var id, metaJSON, status string
		if err := nodeRows.Scan(&id, &metaJSON, &status); err != nil {
			return nil, fmt.Errorf("scan graph node: %w", err)
		}
		metaObj, err := artifact.ParseObject([]byte(metaJSON))
		if err != nil {
			return nil, fmt.Errorf("graph node %s metadata: %w", id, err)
		}
		meta := make(map[string]string, len(metaObj))
		for k, v := range metaObj {
			if t, ok := v.(artifact.Text); ok {
				meta[k] = string(t)
			}
		}
		if err := g.AddNode(id, meta); err != nil {
			return nil, fmt.Errorf("rebuild graph node %s: %w", id, err)
		}
		statuses = append(statuses, nodeStatus{id: id, status: graph.NodeStatus(status)})
	}
	if err := nodeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graph nodes: %w", err)
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT upstream_id, downstream_id, edge_type FROM graph_edges ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query graph edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var up, down, typ string
		if err := edgeRows.Scan(&up, &down, &typ); err != nil {
			return nil, fmt.Errorf("scan graph edge: %w", err)
		}
		if err := g.AddEdge(up, down, graph.EdgeType(typ)); err != nil {
			return nil, fmt.Errorf("rebuild graph edge %s->%s: %w", up, down, err)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graph edges: %w", err)
	}

	// Statuses applied after edges exist, so finalized nodes restore
	// without re-running the readiness gate.
	for _, ns := range statuses {
		if err := g.SetStatus(ns.id, ns.status); err != nil {
			return nil, fmt.Errorf("restore node status %s: %w", ns.id, err)
		}
	}

	return g, nil
}
