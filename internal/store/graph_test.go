package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacledger/pacledger/internal/graph"
)

func TestSaveAndLoadGraph(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNode(ctx, graph.Node{
		ArtifactID: "P1",
		Metadata:   map[string]string{"pac_id": "PAC-100"},
		Status:     graph.StatusFinalized,
	}))
	require.NoError(t, s.SaveNode(ctx, graph.Node{
		ArtifactID: "P2",
		Metadata:   map[string]string{"pac_id": "PAC-200"},
		Status:     graph.StatusPending,
	}))
	require.NoError(t, s.SaveEdge(ctx, graph.Edge{
		UpstreamID:   "P1",
		DownstreamID: "P2",
		Type:         graph.EdgeData,
	}))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"P1", "P2"}, g.TopologicalOrder())

	status, err := g.Status("P1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusFinalized, status)

	assert.True(t, g.IsReady("P2"), "P1 finalized, so P2 is ready")
}

func TestSaveNodeStatusUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	node := graph.Node{ArtifactID: "P1", Status: graph.StatusPending}
	require.NoError(t, s.SaveNode(ctx, node))

	node.Status = graph.StatusFinalized
	require.NoError(t, s.SaveNode(ctx, node))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	status, err := g.Status("P1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusFinalized, status)
}

func TestSaveEdgeIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := graph.Edge{UpstreamID: "A", DownstreamID: "B", Type: graph.EdgeSequence}
	require.NoError(t, s.SaveEdge(ctx, e))
	require.NoError(t, s.SaveEdge(ctx, e))

	g, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)
}

func TestLoadGraphEmpty(t *testing.T) {
	s := createTestStore(t)

	g, err := s.LoadGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}
