package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeIdempotent(t *testing.T) {
	g := New()

	require.NoError(t, g.AddNode("A", map[string]string{"kind": "PDO"}))
	require.NoError(t, g.AddNode("A", map[string]string{"kind": "PDO"}))
	assert.Equal(t, 1, g.Len())
}

func TestAddNodeConflictingMetadata(t *testing.T) {
	g := New()

	require.NoError(t, g.AddNode("A", map[string]string{"kind": "PDO"}))
	err := g.AddNode("A", map[string]string{"kind": "WRAP"})

	var dup *DuplicateNodeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "A", dup.ArtifactID)
}

func TestAddEdgeRejectsCycle(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("A", "B", EdgeData))
	err := g.AddEdge("B", "A", EdgeData)

	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)

	// Rejected insertion leaves the edge set unchanged.
	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "A", edges[0].UpstreamID)
	assert.Equal(t, "B", edges[0].DownstreamID)
}

func TestAddEdgeRejectsTransitiveCycle(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("A", "B", EdgeData))
	require.NoError(t, g.AddEdge("B", "C", EdgeSequence))

	err := g.AddEdge("C", "A", EdgeApproval)
	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)
	assert.Len(t, g.Edges(), 2)
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New()

	err := g.AddEdge("A", "A", EdgeData)
	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)
	assert.Empty(t, g.Edges())
}

func TestAddEdgeDuplicateIsNoOp(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("A", "B", EdgeData))
	require.NoError(t, g.AddEdge("A", "B", EdgeData))
	assert.Len(t, g.Edges(), 1)
}

func TestAddEdgeRejectsUnknownType(t *testing.T) {
	g := New()
	assert.Error(t, g.AddEdge("A", "B", EdgeType("CAUSAL")))
}

func TestIsReadyAndFinalize(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("up", "down", EdgeData))

	assert.True(t, g.IsReady("up"), "node with no upstreams is ready")
	assert.False(t, g.IsReady("down"))

	err := g.Finalize("down")
	var unsat *DependencyNotSatisfiedError
	require.ErrorAs(t, err, &unsat)
	assert.Equal(t, []string{"up"}, unsat.Pending)

	require.NoError(t, g.Finalize("up"))
	assert.True(t, g.IsReady("down"), "finalizing upstream unblocks downstream")
	require.NoError(t, g.Finalize("down"))

	status, err := g.Status("down")
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, status)
}

func TestFinalizeIdempotent(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("A", nil))
	require.NoError(t, g.Finalize("A"))
	require.NoError(t, g.Finalize("A"))
}

func TestFinalizeUnknownNode(t *testing.T) {
	g := New()
	var nf *NotFoundError
	require.ErrorAs(t, g.Finalize("ghost"), &nf)
}

func TestIsReadyUnknownNode(t *testing.T) {
	g := New()
	assert.False(t, g.IsReady("ghost"))
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("A", "B", EdgeData))
	require.NoError(t, g.AddEdge("B", "C", EdgeData))
	require.NoError(t, g.AddEdge("A", "C", EdgeApproval))

	assert.Equal(t, []string{"A", "B", "C"}, g.TopologicalOrder())
}

func TestTopologicalOrderInsertionTieBreak(t *testing.T) {
	g := New()

	// Three independent roots: ties break by node insertion order.
	require.NoError(t, g.AddNode("C", nil))
	require.NoError(t, g.AddNode("A", nil))
	require.NoError(t, g.AddNode("B", nil))

	assert.Equal(t, []string{"C", "A", "B"}, g.TopologicalOrder())
}

func TestTopologicalOrderUnblockedNodeRejoinsByInsertion(t *testing.T) {
	g := New()

	// "early" registered first but blocked behind "late"; once unblocked it
	// is emitted before the untouched tail node.
	require.NoError(t, g.AddNode("early", nil))
	require.NoError(t, g.AddNode("late", nil))
	require.NoError(t, g.AddNode("tail", nil))
	require.NoError(t, g.AddEdge("late", "early", EdgeSequence))

	assert.Equal(t, []string{"late", "early", "tail"}, g.TopologicalOrder())
}

func TestAddEdgesAtomic(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("A", "B", EdgeData))

	// Batch whose last edge closes a cycle: nothing from the batch lands.
	err := g.AddEdges([]Edge{
		{UpstreamID: "C", DownstreamID: "D", Type: EdgeData},
		{UpstreamID: "B", DownstreamID: "A", Type: EdgeSequence},
	})
	var cyc *CycleDetectedError
	require.ErrorAs(t, err, &cyc)

	assert.Len(t, g.Edges(), 1, "batch must roll back entirely")
	assert.Equal(t, 2, g.Len(), "implicitly registered batch nodes must roll back too")
}

func TestAddEdgesAtomicSuccess(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdges([]Edge{
		{UpstreamID: "A", DownstreamID: "C", Type: EdgeData},
		{UpstreamID: "B", DownstreamID: "C", Type: EdgeApproval},
	}))
	assert.Len(t, g.Edges(), 2)
}

func TestUpstreams(t *testing.T) {
	g := New()

	require.NoError(t, g.AddEdge("A", "C", EdgeData))
	require.NoError(t, g.AddEdge("B", "C", EdgeApproval))

	assert.Equal(t, []string{"A", "B"}, g.Upstreams("C"))
	assert.Empty(t, g.Upstreams("A"))
}
