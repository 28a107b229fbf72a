// Package graph tracks ordering constraints between artifacts produced by
// different sessions as a DAG with atomic cycle-checked insertion.
package graph

import (
	"fmt"
	"sync"
)

// EdgeType classifies a dependency edge.
type EdgeType string

const (
	EdgeData     EdgeType = "DATA"
	EdgeApproval EdgeType = "APPROVAL"
	EdgeSequence EdgeType = "SEQUENCE"
)

// ValidEdgeTypes defines the allowed edge classifications.
var ValidEdgeTypes = map[EdgeType]bool{
	EdgeData:     true,
	EdgeApproval: true,
	EdgeSequence: true,
}

// NodeStatus is the finalization state of a graph node.
type NodeStatus string

const (
	StatusPending   NodeStatus = "PENDING"
	StatusFinalized NodeStatus = "FINALIZED"
)

// Edge is a directed dependency: downstream depends on upstream.
type Edge struct {
	UpstreamID   string   `json:"upstream_id"`
	DownstreamID string   `json:"downstream_id"`
	Type         EdgeType `json:"type"`
}

// Node is a registered artifact with its finalization status.
type Node struct {
	ArtifactID string            `json:"artifact_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     NodeStatus        `json:"status"`
}

// Graph is a mutex-guarded DAG. Check-then-insert runs inside one critical
// section, so a rejected edge never leaves partial state behind.
type Graph struct {
	mu        sync.Mutex
	nodes     map[string]*Node
	order     []string          // node insertion order, for deterministic tie-breaks
	upstreams map[string][]Edge // downstream id -> incoming edges
	edges     []Edge            // insertion order
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		upstreams: make(map[string][]Edge),
	}
}

// AddNode registers an artifact. Idempotent for identical metadata; a
// second registration with conflicting metadata returns DuplicateNodeError.
func (g *Graph) AddNode(artifactID string, metadata map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(artifactID, metadata)
}

func (g *Graph) addNodeLocked(artifactID string, metadata map[string]string) error {
	if existing, ok := g.nodes[artifactID]; ok {
		if !metadataEqual(existing.Metadata, metadata) {
			return &DuplicateNodeError{ArtifactID: artifactID}
		}
		return nil
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	g.nodes[artifactID] = &Node{ArtifactID: artifactID, Metadata: meta, Status: StatusPending}
	g.order = append(g.order, artifactID)
	return nil
}

func metadataEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// AddEdge inserts a directed dependency after cycle detection. Unknown
// endpoints are registered implicitly with empty metadata. Self-loops and
// edges that would close a cycle are rejected atomically: the edge set is
// unchanged after a rejected call. Duplicate edges are idempotent no-ops.
func (g *Graph) AddEdge(upstreamID, downstreamID string, typ EdgeType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(upstreamID, downstreamID, typ)
}

func (g *Graph) addEdgeLocked(upstreamID, downstreamID string, typ EdgeType) error {
	if upstreamID == downstreamID {
		return &CycleDetectedError{UpstreamID: upstreamID, DownstreamID: downstreamID}
	}
	if !ValidEdgeTypes[typ] {
		return fmt.Errorf("invalid edge type %q", typ)
	}

	if err := g.addNodeLocked(upstreamID, nil); err != nil {
		return err
	}
	if err := g.addNodeLocked(downstreamID, nil); err != nil {
		return err
	}

	for _, e := range g.upstreams[downstreamID] {
		if e.UpstreamID == upstreamID && e.Type == typ {
			return nil // already present
		}
	}

	// Reverse-reachability: if upstream is reachable from downstream by
	// walking existing edges, adding downstream->...->upstream->downstream
	// would close a loop.
	if g.reachableLocked(downstreamID, upstreamID) {
		return &CycleDetectedError{UpstreamID: upstreamID, DownstreamID: downstreamID}
	}

	edge := Edge{UpstreamID: upstreamID, DownstreamID: downstreamID, Type: typ}
	g.upstreams[downstreamID] = append(g.upstreams[downstreamID], edge)
	g.edges = append(g.edges, edge)
	return nil
}

// AddEdges inserts a batch of edges atomically: either every edge lands or
// the graph is rolled back to its pre-call state. Used at PDO creation,
// where a session declares all its upstream dependencies at once.
func (g *Graph) AddEdges(edges []Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Snapshot for rollback. All mutations below are appends, so reverting
	// means truncating back to the recorded lengths.
	nodeCount := len(g.order)
	edgeCount := len(g.edges)
	upLens := make(map[string]int, len(edges))
	for _, e := range edges {
		if _, ok := upLens[e.DownstreamID]; !ok {
			upLens[e.DownstreamID] = len(g.upstreams[e.DownstreamID])
		}
	}

	rollback := func() {
		for _, id := range g.order[nodeCount:] {
			delete(g.nodes, id)
		}
		g.order = g.order[:nodeCount]
		g.edges = g.edges[:edgeCount]
		for down, n := range upLens {
			g.upstreams[down] = g.upstreams[down][:n]
		}
	}

	for _, e := range edges {
		if err := g.addEdgeLocked(e.UpstreamID, e.DownstreamID, e.Type); err != nil {
			rollback()
			return err
		}
	}
	return nil
}

// reachableLocked reports whether target is reachable from start following
// edges downstream -> upstream (depth-first). Caller must hold g.mu.
func (g *Graph) reachableLocked(start, target string) bool {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, e := range g.upstreams[cur] {
			stack = append(stack, e.UpstreamID)
		}
	}
	return false
}

// IsReady reports whether every upstream dependency of artifactID is
// finalized. Unknown nodes are not ready.
func (g *Graph) IsReady(artifactID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[artifactID]; !ok {
		return false
	}
	return len(g.pendingUpstreamsLocked(artifactID)) == 0
}

func (g *Graph) pendingUpstreamsLocked(artifactID string) []string {
	var pending []string
	for _, e := range g.upstreams[artifactID] {
		up := g.nodes[e.UpstreamID]
		if up == nil || up.Status != StatusFinalized {
			pending = append(pending, e.UpstreamID)
		}
	}
	return pending
}

// Finalize transitions a node to FINALIZED once all its upstream
// dependencies are finalized. Finalizing an already-final node is a no-op.
func (g *Graph) Finalize(artifactID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[artifactID]
	if !ok {
		return &NotFoundError{ArtifactID: artifactID}
	}
	if node.Status == StatusFinalized {
		return nil
	}
	if pending := g.pendingUpstreamsLocked(artifactID); len(pending) > 0 {
		return &DependencyNotSatisfiedError{ArtifactID: artifactID, Pending: pending}
	}
	node.Status = StatusFinalized
	return nil
}

// SetStatus force-sets a node's status. Used when rehydrating a persisted
// graph; normal finalization goes through Finalize.
func (g *Graph) SetStatus(artifactID string, status NodeStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[artifactID]
	if !ok {
		return &NotFoundError{ArtifactID: artifactID}
	}
	node.Status = status
	return nil
}

// Status returns a node's current status.
func (g *Graph) Status(artifactID string) (NodeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[artifactID]
	if !ok {
		return "", &NotFoundError{ArtifactID: artifactID}
	}
	return node.Status, nil
}

// Node returns a copy of the node for artifactID.
func (g *Graph) Node(artifactID string) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[artifactID]
	if !ok {
		return Node{}, &NotFoundError{ArtifactID: artifactID}
	}
	out := *node
	if node.Metadata != nil {
		out.Metadata = make(map[string]string, len(node.Metadata))
		for k, v := range node.Metadata {
			out.Metadata[k] = v
		}
	}
	return out, nil
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Upstreams returns the upstream artifact ids of a node, in edge insertion
// order.
func (g *Graph) Upstreams(artifactID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ups := make([]string, 0, len(g.upstreams[artifactID]))
	for _, e := range g.upstreams[artifactID] {
		ups = append(ups, e.UpstreamID)
	}
	return ups
}

// TopologicalOrder returns all node ids in dependency order via Kahn's
// algorithm. Ties between nodes of equal in-degree break by node insertion
// order, so the ordering is reproducible across runs — replay and audit
// depend on that.
func (g *Graph) TopologicalOrder() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	indegree := make(map[string]int, len(g.nodes))
	downstreams := make(map[string][]string, len(g.nodes))
	for _, edges := range g.upstreams {
		for _, e := range edges {
			indegree[e.DownstreamID]++
			downstreams[e.UpstreamID] = append(downstreams[e.UpstreamID], e.DownstreamID)
		}
	}

	// Each step emits the first node (by insertion order) whose in-degree
	// has reached zero. A scan beats a heap here: graphs hold one node per
	// artifact, so n stays small.
	var order []string
	emitted := make(map[string]bool, len(g.nodes))

	for len(order) < len(g.nodes) {
		picked := ""
		for _, id := range g.order {
			if !emitted[id] && indegree[id] == 0 {
				picked = id
				break
			}
		}
		if picked == "" {
			break // unreachable while AddEdge preserves acyclicity
		}
		emitted[picked] = true
		order = append(order, picked)
		for _, down := range downstreams[picked] {
			indegree[down]--
		}
	}
	return order
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}
