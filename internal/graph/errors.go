package graph

import "fmt"

// DuplicateNodeError reports AddNode called twice with conflicting metadata
// for the same artifact id.
type DuplicateNodeError struct {
	ArtifactID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already registered with different metadata", e.ArtifactID)
}

// CycleDetectedError reports an edge insertion that would make the graph
// cyclic. The graph is unchanged when this is returned.
type CycleDetectedError struct {
	UpstreamID   string
	DownstreamID string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("edge %s -> %s would create a cycle", e.UpstreamID, e.DownstreamID)
}

// DependencyNotSatisfiedError reports a finalize attempt while upstream
// dependencies are still pending.
type DependencyNotSatisfiedError struct {
	ArtifactID string
	Pending    []string
}

func (e *DependencyNotSatisfiedError) Error() string {
	return fmt.Sprintf("node %q has unfinalized upstream dependencies: %v", e.ArtifactID, e.Pending)
}

// NotFoundError reports an operation on an unregistered node.
type NotFoundError struct {
	ArtifactID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node %q not registered", e.ArtifactID)
}
