package hierarchy

import (
	"errors"
	"time"
)

// Edge is a directed link in the role hierarchy. The parent role absorbs
// the permissions of the child role when InheritPermissions is set; an
// edge with the flag off still counts for cycle detection but blocks
// permission flow through it.
type Edge struct {
	ID                 int64
	ParentRoleID       int64
	ChildRoleID        int64
	InheritPermissions bool
	CreatedBy          int64
	CreatedAt          time.Time
}

var (
	// ErrSelfLoop rejects an edge from a role to itself.
	ErrSelfLoop = errors.New("hierarchy: role cannot inherit from itself")
	// ErrCycle rejects an edge that would close a cycle in the graph.
	ErrCycle = errors.New("hierarchy: edge would create a cycle")
	// ErrDuplicateEdge rejects a parent/child pair that already exists.
	ErrDuplicateEdge = errors.New("hierarchy: edge already exists")
	// ErrEdgeNotFound signals an unknown edge ID.
	ErrEdgeNotFound = errors.New("hierarchy: edge not found")
	// ErrRoleNotFound signals an unknown role on either end of an edge.
	ErrRoleNotFound = errors.New("hierarchy: role not found")
	// ErrIntegrity signals a cycle discovered during resolution. The write
	// path should have made this impossible, so hitting it means the stored
	// graph was corrupted outside the API.
	ErrIntegrity = errors.New("hierarchy: graph integrity violated")
)
