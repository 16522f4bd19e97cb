package roles

import (
	"errors"
	"time"
)

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a single named capability, e.g. "tickets.close".
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Assignment links a user to a directly assigned role.
type Assignment struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

var (
	// ErrNotFound indicates the requested role or permission does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrNameRequired indicates an empty role or permission name.
	ErrNameRequired = errors.New("roles: name required")
	// ErrDuplicateName indicates the role or permission name is already taken.
	ErrDuplicateName = errors.New("roles: name already exists")
	// ErrRoleReferenced blocks deletion while hierarchy edges, assignments or
	// grants still point at the role.
	ErrRoleReferenced = errors.New("roles: role still referenced")
	// ErrAlreadyAssigned indicates the user already holds the role.
	ErrAlreadyAssigned = errors.New("roles: role already assigned")
	// ErrAssignmentNotFound indicates the user does not hold the role.
	ErrAssignmentNotFound = errors.New("roles: assignment not found")
)
