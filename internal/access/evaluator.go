// Package access evaluates what a user may do. It unions the permission
// closures of every role the user holds, whether assigned directly or through
// an unexpired temporary grant, and feeds the result to both the HTTP guard
// and the review endpoints.
package access

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUserNotFound signals an evaluation request for an unknown user.
	ErrUserNotFound = errors.New("access: user not found")
)

// RoleDirectoryPort exposes the direct role assignments the evaluator unions.
type RoleDirectoryPort interface {
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// ResolverPort resolves one role to its effective permission names.
type ResolverPort interface {
	EffectivePermissions(ctx context.Context, roleID int64) ([]string, error)
}

// GrantsPort lists roles held through temporary privileges at an instant.
type GrantsPort interface {
	EffectiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error)
}

// Service evaluates user permissions.
type Service struct {
	directory RoleDirectoryPort
	resolver  ResolverPort
	grants    GrantsPort
	metrics   *Metrics
	logger    *slog.Logger
}

// NewService wires the evaluator.
func NewService(directory RoleDirectoryPort, resolver ResolverPort, grants GrantsPort, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{directory: directory, resolver: resolver, grants: grants, metrics: metrics, logger: logger}
}

// EffectiveRoleIDs returns every role the user holds at the given instant,
// direct assignments first, then temporary grants, deduplicated.
func (s *Service) EffectiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	ok, err := s.directory.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	assigned, err := s.directory.RoleIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	granted, err := s.grants.EffectiveRoleIDs(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	roleIDs := make([]int64, 0, len(assigned)+len(granted))
	seen := make(map[int64]struct{}, len(assigned)+len(granted))
	for _, id := range assigned {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		roleIDs = append(roleIDs, id)
	}
	for _, id := range granted {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		roleIDs = append(roleIDs, id)
	}
	return roleIDs, nil
}

// EffectivePermissionsForUser unions the permission closures of every role
// the user holds at the given instant. The result is sorted and deduplicated.
func (s *Service) EffectivePermissionsForUser(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	roleIDs, err := s.EffectiveRoleIDs(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, roleID := range roleIDs {
		perms, err := s.resolver.EffectivePermissions(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// HasPermission reports whether the user holds the named permission at the
// given instant. The decision is counted for observability.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string, at time.Time) (bool, error) {
	permission = strings.ToLower(strings.TrimSpace(permission))
	perms, err := s.EffectivePermissionsForUser(ctx, userID, at)
	if err != nil {
		s.metrics.Check(decisionError)
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			s.metrics.Check(decisionAllow)
			return true, nil
		}
	}
	s.metrics.Check(decisionDeny)
	return false, nil
}
