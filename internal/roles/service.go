package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/meridianops/meridian/internal/shared"
)

// RepositoryPort defines data access methods for roles and permissions.
type RepositoryPort interface {
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	UpsertPermission(ctx context.Context, name, description string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error

	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort drops cached permission resolutions after a mutation.
type InvalidatorPort interface {
	InvalidateResolution(ctx context.Context) error
}

// Service handles role and permission management.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator InvalidatorPort
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, invalidator InvalidatorPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, invalidator: invalidator, logger: logger}
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrNameRequired
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_CREATE", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// UpdateRole renames a role or changes its description.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrNameRequired
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_UPDATE", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role. Deletion is refused while hierarchy edges,
// user assignments or temporary grants still reference the role.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_DELETE", "role", id, nil)
	s.invalidate(ctx)
	return nil
}

// EnsurePermission upserts a permission by name.
func (s *Service) EnsurePermission(ctx context.Context, actorID int64, name, description string) (Permission, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Permission{}, ErrNameRequired
	}
	perm, err := s.repo.UpsertPermission(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, actorID, "PERMISSION_ENSURE", "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// ListPermissions returns the permission catalog ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// DirectPermissions returns the permissions declared directly on a role,
// without hierarchy resolution.
func (s *Service) DirectPermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.DirectPermissions(ctx, roleID)
}

// SetRolePermissions replaces the direct permission set of a role. Only the
// difference is written so untouched rows keep their timestamps.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	current, err := s.repo.DirectPermissions(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, p := range current {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	s.recordAudit(ctx, actorID, "ROLE_PERMISSIONS_SET", "role", roleID, map[string]any{"permission_ids": permissionIDs})
	s.invalidate(ctx)
	return nil
}

// AssignRole assigns a role directly to a user.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_ASSIGN", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RemoveRole removes a direct role assignment from a user.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_REMOVE", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RolesForUser returns the roles directly assigned to a user.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.RolesForUser(ctx, userID)
}

// RoleIDsForUser returns the IDs of roles directly assigned to a user.
func (s *Service) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.RoleIDsForUser(ctx, userID)
}

// UserExists reports whether a user ID is known.
func (s *Service) UserExists(ctx context.Context, userID int64) (bool, error) {
	return s.repo.UserExists(ctx, userID)
}

func (s *Service) ensureUser(ctx context.Context, userID int64) error {
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: formatID(entityID),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateResolution(ctx); err != nil && s.logger != nil {
		s.logger.Warn("invalidate resolution cache", slog.Any("error", err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
