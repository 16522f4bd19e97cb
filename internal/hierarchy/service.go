package hierarchy

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"

	"github.com/meridianops/meridian/internal/shared"
)

// RepositoryPort defines data access for the role hierarchy.
type RepositoryPort interface {
	WithGraphTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEdge(ctx context.Context, id int64) (Edge, error)
	ListEdges(ctx context.Context) ([]Edge, error)
	EdgesFrom(ctx context.Context, parentRoleID int64) ([]Edge, error)
	EdgesTo(ctx context.Context, childRoleID int64) ([]Edge, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	RolePermissions(ctx context.Context, roleIDs []int64) (map[int64][]string, error)
}

// TxRepository exposes graph mutations inside one transaction.
type TxRepository interface {
	LockGraph(ctx context.Context) error
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	ListEdges(ctx context.Context) ([]Edge, error)
	InsertEdge(ctx context.Context, parentRoleID, childRoleID int64, inherit bool, createdBy int64) (Edge, error)
	DeleteEdge(ctx context.Context, id int64) (Edge, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort drops cached permission resolutions after a mutation.
type InvalidatorPort interface {
	InvalidateResolution(ctx context.Context) error
}

// Service owns the role hierarchy graph and resolves effective permissions.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator InvalidatorPort
	metrics     *Metrics
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, invalidator InvalidatorPort, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, invalidator: invalidator, metrics: metrics, logger: logger}
}

// AddEdge links parent to child so the parent inherits the child's
// permissions when inherit is set. Validation runs inside the graph
// transaction under the advisory lock, so two concurrent insertions
// cannot slip a cycle past each other.
func (s *Service) AddEdge(ctx context.Context, actorID, parentRoleID, childRoleID int64, inherit bool) (Edge, error) {
	if parentRoleID == childRoleID {
		return Edge{}, ErrSelfLoop
	}
	var created Edge
	err := s.repo.WithGraphTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockGraph(ctx); err != nil {
			return err
		}
		for _, roleID := range []int64{parentRoleID, childRoleID} {
			ok, err := tx.RoleExists(ctx, roleID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRoleNotFound
			}
		}
		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if e.ParentRoleID == parentRoleID && e.ChildRoleID == childRoleID {
				return ErrDuplicateEdge
			}
		}
		if BuildGraph(edges).PathExists(childRoleID, parentRoleID) {
			return ErrCycle
		}
		created, err = tx.InsertEdge(ctx, parentRoleID, childRoleID, inherit, actorID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCycle) {
			s.metrics.CycleRejected()
		}
		return Edge{}, err
	}
	s.recordAudit(ctx, actorID, "HIERARCHY_EDGE_ADD", created.ID, map[string]any{
		"parent_role_id": parentRoleID,
		"child_role_id":  childRoleID,
		"inherit":        inherit,
	})
	s.invalidate(ctx)
	return created, nil
}

// RemoveEdge deletes an edge by its identifier. Removal cannot introduce
// a cycle but still runs under the graph lock so writers stay serialized.
func (s *Service) RemoveEdge(ctx context.Context, actorID, edgeID int64) error {
	var removed Edge
	err := s.repo.WithGraphTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockGraph(ctx); err != nil {
			return err
		}
		var err error
		removed, err = tx.DeleteEdge(ctx, edgeID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "HIERARCHY_EDGE_REMOVE", edgeID, map[string]any{
		"parent_role_id": removed.ParentRoleID,
		"child_role_id":  removed.ChildRoleID,
	})
	s.invalidate(ctx)
	return nil
}

// GetEdge fetches a single edge by ID.
func (s *Service) GetEdge(ctx context.Context, edgeID int64) (Edge, error) {
	return s.repo.GetEdge(ctx, edgeID)
}

// ListEdges returns every edge in the hierarchy.
func (s *Service) ListEdges(ctx context.Context) ([]Edge, error) {
	return s.repo.ListEdges(ctx)
}

// Children returns the outgoing edges of a role.
func (s *Service) Children(ctx context.Context, roleID int64) ([]Edge, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.EdgesFrom(ctx, roleID)
}

// Parents returns the incoming edges of a role.
func (s *Service) Parents(ctx context.Context, roleID int64) ([]Edge, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.EdgesTo(ctx, roleID)
}

// EffectivePermissions resolves the full permission set of a role: its
// direct permissions plus those of every role reachable through inheriting
// edges. The result is sorted and duplicate free. The whole edge set is
// loaded per resolution; hierarchies stay small and the resolver cache
// fronts this call in production.
func (s *Service) EffectivePermissions(ctx context.Context, roleID int64) ([]string, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	edges, err := s.repo.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	closure, err := BuildGraph(edges).Closure(roleID)
	if err != nil {
		s.metrics.IntegrityFailure()
		if s.logger != nil {
			s.logger.Error("hierarchy integrity violated",
				slog.Int64("role_id", roleID),
				slog.Any("error", err))
		}
		return nil, err
	}
	permsByRole, err := s.repo.RolePermissions(ctx, closure)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, id := range closure {
		for _, name := range permsByRole[id] {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) ensureRole(ctx context.Context, roleID int64) error {
	ok, err := s.repo.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoleNotFound
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, edgeID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "hierarchy_edge",
		EntityID: strconv.FormatInt(edgeID, 10),
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
