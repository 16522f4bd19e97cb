package privileges

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianops/meridian/internal/shared"
)

// RepositoryPort defines data access for temporary privileges.
type RepositoryPort interface {
	Insert(ctx context.Context, grant TemporaryPrivilege) (TemporaryPrivilege, error)
	GetByRef(ctx context.Context, ref uuid.UUID) (TemporaryPrivilege, error)
	ListForUser(ctx context.Context, userID int64) ([]TemporaryPrivilege, error)
	Revoke(ctx context.Context, ref uuid.UUID, revokedBy int64, revokedAt time.Time) (TemporaryPrivilege, error)
	ListLapsed(ctx context.Context, asOf time.Time) ([]TemporaryPrivilege, error)
	ActiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
}

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort schedules an expiry notice for a grant. Scheduling is best
// effort; a failure is logged and never blocks the grant.
type NotifierPort interface {
	ScheduleExpiryNotice(ctx context.Context, ref uuid.UUID, at time.Time) error
}

// Limits bound the lifetime of a grant.
type Limits struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Service manages temporary privilege grants.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	notifier    NotifierPort
	idempotency *shared.IdempotencyStore
	limits      Limits
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, notifier NotifierPort, idem *shared.IdempotencyStore, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		notifier:    notifier,
		idempotency: idem,
		limits:      limits,
		logger:      logger,
		now:         time.Now,
	}
}

// GrantInput describes a grant request.
type GrantInput struct {
	UserID         int64
	RoleID         int64
	Reason         string
	Duration       time.Duration
	IdempotencyKey string
}

// Grant issues a temporary role to a user. The window starts now and must
// stay within the configured limits; a non-empty reason is mandatory.
func (s *Service) Grant(ctx context.Context, actorID int64, input GrantInput) (TemporaryPrivilege, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return TemporaryPrivilege{}, ErrReasonRequired
	}
	if input.Duration < s.limits.MinDuration || input.Duration > s.limits.MaxDuration {
		return TemporaryPrivilege{}, ErrDurationOutOfRange
	}
	ok, err := s.repo.UserExists(ctx, input.UserID)
	if err != nil {
		return TemporaryPrivilege{}, err
	}
	if !ok {
		return TemporaryPrivilege{}, ErrUserNotFound
	}
	ok, err = s.repo.RoleExists(ctx, input.RoleID)
	if err != nil {
		return TemporaryPrivilege{}, err
	}
	if !ok {
		return TemporaryPrivilege{}, ErrRoleNotFound
	}

	reserved := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.Reserve(ctx, input.IdempotencyKey, "privileges.grant"); err != nil {
			return TemporaryPrivilege{}, err
		}
		reserved = true
	}

	now := s.now().UTC()
	created, err := s.repo.Insert(ctx, TemporaryPrivilege{
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		Reason:     reason,
		GrantedBy:  actorID,
		GrantedAt:  now,
		ValidUntil: now.Add(input.Duration),
		IsActive:   true,
	})
	if err != nil {
		if reserved {
			_ = s.idempotency.Release(ctx, input.IdempotencyKey)
		}
		return TemporaryPrivilege{}, err
	}
	s.recordAudit(ctx, actorID, "GRANT_CREATE", created.Ref, map[string]any{
		"user_id":     created.UserID,
		"role_id":     created.RoleID,
		"valid_until": created.ValidUntil,
		"reason":      created.Reason,
	})
	if s.notifier != nil {
		if err := s.notifier.ScheduleExpiryNotice(ctx, created.Ref, created.ValidUntil); err != nil && s.logger != nil {
			s.logger.Warn("schedule expiry notice", slog.String("ref", created.Ref.String()), slog.Any("error", err))
		}
	}
	return created, nil
}

// Revoke deactivates a grant before or after its expiry. A second
// revocation fails with ErrAlreadyRevoked and writes no audit entry.
func (s *Service) Revoke(ctx context.Context, actorID int64, ref uuid.UUID) (TemporaryPrivilege, error) {
	revoked, err := s.repo.Revoke(ctx, ref, actorID, s.now().UTC())
	if err != nil {
		return TemporaryPrivilege{}, err
	}
	s.recordAudit(ctx, actorID, "GRANT_REVOKE", ref, map[string]any{
		"user_id": revoked.UserID,
		"role_id": revoked.RoleID,
	})
	return revoked, nil
}

// Get fetches a grant by reference.
func (s *Service) Get(ctx context.Context, ref uuid.UUID) (TemporaryPrivilege, error) {
	return s.repo.GetByRef(ctx, ref)
}

// ListForUser returns a user's grants, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]TemporaryPrivilege, error) {
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.repo.ListForUser(ctx, userID)
}

// ListLapsed returns active grants whose window passed without a
// revocation, as of the given instant.
func (s *Service) ListLapsed(ctx context.Context, asOf time.Time) ([]TemporaryPrivilege, error) {
	return s.repo.ListLapsed(ctx, asOf)
}

// EffectiveRoleIDs returns the roles conferred on a user by grants that
// are effective at the given instant.
func (s *Service) EffectiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	return s.repo.ActiveRoleIDs(ctx, userID, at)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, ref uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "temporary_privilege",
		EntityID: ref.String(),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
