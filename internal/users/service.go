package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridianops/meridian/internal/shared"
)

const minPasswordLength = 8

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, limit, offset int) ([]User, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id int64) (User, error)
	Insert(ctx context.Context, email, name, passwordHash string) (User, error)
	Update(ctx context.Context, id int64, email, name string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) (User, error)
}

// AuditPort records directory mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user directory business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
}

// UpdateInput carries the mutable profile fields.
type UpdateInput struct {
	Email string
	Name  string
}

// List returns one page of the directory plus paging metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	list, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, p, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new active account with a bcrypt credential.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (User, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" {
		return User{}, ErrEmailRequired
	}
	if name == "" {
		return User{}, ErrNameRequired
	}
	if len(input.Password) < minPasswordLength {
		return User{}, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Insert(ctx, email, name, string(hash))
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "USER_CREATE", user.ID, map[string]any{"email": user.Email})
	return user, nil
}

// Update rewrites the profile fields.
func (s *Service) Update(ctx context.Context, actorID, id int64, input UpdateInput) (User, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" {
		return User{}, ErrEmailRequired
	}
	if name == "" {
		return User{}, ErrNameRequired
	}
	user, err := s.repo.Update(ctx, id, email, name)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "USER_UPDATE", user.ID, map[string]any{"email": user.Email})
	return user, nil
}

// SetActive toggles whether the account may authenticate. Deactivation blocks
// new logins; a live session lapses with its TTL.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) (User, error) {
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}
	action := "USER_DEACTIVATE"
	if active {
		action = "USER_ACTIVATE"
	}
	s.recordAudit(ctx, actorID, action, user.ID, nil)
	return user, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
