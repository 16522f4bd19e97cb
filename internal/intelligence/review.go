package intelligence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/meridianops/meridian/internal/privileges"
	"github.com/meridianops/meridian/internal/roles"
	"github.com/meridianops/meridian/internal/shared"
	"github.com/meridianops/meridian/internal/users"
)

const reviewPageSize = 200

// RosterPort lists the accounts under review.
type RosterPort interface {
	List(ctx context.Context, page, perPage int) ([]users.User, shared.Pagination, error)
}

// CatalogPort supplies role names for display.
type CatalogPort interface {
	ListRoles(ctx context.Context) ([]roles.Role, error)
}

// EvaluatorPort answers effective access for a user at an instant.
type EvaluatorPort interface {
	EffectiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error)
	EffectivePermissionsForUser(ctx context.Context, userID int64, at time.Time) ([]string, error)
}

// LedgerPort exposes a user's temporary privilege history.
type LedgerPort interface {
	ListForUser(ctx context.Context, userID int64) ([]privileges.TemporaryPrivilege, error)
}

// ReviewRow is one account's standing in the access review.
type ReviewRow struct {
	UserID       int64
	Email        string
	Name         string
	Active       bool
	Roles        []string
	Permissions  []string
	ActiveGrants int
}

// AccessReview is a point-in-time snapshot of who can do what.
type AccessReview struct {
	GeneratedAt time.Time
	Rows        []ReviewRow
}

// ReviewService assembles access review snapshots.
type ReviewService struct {
	roster    RosterPort
	catalog   CatalogPort
	evaluator EvaluatorPort
	ledger    LedgerPort
}

// NewReviewService wires the review assembly.
func NewReviewService(roster RosterPort, catalog CatalogPort, evaluator EvaluatorPort, ledger LedgerPort) *ReviewService {
	return &ReviewService{roster: roster, catalog: catalog, evaluator: evaluator, ledger: ledger}
}

// BuildAccessReview walks the full roster and resolves every account's
// effective roles, permissions and live grants at the given instant.
func (s *ReviewService) BuildAccessReview(ctx context.Context, at time.Time) (AccessReview, error) {
	catalog, err := s.catalog.ListRoles(ctx)
	if err != nil {
		return AccessReview{}, fmt.Errorf("list roles: %w", err)
	}
	roleNames := make(map[int64]string, len(catalog))
	for _, role := range catalog {
		roleNames[role.ID] = role.Name
	}

	review := AccessReview{GeneratedAt: at}
	page := 1
	for {
		accounts, paging, err := s.roster.List(ctx, page, reviewPageSize)
		if err != nil {
			return AccessReview{}, fmt.Errorf("list accounts page %d: %w", page, err)
		}
		for _, account := range accounts {
			row, err := s.buildRow(ctx, account, roleNames, at)
			if err != nil {
				return AccessReview{}, err
			}
			review.Rows = append(review.Rows, row)
		}
		if len(accounts) == 0 || page >= paging.TotalPages {
			break
		}
		page++
	}
	return review, nil
}

func (s *ReviewService) buildRow(ctx context.Context, account users.User, roleNames map[int64]string, at time.Time) (ReviewRow, error) {
	roleIDs, err := s.evaluator.EffectiveRoleIDs(ctx, account.ID, at)
	if err != nil {
		return ReviewRow{}, fmt.Errorf("resolve roles for user %d: %w", account.ID, err)
	}
	names := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		name, ok := roleNames[id]
		if !ok {
			name = fmt.Sprintf("role #%d", id)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	perms, err := s.evaluator.EffectivePermissionsForUser(ctx, account.ID, at)
	if err != nil {
		return ReviewRow{}, fmt.Errorf("resolve permissions for user %d: %w", account.ID, err)
	}

	grants, err := s.ledger.ListForUser(ctx, account.ID)
	if err != nil {
		return ReviewRow{}, fmt.Errorf("list grants for user %d: %w", account.ID, err)
	}
	activeGrants := 0
	for _, grant := range grants {
		if grant.EffectiveAt(at) {
			activeGrants++
		}
	}

	return ReviewRow{
		UserID:       account.ID,
		Email:        account.Email,
		Name:         account.Name,
		Active:       account.IsActive,
		Roles:        names,
		Permissions:  perms,
		ActiveGrants: activeGrants,
	}, nil
}
