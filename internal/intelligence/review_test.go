package intelligence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianops/meridian/internal/privileges"
	"github.com/meridianops/meridian/internal/roles"
	"github.com/meridianops/meridian/internal/shared"
	"github.com/meridianops/meridian/internal/users"
)

type stubRoster struct {
	pages      map[int][]users.User
	totalPages int
	requested  []int
}

func (s *stubRoster) List(ctx context.Context, page, perPage int) ([]users.User, shared.Pagination, error) {
	s.requested = append(s.requested, page)
	return s.pages[page], shared.Pagination{Page: page, PerPage: perPage, TotalPages: s.totalPages}, nil
}

type stubCatalog struct {
	roles []roles.Role
}

func (s stubCatalog) ListRoles(ctx context.Context) ([]roles.Role, error) {
	return s.roles, nil
}

type stubEvaluator struct {
	roleIDs map[int64][]int64
	perms   map[int64][]string
}

func (s stubEvaluator) EffectiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	return s.roleIDs[userID], nil
}

func (s stubEvaluator) EffectivePermissionsForUser(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	return s.perms[userID], nil
}

type stubLedger struct {
	grants map[int64][]privileges.TemporaryPrivilege
}

func (s stubLedger) ListForUser(ctx context.Context, userID int64) ([]privileges.TemporaryPrivilege, error) {
	return s.grants[userID], nil
}

func TestBuildAccessReviewAssemblesRows(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	roster := &stubRoster{
		totalPages: 1,
		pages: map[int][]users.User{
			1: {
				{ID: 1, Email: "ops@example.com", Name: "Ops Lead", IsActive: true},
				{ID: 2, Email: "former@example.com", Name: "Former Tech", IsActive: false},
			},
		},
	}
	svc := NewReviewService(
		roster,
		stubCatalog{roles: []roles.Role{{ID: 2, Name: "support"}, {ID: 5, Name: "billing"}}},
		stubEvaluator{
			roleIDs: map[int64][]int64{1: {5, 2, 9}},
			perms:   map[int64][]string{1: {"billing.view", "tickets.close"}},
		},
		stubLedger{grants: map[int64][]privileges.TemporaryPrivilege{
			1: {
				{RoleID: 5, IsActive: true, ValidUntil: now.Add(2 * time.Hour)},
				{RoleID: 2, IsActive: true, ValidUntil: now.Add(-time.Minute)},
				{RoleID: 2, IsActive: false, ValidUntil: now.Add(time.Hour)},
			},
		}},
	)

	review, err := svc.BuildAccessReview(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, now, review.GeneratedAt)
	require.Len(t, review.Rows, 2)

	lead := review.Rows[0]
	require.Equal(t, int64(1), lead.UserID)
	require.True(t, lead.Active)
	require.Equal(t, []string{"billing", "role #9", "support"}, lead.Roles)
	require.Equal(t, []string{"billing.view", "tickets.close"}, lead.Permissions)
	require.Equal(t, 1, lead.ActiveGrants)

	former := review.Rows[1]
	require.False(t, former.Active)
	require.Empty(t, former.Roles)
	require.Zero(t, former.ActiveGrants)
}

func TestBuildAccessReviewPagesRoster(t *testing.T) {
	roster := &stubRoster{
		totalPages: 2,
		pages: map[int][]users.User{
			1: {{ID: 1, Email: "a@example.com", Name: "A", IsActive: true}},
			2: {{ID: 2, Email: "b@example.com", Name: "B", IsActive: true}},
		},
	}
	svc := NewReviewService(roster, stubCatalog{}, stubEvaluator{}, stubLedger{})

	review, err := svc.BuildAccessReview(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, review.Rows, 2)
	require.Equal(t, []int{1, 2}, roster.requested)
}

func TestAccessReviewHTMLEscapesContent(t *testing.T) {
	html := buildAccessReviewHTML(AccessReview{
		GeneratedAt: time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC),
		Rows: []ReviewRow{{
			UserID: 1,
			Email:  "evil@example.com",
			Name:   "<script>alert('x')</script>",
			Active: true,
			Roles:  []string{"support"},
		}},
	})
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, "&lt;script&gt;")
	require.Contains(t, html, "support")
	require.Contains(t, html, "Generated 2025-03-15 09:00 UTC for 1 accounts")
}
