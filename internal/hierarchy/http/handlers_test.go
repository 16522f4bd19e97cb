package hierarchyhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/access"
	"github.com/meridianops/meridian/internal/hierarchy"
	"github.com/meridianops/meridian/internal/shared"
)

type memEdgeRepo struct {
	edges  []hierarchy.Edge
	roles  map[int64]struct{}
	perms  map[int64][]string
	nextID int64
}

func newMemEdgeRepo(roleIDs ...int64) *memEdgeRepo {
	repo := &memEdgeRepo{roles: make(map[int64]struct{}), perms: make(map[int64][]string)}
	for _, id := range roleIDs {
		repo.roles[id] = struct{}{}
	}
	return repo
}

func (m *memEdgeRepo) WithGraphTx(ctx context.Context, fn func(context.Context, hierarchy.TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memEdgeRepo) LockGraph(ctx context.Context) error { return nil }

func (m *memEdgeRepo) GetEdge(ctx context.Context, id int64) (hierarchy.Edge, error) {
	for _, e := range m.edges {
		if e.ID == id {
			return e, nil
		}
	}
	return hierarchy.Edge{}, hierarchy.ErrEdgeNotFound
}

func (m *memEdgeRepo) ListEdges(ctx context.Context) ([]hierarchy.Edge, error) {
	out := make([]hierarchy.Edge, len(m.edges))
	copy(out, m.edges)
	return out, nil
}

func (m *memEdgeRepo) EdgesFrom(ctx context.Context, parentRoleID int64) ([]hierarchy.Edge, error) {
	var out []hierarchy.Edge
	for _, e := range m.edges {
		if e.ParentRoleID == parentRoleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEdgeRepo) EdgesTo(ctx context.Context, childRoleID int64) ([]hierarchy.Edge, error) {
	var out []hierarchy.Edge
	for _, e := range m.edges {
		if e.ChildRoleID == childRoleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEdgeRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := m.roles[roleID]
	return ok, nil
}

func (m *memEdgeRepo) RolePermissions(ctx context.Context, roleIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(roleIDs))
	for _, id := range roleIDs {
		if perms, ok := m.perms[id]; ok {
			out[id] = perms
		}
	}
	return out, nil
}

func (m *memEdgeRepo) InsertEdge(ctx context.Context, parentRoleID, childRoleID int64, inherit bool, createdBy int64) (hierarchy.Edge, error) {
	m.nextID++
	e := hierarchy.Edge{
		ID:                 m.nextID,
		ParentRoleID:       parentRoleID,
		ChildRoleID:        childRoleID,
		InheritPermissions: inherit,
		CreatedBy:          createdBy,
		CreatedAt:          time.Now(),
	}
	m.edges = append(m.edges, e)
	return e, nil
}

func (m *memEdgeRepo) DeleteEdge(ctx context.Context, id int64) (hierarchy.Edge, error) {
	for i, e := range m.edges {
		if e.ID == id {
			m.edges = append(m.edges[:i], m.edges[i+1:]...)
			return e, nil
		}
	}
	return hierarchy.Edge{}, hierarchy.ErrEdgeNotFound
}

type stubDirectory struct {
	roles map[int64][]int64
}

func (s stubDirectory) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.roles[userID], nil
}

func (s stubDirectory) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := s.roles[userID]
	return ok, nil
}

type stubResolver struct {
	perms map[int64][]string
}

func (s stubResolver) EffectivePermissions(ctx context.Context, roleID int64) ([]string, error) {
	return s.perms[roleID], nil
}

type stubGrants struct{}

func (stubGrants) EffectiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	return nil, nil
}

func newEdgeGuard(perms ...string) access.Middleware {
	svc := access.NewService(
		stubDirectory{roles: map[int64][]int64{7: {1}}},
		stubResolver{perms: map[int64][]string{1: perms}},
		stubGrants{},
		nil,
		nil,
	)
	return access.Middleware{Service: svc}
}

func newEdgeRouter(repo *memEdgeRepo, guard access.Middleware) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := hierarchy.NewService(repo, nil, nil, nil, logger)
	handler := NewHandler(logger, service, guard)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func edgeRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	sess := &shared.Session{}
	sess.SetUser("7")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestAddEdgePersistsAndDefaultsInherit(t *testing.T) {
	repo := newMemEdgeRepo(1, 2)
	router := newEdgeRouter(repo, newEdgeGuard(shared.PermHierarchyEdit))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, edgeRequest(http.MethodPost, "/edges", `{"parent_role_id":1,"child_role_id":2}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body edgeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID == 0 || !body.InheritPermissions {
		t.Fatalf("unexpected edge payload: %+v", body)
	}
	if body.CreatedBy != 7 {
		t.Fatalf("expected session actor as creator, got %d", body.CreatedBy)
	}
}

func TestAddEdgeStatusMapping(t *testing.T) {
	repo := newMemEdgeRepo(1, 2, 3)
	router := newEdgeRouter(repo, newEdgeGuard(shared.PermHierarchyEdit))

	seed := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, edgeRequest(http.MethodPost, "/edges", body))
		return rr
	}

	if rr := seed(`{"parent_role_id":1,"child_role_id":2}`); rr.Code != http.StatusCreated {
		t.Fatalf("seed edge: got %d: %s", rr.Code, rr.Body.String())
	}

	cases := map[string]struct {
		body string
		want int
	}{
		"self loop":    {`{"parent_role_id":2,"child_role_id":2}`, http.StatusBadRequest},
		"duplicate":    {`{"parent_role_id":1,"child_role_id":2}`, http.StatusConflict},
		"cycle":        {`{"parent_role_id":2,"child_role_id":1}`, http.StatusConflict},
		"unknown role": {`{"parent_role_id":1,"child_role_id":42}`, http.StatusNotFound},
		"bad payload":  {`{"parent_role_id":"one"}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := seed(tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRemoveEdgeMissingIsNotFound(t *testing.T) {
	repo := newMemEdgeRepo(1, 2)
	router := newEdgeRouter(repo, newEdgeGuard(shared.PermHierarchyEdit))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, edgeRequest(http.MethodDelete, "/edges/99", ""))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestEffectivePermissionsOnCorruptGraph(t *testing.T) {
	repo := newMemEdgeRepo(1, 2)
	// A cycle written behind the API's back. Resolution must fail closed
	// without leaking internals to the caller.
	repo.edges = []hierarchy.Edge{
		{ID: 1, ParentRoleID: 1, ChildRoleID: 2, InheritPermissions: true},
		{ID: 2, ParentRoleID: 2, ChildRoleID: 1, InheritPermissions: true},
	}
	router := newEdgeRouter(repo, newEdgeGuard(shared.PermHierarchyView))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, edgeRequest(http.MethodGet, "/roles/1/permissions", ""))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Detail != "" {
		t.Fatalf("expected empty detail, got %q", problem.Detail)
	}
}

func TestEdgeRoutesRequirePermission(t *testing.T) {
	repo := newMemEdgeRepo(1, 2)
	router := newEdgeRouter(repo, newEdgeGuard("tickets.read"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, edgeRequest(http.MethodGet, "/edges", ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on read, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, edgeRequest(http.MethodPost, "/edges", `{"parent_role_id":1,"child_role_id":2}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on write, got %d", rr.Code)
	}
}
