package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/access"
	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
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

func newAuditGuard(perms ...string) access.Middleware {
	svc := access.NewService(
		stubDirectory{roles: map[int64][]int64{7: {1}}},
		stubResolver{perms: map[int64][]string{1: perms}},
		stubGrants{},
		nil,
		nil,
	)
	return access.Middleware{Service: svc}
}

func newAuditHandler(service *stubTimelineService, guard access.Middleware) *Handler {
	handler := NewHandler(nil, service, audit.CSVExporter{}, guard)
	handler.now = func() time.Time { return time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC) }
	return handler
}

func authenticatedRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess := &shared.Session{}
	sess.SetUser("7")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestTimelineAppliesDateBounds(t *testing.T) {
	rows := []audit.TimelineRow{{
		At:       time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		ActorID:  7,
		Action:   "ROLE_CREATE",
		Entity:   "role",
		EntityID: "3",
	}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	handler := newAuditHandler(service, access.Middleware{})

	rr := httptest.NewRecorder()
	handler.timeline(rr, authenticatedRequest("/api/audit?from=2025-03-01&to=2025-03-10"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := service.lastFilters.From; !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from bound: %v", got)
	}
	// The `to` day itself stays inside the window.
	if got := service.lastFilters.To; !got.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to bound: %v", got)
	}
	var body struct {
		Rows []struct {
			Action  string `json:"action"`
			ActorID int64  `json:"actor_id"`
		} `json:"rows"`
		Paging struct {
			Page    int  `json:"page"`
			HasNext bool `json:"has_next"`
		} `json:"paging"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Rows) != 1 || body.Rows[0].Action != "ROLE_CREATE" || body.Rows[0].ActorID != 7 {
		t.Fatalf("unexpected rows: %+v", body.Rows)
	}
	if body.Paging.Page != 1 {
		t.Fatalf("unexpected paging: %+v", body.Paging)
	}
}

func TestTimelineDefaultsToRecentWindow(t *testing.T) {
	service := &stubTimelineService{}
	handler := newAuditHandler(service, access.Middleware{})

	rr := httptest.NewRecorder()
	handler.timeline(rr, authenticatedRequest("/api/audit"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := service.lastFilters.From; !got.Equal(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected default from: %v", got)
	}
	if got := service.lastFilters.To; !got.Equal(time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected default to: %v", got)
	}
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	cases := map[string]string{
		"malformed to":   "/api/audit?to=yesterday",
		"from after to":  "/api/audit?from=2025-03-10&to=2025-03-01",
		"range too wide": "/api/audit?from=2024-01-01&to=2025-03-01",
		"bad actor":      "/api/audit?actor_id=root",
		"negative page":  "/api/audit?page=-1",
		"zero page size": "/api/audit?page_size=0",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			service := &stubTimelineService{}
			handler := newAuditHandler(service, access.Middleware{})
			rr := httptest.NewRecorder()
			handler.timeline(rr, authenticatedRequest(target))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestExportCSV(t *testing.T) {
	rows := []audit.TimelineRow{{
		At:       time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		ActorID:  7,
		Action:   "GRANT_REVOKE",
		Entity:   "temporary_privilege",
		EntityID: "42",
	}}
	service := &stubTimelineService{exportRows: rows}
	handler := newAuditHandler(service, access.Middleware{})

	rr := httptest.NewRecorder()
	handler.export(rr, authenticatedRequest("/api/audit/export.csv?from=2025-03-01&to=2025-03-12"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if disp := rr.Header().Get("Content-Disposition"); !strings.Contains(disp, "audit-timeline.csv") {
		t.Fatalf("unexpected disposition: %s", disp)
	}
	if body := rr.Body.String(); !strings.Contains(body, "GRANT_REVOKE") {
		t.Fatalf("expected action in export: %s", body)
	}
}

func TestRoutesRequireAuditPermission(t *testing.T) {
	service := &stubTimelineService{}

	denied := newAuditHandler(service, newAuditGuard("tickets.read"))
	router := chi.NewRouter()
	denied.MountRoutes(router)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest("/"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	allowed := newAuditHandler(service, newAuditGuard(shared.PermAuditView))
	router = chi.NewRouter()
	allowed.MountRoutes(router)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest("/"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}
