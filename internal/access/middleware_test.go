package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridianops/meridian/internal/shared"
)

func newGuard(rolesByUser map[int64][]int64, permsByRole map[int64][]string) Middleware {
	directory := &fakeDirectory{roles: rolesByUser}
	resolver := &fakeResolver{perms: permsByRole}
	svc := NewService(directory, resolver, &fakeGrants{}, nil, nil)
	return Middleware{Service: svc}
}

func authenticatedRequest(t *testing.T, target, userID string) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	sess.SetUser(userID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

var probe = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRequireAnyRejectsAnonymous(t *testing.T) {
	guard := newGuard(map[int64][]int64{}, map[int64][]string{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	guard.RequireAny("tickets.read")(probe).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAnyAllowsPermissionHolder(t *testing.T) {
	guard := newGuard(
		map[int64][]int64{7: {10}},
		map[int64][]string{10: {"tickets.read"}},
	)

	rr := httptest.NewRecorder()
	guard.RequireAny("tickets.read", "tickets.admin")(probe).ServeHTTP(rr, authenticatedRequest(t, "/tickets", "7"))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	guard.RequireAny("billing.view")(probe).ServeHTTP(rr, authenticatedRequest(t, "/billing", "7"))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireAllDemandsEveryPermission(t *testing.T) {
	guard := newGuard(
		map[int64][]int64{7: {10}},
		map[int64][]string{10: {"tickets.read"}},
	)

	rr := httptest.NewRecorder()
	guard.RequireAll("tickets.read", "tickets.close")(probe).ServeHTTP(rr, authenticatedRequest(t, "/tickets", "7"))
	require.Equal(t, http.StatusForbidden, rr.Code)

	full := newGuard(
		map[int64][]int64{7: {10}},
		map[int64][]string{10: {"tickets.read", "tickets.close"}},
	)
	rr = httptest.NewRecorder()
	full.RequireAll("tickets.read", "tickets.close")(probe).ServeHTTP(rr, authenticatedRequest(t, "/tickets", "7"))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGuardWithoutRequirementsPassesThrough(t *testing.T) {
	guard := newGuard(map[int64][]int64{}, map[int64][]string{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	guard.RequireAny()(probe).ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGuardRejectsSessionForDeletedUser(t *testing.T) {
	guard := newGuard(map[int64][]int64{}, map[int64][]string{})

	rr := httptest.NewRecorder()
	guard.RequireAny("tickets.read")(probe).ServeHTTP(rr, authenticatedRequest(t, "/tickets", "99"))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
