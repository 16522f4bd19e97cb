package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meridianops/meridian/internal/platform/httpx"
	"github.com/meridianops/meridian/internal/shared"
)

// Middleware guards handlers with permission checks.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny allows the request when the user holds at least one of the
// permissions. Requiring nothing lets every authenticated check pass.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.ActorID(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			allowed, err := hasAnyPermission(r.Context(), m.Service, userID, normalized)
			if !m.finish(w, allowed, err) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll allows the request only when the user holds every permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.ActorID(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			allowed, err := hasAllPermissions(r.Context(), m.Service, userID, normalized)
			if !m.finish(w, allowed, err) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// finish writes the guard response for a decision and reports whether the
// request may proceed.
func (m Middleware) finish(w http.ResponseWriter, allowed bool, err error) bool {
	switch {
	case errors.Is(err, ErrUserNotFound):
		// The session outlived its user.
		m.Service.metrics.Check(decisionError)
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return false
	case err != nil:
		m.Service.metrics.Check(decisionError)
		if m.Logger != nil {
			m.Logger.Error("evaluate permissions", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return false
	case !allowed:
		m.Service.metrics.Check(decisionDeny)
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return false
	}
	m.Service.metrics.Check(decisionAllow)
	return true
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func hasAnyPermission(ctx context.Context, svc *Service, userID int64, required []string) (bool, error) {
	held, err := heldSet(ctx, svc, userID)
	if err != nil {
		return false, err
	}
	for _, p := range required {
		if _, ok := held[p]; ok {
			return true, nil
		}
	}
	return false, nil
}

func hasAllPermissions(ctx context.Context, svc *Service, userID int64, required []string) (bool, error) {
	held, err := heldSet(ctx, svc, userID)
	if err != nil {
		return false, err
	}
	for _, p := range required {
		if _, ok := held[p]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func heldSet(ctx context.Context, svc *Service, userID int64) (map[string]struct{}, error) {
	perms, err := svc.EffectivePermissionsForUser(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		held[strings.ToLower(p)] = struct{}{}
	}
	return held, nil
}
