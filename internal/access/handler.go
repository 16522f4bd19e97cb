package access

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridianops/meridian/internal/platform/httpx"
	"github.com/meridianops/meridian/internal/shared"
)

// Handler serves access review endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    Middleware
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		guard:    guard,
		validate: validator.New(),
		now:      time.Now,
	}
}

// MountRoutes registers access review routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myPermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermAccessReview))
		r.Get("/users/{userID}/permissions", h.userPermissions)
		r.Post("/check", h.check)
	})
}

type checkRequest struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	Permission string `json:"permission" validate:"required"`
	At         string `json:"at" validate:"omitempty"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.ActorID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.service.EffectivePermissionsForUser(r.Context(), userID, h.now())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at must be RFC3339")
			return
		}
		at = parsed
	}
	roleIDs, err := h.service.EffectiveRoleIDs(r.Context(), userID, at)
	if err != nil {
		h.respondError(w, err)
		return
	}
	perms, err := h.service.EffectivePermissionsForUser(r.Context(), userID, at)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"as_of":       at,
		"role_ids":    roleIDs,
		"permissions": perms,
	})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	at := h.now()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at must be RFC3339")
			return
		}
		at = parsed
	}
	allowed, err := h.service.HasPermission(r.Context(), req.UserID, req.Permission, at)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":    req.UserID,
		"permission": req.Permission,
		"as_of":      at,
		"allowed":    allowed,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("access request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
