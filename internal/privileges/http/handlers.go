package privilegeshttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridianops/meridian/internal/access"
	"github.com/meridianops/meridian/internal/platform/httpx"
	"github.com/meridianops/meridian/internal/privileges"
	"github.com/meridianops/meridian/internal/shared"
)

// Handler manages temporary privilege endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *privileges.Service
	guard    access.Middleware
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *privileges.Service, guard access.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		guard:    guard,
		validate: validator.New(),
		now:      time.Now,
	}
}

type grantRequest struct {
	UserID        int64  `json:"user_id" validate:"required,gt=0"`
	RoleID        int64  `json:"role_id" validate:"required,gt=0"`
	Reason        string `json:"reason" validate:"required,max=500"`
	DurationHours int    `json:"duration_hours" validate:"required,gt=0"`
}

type grantResponse struct {
	Ref        string     `json:"ref"`
	UserID     int64      `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	RoleName   string     `json:"role_name,omitempty"`
	Reason     string     `json:"reason"`
	GrantedBy  int64      `json:"granted_by"`
	GrantedAt  time.Time  `json:"granted_at"`
	ValidUntil time.Time  `json:"valid_until"`
	Status     string     `json:"status"`
	RevokedBy  *int64     `json:"revoked_by,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grant, err := h.service.Grant(r.Context(), actorID, privileges.GrantInput{
		UserID:         req.UserID,
		RoleID:         req.RoleID,
		Reason:         req.Reason,
		Duration:       time.Duration(req.DurationHours) * time.Hour,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.toGrantResponse(grant))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	ref, ok := pathRef(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid grant reference")
		return
	}
	grant, err := h.service.Revoke(r.Context(), actorID, ref)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toGrantResponse(grant))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ref, ok := pathRef(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid grant reference")
		return
	}
	grant, err := h.service.Get(r.Context(), ref)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toGrantResponse(grant))
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	grants, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "grants": h.toGrantResponses(grants)})
}

func (h *Handler) listLapsed(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be RFC3339")
			return
		}
		asOf = parsed
	}
	grants, err := h.service.ListLapsed(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"as_of": asOf, "grants": h.toGrantResponses(grants)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, privileges.ErrNotFound),
		errors.Is(err, privileges.ErrUserNotFound),
		errors.Is(err, privileges.ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, privileges.ErrReasonRequired),
		errors.Is(err, privileges.ErrDurationOutOfRange):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, privileges.ErrAlreadyRevoked),
		errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("privileges handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) toGrantResponse(g privileges.TemporaryPrivilege) grantResponse {
	return grantResponse{
		Ref:        g.Ref.String(),
		UserID:     g.UserID,
		RoleID:     g.RoleID,
		RoleName:   g.RoleName,
		Reason:     g.Reason,
		GrantedBy:  g.GrantedBy,
		GrantedAt:  g.GrantedAt,
		ValidUntil: g.ValidUntil,
		Status:     g.StatusLabel(h.now()),
		RevokedBy:  g.RevokedBy,
		RevokedAt:  g.RevokedAt,
	}
}

func (h *Handler) toGrantResponses(grants []privileges.TemporaryPrivilege) []grantResponse {
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, h.toGrantResponse(g))
	}
	return out
}

func pathRef(r *http.Request) (uuid.UUID, bool) {
	ref, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil || ref == uuid.Nil {
		return uuid.Nil, false
	}
	return ref, true
}
