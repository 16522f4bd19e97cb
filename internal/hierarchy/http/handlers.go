package hierarchyhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridianops/meridian/internal/access"
	"github.com/meridianops/meridian/internal/hierarchy"
	"github.com/meridianops/meridian/internal/platform/httpx"
	"github.com/meridianops/meridian/internal/shared"
)

// Handler manages role hierarchy endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *hierarchy.Service
	guard    access.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *hierarchy.Service, guard access.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

type edgeResponse struct {
	ID                 int64     `json:"id"`
	ParentRoleID       int64     `json:"parent_role_id"`
	ChildRoleID        int64     `json:"child_role_id"`
	InheritPermissions bool      `json:"inherit_permissions"`
	CreatedBy          int64     `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}

type addEdgeRequest struct {
	ParentRoleID       int64 `json:"parent_role_id" validate:"required,gt=0"`
	ChildRoleID        int64 `json:"child_role_id" validate:"required,gt=0"`
	InheritPermissions *bool `json:"inherit_permissions"`
}

func (h *Handler) listEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := h.service.ListEdges(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"edges": toEdgeResponses(edges)})
}

func (h *Handler) getEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "edgeID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid edge id")
		return
	}
	edge, err := h.service.GetEdge(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEdgeResponse(edge))
}

func (h *Handler) addEdge(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req addEdgeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inherit := true
	if req.InheritPermissions != nil {
		inherit = *req.InheritPermissions
	}
	edge, err := h.service.AddEdge(r.Context(), actorID, req.ParentRoleID, req.ChildRoleID, inherit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEdgeResponse(edge))
}

func (h *Handler) removeEdge(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := pathID(r, "edgeID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid edge id")
		return
	}
	if err := h.service.RemoveEdge(r.Context(), actorID, id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	edges, err := h.service.Children(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": id, "edges": toEdgeResponses(edges)})
}

func (h *Handler) parents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	edges, err := h.service.Parents(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": id, "edges": toEdgeResponses(edges)})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": id, "permissions": perms})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hierarchy.ErrSelfLoop):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, hierarchy.ErrRoleNotFound), errors.Is(err, hierarchy.ErrEdgeNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, hierarchy.ErrCycle), errors.Is(err, hierarchy.ErrDuplicateEdge):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("hierarchy handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toEdgeResponse(e hierarchy.Edge) edgeResponse {
	return edgeResponse{
		ID:                 e.ID,
		ParentRoleID:       e.ParentRoleID,
		ChildRoleID:        e.ChildRoleID,
		InheritPermissions: e.InheritPermissions,
		CreatedBy:          e.CreatedBy,
		CreatedAt:          e.CreatedAt,
	}
}

func toEdgeResponses(edges []hierarchy.Edge) []edgeResponse {
	out := make([]edgeResponse, 0, len(edges))
	for _, e := range edges {
		out = append(out, toEdgeResponse(e))
	}
	return out
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
