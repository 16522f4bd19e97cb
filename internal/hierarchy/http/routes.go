package hierarchyhttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/shared"
)

// MountRoutes registers hierarchy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermHierarchyView))
		r.Get("/edges", h.listEdges)
		r.Get("/edges/{edgeID}", h.getEdge)
		r.Get("/roles/{roleID}/children", h.children)
		r.Get("/roles/{roleID}/parents", h.parents)
		r.Get("/roles/{roleID}/permissions", h.effectivePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermHierarchyEdit))
		r.Post("/edges", h.addEdge)
		r.Delete("/edges/{edgeID}", h.removeEdge)
	})
}
