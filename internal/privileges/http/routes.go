package privilegeshttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/shared"
)

// MountRoutes registers temporary privilege routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermPrivilegesView))
		r.Get("/lapsed", h.listLapsed)
		r.Get("/user/{userID}", h.listForUser)
		r.Get("/{ref}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermPrivilegesGrant))
		r.Post("/", h.grant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermPrivilegesRevoke))
		r.Post("/{ref}/revoke", h.revoke)
	})
}
