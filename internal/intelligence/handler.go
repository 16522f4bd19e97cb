package intelligence

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/access"
	"github.com/meridianops/meridian/internal/platform/httpx"
	"github.com/meridianops/meridian/internal/shared"
)

// Handler serves rendered reports.
type Handler struct {
	logger *slog.Logger
	client *Client
	review *ReviewService
	guard  access.Middleware
	now    func() time.Time
}

// NewHandler creates a report handler.
func NewHandler(logger *slog.Logger, client *Client, review *ReviewService, guard access.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger: logger,
		client: client,
		review: review,
		guard:  guard,
		now:    time.Now,
	}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/ping", h.ping)
	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.RequireAny(shared.PermAccessReview))
		gr.Get("/access-review.pdf", h.accessReview)
	})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("renderer ping failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "report renderer unreachable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) accessReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.review.BuildAccessReview(r.Context(), h.now())
	if err != nil {
		h.logger.Error("build access review", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), buildAccessReviewHTML(review))
	if err != nil {
		h.logger.Error("render access review", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "report renderer unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="access-review.pdf"`)
	if _, err := w.Write(pdf); err != nil {
		h.logger.Warn("write pdf", slog.Any("error", err))
	}
}
