package report

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gestio-app/gestio/internal/platform/httpx"
	"github.com/gestio-app/gestio/internal/shared"
)

// Handler serves rendered document PDFs.
type Handler struct {
	renderer *Renderer
	logger   *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(renderer *Renderer, logger *slog.Logger) *Handler {
	return &Handler{renderer: renderer, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Get("/quotes/{id}/pdf", h.document("QUOTE"))
		r.Get("/invoices/{id}/pdf", h.document("INVOICE"))
	})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.renderer.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) document(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid id", shared.ErrValidation))
			return
		}
		pdf, name, err := h.renderer.RenderDocument(r.Context(), kind, id)
		if err != nil {
			h.logger.Warn("render document", slog.String("kind", kind), slog.Int64("id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write(pdf)
	}
}
