package signature

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/gestio-app/gestio/internal/platform/httpx"
	"github.com/gestio-app/gestio/internal/shared"
)

// Handler exposes the public signature capture endpoint. The token is the
// only credential, so the route is rate limited.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers signature routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sign", func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Get("/{token}", h.show)
		r.Post("/{token}", h.capture)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.store.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed JSON body", shared.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	token, err := h.service.Capture(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		h.logger.Warn("signature capture", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, token)
}
