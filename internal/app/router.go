package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/clients"
	"github.com/gestio-app/gestio/internal/observability"
	"github.com/gestio-app/gestio/internal/payments"
	"github.com/gestio-app/gestio/internal/scheduling"
	"github.com/gestio-app/gestio/internal/signature"
	"github.com/gestio-app/gestio/internal/subscriptions"
	"github.com/gestio-app/gestio/jobs"
	"github.com/gestio-app/gestio/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	ClientsHandler       *clients.Handler
	BillingHandler       *billing.Handler
	SignatureHandler     *signature.Handler
	SubscriptionsHandler *subscriptions.Handler
	SchedulingHandler    *scheduling.Handler
	PaymentsHandler      *payments.Handler
	ReportHandler        *report.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with Gestio defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.ClientsHandler != nil {
			params.ClientsHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.SubscriptionsHandler != nil {
			params.SubscriptionsHandler.MountRoutes(r)
		}
		if params.SchedulingHandler != nil {
			params.SchedulingHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
	})

	// The signature capture page is public: clients reach it from the
	// emailed link, outside the API prefix.
	if params.SignatureHandler != nil {
		params.SignatureHandler.MountRoutes(r)
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
