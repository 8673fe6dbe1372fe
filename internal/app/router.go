package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/quotes"
	"github.com/lumenhq/lumen/internal/billing/subscriptions"
	"github.com/lumenhq/lumen/internal/customers"
	"github.com/lumenhq/lumen/internal/observability"
	"github.com/lumenhq/lumen/internal/shared"
	"github.com/lumenhq/lumen/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Pool           *pgxpool.Pool

	QuoteHandler        *quotes.Handler
	InvoiceHandler      *invoices.Handler
	SubscriptionHandler *subscriptions.Handler
	CustomerHandler     *customers.Handler
	ActivityHandler     *activity.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with Lumen defaults.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(IdentityRequired(params.SessionManager, params.Logger))
		api.Post("/auth/logout", logout(params.SessionManager, params.Logger))
		params.QuoteHandler.MountRoutes(api)
		params.InvoiceHandler.MountRoutes(api)
		params.SubscriptionHandler.MountRoutes(api)
		params.CustomerHandler.MountRoutes(api)
		params.ActivityHandler.MountRoutes(api)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}

// logout revokes the caller's session token and expires the cookie.
func logout(sessions *shared.SessionManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(shared.SessionCookieName)
		if err == nil && cookie.Value != "" {
			if err := sessions.Revoke(r.Context(), cookie.Value); err != nil {
				logger.Warn("session revoke", slog.Any("error", err))
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     shared.SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
