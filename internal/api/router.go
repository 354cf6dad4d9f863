package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/threadlens/internal/api/middleware"
	"github.com/kiranshivaraju/threadlens/internal/api/response"
	"github.com/kiranshivaraju/threadlens/internal/metrics"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	Metrics     *metrics.Metrics
	FrontendURL string

	HealthHandler  http.Handler
	MetricsHandler http.Handler

	ListThreads       http.HandlerFunc
	MonthlyAggregates http.HandlerFunc
	GetThread         http.HandlerFunc
	RecordMessage     http.HandlerFunc
	RecordSignal      http.HandlerFunc

	TriggerExplain http.HandlerFunc
	GetJob         http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics(deps.Metrics))
	r.Use(mw.CORS(deps.FrontendURL))

	// Public endpoints
	r.Method(http.MethodGet, "/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/v1/threads", func(r chi.Router) {
			r.With(deps.Auth.RequireScope(models.ScopeRead)).
				Get("/", orNotImplementedFunc(deps.ListThreads))
			r.With(deps.Auth.RequireScope(models.ScopeRead)).
				Get("/aggregates/monthly", orNotImplementedFunc(deps.MonthlyAggregates))
			r.With(deps.Auth.RequireScope(models.ScopeRead)).
				Get("/{threadID}", orNotImplementedFunc(deps.GetThread))

			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.RequireScope(models.ScopeIngest))

				r.Post("/{threadID}/messages", orNotImplementedFunc(deps.RecordMessage))
				r.Post("/{threadID}/signals", orNotImplementedFunc(deps.RecordSignal))
			})
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/explain", orNotImplementedFunc(deps.TriggerExplain))
			r.Get("/api/v1/admin/jobs/{jobID}", orNotImplementedFunc(deps.GetJob))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return notImplemented
}

func orNotImplementedFunc(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return notImplemented
}

var notImplemented = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
})
