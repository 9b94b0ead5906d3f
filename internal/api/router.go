package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the router wires into handlers. Queue, Health,
// Limiter, Feed, Prometheus and Pingers are optional.
type Deps struct {
	Store        Store
	Dispatcher   Dispatcher
	Queue        TriggerQueue
	Health       HealthTracker
	Limiter      TriggerLimiter
	Clients      ClientCounter
	Feed         http.HandlerFunc
	Prometheus   http.Handler
	Pingers      map[string]Pinger
	AutoDispatch bool
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	triggerHandler := NewTriggerHandler(deps.Dispatcher, deps.Limiter, deps.Logger)
	eventHandler := NewEventHandler(deps.Store, deps.Queue, deps.AutoDispatch, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.Store, deps.Health)
	dashHandler := NewDashboardHandler(deps.Store, deps.Queue, deps.Health, deps.Clients)

	if deps.Feed != nil {
		r.Get("/ws", deps.Feed)
	}
	if deps.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", deps.Prometheus)
	}

	r.Post("/functions/process-webhook-event", triggerHandler.ProcessEvent)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(deps.Pingers))

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhookHandler.Create)
			r.Get("/", webhookHandler.List)
			r.Get("/{id}", webhookHandler.Get)
			r.Patch("/{id}", webhookHandler.Update)
			r.Delete("/{id}", webhookHandler.Delete)
			r.Get("/{id}/health", webhookHandler.Health)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Create)
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
			r.Post("/{id}/dispatch", triggerHandler.Dispatch)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/webhooks-health", dashHandler.WebhooksHealth)
	})

	return r
}

// corsMiddleware allows browser calls from the dashboard and answers
// preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
