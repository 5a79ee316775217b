package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"gwi.com/todo-assistant/internal/metrics"
)

// RouterDeps groups what NewRouter needs.
type RouterDeps struct {
	Handler            *APIHandler
	RateLimiter        *RateLimiter
	Logger             *slog.Logger
	Metrics            *metrics.Collector
	Gatherer           prometheus.Gatherer
	CORSAllowedOrigins []string
}

// NewRouter builds the HTTP routes. Middleware order:
//
//	RequestID -> Logging/Metrics -> Recoverer -> StripSlashes -> CORS
//	  /api/* authenticated: Auth -> RateLimit(general) [-> RateLimit(chat)]
func NewRouter(deps RouterDeps) http.Handler {
	h := deps.Handler
	r := chi.NewRouter()

	var rec HTTPRecorder
	if deps.Metrics != nil {
		rec = deps.Metrics
	}

	r.Use(middleware.RequestID)
	r.Use(NewLoggingMiddleware(deps.Logger, rec))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(NewCORSMiddleware(deps.CORSAllowedOrigins))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/users/me", h.Me)
			r.Delete("/users/me", h.DeleteMe)

			r.Route("/todos", func(r chi.Router) {
				r.Get("/", h.ListTodos)
				r.Post("/", h.CreateTodo)
				r.Get("/{id}", h.GetTodo)
				r.Put("/{id}", h.UpdateTodo)
				r.Delete("/{id}", h.DeleteTodo)
				r.Post("/{id}/toggle", h.ToggleTodo)
			})

			r.With(deps.RateLimiter.ChatMiddleware()).Post("/chat", h.Chat)

			r.Get("/conversations", h.ListConversations)
			r.Get("/conversations/{id}", h.GetConversation)
			r.Delete("/conversations/{id}", h.DeleteConversation)
		})
	})

	return r
}
