package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sendloop-systems/sendloop/internal/auth"
	"github.com/sendloop-systems/sendloop/internal/ratelimit"
	"github.com/sendloop-systems/sendloop/internal/web/handlers"
	"github.com/sendloop-systems/sendloop/internal/web/middleware"
)

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	WebhookHandler *handlers.WebhookHandler
	AdminHandler   *handlers.AdminHandler
	AdminVerifier  *auth.KeyVerifier
	Limiter        *ratelimit.Limiter
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", handlers.HandleHealth)

	// Public webhook surface, rate limited per IP.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Limiter))

		r.Get("/webhook", deps.WebhookHandler.HandleVerify)
		r.Post("/webhook", deps.WebhookHandler.HandleReceive)
	})

	// Admin surface behind the key check.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(deps.AdminVerifier))

		r.Post("/admin/rules", deps.AdminHandler.HandleUpsertRule)
		r.Post("/admin/bind/{contactID}/{agentID}", deps.AdminHandler.HandleBindContact)
		r.Post("/admin/schedules", deps.AdminHandler.HandleUpsertSchedule)
	})

	return r
}
