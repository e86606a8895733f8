/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client IP from X-Forwarded-For for rate limiting
  3. RequestLogger: One zerolog line per request
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the admin UI
  6. RateLimiter:   Per IP on public routes, per user behind auth

ROUTE GROUPS:
  /api/health           Liveness (public)
  /api/auth/*           Login, refresh, logout (public)
  everything else       Bearer access token required

ROLES:
  cashier   read everything, post receipts, use the calculator
  manager   + submit, activate and terminate contracts, reverse receipts,
              create customers
  admin     + admin endpoints

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth, logging and rate limiting
  - cmd/leasectl/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leaseforge/lease-engine/auth"
	"github.com/rs/zerolog"
)

// RouterConfig carries the router's cross-cutting settings.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimiter    *RateLimiter // nil disables rate limiting
	Logger         zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Middleware
	}
	manager := RequireRole(auth.RoleManager, auth.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Use(limit)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/logout", h.Logout)
		})

		// Everything below requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(Authenticator(h.Auth.JWT()))
			r.Use(limit)

			r.Get("/me", h.Me)
			r.Post("/forms/change", h.EditForm)

			// Contract routes
			r.Route("/contracts", func(r chi.Router) {
				r.Get("/", h.ListContracts)
				r.Post("/calculate", h.CalculateContract)
				r.With(manager).Post("/", h.CreateContract)
				r.Get("/{id}", h.GetContract)
				r.Get("/{id}/schedule", h.GetSchedule)
				r.Get("/{id}/statement", h.GetStatement)
				r.With(manager).Post("/{id}/activate", h.ActivateContract)
				r.With(manager).Post("/{id}/terminate", h.TerminateContract)
				r.Post("/{id}/receipts", h.PostReceipt)
			})

			// Receipt routes
			r.Route("/receipts", func(r chi.Router) {
				r.With(manager).Delete("/{id}", h.ReverseReceipt)
			})

			// Customer routes
			r.Route("/customers", func(r chi.Router) {
				r.Get("/", h.ListCustomers)
				r.With(manager).Post("/", h.CreateCustomer)
				r.Get("/{id}", h.GetCustomer)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAdmin))
				r.Get("/overdue", h.GetOverdueStatus)
				r.Post("/overdue/run", h.RunOverdueCheck)
				r.Get("/scenarios", h.ListScenarios)
				r.Post("/scenarios/load", h.LoadScenario)
			})
		})
	})

	return r
}
