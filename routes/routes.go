package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/tasker-auth/app"
	"github.com/upb/tasker-auth/middleware"
	"github.com/upb/tasker-auth/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(deps.RealIP)
	r.Use(middleware.ClientInfo)
	r.Use(chimw.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}
	r.Use(middleware.SecurityHeaders(deps.Config.IsProduction()))

	// CORS middleware; credentials are needed for the refresh cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.HandleHealth)
	r.Get("/ready", deps.HealthHandler.HandleReadiness)

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.APIThrottle.Limit(deps.Policies.API))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", deps.AuthHandler.HandleRegister)
			r.With(deps.RateLimit.Limit(deps.Policies.Login)).Post("/login", deps.AuthHandler.HandleLogin)
			r.With(deps.RateLimit.Limit(deps.Policies.Refresh)).Post("/refresh-token", deps.AuthHandler.HandleRefresh)
			r.Post("/logout", deps.AuthHandler.HandleLogout)

			r.With(deps.AuthMiddleware.RequireAuth).Get("/me", deps.UserHandler.HandleMe)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}
