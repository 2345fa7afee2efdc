package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mslate/shortlink/internal/auth"
	"github.com/mslate/shortlink/internal/http/handlers"
	"github.com/mslate/shortlink/internal/middleware"
	"github.com/mslate/shortlink/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	linkHandler *handlers.LinkHandler,
	jwtService *auth.JWTService,
	users repo.UserRepo,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login/v1", authHandler.HandleLogin)
		r.Post("/otp/request", authHandler.HandleRequestOTP)
		r.Post("/otp/verify", authHandler.HandleVerifyOTP)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, users))
		r.Post("/create", linkHandler.HandleCreate)
		r.Get("/list", linkHandler.HandleList)
	})

	// Public slug resolution; registered last so fixed paths win.
	r.Get("/{slug}", linkHandler.HandleResolve)

	return r
}
