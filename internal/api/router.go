package api

import (
	"net/http"
	"time"

	"accounts_api/internal/api/handler"
	"accounts_api/internal/api/middleware"
	"accounts_api/internal/app/service"
	"accounts_api/internal/common/security"
	"accounts_api/internal/domain/repository"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	userRepo repository.UserRepository,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger) // Chi's logger
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies the "Authorization: Bearer T" token and puts claims in
	// context; the Authenticator middleware on protected groups does
	// the rest (claims + live user reload).
	r.Use(jwtauth.Verifier(security.TokenAuth))

	authn := middleware.Authenticator(userRepo)

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// API v1 Routes
	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService)
		v1.Route("/auth", func(authRouter chi.Router) {
			authHandler.RegisterRoutes(authRouter, authn)
		})

		userHandler := handler.NewUserHandler(userService)
		v1.Route("/users", func(userRouter chi.Router) {
			userHandler.RegisterRoutes(userRouter, authn)
		})
	})

	return r
}
