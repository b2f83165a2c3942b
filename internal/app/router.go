package app

import (
	"context"
	"net/http"
	"time"

	"go-gemini-chat/internal/chat"
	"go-gemini-chat/internal/httpx"
	myMiddleware "go-gemini-chat/internal/middleware"
	"go-gemini-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HealthFunc reports whether the backing services are reachable.
type HealthFunc func(ctx context.Context) error

type RouterParams struct {
	fx.In

	Logger *zap.Logger
	Users  *user.Handler
	Chat   *chat.Handler
	Auth   *myMiddleware.AuthMiddleware
	Health HealthFunc
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(myMiddleware.RequestLogger(p.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Health(ctx); err != nil {
			p.Logger.Warn("health check failed", zap.Error(err))
			httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public Routes
	r.Post("/auth/signup", p.Users.Register)
	r.Post("/auth/login", p.Users.Login)

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(p.Auth.Handle)
		r.Get("/auth/session", p.Users.Session)
		r.Post("/auth/logout", p.Users.Logout)

		r.Get("/ws", p.Chat.ServeWs)
		r.Route("/api", p.Chat.Routes)
	})

	return r
}
