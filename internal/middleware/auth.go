package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-gemini-chat/internal/apperr"
	"go-gemini-chat/internal/httpx"

	"go.uber.org/zap"
)

type contextKey string

const (
	UserKey  contextKey = "user_id"
	EmailKey contextKey = "email"
)

// SessionCookie carries the session token for browser and mobile clients.
const SessionCookie = "chat_session"

// Identity is the resolved caller of a protected request.
type Identity struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// TokenValidator keeps this package decoupled from the user service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (uint, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

func NewAuthMiddleware(v TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: v, logger: logger}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "Missing authentication token")
			return
		}

		userID, email, err := am.validator.ValidateToken(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}
			am.logger.Error("session validation error", zap.Error(err))
			httpx.WriteError(w, http.StatusForbidden, "Invalid token or session error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{ID: userID, Email: email})))
	})
}

// TokenFromRequest looks at the session cookie, then the bearer header, then
// the token query parameter used by websocket clients.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	return r.URL.Query().Get("token")
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserKey, id.ID)
	return context.WithValue(ctx, EmailKey, id.Email)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	userID, ok := ctx.Value(UserKey).(uint)
	email, ok2 := ctx.Value(EmailKey).(string)
	if !ok || !ok2 || userID == 0 {
		return Identity{}, false
	}
	return Identity{ID: userID, Email: email}, true
}
