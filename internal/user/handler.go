package user

import (
	"net/http"
	"time"

	"go-gemini-chat/internal/httpx"
	myMiddleware "go-gemini-chat/internal/middleware"

	"go.uber.org/zap"
)

type Handler struct {
	Service      *Service
	logger       *zap.Logger
	cookieSecure bool
}

func NewHandler(s *Service, logger *zap.Logger, cookieSecure bool) *Handler {
	return &Handler{Service: s, logger: logger, cookieSecure: cookieSecure}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	u, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	h.logger.Info("user registered", zap.Uint("user_id", u.ID))
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     myMiddleware.SessionCookie,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.Service.SessionTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := myMiddleware.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	u, err := h.Service.GetUser(r.Context(), id.ID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), myMiddleware.TokenFromRequest(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     myMiddleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
