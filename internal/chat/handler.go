package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go-gemini-chat/internal/apperr"
	"go-gemini-chat/internal/httpx"
	myMiddleware "go-gemini-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Service *Service
	Hub     *Hub
	logger  *zap.Logger
}

func NewHandler(s *Service, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{Service: s, Hub: hub, logger: logger}
}

type titleRequest struct {
	Title string `json:"title"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type upstreamFailure struct {
	Error          string   `json:"error"`
	ConversationID uint     `json:"conversationId"`
	UserMessage    *Message `json:"userMessage"`
}

// Routes mounts the conversation and message endpoints. Callers wrap them in auth.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/conversation", func(r chi.Router) {
		r.Post("/", h.CreateConversation)
		r.Get("/", h.ListConversations)
		r.Delete("/", h.DeleteAllConversations)
		r.Get("/{id}", h.GetConversation)
		r.Put("/{id}", h.RenameConversation)
		r.Delete("/{id}", h.DeleteConversation)
	})
	r.Route("/message", func(r chi.Router) {
		r.Post("/", h.SendMessage)
		// {id} is the conversation for POST/GET and the message for PUT/DELETE.
		r.Post("/{id}", h.SendMessage)
		r.Get("/{id}", h.MessagesPage)
		r.Put("/{id}", h.EditMessage)
		r.Delete("/{id}", h.DeleteMessage)
	})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := myMiddleware.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return id.ID, true
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req titleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	c, err := h.Service.CreateConversation(r.Context(), userID, req.Title)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"conversation": c})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	convs, err := h.Service.ListConversations(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	res, err := h.Service.GetConversation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) RenameConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req titleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	c, err := h.Service.RenameConversation(r.Context(), userID, chi.URLParam(r, "id"), req.Title)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"conversation": c})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteConversation(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted"})
}

func (h *Handler) DeleteAllConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	n, err := h.Service.DeleteAllConversations(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "All conversations deleted",
		"deleted": n,
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var in TurnInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	turn, err := h.Service.SendMessage(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		if errors.Is(err, apperr.ErrUpstream) && turn != nil {
			h.logger.Warn("turn failed upstream",
				zap.Uint("user_id", userID),
				zap.Uint("conversation_id", turn.ConversationID),
				zap.Error(err))
			httpx.WriteJSON(w, http.StatusBadGateway, upstreamFailure{
				Error:          apperr.ErrUpstream.Error(),
				ConversationID: turn.ConversationID,
				UserMessage:    turn.UserMessage,
			})
			return
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, turn)
}

func (h *Handler) MessagesPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := DefaultPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, fmt.Errorf("%w: limit must be a number", apperr.ErrValidation))
			return
		}
		limit = n
	}

	page, err := h.Service.MessagesPage(r.Context(), userID, chi.URLParam(r, "id"), q.Get("cursor"), limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	m, err := h.Service.EditMessage(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": m})
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	m, err := h.Service.DeleteMessage(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": m})
}
