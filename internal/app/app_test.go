package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go-gemini-chat/internal/chat"
	"go-gemini-chat/internal/config"
	"go-gemini-chat/internal/db/dbtest"
	myMiddleware "go-gemini-chat/internal/middleware"
	"go-gemini-chat/internal/user"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestModuleGraphIsComplete(t *testing.T) {
	cfg := &config.Server{
		Addr:              ":0",
		DSN:               "postgres://unused",
		JWTSecret:         "secret",
		RedisAddr:         "localhost:0",
		LogLevel:          "info",
		SessionTTL:        time.Hour,
		ReconcileInterval: time.Minute,
		TurnStallAfter:    time.Minute,
	}
	if err := fx.ValidateApp(Module(cfg)); err != nil {
		t.Fatal(err)
	}
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (m *memRevocations) Revoke(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[id] = true
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[id], nil
}

type echoResponder struct{}

func (echoResponder) Reply(_ context.Context, prompt string) (string, error) {
	return "echo: " + prompt, nil
}

func newTestRouter(t *testing.T, health HealthFunc) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	gdb := dbtest.Open(t, &user.User{}, &chat.Conversation{}, &chat.Message{})

	users := user.NewService(user.NewRepository(gdb), &memRevocations{revoked: map[string]bool{}}, "test-secret", time.Hour)
	hub := chat.NewHub(nil, logger)
	chats := chat.NewService(chat.NewRepository(gdb), echoResponder{}, hub, logger)

	return NewRouter(RouterParams{
		Logger: logger,
		Users:  user.NewHandler(users, logger, false),
		Chat:   chat.NewHandler(chats, hub, logger),
		Auth:   myMiddleware.NewAuthMiddleware(users, logger),
		Health: health,
	})
}

func request(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	ok := newTestRouter(t, func(context.Context) error { return nil })
	if rr := request(t, ok, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rr.Code)
	}

	down := newTestRouter(t, func(context.Context) error { return errors.New("redis down") })
	if rr := request(t, down, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rr.Code)
	}
}

func TestAuthenticatedChatFlow(t *testing.T) {
	h := newTestRouter(t, func(context.Context) error { return nil })

	if rr := request(t, h, http.MethodGet, "/api/conversation", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status = %d, want 401", rr.Code)
	}

	rr := request(t, h, http.MethodPost, "/auth/signup", "", `{"email":"ada@example.com","password":"password123","name":"Ada"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = request(t, h, http.MethodPost, "/auth/login", "", `{"email":"ada@example.com","password":"password123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var login user.LoginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("login body = %s", rr.Body.String())
	}
	token := login.Token

	rr = request(t, h, http.MethodPost, "/api/message", token, `{"content":"hi","clientId":"c-1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("send status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var turn chat.Turn
	if err := json.Unmarshal(rr.Body.Bytes(), &turn); err != nil {
		t.Fatal(err)
	}
	if turn.AIMessage == nil || turn.AIMessage.Content != "echo: hi" {
		t.Errorf("turn = %+v", turn)
	}

	rr = request(t, h, http.MethodGet, "/api/conversation", token, "")
	var list struct {
		Conversations []chat.Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Conversations) != 1 {
		t.Fatalf("list = %s", rr.Body.String())
	}

	if rr := request(t, h, http.MethodGet, "/auth/session", token, ""); rr.Code != http.StatusOK {
		t.Errorf("session status = %d", rr.Code)
	}
	if rr := request(t, h, http.MethodPost, "/auth/logout", token, ""); rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rr.Code)
	}
	if rr := request(t, h, http.MethodGet, "/auth/session", token, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("session after logout status = %d, want 401", rr.Code)
	}
}
