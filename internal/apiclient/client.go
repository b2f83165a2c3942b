// Package apiclient is the typed HTTP client chatctl and the load generator
// use to talk to the chat server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxErrorBody = 64 << 10

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error          string   `json:"error"`
		ConversationID uint     `json:"conversationId"`
		UserMessage    *Message `json:"userMessage"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)

	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Status:         resp.StatusCode,
		Message:        msg,
		ConversationID: body.ConversationID,
		UserMessage:    body.UserMessage,
	}
}

func idPath(prefix string, id uint) string {
	return prefix + "/" + strconv.FormatUint(uint64(id), 10)
}

// ---------------------------------------------
// Auth
// ---------------------------------------------

func (c *Client) SignUp(ctx context.Context, email, password, name string) (*User, error) {
	var res struct {
		User *User `json:"user"`
	}
	req := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &res); err != nil {
		return nil, err
	}
	return res.User, nil
}

// Login stores the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var res struct {
		User  *User  `json:"user"`
		Token string `json:"token"`
	}
	req := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return res.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetToken("")
	return err
}

func (c *Client) Session(ctx context.Context) (*User, error) {
	var res struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/session", nil, &res); err != nil {
		return nil, err
	}
	return res.User, nil
}

// ---------------------------------------------
// Conversations
// ---------------------------------------------

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var res struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversation", nil, &res); err != nil {
		return nil, err
	}
	return res.Conversations, nil
}

func (c *Client) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	var res struct {
		Conversation *Conversation `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/conversation", map[string]string{"title": title}, &res); err != nil {
		return nil, err
	}
	return res.Conversation, nil
}

func (c *Client) GetConversation(ctx context.Context, id uint) (*Conversation, []Message, error) {
	var res struct {
		Conversation *Conversation `json:"conversation"`
		Messages     []Message     `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, idPath("/api/conversation", id), nil, &res); err != nil {
		return nil, nil, err
	}
	return res.Conversation, res.Messages, nil
}

func (c *Client) RenameConversation(ctx context.Context, id uint, title string) (*Conversation, error) {
	var res struct {
		Conversation *Conversation `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodPut, idPath("/api/conversation", id), map[string]string{"title": title}, &res); err != nil {
		return nil, err
	}
	return res.Conversation, nil
}

func (c *Client) DeleteConversation(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/api/conversation", id), nil, nil)
}

func (c *Client) DeleteAllConversations(ctx context.Context) (int64, error) {
	var res struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/conversation", nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

// SendMessage posts one user turn. conversationID 0 lets the server create one.
func (c *Client) SendMessage(ctx context.Context, conversationID uint, content, clientID string) (*Turn, error) {
	path := "/api/message"
	if conversationID != 0 {
		path = idPath(path, conversationID)
	}
	req := map[string]string{"content": content}
	if clientID != "" {
		req["clientId"] = clientID
	}
	var turn Turn
	if err := c.do(ctx, http.MethodPost, path, req, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

// Messages fetches the page older than cursor. An empty cursor asks for the newest page.
func (c *Client) Messages(ctx context.Context, conversationID uint, cursor string, limit int) (*Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := idPath("/api/message", conversationID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) EditMessage(ctx context.Context, id uint, content string) (*Message, error) {
	var res struct {
		Message *Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPut, idPath("/api/message", id), map[string]string{"content": content}, &res); err != nil {
		return nil, err
	}
	return res.Message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, idPath("/api/message", id), nil, nil)
}

// ---------------------------------------------
// Health
// ---------------------------------------------

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
