package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginStoresTokenForLaterCalls(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "a@example.com" {
				t.Errorf("login body = %v", body)
			}
			fmt.Fprint(w, `{"user":{"id":1,"email":"a@example.com"},"token":"tok-1"}`)
		case "/api/conversation":
			gotAuth = r.Header.Get("Authorization")
			fmt.Fprint(w, `{"conversations":[{"id":4,"title":"Trip"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	u, err := c.Login(context.Background(), "a@example.com", "pw")
	if err != nil || u.ID != 1 {
		t.Fatalf("Login() = %+v, %v", u, err)
	}
	if c.Token() != "tok-1" {
		t.Errorf("Token() = %q", c.Token())
	}

	convs, err := c.ListConversations(context.Background())
	if err != nil || len(convs) != 1 || convs[0].Title != "Trip" {
		t.Fatalf("ListConversations() = %+v, %v", convs, err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestSendMessagePaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"conversationId":9,"created":true,"userMessage":{"id":1,"sender":"USER","content":%q,"clientId":%q},"aiMessage":{"id":2,"sender":"AI","content":"ok"}}`,
			body["content"], body["clientId"])
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	turn, err := c.SendMessage(context.Background(), 0, "hello", "cid")
	if err != nil {
		t.Fatal(err)
	}
	if turn.ConversationID != 9 || !turn.Created || turn.UserMessage.ClientID != "cid" || turn.AIMessage.Content != "ok" {
		t.Errorf("turn = %+v", turn)
	}
	if _, err := c.SendMessage(context.Background(), 9, "again", ""); err != nil {
		t.Fatal(err)
	}
	if paths[0] != "POST /api/message" || paths[1] != "POST /api/message/9" {
		t.Errorf("paths = %v", paths)
	}
}

func TestMessagesQuery(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"messages":[{"id":3}],"nextCursor":null}`)
	}))
	defer srv.Close()

	page, err := New(srv.URL, nil).Messages(context.Background(), 5, "abc", 15)
	if err != nil {
		t.Fatal(err)
	}
	if rawQuery != "cursor=abc&limit=15" {
		t.Errorf("query = %q", rawQuery)
	}
	if len(page.Messages) != 1 || page.NextCursor != nil {
		t.Errorf("page = %+v", page)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		upstream     bool
		notFound     bool
		unauthorized bool
		message      string
	}{
		{"upstream", http.StatusBadGateway, `{"error":"assistant unavailable","conversationId":3,"userMessage":{"id":8,"status":"failed"}}`, true, false, false, "assistant unavailable"},
		{"not found", http.StatusNotFound, `{"error":"not found: conversation"}`, false, true, false, "not found: conversation"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid or expired session"}`, false, false, true, "Invalid or expired session"},
		{"no body", http.StatusInternalServerError, ``, false, false, false, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, nil).SendMessage(context.Background(), 3, "hi", "")
			apiErr, ok := AsError(err)
			if !ok {
				t.Fatalf("error = %v, want *Error", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.message {
				t.Errorf("error = %+v", apiErr)
			}
			if IsUpstream(err) != tt.upstream || IsNotFound(err) != tt.notFound || IsUnauthorized(err) != tt.unauthorized {
				t.Errorf("classification wrong for %+v", apiErr)
			}
			if tt.upstream && (apiErr.ConversationID != 3 || apiErr.UserMessage == nil || apiErr.UserMessage.Status != "failed") {
				t.Errorf("upstream details = %+v", apiErr)
			}
		})
	}
}
