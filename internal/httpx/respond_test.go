package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-gemini-chat/internal/apperr"

	"go.uber.org/zap"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", fmt.Errorf("%w: content is required", apperr.ErrValidation), http.StatusBadRequest, "invalid request: content is required"},
		{"unauthorized", apperr.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", apperr.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("%w: conversation", apperr.ErrNotFound), http.StatusNotFound, "not found: conversation"},
		{"conflict", apperr.ErrConflict, http.StatusConflict, "conflict"},
		{"upstream hides detail", fmt.Errorf("%w: dial tcp: refused", apperr.ErrUpstream), http.StatusBadGateway, "assistant unavailable"},
		{"unknown hides detail", errors.New("pq: connection reset"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, zap.NewNop(), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"hi"}`))
		var p payload
		if err := DecodeJSON(req, &p); err != nil {
			t.Fatalf("DecodeJSON() error = %v", err)
		}
		if p.Title != "hi" {
			t.Errorf("Title = %q, want hi", p.Title)
		}
	})

	t.Run("empty body is allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var p payload
		if err := DecodeJSON(req, &p); err != nil {
			t.Fatalf("DecodeJSON() error = %v", err)
		}
	})

	t.Run("malformed is a validation error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
		var p payload
		err := DecodeJSON(req, &p)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("DecodeJSON() error = %v, want ErrValidation", err)
		}
	})
}
