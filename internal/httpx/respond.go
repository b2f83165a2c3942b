package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go-gemini-chat/internal/apperr"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the uniform JSON error shape.
type ErrorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// DecodeJSON reads a size-limited JSON body. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body", apperr.ErrValidation)
	}
	return nil
}

// StatusFor maps an error category to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError is the single place handlers send failures through. Unknown
// errors are logged and hidden behind a generic message.
func RespondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.Error(err))
		msg = "Internal Server Error"
	case http.StatusBadGateway:
		logger.Warn("upstream failure", zap.Error(err))
		msg = apperr.ErrUpstream.Error()
	}
	WriteError(w, status, msg)
}
