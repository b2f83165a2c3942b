package user

import (
	"fmt"

	"go-gemini-chat/internal/apperr"
)

var (
	ErrInvalidInput       = apperr.ErrValidation
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrUserNotFound       = fmt.Errorf("%w: user", apperr.ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired session", apperr.ErrUnauthorized)
)
