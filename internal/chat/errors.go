package chat

import (
	"fmt"

	"go-gemini-chat/internal/apperr"
)

var (
	ErrConversationNotFound = fmt.Errorf("%w: conversation", apperr.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("%w: message", apperr.ErrNotFound)
	ErrInvalidID            = fmt.Errorf("%w: invalid id", apperr.ErrValidation)
	ErrInvalidCursor        = fmt.Errorf("%w: invalid cursor", apperr.ErrValidation)
	ErrEmptyContent         = fmt.Errorf("%w: content is required", apperr.ErrValidation)
	ErrEmptyTitle           = fmt.Errorf("%w: title is required", apperr.ErrValidation)
	ErrTurnInProgress       = fmt.Errorf("%w: turn already in progress", apperr.ErrConflict)
	ErrDuplicateClientID    = fmt.Errorf("%w: duplicate clientId", apperr.ErrConflict)
)
