// Package apperr defines the error categories shared by the server packages.
// Domain errors wrap one of these so the HTTP layer can pick a status code
// with errors.Is.
package apperr

import "errors"

var (
	ErrValidation   = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	// ErrUpstream marks failures of the hosted LLM.
	ErrUpstream = errors.New("assistant unavailable")
)
