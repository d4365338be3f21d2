package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")

	// ErrInvalidToken covers expired, forged, and revoked tokens alike so
	// callers cannot distinguish which check failed.
	ErrInvalidToken = errors.New("auth: invalid token")
)
