package model

import "errors"

// Sentinel error kinds shared between the core pipeline and the HTTP layer.
// The server maps these onto status codes; the core never speaks HTTP.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInputTooLong = errors.New("input exceeds maximum length")
)
