package auth

import "errors"

var (
	// ErrKeyNotFound is returned when an API key does not exist.
	ErrKeyNotFound = errors.New("API key not found")

	// ErrInvalidToken is returned when an admin token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)
