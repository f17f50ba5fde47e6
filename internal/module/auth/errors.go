package auth

import "errors"

var (
	// ErrCredentialNotFound is returned when no credential matches the key.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialInactive is returned when the matched key is disabled.
	ErrCredentialInactive = errors.New("credential is inactive")
	// ErrInvalidToken is returned when a session token cannot be parsed or verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidTokenClaims is returned when token claims are malformed.
	ErrInvalidTokenClaims = errors.New("invalid token claims")
	// ErrMissingCredentials is returned when the request carries no usable credential.
	ErrMissingCredentials = errors.New("missing credentials")
)
