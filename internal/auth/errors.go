package auth

import "errors"

// Domain errors for the auth package.
var (
	ErrTokenInvalid     = errors.New("auth: invalid token")
	ErrInvalidPrincipal = errors.New("auth: invalid principal")
	ErrMissingSecret    = errors.New("auth: signing secret not configured")
)
