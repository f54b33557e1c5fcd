package auth

import "errors"

// Authentication and authorization failures. The HTTP layer is the single place
// that translates these into status codes.
var (
	ErrMissingCredential  = errors.New("auth: missing credential")
	ErrCredentialMismatch = errors.New("auth: credential mismatch")
	ErrMissingToken       = errors.New("auth: missing token")
	ErrTokenInvalid       = errors.New("auth: token invalid")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrNoIdentity         = errors.New("auth: no identity")
	ErrRoleDenied         = errors.New("auth: role denied")
	ErrPermissionDenied   = errors.New("auth: permission denied")
)

// Administration errors.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrConflict     = errors.New("auth: conflict")
)
