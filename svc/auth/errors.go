package auth

import "errors"

var (
	// ErrNoSession means the client carries no live authenticated session.
	// Callers treat it as an empty result, not as a failure.
	ErrNoSession                = errors.New("auth: no active session")
	ErrInvalidCredentials       = errors.New("auth: invalid email or password")
	ErrEmailTaken               = errors.New("auth: email already registered")
	ErrTooManyAttempts          = errors.New("auth: too many sign-in attempts")
	ErrIdentityNotFound         = errors.New("auth: identity not found")
	ErrAlreadyConfirmed         = errors.New("auth: email already confirmed")
	ErrInvalidConfirmationToken = errors.New("auth: invalid or expired confirmation token")
	ErrEmailNotConfirmed        = errors.New("auth: email not confirmed")
)
