package profile

import (
	"errors"

	"github.com/dmitrymomot/trevia/pkg/validator"
	"github.com/dmitrymomot/trevia/svc/auth"
	"github.com/dmitrymomot/trevia/svc/sessionstore"
)

var (
	// ErrNotFound is returned by a Store when no record exists for the id.
	ErrNotFound = errors.New("profile: not found")

	ErrNotAuthenticated   = errors.New("profile: not authenticated")
	ErrUpsertFailed       = errors.New("profile: upsert failed")
	ErrMetadataSyncFailed = errors.New("profile: identity metadata sync failed")
	ErrUsernameTaken      = errors.New("profile: username taken")
	ErrInvalidRecord      = errors.New("profile: record rejected by store")
	ErrClosed             = errors.New("profile: resolver closed")
)

// ErrorKind groups errors by how the caller should present them.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindExpectedEmpty is no session or no profile row yet. Not shown to users.
	KindExpectedEmpty
	// KindTransientFetchFailure is a backend failure. Logged, state settles to defaults.
	KindTransientFetchFailure
	// KindValidationOrAuthFailure is shown to the user. Nothing was changed.
	KindValidationOrAuthFailure
	// KindPartialWriteFailure means the profile row was written but identity
	// metadata lags behind.
	KindPartialWriteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindExpectedEmpty:
		return "expected_empty"
	case KindTransientFetchFailure:
		return "transient_fetch_failure"
	case KindValidationOrAuthFailure:
		return "validation_or_auth_failure"
	case KindPartialWriteFailure:
		return "partial_write_failure"
	default:
		return "unknown"
	}
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound), errors.Is(err, auth.ErrNoSession):
		return KindExpectedEmpty
	case errors.Is(err, ErrMetadataSyncFailed):
		return KindPartialWriteFailure
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrInvalidRecord),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrTooManyAttempts),
		errors.Is(err, auth.ErrEmailNotConfirmed),
		validator.IsValidationError(err):
		return KindValidationOrAuthFailure
	case errors.Is(err, sessionstore.ErrFetchFailed), errors.Is(err, ErrUpsertFailed):
		return KindTransientFetchFailure
	default:
		return KindTransientFetchFailure
	}
}
