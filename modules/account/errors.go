package account

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/trevia/handler"
	"github.com/dmitrymomot/trevia/pkg/validator"
	"github.com/dmitrymomot/trevia/svc/auth"
)

var (
	ErrInvalidCredentials = handler.NewHTTPError(http.StatusUnauthorized, "invalid_credentials")
	ErrEmailTaken         = handler.NewHTTPError(http.StatusConflict, "email_taken")
	ErrEmailNotConfirmed  = handler.NewHTTPError(http.StatusForbidden, "email_not_confirmed")
	ErrTooManyAttempts    = handler.NewHTTPError(http.StatusTooManyRequests, "too_many_attempts")
	ErrInvalidLink        = handler.NewHTTPError(http.StatusBadRequest, "invalid_confirmation_link")
	ErrNoSession          = handler.NewHTTPError(http.StatusUnauthorized, "no_session")
)

// httpError maps auth errors onto client-facing errors. Unknown errors are
// returned unchanged and render as 500.
func httpError(err error) error {
	switch {
	case validator.IsValidationError(err):
		return err
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, auth.ErrEmailTaken):
		return ErrEmailTaken
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		return ErrEmailNotConfirmed
	case errors.Is(err, auth.ErrTooManyAttempts):
		return ErrTooManyAttempts
	case errors.Is(err, auth.ErrInvalidConfirmationToken):
		return ErrInvalidLink
	case errors.Is(err, auth.ErrNoSession):
		return ErrNoSession
	default:
		return err
	}
}
