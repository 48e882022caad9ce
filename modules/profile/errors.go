package profile

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/trevia/handler"
	"github.com/dmitrymomot/trevia/pkg/validator"
	profilesvc "github.com/dmitrymomot/trevia/svc/profile"
)

var (
	ErrEmptyPatch     = handler.NewHTTPError(http.StatusBadRequest, "empty_patch")
	ErrUsernameTaken  = handler.NewHTTPError(http.StatusConflict, "username_taken")
	ErrInvalidProfile = handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_profile")
	ErrUpsertFailed   = handler.NewHTTPError(http.StatusBadGateway, "profile_upsert_failed")
)

func httpError(err error) error {
	switch {
	case validator.IsValidationError(err):
		return err
	case errors.Is(err, profilesvc.ErrNotAuthenticated):
		return handler.ErrUnauthorized
	case errors.Is(err, profilesvc.ErrUsernameTaken):
		return ErrUsernameTaken
	case errors.Is(err, profilesvc.ErrInvalidRecord):
		return ErrInvalidProfile
	case errors.Is(err, profilesvc.ErrUpsertFailed):
		return errors.Join(ErrUpsertFailed, err)
	default:
		return err
	}
}
