// Package binder decodes HTTP requests into typed structs.
//
// Each binder handles one source and returns ErrBinderNotApplicable when the
// request does not carry that source, so several binders can be chained for
// endpoints that accept both JSON and HTML form submissions:
//
//	handler.Wrap(h, handler.WithBinders[handler.Context, loginRequest](
//		binder.JSON(), binder.Form(),
//	))
package binder

import (
	"errors"
	"mime"
	"net/http"
)

var (
	ErrBinderNotApplicable = errors.New("binder: not applicable to request")
	ErrInvalidJSON         = errors.New("binder: invalid JSON body")
	ErrInvalidForm         = errors.New("binder: invalid form data")
	ErrInvalidQuery        = errors.New("binder: invalid query parameters")
	ErrInvalidTarget       = errors.New("binder: target must be a non-nil pointer to struct")
)

// mediaType returns the request media type without parameters.
func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
