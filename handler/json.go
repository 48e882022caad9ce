package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/trevia/pkg/validator"
)

// JSONBody is the envelope of every JSON response.
type JSONBody struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request. Details maps field names to
// validation messages.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONBody
}

func (j *jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

// WithJSONMeta merges meta into the envelope's meta object.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) {
		if r.body.Meta == nil {
			r.body.Meta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			r.body.Meta[k] = v
		}
	}
}

// JSON responds 200 with v under "data".
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONBody{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError responds with the status and detail derived from err.
func JSONError(err error, opts ...JSONOption) Response {
	status, detail := ErrorDetailFor(err)
	r := &jsonResponse{status: status, body: JSONBody{Error: detail}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrorDetailFor maps validation errors to 422 and HTTPError to its own
// code. Anything else is an opaque 500.
func ErrorDetailFor(err error) (int, *ErrorDetail) {
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		return http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    "validation_error",
			Message: "validation failed",
			Details: ve.Map(),
		}
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if httpErr.Code < http.StatusInternalServerError {
			msg = err.Error()
		}
		return httpErr.Code, &ErrorDetail{Code: httpErr.Key, Message: msg}
	}
	return http.StatusInternalServerError, &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}
