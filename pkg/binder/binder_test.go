package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/pkg/binder"
)

type loginRequest struct {
	Email    string  `json:"email" form:"email"`
	Password string  `json:"password" form:"password"`
	Remember bool    `json:"remember" form:"remember"`
	Next     *string `json:"next,omitempty" query:"next"`
}

func TestJSON(t *testing.T) {
	t.Parallel()

	t.Run("decodes and strips control characters", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com\u0000","password":"x"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")

		var req loginRequest
		require.NoError(t, binder.JSON()(r, &req))
		assert.Equal(t, "a@b.com", req.Email)
		assert.Equal(t, "x", req.Password)
	})

	t.Run("not applicable for forms", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("email=x"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.ErrorIs(t, binder.JSON()(r, &loginRequest{}), binder.ErrBinderNotApplicable)
	})

	t.Run("rejects unknown fields and trailing data", func(t *testing.T) {
		t.Parallel()
		for _, body := range []string{`{"nope":1}`, `{"email":"a"}{"email":"b"}`, ``, `{`} {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			r.Header.Set("Content-Type", "application/json")
			assert.ErrorIs(t, binder.JSON()(r, &loginRequest{}), binder.ErrInvalidJSON, body)
		}
	})
}

func TestForm(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=a%40b.com&password=secret&remember=on"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var req loginRequest
	require.NoError(t, binder.Form()(r, &req))
	assert.Equal(t, "a@b.com", req.Email)
	assert.Equal(t, "secret", req.Password)
	assert.True(t, req.Remember)

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("remember=maybe"))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.ErrorIs(t, binder.Form()(bad, &loginRequest{}), binder.ErrInvalidForm)

	assert.ErrorIs(t, binder.Form()(httptest.NewRequest(http.MethodGet, "/", nil), &loginRequest{}), binder.ErrBinderNotApplicable)
}

func TestQuery(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/auth/login?next=%2Fdashboard%2Fhome", nil)
	var req loginRequest
	require.NoError(t, binder.Query()(r, &req))
	require.NotNil(t, req.Next)
	assert.Equal(t, "/dashboard/home", *req.Next)

	assert.ErrorIs(t, binder.Query()(httptest.NewRequest(http.MethodGet, "/", nil), &req), binder.ErrBinderNotApplicable)
	assert.ErrorIs(t, binder.Query()(r, req), binder.ErrInvalidTarget)
}
