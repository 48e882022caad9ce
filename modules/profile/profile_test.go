package profile_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/handler"
	"github.com/dmitrymomot/trevia/modules/profile"
	"github.com/dmitrymomot/trevia/svc/auth/authtest"
	profilesvc "github.com/dmitrymomot/trevia/svc/profile"
)

type harness struct {
	env   *authtest.Env
	store *profilesvc.MemoryStore
	h     http.Handler
}

func setup(t *testing.T) harness {
	t.Helper()
	env := authtest.New(t)
	store := profilesvc.NewMemoryStore()
	svc := profile.NewService(profile.Config{PublicPath: "/", LandingPath: "/dashboard/home"}, env.Service, env.Sessions, store)

	r := chi.NewRouter()
	r.Mount("/api/profile", svc.API())
	svc.RegisterPages(r)
	return harness{env: env, store: store, h: r}
}

func (h harness) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

type viewBody struct {
	Data  profile.View         `json:"data"`
	Meta  map[string]any       `json:"meta"`
	Error *handler.ErrorDetail `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) viewBody {
	t.Helper()
	var body viewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetProfile(t *testing.T) {
	t.Parallel()
	h := setup(t)
	_, tok := h.env.SignedIn(t, "a@b.com")

	rec := h.do(http.MethodGet, "/api/profile", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.NotNil(t, body.Data.Profile)
	assert.Equal(t, "a", *body.Data.Profile.Username)
	assert.Nil(t, body.Data.Profile.FullName)
	assert.Equal(t, "a", body.Data.DisplayName)
	assert.Equal(t, "A", body.Data.Initials)
	assert.False(t, body.Data.Loading)

	assert.Contains(t, rec.Body.String(), `"fullName":null`)

	t.Run("anonymous", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/profile", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPatchProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("updates", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		identity, tok := h.env.SignedIn(t, "lina@example.com")

		rec := h.do(http.MethodPatch, "/api/profile", tok, `{"fullName":"Lina Haddad","website":"lina.example.com"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, "Lina Haddad", body.Data.DisplayName)
		assert.Equal(t, "https://lina.example.com", *body.Data.Profile.Website)
		assert.Nil(t, body.Meta)

		rec2, err := h.store.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lina Haddad", rec2.FullName)
	})

	t.Run("anonymous", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		rec := h.do(http.MethodPatch, "/api/profile", "", `{"fullName":"Nobody"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		_, tok := h.env.SignedIn(t, "mo@example.com")
		rec := h.do(http.MethodPatch, "/api/profile", tok, `{"username":"x"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decode(t, rec)
		require.NotNil(t, body.Error)
		assert.Contains(t, body.Error.Details, "username")
	})

	t.Run("empty patch", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		_, tok := h.env.SignedIn(t, "ned@example.com")
		rec := h.do(http.MethodPatch, "/api/profile", tok, `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("username taken", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		require.NoError(t, h.store.Upsert(ctx, profilesvc.Record{ID: "other", Username: "roamer"}))
		_, tok := h.env.SignedIn(t, "oz@example.com")
		rec := h.do(http.MethodPatch, "/api/profile", tok, `{"username":"roamer"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestPages(t *testing.T) {
	t.Parallel()
	h := setup(t)
	_, tok := h.env.SignedIn(t, "pia@example.com")

	rec := h.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/auth/login"`)

	rec = h.do(http.MethodGet, "/dashboard/home", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi, <span")
	assert.Contains(t, rec.Body.String(), ">pia</span>")

	rec = h.do(http.MethodGet, "/dashboard/home", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestStream(t *testing.T) {
	t.Parallel()
	h := setup(t)
	_, tok := h.env.SignedIn(t, "quinn@example.com")

	srv := httptest.NewServer(h.h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/profile/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan string, 8)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		var b strings.Builder
		for sc.Scan() {
			if sc.Text() == "" {
				events <- b.String()
				b.Reset()
				continue
			}
			b.WriteString(sc.Text())
			b.WriteString("\n")
		}
	}()

	next := func() string {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			return ev
		case <-time.After(3 * time.Second):
			t.Fatal("no event")
			return ""
		}
	}

	first := next()
	assert.Contains(t, first, "datastar-patch-signals")
	assert.Contains(t, first, `"displayName":"quinn"`)

	patch := h.do(http.MethodPatch, "/api/profile", tok, `{"fullName":"Quinn Adler"}`)
	require.Equal(t, http.StatusOK, patch.Code)

	for updated := false; !updated; {
		updated = strings.Contains(next(), `"displayName":"Quinn Adler"`)
	}

	t.Run("requires event stream", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/profile/stream", tok, "")
		assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	})
}
