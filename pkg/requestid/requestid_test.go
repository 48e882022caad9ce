package requestid_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/trevia/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{name: "generates when missing", incoming: "", reuse: false},
		{name: "reuses valid id", incoming: "abc-123_DEF", reuse: true},
		{name: "replaces invalid characters", incoming: "bad id;drop", reuse: false},
		{name: "replaces oversized id", incoming: strings.Repeat("a", 200), reuse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromCtx string
			h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = requestid.FromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(requestid.Header, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.NotEmpty(t, fromCtx)
			assert.Equal(t, fromCtx, rec.Header().Get(requestid.Header))
			if tt.reuse {
				assert.Equal(t, tt.incoming, fromCtx)
			} else {
				assert.NotEqual(t, tt.incoming, fromCtx)
			}
		})
	}
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := requestid.LoggerExtractor()(req.Context())
	assert.False(t, ok)

	ctx := requestid.WithContext(req.Context(), "rid-1")
	attr, ok := requestid.LoggerExtractor()(ctx)
	assert.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "rid-1", attr.Value.String())
}
