package handler

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"
)

type templResponse struct {
	component templ.Component
	status    int
	options   []PatchOption
}

func (t templResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if IsDataStar(r) {
		return datastar.NewSSE(w, r).PatchElementTempl(t.component, t.options...)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(t.status)
	return t.component.Render(r.Context(), w)
}

// Templ renders component as an HTML page, or patches it into the DOM for
// DataStar requests.
func Templ(component templ.Component, opts ...PatchOption) Response {
	return templResponse{component: component, status: http.StatusOK, options: opts}
}
