package handler

import (
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"
)

// IsDataStar reports whether r came from a DataStar client: it accepts
// text/event-stream or carries the "datastar" query parameter.
func IsDataStar(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return r.URL.Query().Has("datastar")
}

type (
	PatchOption = datastar.PatchElementOption
	PatchMode   = datastar.ElementPatchMode
)

const (
	PatchOuter   = datastar.ElementPatchModeOuter
	PatchInner   = datastar.ElementPatchModeInner
	PatchAppend  = datastar.ElementPatchModeAppend
	PatchPrepend = datastar.ElementPatchModePrepend
	PatchRemove  = datastar.ElementPatchModeRemove
)

func WithTarget(selector string) PatchOption   { return datastar.WithSelector(selector) }
func WithPatchMode(mode PatchMode) PatchOption { return datastar.WithMode(mode) }
