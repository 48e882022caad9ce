package handler

import (
	"encoding/json"
	"net/http"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"
)

// StreamContext is the Context of a long-lived DataStar stream.
type StreamContext interface {
	Context
	SendSignals(signals map[string]any) error
	SendComponent(c templ.Component, opts ...PatchOption) error
}

type streamContext struct {
	Context
	sse *datastar.ServerSentEventGenerator
}

func (c *streamContext) SendSignals(signals map[string]any) error {
	data, err := json.Marshal(signals)
	if err != nil {
		return err
	}
	return c.sse.PatchSignals(data)
}

func (c *streamContext) SendComponent(comp templ.Component, opts ...PatchOption) error {
	return c.sse.PatchElementTempl(comp, opts...)
}

// StreamHandler runs for the lifetime of the connection. It should return
// when ctx is done.
type StreamHandler func(ctx StreamContext) error

type sseResponse struct {
	handler StreamHandler
}

func (s sseResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if !IsDataStar(r) {
		return NewHTTPError(http.StatusNotAcceptable, "event_stream_required")
	}
	base := NewContext(w, r)
	sse := base.SSE()
	if sse == nil {
		return ErrSSENotInitialized
	}
	return s.handler(&streamContext{Context: base, sse: sse})
}

// SSE answers with a DataStar event stream driven by h.
func SSE(h StreamHandler) Response {
	return sseResponse{handler: h}
}
