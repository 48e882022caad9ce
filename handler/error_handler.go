package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/requestid"
)

// RenderError writes err as a JSON error body or, for DataStar requests,
// as an {"error": {...}} signal patch.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := ErrorDetailFor(err)
	if IsDataStar(r) {
		signals, mErr := json.Marshal(map[string]any{"error": detail})
		if mErr == nil && datastar.NewSSE(w, r).PatchSignals(signals) == nil {
			return
		}
	}
	_ = JSONError(err, WithJSONStatus(status)).Render(w, r)
}

// NewErrorHandler logs server errors at error level and client errors at
// debug level, then renders them with RenderError.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	return func(ctx Context, err error) {
		status, _ := ErrorDetailFor(err)
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(ctx, level, "request failed",
			slog.Int("status", status),
			logger.Path(ctx.Request().URL.Path),
			logger.RequestID(requestid.FromContext(ctx)),
			logger.Error(err),
		)
		RenderError(ctx.ResponseWriter(), ctx.Request(), err)
	}
}
