package logger

import "log/slog"

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the identity id under "user_id". Empty ids yield an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// RequestID records the request correlation id.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Component names the subsystem writing the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event names what happened.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// SessionState records a session store state name.
func SessionState(state string) slog.Attr {
	return slog.String("session_state", state)
}

// Path records a request path.
func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// Duration records an elapsed time.
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
