package liveserver

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// logRequests logs every request once it's done. Failed requests are
// logged as warnings, the reload channel at debug level.
func logRequests(log *slog.Logger, reloadPath string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelInfo
		switch {
		case m.Code >= 500:
			level = slog.LevelWarn
		case r.URL.Path == reloadPath:
			level = slog.LevelDebug
		}
		log.Log(r.Context(), level, "liveserver: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration", m.Duration,
			"size", m.Written,
		)
	})
}
