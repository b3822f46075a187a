package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger creates a middleware that logs details about each incoming
// request. Websocket upgrades carry the session id in the path; when present
// it is included so one session's connection attempts group together in the
// logs.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			var ip string
			if ok {
				ip = reqMeta.IP
			}

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			}
			if sessionID := r.PathValue("id"); sessionID != "" {
				attrs = append(attrs, slog.String("sessionID", sessionID))
			}
			logger.Info("Incoming HTTP request", attrs...)
			next.ServeHTTP(w, r)
		})
	}
}
