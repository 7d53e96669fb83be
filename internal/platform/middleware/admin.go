package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hzi-braunschweig/pia-system/pkg/requestcontext"
)

// RequireAdminToken guards admin routes with a shared token carried in the
// X-Admin-Token header. An empty configured token disables the routes.
func RequireAdminToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-Admin-Token") != token {
				logger.WarnContext(r.Context(), "admin token rejected",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
