package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/snakesgame/internal/api/apierr"
	"github.com/mcoot/snakesgame/internal/services/auth"
)

const adminRealm = `Basic realm="snakes-admin", charset="UTF-8"`

// AdminAuth requires HTTP Basic credentials accepted by authService
func AdminAuth(authService *auth.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authService.Enabled() {
				apierr.WriteError(w, auth.ErrAdminDisabled)
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", adminRealm)
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			if err := authService.Verify(username, password); err != nil {
				logger.Warn("admin authentication failed",
					slog.String("username", username),
					slog.String("remote_addr", r.RemoteAddr))
				w.Header().Set("WWW-Authenticate", adminRealm)
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
