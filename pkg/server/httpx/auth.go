package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/config"
)

// eventsPath also accepts ?access_token= since browsers cannot set headers
// on a websocket handshake.
const eventsPath = "/api/v1/events"

// Auth enforces server.auth. Mode "none" (or empty) lets everything
// through; mode "token" requires "Authorization: Bearer <token>". Health
// endpoints are always open. Failures answer 401 with a JSON body.
func Auth(cfg config.ServerConfig) func(http.Handler) http.Handler {
	mode := cfg.Auth.Mode
	want := []byte(cfg.Auth.Token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthEndpoint(r.URL.Path) || mode == "" || mode == "none" {
				next.ServeHTTP(w, r)
				return
			}

			logger := log.With().Str("component", "auth").Str("path", r.URL.Path).Logger()
			if mode != "token" {
				logger.Error().Str("mode", mode).Msg("Unknown auth mode")
				writeUnauthorized(w, "Authentication configuration error")
				return
			}

			token := extractBearerToken(r)
			if token == "" && r.URL.Path == eventsPath {
				token = r.URL.Query().Get("access_token")
			}
			switch {
			case token == "":
				logger.Warn().Msg("Missing authorization header")
				writeUnauthorized(w, "Missing authorization header")
			case subtle.ConstantTimeCompare([]byte(token), want) != 1:
				logger.Warn().Msg("Invalid token")
				writeUnauthorized(w, "Invalid token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func isHealthEndpoint(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// extractBearerToken returns the token of a case-insensitive "Bearer"
// Authorization header, or "".
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="framecast"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"` + message + `"}`))
}
