package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/framecast/framecast/pkg/config"
)

func tokenConfig() config.ServerConfig {
	return config.ServerConfig{
		Auth: config.AuthConfig{
			Mode:  "token",
			Token: "secret-token-123",
		},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	})
}

func TestAuth_TokenMode(t *testing.T) {
	handler := Auth(tokenConfig())(okHandler())

	tests := []struct {
		name     string
		target   string
		header   string
		want     int
		wantBody string
	}{
		{"valid token", "/api/v1/exports", "Bearer secret-token-123", http.StatusOK, "success"},
		{"lowercase bearer", "/api/v1/exports", "bearer secret-token-123", http.StatusOK, ""},
		{"uppercase BEARER", "/api/v1/exports", "BEARER secret-token-123", http.StatusOK, ""},
		{"with extra spaces", "/api/v1/exports", "Bearer  secret-token-123  ", http.StatusOK, ""},
		{"wrong token", "/api/v1/exports", "Bearer wrong-token", http.StatusUnauthorized, "Invalid token"},
		{"missing header", "/api/v1/exports", "", http.StatusUnauthorized, "Missing authorization header"},
		{"no bearer prefix", "/api/v1/exports", "secret-token-123", http.StatusUnauthorized, ""},
		{"basic auth", "/api/v1/exports", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"only bearer", "/api/v1/exports", "Bearer ", http.StatusUnauthorized, ""},
		{"healthz is open", "/healthz", "", http.StatusOK, "success"},
		{"readyz is open", "/readyz", "", http.StatusOK, "success"},
		{"query token on events", "/api/v1/events?access_token=secret-token-123", "", http.StatusOK, ""},
		{"wrong query token on events", "/api/v1/events?access_token=nope", "", http.StatusUnauthorized, "Invalid token"},
		{"query token ignored elsewhere", "/api/v1/exports?access_token=secret-token-123", "", http.StatusUnauthorized, "Missing authorization header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
			if tt.wantBody != "" {
				require.Contains(t, w.Body.String(), tt.wantBody)
			}
			if tt.want == http.StatusUnauthorized {
				require.Equal(t, "application/json", w.Header().Get("Content-Type"))
				require.Equal(t, `Bearer realm="framecast"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAuth_OpenModes(t *testing.T) {
	for _, mode := range []string{"none", ""} {
		t.Run("mode "+mode, func(t *testing.T) {
			cfg := config.ServerConfig{Auth: config.AuthConfig{Mode: mode}}
			handler := Auth(cfg)(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "success", w.Body.String())
		})
	}
}

func TestAuth_UnknownMode(t *testing.T) {
	cfg := config.ServerConfig{Auth: config.AuthConfig{Mode: "unknown-mode"}}
	handler := Auth(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Authentication configuration error")
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer secret-123", "secret-123"},
		{"uppercase BEARER", "BEARER secret-123", "secret-123"},
		{"with spaces", "Bearer  secret-123  ", "secret-123"},
		{"no bearer", "secret-123", ""},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
		{"empty", "", ""},
		{"bearer only", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}

func TestIsHealthEndpoint(t *testing.T) {
	for path, want := range map[string]bool{
		"/healthz":        true,
		"/readyz":         true,
		"/api/v1/exports": false,
		"/":               false,
		"/healthz/check":  false,
	} {
		require.Equal(t, want, isHealthEndpoint(path), path)
	}
}
