package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/healthtrack/healthtrack/internal/ctxkeys"
	"github.com/healthtrack/healthtrack/internal/metrics"
	"github.com/healthtrack/healthtrack/internal/service"
)

// Authenticate resolves a bearer token into the caller's identity. Requests
// without a token continue anonymously; RequireAuth rejects them later.
// A token that fails verification is rejected here.
func Authenticate(verifier service.IdentityVerifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Debug("bearer token rejected", "error", err, "path", r.URL.Path)
				m.AuthRejected("invalid_token")
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := ctxkeys.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth ensures the request carries an identity
func RequireAuth(m *metrics.Metrics) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if ctxkeys.Identity(r.Context()) == nil {
				m.AuthRejected("missing_token")
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next(w, r)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
