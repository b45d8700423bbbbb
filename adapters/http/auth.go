package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/smartyellow/services/adapters/metrics"
	"github.com/smartyellow/services/core/plugin"
	"github.com/smartyellow/services/ports"
)

// Authenticator resolves a bearer token to the caller.
type Authenticator interface {
	Authenticate(token string) (ports.User, error)
}

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u ports.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated caller.
func UserFrom(ctx context.Context) (ports.User, bool) {
	u, ok := ctx.Value(userKey{}).(ports.User)
	return u, ok
}

// RequireUser rejects requests without a valid bearer token.
func RequireUser(a Authenticator, m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				authFailure(m, "missing_token")
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			u, err := a.Authenticate(token)
			if err != nil {
				authFailure(m, "invalid_token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireAny rejects callers that can use none of the features.
func RequireAny(manifest *plugin.Manifest, m *metrics.Collector, features ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := UserFrom(r.Context())
			if !manifest.CanAny(u, features...) {
				authFailure(m, "forbidden")
				writeError(w, http.StatusForbidden, "not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func authFailure(m *metrics.Collector, reason string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(reason).Inc()
	}
}
