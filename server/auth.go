package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/delta-incubator/riverbank/catalog"
)

type contextKey int

const tokenKey contextKey = iota

// TokenFromContext returns the bearer token injected by RequireBearer.
// Handlers behind the middleware can assume it is present.
func TokenFromContext(ctx context.Context) (catalog.Token, bool) {
	tok, ok := ctx.Value(tokenKey).(catalog.Token)
	return tok, ok
}

// CredentialStore verifies administrative credentials. Deployments plug in
// a real backend; StaticCredentials is the single-pair reference.
type CredentialStore interface {
	Verify(ctx context.Context, username, password string) bool
}

// StaticCredentials is a CredentialStore holding exactly one credential
// pair. A placeholder for real deployments, not a security feature.
type StaticCredentials struct {
	Username string
	Password string
}

func (c StaticCredentials) Verify(_ context.Context, username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return userOK && passOK
}

// RequireBearer authenticates data-plane requests. The presented bearer
// string must match an unexpired token's secret; absent, malformed, unknown
// and expired credentials are all rejected with 401 before any handler runs.
func RequireBearer(store catalog.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearerSecret(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "Bearer")
				return
			}
			tok, err := store.TokenBySecret(r.Context(), secret)
			if errors.Is(err, catalog.ErrNotFound) {
				logger.Debug("bearer token rejected", "path", r.URL.Path)
				unauthorized(w, "Bearer")
				return
			}
			if err != nil {
				logger.Error("token lookup failed", "path", r.URL.Path, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), tokenKey, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireBasic authenticates administrative requests against the supplied
// credential store.
func RequireBasic(creds CredentialStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || !creds.Verify(r.Context(), username, password) {
				logger.Debug("admin credentials rejected", "path", r.URL.Path, "user", username)
				unauthorized(w, `Basic realm="riverbank admin"`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerSecret(header string) (string, bool) {
	scheme, secret, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	secret = strings.TrimSpace(secret)
	return secret, secret != ""
}

func unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "not authenticated", http.StatusUnauthorized)
}
