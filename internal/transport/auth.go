package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type accountKey struct{}

// AccountResolver resolves the ledger account bound to a bearer token.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, token string) (common.Address, error)
}

// AccountFromContext returns the authenticated account, if present.
func AccountFromContext(ctx context.Context) (common.Address, bool) {
	account, ok := ctx.Value(accountKey{}).(common.Address)
	return account, ok
}

// WithAccount stores an authenticated account in ctx.
func WithAccount(ctx context.Context, account common.Address) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// HashToken returns the stored form of an API key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver AccountResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			account, err := resolver.ResolveAccount(r.Context(), token)
			if err != nil || account == (common.Address{}) {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}
