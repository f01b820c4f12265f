package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type testResolver struct {
	tokenToAccount map[string]common.Address
	err            error
}

func (r *testResolver) ResolveAccount(_ context.Context, token string) (common.Address, error) {
	if r.err != nil {
		return common.Address{}, r.err
	}
	account, ok := r.tokenToAccount[token]
	if !ok {
		return common.Address{}, ErrUnauthorized
	}
	return account, nil
}

func TestAuthMiddleware(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	resolver := &testResolver{tokenToAccount: map[string]common.Address{"token": want}}

	handler := AuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, want, account)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Invalid(t *testing.T) {
	resolver := &testResolver{err: errors.New("invalid")}

	handler := AuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHashToken(t *testing.T) {
	require.Equal(t, "3c469e9d6c5875d37a43f353d4f88e61fcf812c66eee3457465a40b0da4153e0", HashToken("token"))
}
