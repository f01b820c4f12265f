package transport

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// APIKeyStore looks up the account bound to a hashed API key.
type APIKeyStore interface {
	ResolveAPIKey(ctx context.Context, keyHash string) (common.Address, error)
}

// APIKeyResolver resolves bearer tokens against stored key hashes.
type APIKeyResolver struct {
	Store APIKeyStore
}

func (r APIKeyResolver) ResolveAccount(ctx context.Context, token string) (common.Address, error) {
	account, err := r.Store.ResolveAPIKey(ctx, HashToken(token))
	if err != nil || account == (common.Address{}) {
		return common.Address{}, ErrUnauthorized
	}
	return account, nil
}
