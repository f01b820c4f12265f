package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundinghub/internal/transport"
)

type contextKey int

const accountKey contextKey = iota

// getAccount extracts the acting ledger account from context.
func getAccount(ctx context.Context) common.Address {
	v, _ := ctx.Value(accountKey).(common.Address)
	return v
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver transport.AccountResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}

			account, err := resolver.ResolveAccount(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}
			if account == (common.Address{}) {
				return nil, fmt.Errorf("unauthorized: invalid bearer token")
			}

			ctx = context.WithValue(ctx, accountKey, account)
			return next(ctx, method, req)
		}
	}
}

// noAuthMiddleware acts as a fixed account when auth is disabled.
func noAuthMiddleware(account common.Address) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx = context.WithValue(ctx, accountKey, account)
			return next(ctx, method, req)
		}
	}
}
