package web

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rpggio/fundinghub/internal/transport"
)

// requireAccount authenticates /api requests with the same API keys as the
// JSON-RPC and MCP endpoints. Browsers cannot set headers on a WebSocket
// handshake, so the token may also arrive as the access_token query value.
func requireAccount(resolver transport.AccountResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := transport.BearerToken(c.Request)
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		account, err := resolver.ResolveAccount(c.Request.Context(), token)
		if err != nil || account == (common.Address{}) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}

		c.Request = c.Request.WithContext(transport.WithAccount(c.Request.Context(), account))
		c.Next()
	}
}
