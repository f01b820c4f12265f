package mcp

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/sqlite"
	"github.com/rpggio/fundinghub/internal/transport"
)

// HubClient defines the hub operations needed by MCP. *client.Hub
// implements it.
type HubClient interface {
	CreateProject(ctx context.Context, name string, amountNeeded *big.Int, deadline time.Time, opts ...client.TxOpts) (*chain.Receipt, error)
	Contribute(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error)
	Settle(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error)
	ClaimRefund(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error)
	WithdrawPayout(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error)
	Project(ctx context.Context, name string) (*hub.ProjectView, error)
	Projects(ctx context.Context) ([]hub.ProjectView, error)
	ContributionOf(ctx context.Context, name string, account common.Address) (*hub.Contribution, error)
}

// LedgerReader defines the ledger reads needed by MCP. *ledger.Chain
// implements it.
type LedgerReader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	RecentEvents(ctx context.Context, opts sqlite.ListEventsOptions) ([]chain.Log, error)
}

// Services contains everything the tools call into.
type Services struct {
	Hub    HubClient
	Ledger LedgerReader
}

// Config contains server configuration.
type Config struct {
	Services Services
	Resolver transport.AccountResolver
	// DefaultAccount acts for callers when auth is off.
	DefaultAccount common.Address
	AuthEnabled    bool
	TransportMode  string // "stdio" or "http"
	Logger         *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "fundhub",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is local only and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(cfg.DefaultAccount))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services)

	return server
}
