// Package testserver wires the full stack over in-memory SQLite for tests.
package testserver

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/contract"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/ledger"
	"github.com/rpggio/fundinghub/internal/mcp"
	"github.com/rpggio/fundinghub/internal/sqlite"
	"github.com/rpggio/fundinghub/internal/transport"
	"github.com/stretchr/testify/require"
)

// Start is the block time of a fresh test server, in unix seconds.
const Start = int64(1_700_000_000)

// Deployer deploys the hub.
var Deployer = common.HexToAddress("0x00000000000000000000000000000000000000f0")

type TestServer struct {
	Server     *httptest.Server
	DB         *sqlite.DB
	Chain      *ledger.Chain
	Clock      *ledger.ManualClock
	HubAddress common.Address
	// Hub talks to the chain in process.
	Hub     *client.Hub
	Token   string
	Account common.Address
}

// Options tune New.
type Options struct {
	Hub hub.Options
}

// New starts a server whose /rpc and /mcp endpoints authenticate token as
// account. account is funded with 100 ether.
func New(t *testing.T, token string, account common.Address) *TestServer {
	return NewWithOptions(t, token, account, Options{})
}

func NewWithOptions(t *testing.T, token string, account common.Address, opts Options) *TestServer {
	t.Helper()
	ctx := context.Background()

	db := sqlite.NewTestDB(t)
	clock := ledger.NewManualClock(time.Unix(Start, 0))

	c, err := ledger.New(ctx, db, ledger.Options{Clock: clock}, nil)
	require.NoError(t, err)
	hubAddr, err := c.Deploy(ctx, Deployer, contract.NewFundingHub(opts.Hub, nil))
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Stop)

	h, err := client.New(client.Config{
		Address:      hubAddr.Hex(),
		NetworkID:    c.NetworkID(),
		Provider:     c,
		WaitTimeout:  10 * time.Second,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	resolver := transport.APIKeyResolver{Store: sqlite.NewAccountRepository(db)}
	mcpServer := mcp.NewServer(mcp.Config{
		Services:      mcp.Services{Hub: h, Ledger: c},
		Resolver:      resolver,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)

	router := transport.NewServer(c, transport.AuthMiddleware(resolver), nil)
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ts := &TestServer{
		Server:     server,
		DB:         db,
		Chain:      c,
		Clock:      clock,
		HubAddress: hubAddr,
		Hub:        h,
		Token:      token,
		Account:    account,
	}
	require.NoError(t, ts.AddAPIKey(token, account))
	require.NoError(t, ts.Fund(account, Ether(100)))

	return ts
}

// AddAPIKey binds another token to an account.
func (ts *TestServer) AddAPIKey(token string, account common.Address) error {
	return sqlite.NewAccountRepository(ts.DB).CreateAPIKey(context.Background(), transport.HashToken(token), account, "test")
}

// Fund credits an account.
func (ts *TestServer) Fund(account common.Address, amount *big.Int) error {
	return ts.Chain.Fund(context.Background(), account, amount)
}

// RPCURL is the JSON-RPC endpoint.
func (ts *TestServer) RPCURL() string {
	return ts.Server.URL + "/rpc"
}

// RemoteHub returns a binding that reaches the chain over JSON-RPC with token.
func (ts *TestServer) RemoteHub(t *testing.T, token string) (*client.Hub, *client.RemoteProvider) {
	t.Helper()
	p := client.NewRemoteProvider(client.RemoteConfig{
		Endpoint:  ts.RPCURL(),
		Token:     token,
		NetworkID: ts.Chain.NetworkID(),
	})
	h, err := client.New(client.Config{
		Address:      ts.HubAddress.Hex(),
		Provider:     p,
		WaitTimeout:  10 * time.Second,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return h, p
}

// Ether converts whole ether to wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}
