package functional_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundinghub/internal/mcp"
	"github.com/rpggio/fundinghub/internal/testserver"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	backer = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.base.RoundTrip(req)
}

type httpSession struct {
	session *sdkmcp.ClientSession
}

// connect opens a streamable HTTP MCP session against /mcp using token.
func connect(t *testing.T, ts *testserver.TestServer, token string) *httpSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transport := &sdkmcp.StreamableClientTransport{
		Endpoint: ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: bearerTransport{token: token, base: http.DefaultTransport},
		},
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return &httpSession{session: session}
}

func (s *httpSession) call(t *testing.T, name string, args map[string]any) (*sdkmcp.CallToolResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
}

// callTool calls a tool that must succeed and decodes its JSON output.
func (s *httpSession) callTool(t *testing.T, name string, args map[string]any, out any) {
	t.Helper()
	result, err := s.call(t, name, args)
	require.NoError(t, err, "CallTool %s failed", name)
	require.False(t, result.IsError, "Tool %s returned error: %s", name, textOf(result))
	require.NoError(t, json.Unmarshal([]byte(textOf(result)), out))
}

func textOf(result *sdkmcp.CallToolResult) string {
	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			return textContent.Text
		}
	}
	return ""
}

func deadline(offset time.Duration) string {
	return time.Unix(testserver.Start, 0).Add(offset).UTC().Format(time.RFC3339)
}

func TestFunctional_Authentication(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)

	anonymous := connect(t, ts, "")
	_, err := anonymous.call(t, "list_projects", nil)
	require.ErrorContains(t, err, "unauthorized")

	wrong := connect(t, ts, "not-a-key")
	_, err = wrong.call(t, "list_projects", nil)
	require.ErrorContains(t, err, "unauthorized")

	authed := connect(t, ts, ts.Token)
	var list mcp.ProjectListOutput
	authed.callTool(t, "list_projects", nil, &list)
	require.Empty(t, list.Projects)
}

func TestFunctional_ToolsList(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)
	s := connect(t, ts, ts.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tools, err := s.session.ListTools(ctx, nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
		require.NotEmpty(t, tool.Description, "tool %s has no description", tool.Name)
	}
	for _, name := range []string{
		"create_project", "contribute", "settle_project", "claim_refund", "withdraw_payout",
		"list_projects", "get_project", "get_project_status", "get_recent_activity", "get_balance",
	} {
		require.True(t, names[name], "missing tool %s", name)
	}
}

func TestFunctional_FundingLifecycle(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)
	require.NoError(t, ts.AddAPIKey("backer-key", backer))
	require.NoError(t, ts.Fund(backer, testserver.Ether(10)))

	asOwner := connect(t, ts, "owner-key")
	asBacker := connect(t, ts, "backer-key")

	var receipt mcp.ReceiptOutput
	asOwner.callTool(t, "create_project", map[string]any{
		"name":          "greenhouse",
		"amount_needed": testserver.Ether(4).String(),
		"deadline":      deadline(time.Hour),
	}, &receipt)
	require.Equal(t, "success", receipt.Status)

	asBacker.callTool(t, "contribute", map[string]any{
		"name":   "greenhouse",
		"amount": testserver.Ether(5).String(),
	}, &receipt)
	require.Equal(t, "success", receipt.Status)

	var status mcp.ProjectStatusOutput
	asBacker.callTool(t, "get_project_status", map[string]any{"name": "greenhouse"}, &status)
	require.Equal(t, "funded", status.Status)

	var balance mcp.BalanceOutput
	asBacker.callTool(t, "get_balance", map[string]any{}, &balance)
	require.Equal(t, backer.Hex(), balance.Address)
	require.Equal(t, testserver.Ether(5).String(), balance.Balance)

	// The whole raise, overshoot included, went to the owner.
	asOwner.callTool(t, "get_balance", map[string]any{}, &balance)
	require.Equal(t, testserver.Ether(105).String(), balance.Balance)

	var detail mcp.ProjectDetailOutput
	asBacker.callTool(t, "get_project", map[string]any{"name": "greenhouse"}, &detail)
	require.Equal(t, owner.Hex(), detail.Project.Owner)
	require.NotNil(t, detail.Contribution)
	require.Equal(t, testserver.Ether(5).String(), detail.Contribution.Contributed)

	// Only the owner may withdraw.
	result, err := asBacker.call(t, "withdraw_payout", map[string]any{"name": "greenhouse"})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, textOf(result), "NOT_OWNER")

	var activity mcp.ActivityOutput
	asOwner.callTool(t, "get_recent_activity", map[string]any{"project": "greenhouse"}, &activity)
	require.NotEmpty(t, activity.Events)
}
