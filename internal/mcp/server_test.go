package mcp_test

import (
	"context"
	"encoding/json"
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

type session struct {
	ts      *testserver.TestServer
	session *sdkmcp.ClientSession
}

// connect opens an in-memory MCP session acting as account.
func connect(t *testing.T, ts *testserver.TestServer, account common.Address) *session {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(mcp.Config{
		Services:       mcp.Services{Hub: ts.Hub, Ledger: ts.Chain},
		DefaultAccount: account,
		TransportMode:  "stdio",
	})
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	c := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := c.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cs.Close()
		_ = serverSession.Wait()
	})
	return &session{ts: ts, session: cs}
}

func (s *session) call(t *testing.T, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := s.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func (s *session) callOK(t *testing.T, name string, args map[string]any, out any) {
	t.Helper()
	res := s.call(t, name, args)
	require.False(t, res.IsError, "tool %s failed: %s", name, text(res))
	require.NoError(t, json.Unmarshal([]byte(text(res)), out))
}

func text(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func deadline(offset time.Duration) string {
	return time.Unix(testserver.Start, 0).Add(offset).UTC().Format(time.RFC3339)
}

func TestTools_FundingFlow(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)
	require.NoError(t, ts.Fund(backer, testserver.Ether(10)))
	asOwner := connect(t, ts, owner)
	asBacker := connect(t, ts, backer)

	var receipt mcp.ReceiptOutput
	asOwner.callOK(t, "create_project", map[string]any{
		"name":          "solar",
		"amount_needed": testserver.Ether(2).String(),
		"deadline":      deadline(time.Hour),
	}, &receipt)
	require.Equal(t, "success", receipt.Status)
	require.Equal(t, "ProjectCreated", receipt.Events[0].Name)

	var list mcp.ProjectListOutput
	asBacker.callOK(t, "list_projects", map[string]any{"active_only": true}, &list)
	require.Len(t, list.Projects, 1)
	require.Equal(t, owner.Hex(), list.Projects[0].Owner)

	asBacker.callOK(t, "contribute", map[string]any{"name": "solar", "amount": testserver.Ether(2).String()}, &receipt)
	require.Equal(t, "success", receipt.Status)
	names := make([]string, 0, len(receipt.Events))
	for _, e := range receipt.Events {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"Contributed", "ProjectFunded", "PayoutSent"}, names)

	var status mcp.ProjectStatusOutput
	asBacker.callOK(t, "get_project_status", map[string]any{"name": "solar"}, &status)
	require.Equal(t, "funded", status.Status)
	require.Equal(t, uint8(1), status.StatusCode)

	var detail mcp.ProjectDetailOutput
	asBacker.callOK(t, "get_project", map[string]any{"name": "solar"}, &detail)
	require.True(t, detail.Project.PaidOut)
	require.NotNil(t, detail.Contribution)
	require.Equal(t, testserver.Ether(2).String(), detail.Contribution.Contributed)

	var balance mcp.BalanceOutput
	asOwner.callOK(t, "get_balance", map[string]any{}, &balance)
	require.Equal(t, testserver.Ether(102).String(), balance.Balance)

	var activity mcp.ActivityOutput
	asOwner.callOK(t, "get_recent_activity", map[string]any{"project": "solar"}, &activity)
	require.Len(t, activity.Events, 4)
	require.Equal(t, "PayoutSent", activity.Events[0].Name)
}

func TestTools_RefundFlow(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)
	require.NoError(t, ts.Fund(backer, testserver.Ether(10)))
	asOwner := connect(t, ts, owner)
	asBacker := connect(t, ts, backer)

	var receipt mcp.ReceiptOutput
	asOwner.callOK(t, "create_project", map[string]any{
		"name":          "moon",
		"amount_needed": testserver.Ether(50).String(),
		"deadline":      deadline(time.Minute),
	}, &receipt)
	asBacker.callOK(t, "contribute", map[string]any{"name": "moon", "amount": testserver.Ether(1).String()}, &receipt)

	res := asOwner.call(t, "settle_project", map[string]any{"name": "moon"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "NOT_DUE")

	ts.Clock.Advance(2 * time.Minute)
	asOwner.callOK(t, "settle_project", map[string]any{"name": "moon"}, &receipt)

	var status mcp.ProjectStatusOutput
	asOwner.callOK(t, "get_project_status", map[string]any{"name": "moon"}, &status)
	require.Equal(t, "refunded", status.Status)

	var balance mcp.BalanceOutput
	asOwner.callOK(t, "get_balance", map[string]any{"address": backer.Hex()}, &balance)
	require.Equal(t, testserver.Ether(10).String(), balance.Balance)

	res = asBacker.call(t, "claim_refund", map[string]any{"name": "moon"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "NOTHING_TO_CLAIM")
}

func TestTools_Errors(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)
	s := connect(t, ts, owner)

	res := s.call(t, "get_project", map[string]any{"name": "ghost"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "PROJECT_NOT_FOUND")

	res = s.call(t, "create_project", map[string]any{"name": "x", "amount_needed": "lots", "deadline": deadline(time.Hour)})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "INVALID_ARGUMENT")

	res = s.call(t, "create_project", map[string]any{"name": "x", "amount_needed": "1", "deadline": "tomorrow"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), "RFC 3339")

	res = s.call(t, "get_balance", map[string]any{"address": "0x12"})
	require.True(t, res.IsError)
}

func TestDocResources(t *testing.T) {
	ts := testserver.New(t, "owner-key", owner)
	s := connect(t, ts, owner)
	ctx := context.Background()

	list, err := s.session.ListResources(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list.Resources, 2)

	res, err := s.session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "fundhub://docs/lifecycle"})
	require.NoError(t, err)
	require.Contains(t, res.Contents[0].Text, "Refunded")
}
