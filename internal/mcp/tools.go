package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

type tools struct {
	hub    HubClient
	ledger LedgerReader
}

func registerTools(server *sdkmcp.Server, svc Services) {
	t := &tools{hub: svc.Hub, ledger: svc.Ledger}

	// Calls
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_project",
		Description: "Create a crowdfunding project owned by the caller",
	}, t.createProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "contribute",
		Description: "Contribute wei from the caller's account to an open project. A contribution after the deadline to an unfunded project is returned and the project is refunded.",
	}, t.contribute)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "settle_project",
		Description: "Resolve a project whose goal was reached or whose deadline passed, or continue its pending refunds",
	}, t.settleProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "claim_refund",
		Description: "Withdraw the caller's own refund from a refunded project",
	}, t.claimRefund)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "withdraw_payout",
		Description: "Withdraw a funded project's payout as its owner after the automatic payout failed",
	}, t.withdrawPayout)

	// Reads
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List projects in creation order",
	}, t.listProjects)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project",
		Description: "Get a project together with the caller's contribution",
	}, t.getProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project_status",
		Description: "Get the stored and effective status of a project (0=open, 1=funded, 2=refunded)",
	}, t.getProjectStatus)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_recent_activity",
		Description: "Get recent hub events, newest first",
	}, t.getRecentActivity)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_balance",
		Description: "Get the ledger balance of an account in wei",
	}, t.getBalance)
}

func (t *tools) createProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateProjectParams) (*sdkmcp.CallToolResult, ReceiptOutput, error) {
	goal, err := parseAmount("amount_needed", in.AmountNeeded)
	if err != nil {
		return nil, ReceiptOutput{}, err
	}
	deadline, err := time.Parse(time.RFC3339, in.Deadline)
	if err != nil {
		return nil, ReceiptOutput{}, &APIError{Code: "INVALID_ARGUMENT", Message: "deadline must be an RFC 3339 timestamp"}
	}
	return receiptResult(t.hub.CreateProject(ctx, in.Name, goal, deadline, caller(ctx)))
}

func (t *tools) contribute(ctx context.Context, _ *sdkmcp.CallToolRequest, in ContributeParams) (*sdkmcp.CallToolResult, ReceiptOutput, error) {
	amount, err := parseAmount("amount", in.Amount)
	if err != nil {
		return nil, ReceiptOutput{}, err
	}
	opts := caller(ctx)
	opts.Value = amount
	return receiptResult(t.hub.Contribute(ctx, in.Name, opts))
}

func (t *tools) settleProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectNameParams) (*sdkmcp.CallToolResult, ReceiptOutput, error) {
	return receiptResult(t.hub.Settle(ctx, in.Name, caller(ctx)))
}

func (t *tools) claimRefund(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectNameParams) (*sdkmcp.CallToolResult, ReceiptOutput, error) {
	return receiptResult(t.hub.ClaimRefund(ctx, in.Name, caller(ctx)))
}

func (t *tools) withdrawPayout(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectNameParams) (*sdkmcp.CallToolResult, ReceiptOutput, error) {
	return receiptResult(t.hub.WithdrawPayout(ctx, in.Name, caller(ctx)))
}

func (t *tools) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListProjectsParams) (*sdkmcp.CallToolResult, ProjectListOutput, error) {
	views, err := t.hub.Projects(ctx)
	if err != nil {
		return nil, ProjectListOutput{}, toolError(err)
	}
	out := ProjectListOutput{Projects: make([]ProjectOutput, 0, len(views))}
	for _, v := range views {
		if in.ActiveOnly && v.EffectiveStatus != hub.StatusOpen {
			continue
		}
		out.Projects = append(out.Projects, toProjectOutput(v))
	}
	return nil, out, nil
}

func (t *tools) getProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectNameParams) (*sdkmcp.CallToolResult, ProjectDetailOutput, error) {
	view, err := t.hub.Project(ctx, in.Name)
	if err != nil {
		return nil, ProjectDetailOutput{}, toolError(err)
	}
	out := ProjectDetailOutput{Project: toProjectOutput(*view)}

	if account := getAccount(ctx); account != (common.Address{}) {
		pos, err := t.hub.ContributionOf(ctx, in.Name, account)
		if err != nil {
			return nil, ProjectDetailOutput{}, toolError(err)
		}
		if pos.Contributed != nil && pos.Contributed.Sign() > 0 {
			out.Contribution = &ContributionOutput{
				Amount:      amountString(pos.Amount),
				Contributed: amountString(pos.Contributed),
				Resolved:    pos.Resolved,
			}
		}
	}
	return nil, out, nil
}

func (t *tools) getProjectStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProjectNameParams) (*sdkmcp.CallToolResult, ProjectStatusOutput, error) {
	view, err := t.hub.Project(ctx, in.Name)
	if err != nil {
		return nil, ProjectStatusOutput{}, toolError(err)
	}
	return nil, ProjectStatusOutput{
		Name:            view.Name,
		Status:          view.Status.String(),
		StatusCode:      uint8(view.Status),
		EffectiveStatus: view.EffectiveStatus.String(),
		SettlementDue:   view.SettlementDue,
	}, nil
}

func (t *tools) getRecentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in RecentActivityParams) (*sdkmcp.CallToolResult, ActivityOutput, error) {
	logs, err := t.ledger.RecentEvents(ctx, sqlite.ListEventsOptions{Topic: in.Project, Limit: in.Limit})
	if err != nil {
		return nil, ActivityOutput{}, toolError(err)
	}
	out := ActivityOutput{Events: make([]LogOutput, 0, len(logs))}
	for _, l := range logs {
		out.Events = append(out.Events, toLogOutput(l))
	}
	return nil, out, nil
}

func (t *tools) getBalance(ctx context.Context, _ *sdkmcp.CallToolRequest, in BalanceParams) (*sdkmcp.CallToolResult, BalanceOutput, error) {
	addr := getAccount(ctx)
	if in.Address != "" {
		parsed, err := client.ParseAddress(in.Address)
		if err != nil {
			return nil, BalanceOutput{}, &APIError{Code: "INVALID_ARGUMENT", Message: fmt.Sprintf("invalid address %q", in.Address)}
		}
		addr = parsed
	}
	balance, err := t.ledger.Balance(ctx, addr)
	if err != nil {
		return nil, BalanceOutput{}, toolError(err)
	}
	return nil, BalanceOutput{Address: addr.Hex(), Balance: amountString(balance)}, nil
}

func caller(ctx context.Context) client.TxOpts {
	return client.TxOpts{From: getAccount(ctx)}
}

// receiptResult reports reverted calls as tool errors.
func receiptResult(receipt *chain.Receipt, err error) (*sdkmcp.CallToolResult, ReceiptOutput, error) {
	if err != nil {
		return nil, ReceiptOutput{}, toolError(err)
	}
	return nil, toReceiptOutput(receipt), nil
}
