package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `fundhub runs a Funding Hub: crowdfunding projects that either pay their owner or refund every contributor.

Core concepts:
- Project: name, owner, goal (amount_needed, wei), deadline, raised, status.
- Status: open (0) until the goal is reached (funded, 1) or the deadline passes unmet (refunded, 2).
- Calls act as your account and are included one at a time; every call returns a receipt with events.
- Amounts are decimal strings in wei. 1 ether = 1000000000000000000 wei.

Workflow:
1) Browse with list_projects / get_project / get_project_status.
2) Create with create_project, fund with contribute.
3) Once due, settle_project pays the owner or refunds contributors in batches; call it again while outstanding_refunds > 0.
4) If an automatic transfer failed, claim_refund (contributors) or withdraw_payout (owner) pulls it.
5) get_recent_activity shows what happened; get_balance shows wei held by an account.

Docs:
- fundhub://docs/index
- fundhub://docs/lifecycle
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "fundhub://docs/index",
		Name:        "docs_index",
		Title:       "fundhub docs index",
		Description: "Entry point: tools, units and what to read next.",
		Content: `# fundhub: Agent Docs Index

## Tools

- ` + "`create_project(name, amount_needed, deadline)`" + ` registers a project you own.
- ` + "`contribute(name, amount)`" + ` sends wei from your account.
- ` + "`settle_project(name)`" + ` resolves a due project or continues its refunds.
- ` + "`claim_refund(name)`" + ` / ` + "`withdraw_payout(name)`" + ` pull funds a push could not deliver.
- ` + "`list_projects`" + `, ` + "`get_project`" + `, ` + "`get_project_status`" + `, ` + "`get_recent_activity`" + `, ` + "`get_balance`" + ` are reads.

## Units

All amounts are decimal wei strings. Deadlines are RFC 3339 timestamps compared against block time, not wall time.

## Errors

Tool errors carry a code such as ` + "`PROJECT_NOT_FOUND`" + `, ` + "`PROJECT_CLOSED`" + `, ` + "`NOT_DUE`" + ` or ` + "`TIMEOUT`" + `.
A ` + "`TIMEOUT`" + ` means inclusion was not observed in time; the call may still land. Check state before retrying.

See ` + "`fundhub://docs/lifecycle`" + ` for the settlement rules.
`,
	},
	{
		URI:         "fundhub://docs/lifecycle",
		Name:        "docs_lifecycle",
		Title:       "Project lifecycle",
		Description: "How projects move between open, funded and refunded.",
		Content: `# Project lifecycle

## Open

Contributions are accepted. Each contribution is recorded per contributor; repeat contributions add up.

## Funded

The first contribution that brings raised to the goal funds the project. The whole balance is sent to the owner in the same call.
Contributions past the goal are kept and paid out too.
If the owner account refuses the transfer the project stays funded and unpaid; the owner calls ` + "`withdraw_payout`" + `.

## Refunded

After the deadline an unfunded project is refunded. This happens on the next call that touches it:
a late contribution (returned to its sender), ` + "`settle_project`" + `, or ` + "`claim_refund`" + `.

Refunds are pushed in bounded batches. ` + "`outstanding_refunds`" + ` counts contributors not yet repaid; keep calling ` + "`settle_project`" + ` until it is 0.
A contributor whose account refuses the transfer keeps their balance and can ` + "`claim_refund`" + ` later. Other contributors are unaffected.

## Settled

Funded and paid, or refunded with nothing outstanding. Further ` + "`settle_project`" + ` calls return ` + "`SETTLED`" + `.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
