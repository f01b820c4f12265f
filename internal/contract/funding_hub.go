package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/ledger"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

// Name is the registry name of the hub contract.
const Name = "FundingHub"

// Function names. createProject, contribute, getActiveProjects and
// projectNames match the Solidity FundingHub ABI.
const (
	FnCreateProject     = "createProject"
	FnContribute        = "contribute"
	FnSettle            = "settle"
	FnClaimRefund       = "claimRefund"
	FnWithdrawPayout    = "withdrawPayout"
	FnGetActiveProjects = "getActiveProjects"
	FnProjectList       = "projectList"
	FnProjectNames      = "projectNames"
	FnStatus            = "status"
	FnProject           = "project"
	FnProjects          = "projects"
	FnContributionOf    = "contributionOf"
	FnContributors      = "contributors"

	fnProjectListLegacy = "projectlist"
)

// FundingHub binds ledger calls to the hub service. A fresh service is built
// per call over repositories bound to that call's storage.
type FundingHub struct {
	opts   hub.Options
	logger *slog.Logger
}

var _ ledger.Contract = (*FundingHub)(nil)

// NewFundingHub creates the contract.
func NewFundingHub(opts hub.Options, logger *slog.Logger) *FundingHub {
	return &FundingHub{opts: opts, logger: logger}
}

func (h *FundingHub) Name() string { return Name }

func (h *FundingHub) service(call *ledger.Call) *hub.Service {
	return hub.NewService(
		sqlite.NewProjectRepository(call.Store),
		sqlite.NewContributionRepository(call.Store),
		bank{call: call},
		sink{call: call},
		h.opts,
		h.logger,
	)
}

func env(call *ledger.Call) hub.Env {
	return hub.Env{
		Sender: call.From,
		Value:  call.Value,
		Now:    call.Now,
		Self:   call.Self,
	}
}

// Execute dispatches a state-changing call.
func (h *FundingHub) Execute(ctx context.Context, call *ledger.Call) error {
	svc := h.service(call)
	e := env(call)

	switch call.Function {
	case FnCreateProject:
		var (
			name     string
			goal     big.Int
			deadline int64
		)
		if err := call.DecodeArgs(&name, &goal, &deadline); err != nil {
			return err
		}
		_, err := svc.CreateProject(ctx, e, hub.CreateRequest{Name: name, AmountNeeded: &goal, Deadline: deadline})
		return err
	case FnContribute:
		name, err := nameArg(call)
		if err != nil {
			return err
		}
		return svc.Contribute(ctx, e, name)
	case FnSettle:
		name, err := nameArg(call)
		if err != nil {
			return err
		}
		return svc.Settle(ctx, e, name)
	case FnClaimRefund:
		name, err := nameArg(call)
		if err != nil {
			return err
		}
		return svc.ClaimRefund(ctx, e, name)
	case FnWithdrawPayout:
		name, err := nameArg(call)
		if err != nil {
			return err
		}
		return svc.WithdrawPayout(ctx, e, name)
	case "":
		// No fallback: bare value sent to the hub would be unrecoverable.
		return hub.ErrValueNotAccepted
	default:
		return fmt.Errorf("%s: %w", call.Function, chain.ErrUnknownFunction)
	}
}

// Query dispatches a read-only call.
func (h *FundingHub) Query(ctx context.Context, call *ledger.Call) (any, error) {
	svc := h.service(call)

	switch call.Function {
	case FnGetActiveProjects:
		if err := call.DecodeArgs(); err != nil {
			return nil, err
		}
		return svc.ActiveProjects(ctx, call.Now)
	case FnProjectList, fnProjectListLegacy:
		if err := call.DecodeArgs(); err != nil {
			return nil, err
		}
		return svc.ProjectList(ctx)
	case FnProjectNames:
		var index int64
		if err := call.DecodeArgs(&index); err != nil {
			return nil, err
		}
		return svc.ProjectNameAt(ctx, index)
	case FnStatus:
		name, err := nameArg(call)
		if err != nil {
			return nil, err
		}
		return svc.Status(ctx, name)
	case FnProject:
		name, err := nameArg(call)
		if err != nil {
			return nil, err
		}
		return svc.View(ctx, name, call.Now)
	case FnProjects:
		if err := call.DecodeArgs(); err != nil {
			return nil, err
		}
		return svc.Views(ctx, call.Now)
	case FnContributionOf:
		var (
			name    string
			account common.Address
		)
		if err := call.DecodeArgs(&name, &account); err != nil {
			return nil, err
		}
		return svc.ContributionOf(ctx, name, account)
	case FnContributors:
		name, err := nameArg(call)
		if err != nil {
			return nil, err
		}
		return svc.Contributors(ctx, name)
	default:
		return nil, fmt.Errorf("%s: %w", call.Function, chain.ErrUnknownFunction)
	}
}

func nameArg(call *ledger.Call) (string, error) {
	var name string
	if err := call.DecodeArgs(&name); err != nil {
		return "", err
	}
	return name, nil
}

// bank pays out of the hub's ledger balance.
type bank struct {
	call *ledger.Call
}

func (b bank) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	err := b.call.Transfer(ctx, to, amount)
	if errors.Is(err, chain.ErrValueRejected) {
		return hub.ErrTransferRejected
	}
	return err
}

// sink records hub events as receipt logs.
type sink struct {
	call *ledger.Call
}

func (s sink) Emit(_ context.Context, ev hub.Event) error {
	return s.call.Emit(string(ev.Name), ev.Project, ev.Account, ev.Amount)
}
