// Package client provides a typed binding to a deployed FundingHub.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/contract"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/ledger"
)

// Hub is a binding to one FundingHub instance.
type Hub struct {
	cfg     Config
	address common.Address
}

// New validates cfg and returns a binding.
func New(cfg Config) (*Hub, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	addr, err := ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", cfg.Address, err)
	}
	if n, ok := cfg.Provider.(networked); ok && cfg.NetworkID != 0 && n.NetworkID() != cfg.NetworkID {
		return nil, fmt.Errorf("want %d, provider serves %d: %w", cfg.NetworkID, n.NetworkID(), ErrNetworkMismatch)
	}
	return &Hub{cfg: cfg.withDefaults(), address: addr}, nil
}

// Address returns the bound contract address.
func (h *Hub) Address() common.Address {
	return h.address
}

// CreateProject registers a project owned by the sender.
func (h *Hub) CreateProject(ctx context.Context, name string, amountNeeded *big.Int, deadline time.Time, opts ...TxOpts) (*chain.Receipt, error) {
	return h.Transact(ctx, contract.FnCreateProject, h.opts(opts), name, amountNeeded, deadline.Unix())
}

// Contribute sends value to a project. The value comes from opts.
func (h *Hub) Contribute(ctx context.Context, name string, opts ...TxOpts) (*chain.Receipt, error) {
	return h.Transact(ctx, contract.FnContribute, h.opts(opts), name)
}

// Settle resolves a project whose goal was reached or whose deadline passed,
// continuing any pending refund batch.
func (h *Hub) Settle(ctx context.Context, name string, opts ...TxOpts) (*chain.Receipt, error) {
	return h.Transact(ctx, contract.FnSettle, h.opts(opts), name)
}

// ClaimRefund pulls the sender's own refund.
func (h *Hub) ClaimRefund(ctx context.Context, name string, opts ...TxOpts) (*chain.Receipt, error) {
	return h.Transact(ctx, contract.FnClaimRefund, h.opts(opts), name)
}

// WithdrawPayout pulls an owner payout that could not be pushed.
func (h *Hub) WithdrawPayout(ctx context.Context, name string, opts ...TxOpts) (*chain.Receipt, error) {
	return h.Transact(ctx, contract.FnWithdrawPayout, h.opts(opts), name)
}

// ActiveProjects returns the comma separated names of open projects.
func (h *Hub) ActiveProjects(ctx context.Context) (string, error) {
	var out string
	err := h.Call(ctx, contract.FnGetActiveProjects, &out)
	return out, err
}

// ProjectList returns the comma separated names of all projects.
func (h *Hub) ProjectList(ctx context.Context) (string, error) {
	var out string
	err := h.Call(ctx, contract.FnProjectList, &out)
	return out, err
}

// ProjectName returns the name of the project at index.
func (h *Hub) ProjectName(ctx context.Context, index int64) (string, error) {
	var out string
	err := h.Call(ctx, contract.FnProjectNames, &out, index)
	return out, err
}

// Status returns the stored status of a project.
func (h *Hub) Status(ctx context.Context, name string) (hub.Status, error) {
	var out hub.Status
	err := h.Call(ctx, contract.FnStatus, &out, name)
	return out, err
}

// Project returns the read model of a project.
func (h *Hub) Project(ctx context.Context, name string) (*hub.ProjectView, error) {
	var out hub.ProjectView
	if err := h.Call(ctx, contract.FnProject, &out, name); err != nil {
		return nil, err
	}
	return &out, nil
}

// Projects returns the read models of all projects in creation order.
func (h *Hub) Projects(ctx context.Context) ([]hub.ProjectView, error) {
	var out []hub.ProjectView
	err := h.Call(ctx, contract.FnProjects, &out)
	return out, err
}

// ContributionOf returns an account's position in a project.
func (h *Hub) ContributionOf(ctx context.Context, name string, account common.Address) (*hub.Contribution, error) {
	var out hub.Contribution
	if err := h.Call(ctx, contract.FnContributionOf, &out, name, account); err != nil {
		return nil, err
	}
	return &out, nil
}

// Contributors returns every position in a project in contribution order.
func (h *Hub) Contributors(ctx context.Context, name string) ([]hub.Contribution, error) {
	var out []hub.Contribution
	err := h.Call(ctx, contract.FnContributors, &out, name)
	return out, err
}

// SplitNames splits a name list returned by ActiveProjects or ProjectList.
func SplitNames(list string) []string {
	if list == "" {
		return nil
	}
	return strings.Split(list, hub.NameSeparator)
}

// Transact submits a call and waits for its receipt. A reverted call returns
// the receipt together with a *RevertError.
func (h *Hub) Transact(ctx context.Context, function string, opts TxOpts, args ...any) (*chain.Receipt, error) {
	raw, err := ledger.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", function, err)
	}
	id, err := h.cfg.Provider.Submit(ctx, chain.CallMsg{
		From:     opts.From,
		To:       h.address,
		Function: function,
		Args:     raw,
		Value:    opts.Value,
		Gas:      opts.Gas,
	})
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", function, err)
	}
	receipt, err := h.WaitForInclusion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !receipt.Succeeded() {
		return receipt, newRevertError(receipt)
	}
	return receipt, nil
}

// WaitForInclusion polls for a receipt until it appears or the configured
// wait timeout elapses.
func (h *Hub) WaitForInclusion(ctx context.Context, id string) (*chain.Receipt, error) {
	timer := time.NewTimer(h.cfg.WaitTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.cfg.Provider.Receipt(ctx, id)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, chain.ErrPending) {
			return nil, fmt.Errorf("receipt %s: %w", id, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, &TimeoutError{TxID: id, Timeout: h.cfg.WaitTimeout}
		case <-ticker.C:
		}
	}
}

// Call runs a read-only function and decodes its result into out.
func (h *Hub) Call(ctx context.Context, function string, out any, args ...any) error {
	raw, err := ledger.EncodeArgs(args...)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", function, err)
	}
	result, err := h.cfg.Provider.Read(ctx, chain.CallMsg{
		From:     h.cfg.Defaults.From,
		To:       h.address,
		Function: function,
		Args:     raw,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", function, err)
	}
	return nil
}

func (h *Hub) opts(over []TxOpts) TxOpts {
	o := h.cfg.Defaults
	for _, v := range over {
		o = o.merge(v)
	}
	return o
}
