package mcp

import (
	"fmt"
	"math/big"
	"time"

	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
)

type CreateProjectParams struct {
	Name         string `json:"name" jsonschema:"unique project name, at most 64 bytes, no commas"`
	AmountNeeded string `json:"amount_needed" jsonschema:"funding goal in wei, decimal"`
	Deadline     string `json:"deadline" jsonschema:"RFC 3339 timestamp after which the project is refunded if the goal is unmet"`
}

type ContributeParams struct {
	Name   string `json:"name" jsonschema:"project name"`
	Amount string `json:"amount" jsonschema:"contribution in wei, decimal"`
}

type ProjectNameParams struct {
	Name string `json:"name" jsonschema:"project name"`
}

type ListProjectsParams struct {
	ActiveOnly bool `json:"active_only,omitempty" jsonschema:"only list projects still accepting contributions"`
}

type RecentActivityParams struct {
	Project string `json:"project,omitempty" jsonschema:"only events of this project"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of events, default 50"`
}

type BalanceParams struct {
	Address string `json:"address,omitempty" jsonschema:"0x-prefixed account address, defaults to the caller"`
}

// ReceiptOutput summarizes an included call.
type ReceiptOutput struct {
	TxID        string      `json:"tx_id"`
	Status      string      `json:"status"`
	GasUsed     uint64      `json:"gas_used"`
	BlockHeight int64       `json:"block_height"`
	Events      []LogOutput `json:"events"`
}

type LogOutput struct {
	TxID        string `json:"tx_id"`
	Name        string `json:"name"`
	Project     string `json:"project,omitempty"`
	Account     string `json:"account"`
	Amount      string `json:"amount,omitempty"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   string `json:"block_time"`
}

type ProjectOutput struct {
	Name             string `json:"name"`
	Owner            string `json:"owner"`
	AmountNeeded     string `json:"amount_needed"`
	Raised           string `json:"raised"`
	Deadline         string `json:"deadline"`
	Status           string `json:"status"`
	EffectiveStatus  string `json:"effective_status"`
	SettlementDue    bool   `json:"settlement_due"`
	PaidOut          bool   `json:"paid_out"`
	ContributorCount int64  `json:"contributor_count"`
	Outstanding      int64  `json:"outstanding_refunds"`
}

type ProjectDetailOutput struct {
	Project ProjectOutput `json:"project"`
	// Contribution is the caller's own position, when there is one.
	Contribution *ContributionOutput `json:"contribution,omitempty"`
}

type ContributionOutput struct {
	Amount      string `json:"amount"`
	Contributed string `json:"contributed"`
	Resolved    bool   `json:"resolved"`
}

type ProjectListOutput struct {
	Projects []ProjectOutput `json:"projects"`
}

type ProjectStatusOutput struct {
	Name            string `json:"name"`
	Status          string `json:"status"`
	StatusCode      uint8  `json:"status_code"`
	EffectiveStatus string `json:"effective_status"`
	SettlementDue   bool   `json:"settlement_due"`
}

type ActivityOutput struct {
	Events []LogOutput `json:"events"`
}

type BalanceOutput struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func parseAmount(field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, &APIError{Code: "INVALID_ARGUMENT", Message: fmt.Sprintf("%s must be a non-negative decimal wei amount", field)}
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func unixString(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func toReceiptOutput(r *chain.Receipt) ReceiptOutput {
	out := ReceiptOutput{
		TxID:        r.TxID,
		Status:      string(r.Status),
		GasUsed:     r.GasUsed,
		BlockHeight: r.BlockHeight,
		Events:      make([]LogOutput, 0, len(r.Logs)),
	}
	for _, l := range r.Logs {
		out.Events = append(out.Events, toLogOutput(l))
	}
	return out
}

func toLogOutput(l chain.Log) LogOutput {
	out := LogOutput{
		TxID:        l.TxID,
		Name:        l.Name,
		Project:     l.Topic,
		Account:     l.Account.Hex(),
		BlockHeight: l.BlockHeight,
		BlockTime:   unixString(l.BlockTime),
	}
	if l.Amount != nil {
		out.Amount = l.Amount.String()
	}
	return out
}

func toProjectOutput(v hub.ProjectView) ProjectOutput {
	return ProjectOutput{
		Name:             v.Name,
		Owner:            v.Owner.Hex(),
		AmountNeeded:     amountString(v.AmountNeeded),
		Raised:           amountString(v.Raised),
		Deadline:         unixString(v.Deadline),
		Status:           v.Status.String(),
		EffectiveStatus:  v.EffectiveStatus.String(),
		SettlementDue:    v.SettlementDue,
		PaidOut:          v.PaidOut,
		ContributorCount: v.ContributorCount,
		Outstanding:      v.Outstanding,
	}
}
