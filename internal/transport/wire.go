package transport

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rpggio/fundinghub/internal/domain/chain"
)

// Method names served on /rpc.
const (
	MethodSubmit  = "ledger_submit"
	MethodReceipt = "ledger_receipt"
	MethodWait    = "ledger_wait"
	MethodRead    = "ledger_read"
	MethodBalance = "ledger_balance"
	MethodNetwork = "ledger_network"
)

// CallParams is the wire form of chain.CallMsg. Quantities are hex encoded
// the way Ethereum JSON-RPC encodes them.
type CallParams struct {
	From     common.Address  `json:"from"`
	To       common.Address  `json:"to"`
	Function string          `json:"function"`
	Args     json.RawMessage `json:"args,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Gas      hexutil.Uint64  `json:"gas,omitempty"`
}

// NewCallParams converts a call message to its wire form.
func NewCallParams(msg chain.CallMsg) CallParams {
	p := CallParams{
		From:     msg.From,
		To:       msg.To,
		Function: msg.Function,
		Args:     msg.Args,
		Gas:      hexutil.Uint64(msg.Gas),
	}
	if msg.Value != nil {
		p.Value = (*hexutil.Big)(new(big.Int).Set(msg.Value))
	}
	return p
}

// Msg converts the wire form back to a call message.
func (p CallParams) Msg() chain.CallMsg {
	msg := chain.CallMsg{
		From:     p.From,
		To:       p.To,
		Function: p.Function,
		Args:     p.Args,
		Gas:      uint64(p.Gas),
	}
	if p.Value != nil {
		msg.Value = p.Value.ToInt()
	}
	return msg
}

// TxParams addresses a submitted transaction.
type TxParams struct {
	TxID      string `json:"tx_id"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// SubmitResult is returned by ledger_submit.
type SubmitResult struct {
	TxID string `json:"tx_id"`
}

// BalanceParams addresses an account.
type BalanceParams struct {
	Address common.Address `json:"address"`
}

// BalanceResult is returned by ledger_balance.
type BalanceResult struct {
	Address common.Address `json:"address"`
	Balance *hexutil.Big   `json:"balance"`
}

// NetworkResult is returned by ledger_network.
type NetworkResult struct {
	NetworkID uint64 `json:"network_id"`
	Height    int64  `json:"height"`
	BlockTime int64  `json:"block_time"`
	GasLimit  uint64 `json:"gas_limit"`
}
