package chain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultGasLimit is the per-call gas budget applied when a call names none.
const DefaultGasLimit uint64 = 4_712_300

// TxStatus is the lifecycle state of a submitted call.
type TxStatus string

const (
	TxPending  TxStatus = "pending"
	TxSuccess  TxStatus = "success"
	TxReverted TxStatus = "reverted"
)

// CallMsg is a state-changing call submitted to the ledger.
type CallMsg struct {
	From     common.Address  `json:"from"`
	To       common.Address  `json:"to"`
	Function string          `json:"function"`
	Args     json.RawMessage `json:"args,omitempty"`
	Value    *big.Int        `json:"value,omitempty"`
	Gas      uint64          `json:"gas,omitempty"`
}

// Transaction is a persisted call together with its execution outcome.
type Transaction struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	From        common.Address  `json:"from"`
	To          common.Address  `json:"to"`
	Function    string          `json:"function"`
	Args        json.RawMessage `json:"args"`
	Value       *big.Int        `json:"value"`
	Gas         uint64          `json:"gas"`
	Status      TxStatus        `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	GasUsed     uint64          `json:"gas_used"`
	BlockHeight int64           `json:"block_height,omitempty"`
	BlockTime   int64           `json:"block_time,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Log is an event recorded by a contract during a call.
type Log struct {
	TxID        string         `json:"tx_id"`
	Index       int            `json:"index"`
	Contract    common.Address `json:"contract"`
	Name        string         `json:"name"`
	Topic       string         `json:"topic,omitempty"`
	Account     common.Address `json:"account"`
	Amount      *big.Int       `json:"amount,omitempty"`
	BlockHeight int64          `json:"block_height"`
	BlockTime   int64          `json:"block_time"`
}

// Receipt reports the outcome of an included call.
type Receipt struct {
	TxID        string   `json:"tx_id"`
	Status      TxStatus `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	GasUsed     uint64   `json:"gas_used"`
	BlockHeight int64    `json:"block_height"`
	BlockTime   int64    `json:"block_time"`
	Logs        []Log    `json:"logs"`
}

// Succeeded reports whether the call committed.
func (r *Receipt) Succeeded() bool {
	return r.Status == TxSuccess
}

// Account is a ledger balance holder. Contract is set for deployed code.
type Account struct {
	Address      common.Address `json:"address"`
	Balance      *big.Int       `json:"balance"`
	Nonce        uint64         `json:"nonce"`
	RejectsValue bool           `json:"rejects_value"`
	Contract     string         `json:"contract,omitempty"`
}

// Head is the current chain tip.
type Head struct {
	NetworkID uint64 `json:"network_id"`
	Height    int64  `json:"height"`
	BlockTime int64  `json:"block_time"`
}

// ReceiptFromTx builds a receipt from an executed transaction.
func ReceiptFromTx(tx *Transaction, logs []Log) *Receipt {
	if logs == nil {
		logs = []Log{}
	}
	return &Receipt{
		TxID:        tx.ID,
		Status:      tx.Status,
		Reason:      tx.Reason,
		ErrorKind:   tx.ErrorKind,
		GasUsed:     tx.GasUsed,
		BlockHeight: tx.BlockHeight,
		BlockTime:   tx.BlockTime,
		Logs:        logs,
	}
}
