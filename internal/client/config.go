package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/chain"
)

const (
	// DefaultWaitTimeout bounds how long a call waits for inclusion.
	DefaultWaitTimeout = 240 * time.Second
	// DefaultPollInterval is the receipt polling period.
	DefaultPollInterval = time.Second
)

var (
	// ErrInvalidAddress indicates a malformed contract address.
	ErrInvalidAddress = errors.New("invalid contract address")
	// ErrNoProvider indicates a Config without a Provider.
	ErrNoProvider = errors.New("no provider configured")
	// ErrNetworkMismatch indicates the provider serves a different network.
	ErrNetworkMismatch = errors.New("provider network id mismatch")
)

// Provider is the ledger call interface a binding talks to. *ledger.Chain
// and *RemoteProvider implement it.
type Provider interface {
	Submit(ctx context.Context, msg chain.CallMsg) (string, error)
	// Receipt returns chain.ErrPending until the call is included.
	Receipt(ctx context.Context, id string) (*chain.Receipt, error)
	Read(ctx context.Context, msg chain.CallMsg) (json.RawMessage, error)
}

type networked interface {
	NetworkID() uint64
}

// TxOpts are per-call transaction parameters. Zero fields fall back to the
// binding's defaults.
type TxOpts struct {
	From  common.Address
	Value *big.Int
	Gas   uint64
}

func (o TxOpts) merge(over TxOpts) TxOpts {
	if over.From != (common.Address{}) {
		o.From = over.From
	}
	if over.Value != nil {
		o.Value = over.Value
	}
	if over.Gas != 0 {
		o.Gas = over.Gas
	}
	return o
}

// Config is the explicit configuration of a binding.
type Config struct {
	// Address is the hex contract address, 0x-prefixed.
	Address   string
	NetworkID uint64
	Provider  Provider
	// Defaults apply to every transaction unless overridden per call. A zero
	// Gas leaves the provider's own per-call cap in force.
	Defaults     TxOpts
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// ParseAddress validates a 0x-prefixed, 40 hex digit address.
func ParseAddress(s string) (common.Address, error) {
	if len(s) != 42 || !common.IsHexAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(s), nil
}
