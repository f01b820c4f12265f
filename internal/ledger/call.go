package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

// ErrStaticCall is returned when a read attempts to move value.
var ErrStaticCall = errors.New("state change in read-only call")

// Contract is code deployed at a ledger address.
type Contract interface {
	Name() string
	// Execute runs a state-changing function. Any error reverts the call.
	Execute(ctx context.Context, call *Call) error
	// Query runs a read-only function and returns a JSON-encodable result.
	Query(ctx context.Context, call *Call) (any, error)
}

// Call is the execution context handed to a contract.
type Call struct {
	From     common.Address
	Self     common.Address
	Value    *big.Int
	Now      int64
	Height   int64
	Function string
	Args     json.RawMessage
	// Store is the contract's view of ledger storage, bound to the call's
	// transaction and metered.
	Store sqlite.Querier
	Gas   *GasMeter

	// tx is the unmetered transaction; value transfers are charged a flat
	// GasTransfer instead of per statement.
	tx     sqlite.Querier
	static bool
	logs   []chain.Log
}

// Transfer moves amount from the contract's balance to an account. A
// recipient that refuses value yields chain.ErrValueRejected and no balance
// changes.
func (c *Call) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if c.static {
		return ErrStaticCall
	}
	if err := c.Gas.Charge(GasTransfer); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	accounts := sqlite.NewAccountRepository(c.tx)
	recipient, err := accounts.Get(ctx, to)
	if err != nil {
		return err
	}
	if recipient.RejectsValue {
		return chain.ErrValueRejected
	}
	if err := accounts.Add(ctx, c.Self, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return accounts.Add(ctx, to, amount)
}

// Emit appends a log to the call's receipt.
func (c *Call) Emit(name, topic string, account common.Address, amount *big.Int) error {
	if c.static {
		return nil
	}
	if err := c.Gas.Charge(GasLog); err != nil {
		return err
	}
	l := chain.Log{
		Index:    len(c.logs),
		Contract: c.Self,
		Name:     name,
		Topic:    topic,
		Account:  account,
	}
	if amount != nil {
		l.Amount = new(big.Int).Set(amount)
	}
	c.logs = append(c.logs, l)
	return nil
}

// DecodeArgs unmarshals the positional JSON argument array into dst
// pointers. Missing trailing arguments are an error.
func (c *Call) DecodeArgs(dst ...any) error {
	var raw []json.RawMessage
	if len(c.Args) > 0 {
		if err := json.Unmarshal(c.Args, &raw); err != nil {
			return chain.ErrBadArguments
		}
	}
	if len(raw) != len(dst) {
		return chain.ErrBadArguments
	}
	for i := range dst {
		if err := json.Unmarshal(raw[i], dst[i]); err != nil {
			return chain.ErrBadArguments
		}
	}
	return nil
}

// EncodeArgs builds a positional argument array.
func EncodeArgs(args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return json.Marshal(args)
}
