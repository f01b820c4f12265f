package chain

import (
	"errors"
	"strings"
)

var (
	// ErrInsufficientFunds indicates the sender cannot cover the attached value.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOutOfGas indicates the call exhausted its gas budget.
	ErrOutOfGas = errors.New("out of gas")
	// ErrGasLimitExceeded indicates a call requested more gas than a block allows.
	ErrGasLimitExceeded = errors.New("gas limit exceeds block limit")
	// ErrUnknownContract indicates no contract is deployed at the target address.
	ErrUnknownContract = errors.New("no contract at address")
	// ErrUnknownFunction indicates the contract has no such function.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrBadArguments indicates call arguments could not be decoded.
	ErrBadArguments = errors.New("bad arguments")
	// ErrTxNotFound indicates an unknown transaction id.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrPending indicates the transaction has not been included yet.
	ErrPending = errors.New("transaction pending")
	// ErrValueRejected indicates the recipient account refuses value.
	ErrValueRejected = errors.New("recipient rejects value")
	// ErrStopped indicates the ledger is not accepting calls.
	ErrStopped = errors.New("ledger stopped")
)

// revertErrors are the ledger errors that can end up as a receipt reason.
var revertErrors = []error{
	ErrInsufficientFunds,
	ErrOutOfGas,
	ErrUnknownContract,
	ErrUnknownFunction,
	ErrBadArguments,
	ErrValueRejected,
}

// Lookup returns the ledger error a receipt reason was produced from.
func Lookup(reason string) (error, bool) {
	for _, err := range revertErrors {
		msg := err.Error()
		if reason == msg || strings.HasSuffix(reason, ": "+msg) {
			return err, true
		}
	}
	return nil, false
}
