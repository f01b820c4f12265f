package client

import (
	"fmt"
	"time"

	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
)

// TimeoutError reports a call that was not observed as included in time.
// The call may still be included later.
type TimeoutError struct {
	TxID    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s wasn't processed in %d seconds", e.TxID, int(e.Timeout.Seconds()))
}

func (e *TimeoutError) Unwrap() error {
	return hub.ErrTimeout
}

// RevertError reports a call that was included but reverted.
type RevertError struct {
	TxID    string
	Reason  string
	Kind    hub.Kind
	Receipt *chain.Receipt
}

func newRevertError(r *chain.Receipt) *RevertError {
	kind := hub.ParseKind(r.ErrorKind)
	if kind == hub.KindUnknown {
		if s, ok := hub.Lookup(r.Reason); ok {
			kind = s.Kind
		}
	}
	return &RevertError{TxID: r.TxID, Reason: r.Reason, Kind: kind, Receipt: r}
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("transaction %s reverted: %s", e.TxID, e.Reason)
}

// Unwrap exposes the hub or ledger sentinel so errors.Is works across the
// wire.
func (e *RevertError) Unwrap() error {
	if s, ok := hub.Lookup(e.Reason); ok {
		return s
	}
	if err, ok := chain.Lookup(e.Reason); ok {
		return err
	}
	return nil
}

// RemoteError is an execution error returned by a remote provider.
type RemoteError struct {
	Code    int
	Message string
	Kind    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) ErrorKind() string {
	return e.Kind
}

func (e *RemoteError) Unwrap() error {
	if s, ok := hub.Lookup(e.Message); ok {
		return s
	}
	return nil
}
