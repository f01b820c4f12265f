package hub

import (
	"errors"
	"strings"
)

// Kind classifies hub errors for callers that map them onto transport codes.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers malformed or unknown inputs. No state changes.
	KindValidation
	// KindStateConflict covers calls that are well formed but not allowed in
	// the project's current state.
	KindStateConflict
	// KindSettlement covers a failed payout or refund transfer.
	KindSettlement
	// KindTimeout is used client side when inclusion is not observed in time.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindSettlement:
		return "settlement"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified hub error. The exported sentinels below are compared
// with errors.Is.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

var (
	// ErrInvalidName indicates an empty, oversized or malformed project name.
	ErrInvalidName = &Error{Kind: KindValidation, Reason: "invalid project name"}
	// ErrInvalidGoal indicates a zero or missing funding goal.
	ErrInvalidGoal = &Error{Kind: KindValidation, Reason: "amount needed must be positive"}
	// ErrDeadlineNotInFuture indicates a deadline at or before the block time.
	ErrDeadlineNotInFuture = &Error{Kind: KindValidation, Reason: "deadline must be in the future"}
	// ErrProjectExists indicates a duplicate project name.
	ErrProjectExists = &Error{Kind: KindValidation, Reason: "project already exists"}
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = &Error{Kind: KindValidation, Reason: "project not found"}
	// ErrValueNotAccepted indicates value was attached to a non-payable call.
	ErrValueNotAccepted = &Error{Kind: KindValidation, Reason: "call does not accept value"}
	// ErrIndexOutOfRange indicates a registry index past the last project.
	ErrIndexOutOfRange = &Error{Kind: KindValidation, Reason: "project index out of range"}
	// ErrNotOwner indicates the sender is not the project owner.
	ErrNotOwner = &Error{Kind: KindValidation, Reason: "sender is not the project owner"}

	// ErrZeroValue indicates a contribution without attached value.
	ErrZeroValue = &Error{Kind: KindStateConflict, Reason: "contribution must carry value"}
	// ErrProjectClosed indicates the project no longer accepts contributions.
	ErrProjectClosed = &Error{Kind: KindStateConflict, Reason: "project is not open"}
	// ErrNotDue indicates settlement was requested before the project resolved.
	ErrNotDue = &Error{Kind: KindStateConflict, Reason: "project is not due for settlement"}
	// ErrSettled indicates there is nothing left to settle.
	ErrSettled = &Error{Kind: KindStateConflict, Reason: "project is fully settled"}
	// ErrNothingToClaim indicates the sender has no outstanding refund.
	ErrNothingToClaim = &Error{Kind: KindStateConflict, Reason: "nothing to claim"}

	// ErrTransferRejected is returned by a Bank when the recipient refuses value.
	ErrTransferRejected = &Error{Kind: KindSettlement, Reason: "recipient rejected transfer"}
	// ErrTransferFailed indicates a direct claim or withdrawal could not be paid.
	ErrTransferFailed = &Error{Kind: KindSettlement, Reason: "transfer failed"}

	// ErrTimeout indicates a caller stopped waiting for a call's inclusion.
	ErrTimeout = &Error{Kind: KindTimeout, Reason: "timed out waiting for inclusion"}
)

var sentinels = []*Error{
	ErrInvalidName, ErrInvalidGoal, ErrDeadlineNotInFuture, ErrProjectExists,
	ErrProjectNotFound, ErrValueNotAccepted, ErrIndexOutOfRange, ErrNotOwner,
	ErrZeroValue, ErrProjectClosed, ErrNotDue, ErrSettled, ErrNothingToClaim,
	ErrTransferRejected, ErrTransferFailed, ErrTimeout,
}

// Lookup recovers the sentinel behind a revert reason, which may carry
// wrapping context ahead of the sentinel text.
func Lookup(reason string) (*Error, bool) {
	for _, s := range sentinels {
		if reason == s.Reason || strings.HasSuffix(reason, ": "+s.Reason) {
			return s, true
		}
	}
	return nil, false
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return KindUnknown
}

// ErrorKind exposes the classification to layers that don't import hub.
func (e *Error) ErrorKind() string {
	return e.Kind.String()
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	switch s {
	case "validation":
		return KindValidation
	case "state_conflict":
		return KindStateConflict
	case "settlement":
		return KindSettlement
	case "timeout":
		return KindTimeout
	default:
		return KindUnknown
	}
}
