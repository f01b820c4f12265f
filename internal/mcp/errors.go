package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RecoveryHint != "" {
		msg += " (" + e.RecoveryHint + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if s, ok := hub.Lookup(e.Message); ok {
		return s
	}
	return nil
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var timeout *client.TimeoutError
	switch {
	case errors.As(err, &timeout):
		return &APIError{Code: "TIMEOUT", Message: err.Error(), Details: map[string]string{"tx_id": timeout.TxID}, RecoveryHint: "The call may still be included; check the project before retrying"}
	case errors.Is(err, hub.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: hub.ErrProjectNotFound.Reason, RecoveryHint: "Call list_projects for valid names"}
	case errors.Is(err, hub.ErrProjectExists):
		return &APIError{Code: "PROJECT_EXISTS", Message: hub.ErrProjectExists.Reason, RecoveryHint: "Pick another name"}
	case errors.Is(err, hub.ErrProjectClosed):
		return &APIError{Code: "PROJECT_CLOSED", Message: hub.ErrProjectClosed.Reason, RecoveryHint: "Contributions are only accepted while a project is open"}
	case errors.Is(err, hub.ErrNotDue):
		return &APIError{Code: "NOT_DUE", Message: hub.ErrNotDue.Reason, RecoveryHint: "Wait for the deadline or the goal"}
	case errors.Is(err, hub.ErrSettled):
		return &APIError{Code: "SETTLED", Message: hub.ErrSettled.Reason}
	case errors.Is(err, hub.ErrNothingToClaim):
		return &APIError{Code: "NOTHING_TO_CLAIM", Message: hub.ErrNothingToClaim.Reason}
	case errors.Is(err, hub.ErrNotOwner):
		return &APIError{Code: "NOT_OWNER", Message: hub.ErrNotOwner.Reason}
	case errors.Is(err, chain.ErrInsufficientFunds):
		return &APIError{Code: "INSUFFICIENT_FUNDS", Message: chain.ErrInsufficientFunds.Error(), RecoveryHint: "Check get_balance"}
	case errors.Is(err, chain.ErrOutOfGas):
		return &APIError{Code: "OUT_OF_GAS", Message: chain.ErrOutOfGas.Error()}
	}

	var herr *hub.Error
	if errors.As(err, &herr) {
		switch herr.Kind {
		case hub.KindValidation:
			return &APIError{Code: "INVALID_ARGUMENT", Message: herr.Reason}
		case hub.KindStateConflict:
			return &APIError{Code: "STATE_CONFLICT", Message: herr.Reason}
		case hub.KindSettlement:
			return &APIError{Code: "TRANSFER_FAILED", Message: herr.Reason, RecoveryHint: "The receiving account refuses value"}
		}
	}
	return nil
}

func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
