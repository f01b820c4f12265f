package mcp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Nil(t, MapError(errors.New("disk on fire")))

	cases := []struct {
		err  error
		code string
	}{
		{hub.ErrProjectNotFound, "PROJECT_NOT_FOUND"},
		{fmt.Errorf("contribute: %w", hub.ErrProjectClosed), "PROJECT_CLOSED"},
		{&client.RevertError{TxID: "t", Reason: "settle: " + hub.ErrNotDue.Reason}, "NOT_DUE"},
		{hub.ErrInvalidName, "INVALID_ARGUMENT"},
		{hub.ErrZeroValue, "STATE_CONFLICT"},
		{hub.ErrTransferFailed, "TRANSFER_FAILED"},
		{&client.TimeoutError{TxID: "t", Timeout: time.Second}, "TIMEOUT"},
	}
	for _, tc := range cases {
		apiErr := MapError(tc.err)
		require.NotNil(t, apiErr, tc.err.Error())
		require.Equal(t, tc.code, apiErr.Code)
	}
}

func TestAPIError_UnwrapsSentinel(t *testing.T) {
	err := toolError(hub.ErrSettled)
	require.ErrorIs(t, err, hub.ErrSettled)
	require.Contains(t, err.Error(), "SETTLED")
}
