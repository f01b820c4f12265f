package chain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	err, ok := Lookup("insufficient funds")
	require.True(t, ok)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	wrapped := fmt.Errorf("calling fundinghub.settle: %w", ErrOutOfGas)
	err, ok = Lookup(wrapped.Error())
	require.True(t, ok)
	require.ErrorIs(t, err, ErrOutOfGas)

	// Errors that never reach a receipt are not recovered.
	_, ok = Lookup(ErrTxNotFound.Error())
	require.False(t, ok)

	_, ok = Lookup("not enough gas")
	require.False(t, ok)
}
