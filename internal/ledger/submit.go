package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/repository"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

// Submit persists a call and queues it for execution. It returns once the
// call is accepted, not once it is included.
func (c *Chain) Submit(ctx context.Context, msg chain.CallMsg) (string, error) {
	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()
	if stopped {
		return "", chain.ErrStopped
	}

	gas := msg.Gas
	if gas == 0 {
		gas = c.opts.GasLimit
	}
	if gas > c.opts.GasLimit {
		return "", chain.ErrGasLimitExceeded
	}
	if msg.Value != nil && msg.Value.Sign() < 0 {
		return "", fmt.Errorf("negative value: %w", chain.ErrBadArguments)
	}

	tx := &chain.Transaction{
		ID:       uuid.NewString(),
		From:     msg.From,
		To:       msg.To,
		Function: msg.Function,
		Args:     msg.Args,
		Value:    msg.Value,
		Gas:      gas,
	}
	if err := sqlite.NewTransactionRepository(c.db).Create(ctx, tx); err != nil {
		return "", err
	}

	select {
	case c.mempool <- tx.ID:
	case <-c.quit:
		// Stays pending in storage; the next Start picks it up.
	case <-ctx.Done():
		return tx.ID, ctx.Err()
	}

	c.log(ctx, slog.LevelDebug, "call submitted", "tx", tx.ID, "function", msg.Function, "from", msg.From.Hex())
	return tx.ID, nil
}

// Receipt returns the receipt of an included call, chain.ErrPending while
// it waits, or chain.ErrTxNotFound.
func (c *Chain) Receipt(ctx context.Context, id string) (*chain.Receipt, error) {
	tx, err := sqlite.NewTransactionRepository(c.db).Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, chain.ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.Status == chain.TxPending {
		return nil, chain.ErrPending
	}

	logs, err := sqlite.NewEventRepository(c.db).ListByTx(ctx, id)
	if err != nil {
		return nil, err
	}
	return chain.ReceiptFromTx(tx, logs), nil
}

// Transaction returns a submitted call by id.
func (c *Chain) Transaction(ctx context.Context, id string) (*chain.Transaction, error) {
	tx, err := sqlite.NewTransactionRepository(c.db).Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, chain.ErrTxNotFound
	}
	return tx, err
}

// WaitForInclusion blocks until the call is included or ctx is done.
func (c *Chain) WaitForInclusion(ctx context.Context, id string) (*chain.Receipt, error) {
	ch := c.waitChan(id)

	receipt, err := c.Receipt(ctx, id)
	if !errors.Is(err, chain.ErrPending) {
		c.dropWaiter(id)
		return receipt, err
	}

	select {
	case <-ch:
		return c.Receipt(ctx, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Read runs a read-only contract function against current state. Nothing it
// does is persisted.
func (c *Chain) Read(ctx context.Context, msg chain.CallMsg) (json.RawMessage, error) {
	contract, ok := c.contract(msg.To)
	if !ok {
		return nil, chain.ErrUnknownContract
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	head, err := sqlite.NewMetaRepository(tx).Head(ctx)
	if err != nil {
		return nil, err
	}

	gas := NewGasMeter(c.opts.GasLimit)
	call := &Call{
		From:     msg.From,
		Self:     msg.To,
		Value:    new(big.Int),
		Now:      max(head.BlockTime, c.clock.Now().Unix()),
		Height:   head.Height,
		Function: msg.Function,
		Args:     msg.Args,
		Store:    &meteredQuerier{q: tx, gas: gas},
		Gas:      gas,
		tx:       tx,
		static:   true,
	}
	result, err := contract.Query(ctx, call)
	if err != nil {
		return nil, err
	}
	if gas.Exhausted() {
		return nil, chain.ErrOutOfGas
	}
	return json.Marshal(result)
}
