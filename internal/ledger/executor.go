package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

var errAlreadyIncluded = errors.New("already included")

// kinded is implemented by contract errors that carry a classification.
type kinded interface {
	ErrorKind() string
}

// Start launches the executor. Transactions left pending by a previous
// process are executed first, in their original order.
func (c *Chain) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	pending, err := sqlite.NewTransactionRepository(c.db).ListPending(ctx)
	if err != nil {
		return fmt.Errorf("load pending transactions: %w", err)
	}
	ids := make([]string, 0, len(pending))
	for _, tx := range pending {
		ids = append(ids, tx.ID)
	}

	c.wg.Add(1)
	go c.run(ids)
	return nil
}

// Stop halts the executor after the call in progress completes. Queued
// calls stay pending in storage and run on the next Start.
func (c *Chain) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.stopped = true
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.quit)
	c.wg.Wait()
	c.subs.close()
}

func (c *Chain) run(recovered []string) {
	defer c.wg.Done()

	for _, id := range recovered {
		select {
		case <-c.quit:
			return
		default:
		}
		c.execute(id)
	}

	for {
		select {
		case <-c.quit:
			return
		case id := <-c.mempool:
			c.execute(id)
		}
	}
}

// execute runs one call as one block. Contract effects happen inside a
// savepoint so a revert discards them while the block itself (nonce, receipt,
// head) still commits.
func (c *Chain) execute(id string) {
	// Accepted calls are not cancellable.
	ctx := context.Background()

	var (
		receipt *chain.Receipt
		logs    []chain.Log
	)
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		txs := sqlite.NewTransactionRepository(tx)
		meta := sqlite.NewMetaRepository(tx)

		t, err := txs.Get(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != chain.TxPending {
			return errAlreadyIncluded
		}

		head, err := meta.Head(ctx)
		if err != nil {
			return err
		}
		height := head.Height + 1
		blockTime := max(head.BlockTime, c.clock.Now().Unix())

		if err := sqlite.NewAccountRepository(tx).IncrementNonce(ctx, t.From); err != nil {
			return err
		}

		var (
			callErr error
			gasUsed uint64
		)
		logs, gasUsed, callErr = c.apply(ctx, tx, t, height, blockTime)

		t.GasUsed = gasUsed
		t.BlockHeight = height
		t.BlockTime = blockTime
		if callErr != nil {
			t.Status = chain.TxReverted
			t.Reason = callErr.Error()
			var k kinded
			if errors.As(callErr, &k) {
				t.ErrorKind = k.ErrorKind()
			}
			logs = nil
		} else {
			t.Status = chain.TxSuccess
		}
		if err := txs.Finish(ctx, t); err != nil {
			return err
		}

		for i := range logs {
			logs[i].TxID = t.ID
			logs[i].BlockHeight = height
			logs[i].BlockTime = blockTime
		}
		if err := sqlite.NewEventRepository(tx).Append(ctx, logs); err != nil {
			return err
		}
		if err := meta.Advance(ctx, height, blockTime); err != nil {
			return err
		}

		receipt = chain.ReceiptFromTx(t, logs)
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyIncluded):
	case err != nil:
		c.log(ctx, slog.LevelError, "block execution failed", "tx", id, "error", err)
		c.failPending(ctx, id, err)
	default:
		level := slog.LevelDebug
		if !receipt.Succeeded() {
			level = slog.LevelInfo
		}
		c.log(ctx, level, "call included",
			"tx", id,
			"status", receipt.Status,
			"height", receipt.BlockHeight,
			"gas_used", receipt.GasUsed,
			"reason", receipt.Reason,
		)
		c.subs.publish(logs)
	}
	c.notify(id)
}

// apply runs the contract call inside a savepoint.
func (c *Chain) apply(ctx context.Context, tx *sql.Tx, t *chain.Transaction, height, blockTime int64) ([]chain.Log, uint64, error) {
	gas := NewGasMeter(t.Gas)
	if err := gas.Charge(GasIntrinsic); err != nil {
		return nil, gas.Used(), err
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT ledger_call"); err != nil {
		return nil, gas.Used(), err
	}

	logs, callErr := c.invoke(ctx, tx, t, gas, height, blockTime)
	if callErr == nil && gas.Exhausted() {
		callErr = chain.ErrOutOfGas
	}

	if callErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO ledger_call"); err != nil {
			return nil, gas.Used(), fmt.Errorf("rollback call: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "RELEASE ledger_call"); err != nil {
		return nil, gas.Used(), fmt.Errorf("release call: %w", err)
	}
	return logs, gas.Used(), callErr
}

func (c *Chain) invoke(ctx context.Context, tx *sql.Tx, t *chain.Transaction, gas *GasMeter, height, blockTime int64) ([]chain.Log, error) {
	accounts := sqlite.NewAccountRepository(tx)
	value := t.Value
	if value == nil {
		value = new(big.Int)
	}

	contract, isContract := c.contract(t.To)
	if !isContract && t.Function != "" {
		return nil, chain.ErrUnknownContract
	}

	if value.Sign() > 0 {
		if err := gas.Charge(GasTransfer); err != nil {
			return nil, err
		}
		if err := accounts.Add(ctx, t.From, new(big.Int).Neg(value)); err != nil {
			return nil, err
		}
		if !isContract {
			recipient, err := accounts.Get(ctx, t.To)
			if err != nil {
				return nil, err
			}
			if recipient.RejectsValue {
				return nil, chain.ErrValueRejected
			}
		}
		if err := accounts.Add(ctx, t.To, value); err != nil {
			return nil, err
		}
	}

	if !isContract {
		return nil, nil
	}

	call := &Call{
		From:     t.From,
		Self:     t.To,
		Value:    new(big.Int).Set(value),
		Now:      blockTime,
		Height:   height,
		Function: t.Function,
		Args:     t.Args,
		Store:    &meteredQuerier{q: tx, gas: gas},
		Gas:      gas,
		tx:       tx,
	}
	if err := contract.Execute(ctx, call); err != nil {
		return nil, err
	}
	return call.logs, nil
}

// failPending marks a transaction reverted after an infrastructure failure
// so waiters don't hang on it.
func (c *Chain) failPending(ctx context.Context, id string, cause error) {
	txs := sqlite.NewTransactionRepository(c.db)
	t, err := txs.Get(ctx, id)
	if err != nil || t.Status != chain.TxPending {
		return
	}
	t.Status = chain.TxReverted
	t.Reason = fmt.Sprintf("execution failed: %v", cause)
	if err := txs.Finish(ctx, t); err != nil {
		c.log(ctx, slog.LevelError, "failed to mark transaction reverted", "tx", id, "error", err)
	}
}

func (c *Chain) waitChan(id string) chan struct{} {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	ch, ok := c.waiters[id]
	if !ok {
		ch = make(chan struct{})
		c.waiters[id] = ch
	}
	return ch
}

func (c *Chain) dropWaiter(id string) {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	delete(c.waiters, id)
}

func (c *Chain) notify(id string) {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	if ch, ok := c.waiters[id]; ok {
		close(ch)
		delete(c.waiters, id)
	}
}
