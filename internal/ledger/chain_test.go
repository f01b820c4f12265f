package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/ledger"
	"github.com/rpggio/fundinghub/internal/sqlite"
	"github.com/stretchr/testify/require"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

var errBoom = errors.New("boom")

// forwarder is a minimal contract: "pay" forwards the attached value to the
// address argument, "fail" pays then reverts, "burn" spends gas forever.
type forwarder struct{}

func (forwarder) Name() string { return "Forwarder" }

func (forwarder) Execute(ctx context.Context, call *ledger.Call) error {
	switch call.Function {
	case "pay", "fail":
		var to common.Address
		if err := call.DecodeArgs(&to); err != nil {
			return err
		}
		if err := call.Transfer(ctx, to, call.Value); err != nil {
			return err
		}
		if err := call.Emit("Paid", "forward", to, call.Value); err != nil {
			return err
		}
		if call.Function == "fail" {
			return errBoom
		}
		return nil
	case "burn":
		for {
			if err := call.Gas.Charge(1000); err != nil {
				return err
			}
		}
	default:
		return chain.ErrUnknownFunction
	}
}

func (forwarder) Query(ctx context.Context, call *ledger.Call) (any, error) {
	switch call.Function {
	case "echo":
		var s string
		if err := call.DecodeArgs(&s); err != nil {
			return nil, err
		}
		return map[string]any{"echo": s, "now": call.Now}, nil
	case "pay":
		return nil, call.Transfer(ctx, alice, big.NewInt(1))
	default:
		return nil, chain.ErrUnknownFunction
	}
}

type fixture struct {
	chain    *ledger.Chain
	clock    *ledger.ManualClock
	contract common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := sqlite.NewTestDB(t)
	clock := ledger.NewManualClock(time.Unix(1_000, 0))

	c, err := ledger.New(ctx, db, ledger.Options{Clock: clock}, nil)
	require.NoError(t, err)

	addr, err := c.Deploy(ctx, deployer, forwarder{})
	require.NoError(t, err)

	require.NoError(t, c.Fund(ctx, alice, big.NewInt(1_000)))
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Stop)

	return &fixture{chain: c, clock: clock, contract: addr}
}

func (f *fixture) send(t *testing.T, msg chain.CallMsg) *chain.Receipt {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := f.chain.Submit(ctx, msg)
	require.NoError(t, err)
	receipt, err := f.chain.WaitForInclusion(ctx, id)
	require.NoError(t, err)
	return receipt
}

func (f *fixture) balance(t *testing.T, addr common.Address) *big.Int {
	t.Helper()
	b, err := f.chain.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

func TestChain_PlainTransfer(t *testing.T) {
	f := newFixture(t)

	r := f.send(t, chain.CallMsg{From: alice, To: bob, Value: big.NewInt(300)})
	require.True(t, r.Succeeded())
	require.Equal(t, ledger.GasIntrinsic+ledger.GasTransfer, r.GasUsed)
	require.Equal(t, big.NewInt(700), f.balance(t, alice))
	require.Equal(t, big.NewInt(300), f.balance(t, bob))
}

func TestChain_ContractCallEmitsLogs(t *testing.T) {
	f := newFixture(t)
	logs, unsubscribe := f.chain.Subscribe(8)
	defer unsubscribe()

	args, err := ledger.EncodeArgs(bob)
	require.NoError(t, err)
	r := f.send(t, chain.CallMsg{From: alice, To: f.contract, Function: "pay", Args: args, Value: big.NewInt(50)})

	require.True(t, r.Succeeded(), r.Reason)
	require.Len(t, r.Logs, 1)
	require.Equal(t, "Paid", r.Logs[0].Name)
	require.Equal(t, r.BlockHeight, r.Logs[0].BlockHeight)
	require.Equal(t, big.NewInt(50), f.balance(t, bob))
	require.Equal(t, 0, f.balance(t, f.contract).Sign())

	select {
	case l := <-logs:
		require.Equal(t, r.TxID, l.TxID)
	case <-time.After(time.Second):
		t.Fatal("no log published")
	}

	recent, err := f.chain.RecentEvents(context.Background(), sqlite.ListEventsOptions{Topic: "forward"})
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestChain_RevertDiscardsEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	args, err := ledger.EncodeArgs(bob)
	require.NoError(t, err)
	r := f.send(t, chain.CallMsg{From: alice, To: f.contract, Function: "fail", Args: args, Value: big.NewInt(50)})

	require.Equal(t, chain.TxReverted, r.Status)
	require.Equal(t, "boom", r.Reason)
	require.Empty(t, r.Logs)
	require.Equal(t, big.NewInt(1_000), f.balance(t, alice))
	require.Equal(t, 0, f.balance(t, bob).Sign())

	acct, err := f.chain.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acct.Nonce)

	head, err := f.chain.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, r.BlockHeight, head.Height)
}

func TestChain_RejectingRecipientReverts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.chain.SetRejectsValue(context.Background(), bob, true))

	args, err := ledger.EncodeArgs(bob)
	require.NoError(t, err)
	r := f.send(t, chain.CallMsg{From: alice, To: f.contract, Function: "pay", Args: args, Value: big.NewInt(50)})
	require.Equal(t, chain.TxReverted, r.Status)
	require.Equal(t, chain.ErrValueRejected.Error(), r.Reason)
	require.Equal(t, big.NewInt(1_000), f.balance(t, alice))
}

func TestChain_InsufficientFunds(t *testing.T) {
	f := newFixture(t)

	r := f.send(t, chain.CallMsg{From: bob, To: alice, Value: big.NewInt(1)})
	require.Equal(t, chain.TxReverted, r.Status)
	require.Equal(t, chain.ErrInsufficientFunds.Error(), r.Reason)
}

func TestChain_OutOfGas(t *testing.T) {
	f := newFixture(t)

	r := f.send(t, chain.CallMsg{From: alice, To: f.contract, Function: "burn", Gas: 100_000})
	require.Equal(t, chain.TxReverted, r.Status)
	require.Equal(t, chain.ErrOutOfGas.Error(), r.Reason)
	require.Equal(t, uint64(100_000), r.GasUsed)

	_, err := f.chain.Submit(context.Background(), chain.CallMsg{From: alice, To: f.contract, Function: "burn", Gas: f.chain.GasLimit() + 1})
	require.ErrorIs(t, err, chain.ErrGasLimitExceeded)
}

func TestChain_UnknownContract(t *testing.T) {
	f := newFixture(t)

	r := f.send(t, chain.CallMsg{From: alice, To: bob, Function: "pay"})
	require.Equal(t, chain.TxReverted, r.Status)
	require.Equal(t, chain.ErrUnknownContract.Error(), r.Reason)
}

func TestChain_BlockTimeIsMonotonic(t *testing.T) {
	f := newFixture(t)

	r1 := f.send(t, chain.CallMsg{From: alice, To: bob, Value: big.NewInt(1)})
	require.Equal(t, int64(1_000), r1.BlockTime)

	f.clock.Advance(10 * time.Second)
	r2 := f.send(t, chain.CallMsg{From: alice, To: bob, Value: big.NewInt(1)})
	require.Equal(t, int64(1_010), r2.BlockTime)
	require.Equal(t, r1.BlockHeight+1, r2.BlockHeight)

	f.clock.Set(time.Unix(500, 0))
	r3 := f.send(t, chain.CallMsg{From: alice, To: bob, Value: big.NewInt(1)})
	require.Equal(t, int64(1_010), r3.BlockTime)
}

func TestChain_Read(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	args, err := ledger.EncodeArgs("hi")
	require.NoError(t, err)
	out, err := f.chain.Read(ctx, chain.CallMsg{To: f.contract, Function: "echo", Args: args})
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":"hi","now":1000}`, string(out))

	_, err = f.chain.Read(ctx, chain.CallMsg{To: f.contract, Function: "pay"})
	require.ErrorIs(t, err, ledger.ErrStaticCall)

	_, err = f.chain.Read(ctx, chain.CallMsg{To: f.contract, Function: "echo"})
	require.ErrorIs(t, err, chain.ErrBadArguments)

	_, err = f.chain.Read(ctx, chain.CallMsg{To: bob, Function: "echo"})
	require.ErrorIs(t, err, chain.ErrUnknownContract)
}

func TestChain_ReceiptLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chain.Receipt(ctx, "missing")
	require.ErrorIs(t, err, chain.ErrTxNotFound)

	_, err = f.chain.WaitForInclusion(ctx, "missing")
	require.ErrorIs(t, err, chain.ErrTxNotFound)
}

func TestChain_PendingSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db := sqlite.NewTestDB(t)
	clock := ledger.NewManualClock(time.Unix(1_000, 0))

	first, err := ledger.New(ctx, db, ledger.Options{Clock: clock}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Fund(ctx, alice, big.NewInt(10)))

	id, err := first.Submit(ctx, chain.CallMsg{From: alice, To: bob, Value: big.NewInt(4)})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = first.WaitForInclusion(waitCtx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	first.Stop()

	second, err := ledger.New(ctx, db, ledger.Options{Clock: clock}, nil)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	defer second.Stop()

	waitCtx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	r, err := second.WaitForInclusion(waitCtx2, id)
	require.NoError(t, err)
	require.True(t, r.Succeeded())

	b, err := second.Balance(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4), b)
}

func TestChain_RestartOverFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fundhub.db")
	clock := ledger.NewManualClock(time.Unix(1_000, 0))

	open := func() (*sqlite.DB, *ledger.Chain, common.Address) {
		db, err := sqlite.New(path)
		require.NoError(t, err)
		require.NoError(t, db.RunMigrations())
		c, err := ledger.New(ctx, db, ledger.Options{Clock: clock}, nil)
		require.NoError(t, err)
		addr, err := c.Deploy(ctx, deployer, forwarder{})
		require.NoError(t, err)
		require.NoError(t, c.Start(ctx))
		return db, c, addr
	}

	db, first, addr := open()
	require.NoError(t, first.Fund(ctx, alice, big.NewInt(100)))
	f := &fixture{chain: first, clock: clock, contract: addr}
	args, err := ledger.EncodeArgs(bob)
	require.NoError(t, err)
	r := f.send(t, chain.CallMsg{From: alice, To: addr, Function: "pay", Args: args, Value: big.NewInt(30)})
	require.True(t, r.Succeeded(), r.Reason)
	head, err := first.Head(ctx)
	require.NoError(t, err)
	first.Stop()
	require.NoError(t, db.Close())

	db, second, again := open()
	defer db.Close()
	defer second.Stop()
	require.Equal(t, addr, again)

	restarted, err := second.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, head, restarted)

	f = &fixture{chain: second, clock: clock, contract: again}
	require.Equal(t, big.NewInt(70), f.balance(t, alice))
	require.Equal(t, big.NewInt(30), f.balance(t, bob))

	r = f.send(t, chain.CallMsg{From: alice, To: bob, Value: big.NewInt(5)})
	require.True(t, r.Succeeded(), r.Reason)
	require.Equal(t, head.Height+1, r.BlockHeight)
}

func TestChain_DeployIsIdempotentPerName(t *testing.T) {
	f := newFixture(t)

	again, err := f.chain.Deploy(context.Background(), deployer, forwarder{})
	require.NoError(t, err)
	require.Equal(t, f.contract, again)
}

func TestGasMeter(t *testing.T) {
	g := ledger.NewGasMeter(100)
	require.NoError(t, g.Charge(60))
	require.ErrorIs(t, g.Charge(50), chain.ErrOutOfGas)
	require.True(t, g.Exhausted())
	require.Equal(t, uint64(100), g.Used())
	require.ErrorIs(t, g.Charge(1), chain.ErrOutOfGas)
}
