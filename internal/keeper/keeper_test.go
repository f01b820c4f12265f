package keeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/keeper"
	"github.com/rpggio/fundinghub/internal/testserver"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	keeperAccount = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	owner         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	backer        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type hubMock struct {
	mock.Mock
}

func (m *hubMock) Projects(ctx context.Context) ([]hub.ProjectView, error) {
	args := m.Called(ctx)
	views, _ := args.Get(0).([]hub.ProjectView)
	return views, args.Error(1)
}

func (m *hubMock) Settle(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error) {
	args := m.Called(ctx, name, opts[0].From)
	r, _ := args.Get(0).(*chain.Receipt)
	return r, args.Error(1)
}

func view(name string, due bool) hub.ProjectView {
	return hub.ProjectView{Project: hub.Project{Name: name}, SettlementDue: due}
}

func TestRun_SettlesDueProjects(t *testing.T) {
	ctx := context.Background()
	m := &hubMock{}
	m.On("Projects", ctx).Return([]hub.ProjectView{
		view("idle", false),
		view("due", true),
		view("raced", true),
		view("broken", true),
	}, nil)
	m.On("Settle", ctx, "due", keeperAccount).Return(&chain.Receipt{TxID: "t1"}, nil)
	m.On("Settle", ctx, "raced", keeperAccount).Return(nil, &client.RevertError{Reason: hub.ErrSettled.Reason})
	m.On("Settle", ctx, "broken", keeperAccount).Return(nil, errors.New("provider down"))

	k, err := keeper.New(m, keeper.Config{Workers: 2, Account: keeperAccount}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Stop() })

	res, err := k.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, keeper.Result{Due: 3, Settled: 2, Failed: 1}, res)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Settle", ctx, "idle", keeperAccount)
}

func TestRun_BacksOffStalledProject(t *testing.T) {
	ctx := context.Background()
	stuck := hub.ProjectView{
		Project:       hub.Project{Name: "stuck", Status: hub.StatusRefunded, Outstanding: 2},
		SettlementDue: true,
	}
	moved := stuck
	moved.Outstanding = 1

	m := &hubMock{}
	m.On("Projects", ctx).Return([]hub.ProjectView{stuck}, nil).Times(8)
	m.On("Projects", ctx).Return([]hub.ProjectView{moved}, nil).Times(2)
	m.On("Settle", ctx, "stuck", keeperAccount).Return(&chain.Receipt{TxID: "t"}, nil)

	k, err := keeper.New(m, keeper.Config{Workers: 1, Account: keeperAccount}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Stop() })

	// Settles on passes 1, 2, 4 and 8.
	var skipped []int
	for pass := 1; pass <= 8; pass++ {
		res, err := k.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, res.Due)
		if res.Skipped == 1 {
			skipped = append(skipped, pass)
		}
	}
	require.Equal(t, []int{3, 5, 6, 7}, skipped)
	m.AssertNumberOfCalls(t, "Settle", 4)

	// Progress resets the backoff.
	for range 2 {
		res, err := k.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, keeper.Result{Due: 1, Settled: 1}, res)
	}
	m.AssertNumberOfCalls(t, "Settle", 6)
}

func TestRun_BackoffIsCapped(t *testing.T) {
	ctx := context.Background()
	stuck := hub.ProjectView{
		Project:       hub.Project{Name: "stuck", Status: hub.StatusFunded},
		SettlementDue: true,
	}
	m := &hubMock{}
	m.On("Projects", ctx).Return([]hub.ProjectView{stuck}, nil)
	m.On("Settle", ctx, "stuck", keeperAccount).Return(nil, errors.New("provider down"))

	k, err := keeper.New(m, keeper.Config{Workers: 1, Account: keeperAccount, MaxBackoff: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Stop() })

	// Passes 1, 2, 4, 7 and 10: the gap stops growing at two skipped passes.
	for range 10 {
		_, err := k.Run(ctx)
		require.NoError(t, err)
	}
	m.AssertNumberOfCalls(t, "Settle", 5)
}

func TestRun_ListError(t *testing.T) {
	ctx := context.Background()
	m := &hubMock{}
	m.On("Projects", ctx).Return(nil, errors.New("boom"))

	k, err := keeper.New(m, keeper.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Stop() })

	_, err = k.Run(ctx)
	require.ErrorContains(t, err, "boom")
}

func TestKeeper_RefundsExpiredProject(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, "owner-key", owner)
	require.NoError(t, ts.Fund(backer, testserver.Ether(10)))

	_, err := ts.Hub.CreateProject(ctx, "expiring", testserver.Ether(50), time.Unix(testserver.Start+60, 0), client.TxOpts{From: owner})
	require.NoError(t, err)
	_, err = ts.Hub.Contribute(ctx, "expiring", client.TxOpts{From: backer, Value: testserver.Ether(3)})
	require.NoError(t, err)

	k, err := keeper.New(ts.Hub, keeper.Config{Interval: 20 * time.Millisecond, Account: keeperAccount}, nil)
	require.NoError(t, err)

	res, err := k.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Due)

	ts.Clock.Advance(2 * time.Minute)
	require.NoError(t, k.Start(ctx))
	t.Cleanup(func() { _ = k.Stop() })

	require.Eventually(t, func() bool {
		status, err := ts.Hub.Status(ctx, "expiring")
		return err == nil && status == hub.StatusRefunded
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		balance, err := ts.Chain.Balance(ctx, backer)
		return err == nil && balance.Cmp(testserver.Ether(10)) == 0
	}, 5*time.Second, 20*time.Millisecond)
}
