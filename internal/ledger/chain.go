package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

// DefaultNetworkID is used when Options leaves NetworkID unset.
const DefaultNetworkID uint64 = 1337

// Options configures a Chain.
type Options struct {
	NetworkID uint64
	// GasLimit caps the gas a single call may request and is the default
	// budget for calls that name none.
	GasLimit    uint64
	Clock       Clock
	MempoolSize int
}

// Chain is an in-process ledger. Calls are executed one at a time, in
// submission order, by a single executor goroutine. Each call is one block.
type Chain struct {
	db     *sqlite.DB
	opts   Options
	clock  Clock
	logger *slog.Logger

	mu        sync.RWMutex
	contracts map[common.Address]Contract
	networkID uint64

	mempool chan string
	quit    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool

	waitMu  sync.Mutex
	waiters map[string]chan struct{}

	subs *broadcaster
}

// New opens a chain over db, initializing the head on first use.
func New(ctx context.Context, db *sqlite.DB, opts Options, logger *slog.Logger) (*Chain, error) {
	if opts.NetworkID == 0 {
		opts.NetworkID = DefaultNetworkID
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = chain.DefaultGasLimit
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.MempoolSize <= 0 {
		opts.MempoolSize = 1024
	}

	head, err := sqlite.NewMetaRepository(db).Init(ctx, opts.NetworkID)
	if err != nil {
		return nil, err
	}

	return &Chain{
		db:        db,
		opts:      opts,
		clock:     opts.Clock,
		logger:    logger,
		contracts: map[common.Address]Contract{},
		networkID: head.NetworkID,
		mempool:   make(chan string, opts.MempoolSize),
		quit:      make(chan struct{}),
		waiters:   map[string]chan struct{}{},
		subs:      newBroadcaster(),
	}, nil
}

// NetworkID returns the id stored with the chain.
func (c *Chain) NetworkID() uint64 {
	return c.networkID
}

// GasLimit returns the per-call gas cap.
func (c *Chain) GasLimit() uint64 {
	return c.opts.GasLimit
}

// Head returns the current tip.
func (c *Chain) Head(ctx context.Context) (*chain.Head, error) {
	return sqlite.NewMetaRepository(c.db).Head(ctx)
}

// Deploy installs contract and returns its address. The address derives
// from the deployer and its nonce. Deploying a contract name that already
// has an address re-attaches the code there, so restarts keep the address.
func (c *Chain) Deploy(ctx context.Context, deployer common.Address, contract Contract) (common.Address, error) {
	var addr common.Address
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		accounts := sqlite.NewAccountRepository(tx)

		existing, err := accounts.Contracts(ctx)
		if err != nil {
			return err
		}
		for a, name := range existing {
			if name == contract.Name() {
				addr = a
				return nil
			}
		}

		acct, err := accounts.Get(ctx, deployer)
		if err != nil {
			return err
		}
		addr = crypto.CreateAddress(deployer, acct.Nonce)
		if err := accounts.IncrementNonce(ctx, deployer); err != nil {
			return err
		}
		return accounts.SetContract(ctx, addr, contract.Name())
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: %w", contract.Name(), err)
	}

	c.mu.Lock()
	c.contracts[addr] = contract
	c.mu.Unlock()

	c.log(ctx, slog.LevelInfo, "contract deployed", "contract", contract.Name(), "address", addr.Hex())
	return addr, nil
}

func (c *Chain) contract(addr common.Address) (Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[addr]
	return contract, ok
}

// Fund credits an account outside of any call, as a genesis allocation.
func (c *Chain) Fund(ctx context.Context, addr common.Address, amount *big.Int) error {
	return sqlite.NewAccountRepository(c.db).Add(ctx, addr, amount)
}

// SetRejectsValue makes an account refuse (or accept again) incoming value.
func (c *Chain) SetRejectsValue(ctx context.Context, addr common.Address, rejects bool) error {
	return sqlite.NewAccountRepository(c.db).SetRejectsValue(ctx, addr, rejects)
}

// Balance returns an account's balance.
func (c *Chain) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	acct, err := sqlite.NewAccountRepository(c.db).Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return acct.Balance, nil
}

// Account returns an account's full state.
func (c *Chain) Account(ctx context.Context, addr common.Address) (*chain.Account, error) {
	return sqlite.NewAccountRepository(c.db).Get(ctx, addr)
}

// RecentEvents returns indexed logs, newest first.
func (c *Chain) RecentEvents(ctx context.Context, opts sqlite.ListEventsOptions) ([]chain.Log, error) {
	return sqlite.NewEventRepository(c.db).Recent(ctx, opts)
}

// Subscribe streams logs of committed calls. The returned func unsubscribes.
// Slow subscribers miss logs rather than stall the executor.
func (c *Chain) Subscribe(buffer int) (<-chan chain.Log, func()) {
	return c.subs.subscribe(buffer)
}

func (c *Chain) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Log(ctx, level, msg, args...)
}
