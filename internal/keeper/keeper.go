// Package keeper periodically settles projects that are due, so payouts and
// refunds happen without waiting for another user call.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/domain/hub"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultWorkers  = 4
	// DefaultMaxBackoff caps how many passes a stalled project sits out.
	DefaultMaxBackoff = 64

	jobName = "settle-due-projects"
)

// Hub defines the hub operations the keeper uses. *client.Hub implements it.
type Hub interface {
	Projects(ctx context.Context) ([]hub.ProjectView, error)
	Settle(ctx context.Context, name string, opts ...client.TxOpts) (*chain.Receipt, error)
}

type Config struct {
	Interval time.Duration
	Workers  int
	// Account sends the settle calls.
	Account common.Address
	// MaxBackoff caps the passes skipped between settles of a project
	// that stopped making progress.
	MaxBackoff int
}

// Result summarizes one pass.
type Result struct {
	Due     int
	Settled int
	Failed  int
	// Skipped counts due projects sitting out a backoff.
	Skipped int
}

// progress is the part of a project a settle call moves forward.
type progress struct {
	status      hub.Status
	paidOut     bool
	outstanding int64
}

func progressOf(v hub.ProjectView) progress {
	return progress{status: v.Status, paidOut: v.PaidOut, outstanding: v.Outstanding}
}

// attempt remembers where a project stood when the keeper last settled it.
type attempt struct {
	at     progress
	misses int
	wait   int
}

type Keeper struct {
	hub       Hub
	cfg       Config
	pool      *ants.Pool
	scheduler gocron.Scheduler
	logger    *slog.Logger

	mu       sync.Mutex
	attempts map[string]attempt
}

// New creates a keeper. Nothing runs until Start.
func New(h Hub, cfg Config, logger *slog.Logger) (*Keeper, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	k := &Keeper{hub: h, cfg: cfg, logger: logger, attempts: make(map[string]attempt)}

	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p any) {
		k.log(context.Background(), slog.LevelError, "settle worker panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	k.pool = pool
	k.scheduler = s
	return k, nil
}

// Start schedules a pass every interval. A pass still running when the next
// is due pushes the next one back.
func (k *Keeper) Start(ctx context.Context) error {
	_, err := k.scheduler.NewJob(
		gocron.DurationJob(k.cfg.Interval),
		gocron.NewTask(func() {
			if _, err := k.Run(ctx); err != nil {
				k.log(ctx, slog.LevelError, "settlement pass failed", "error", err)
			}
		}),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", jobName, err)
	}
	k.scheduler.Start()
	k.log(ctx, slog.LevelInfo, "keeper started", "interval", k.cfg.Interval, "workers", k.cfg.Workers)
	return nil
}

// Stop shuts the scheduler down and waits for in-flight settles.
func (k *Keeper) Stop() error {
	err := k.scheduler.Shutdown()
	k.pool.Release()
	return err
}

// Run settles every project that is due, fanning the calls out over the
// worker pool. Each call advances a project by at most one refund batch.
//
// A project still due in the same state as at its last settle, such as one
// whose remaining contributors reject refunds, is retried with exponential
// backoff: it sits out 1, 3, 7, ... passes, up to MaxBackoff.
func (k *Keeper) Run(ctx context.Context) (Result, error) {
	views, err := k.hub.Projects(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list projects: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	due := make(map[string]bool, len(views))

	var (
		res     Result
		wg      sync.WaitGroup
		settled atomic.Int64
		failed  atomic.Int64
	)
	for _, v := range views {
		if !v.SettlementDue {
			continue
		}
		res.Due++
		name := v.Name
		due[name] = true
		if !k.ready(ctx, v) {
			res.Skipped++
			continue
		}

		wg.Add(1)
		err := k.pool.Submit(func() {
			defer wg.Done()
			if err := k.settle(ctx, name); err != nil {
				failed.Add(1)
				return
			}
			settled.Add(1)
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
			k.log(ctx, slog.LevelWarn, "settle not scheduled", "project", name, "error", err)
		}
	}
	wg.Wait()

	for name := range k.attempts {
		if !due[name] {
			delete(k.attempts, name)
		}
	}

	res.Settled = int(settled.Load())
	res.Failed = int(failed.Load())
	if res.Due > 0 {
		k.log(ctx, slog.LevelInfo, "settlement pass", "due", res.Due, "settled", res.Settled, "failed", res.Failed, "skipped", res.Skipped)
	}
	return res, nil
}

// ready reports whether v should be settled in this pass and records the
// attempt. Callers hold k.mu.
func (k *Keeper) ready(ctx context.Context, v hub.ProjectView) bool {
	at := progressOf(v)
	a, seen := k.attempts[v.Name]
	switch {
	case !seen || a.at != at:
		a = attempt{at: at}
	case a.wait > 0:
		a.wait--
		k.attempts[v.Name] = a
		return false
	default:
		a.misses++
		a.wait = k.backoff(a.misses)
		k.log(ctx, slog.LevelDebug, "settlement stalled", "project", v.Name, "misses", a.misses, "wait", a.wait)
	}
	k.attempts[v.Name] = a
	return true
}

func (k *Keeper) backoff(misses int) int {
	if misses >= 31 {
		return k.cfg.MaxBackoff
	}
	return min(1<<misses-1, k.cfg.MaxBackoff)
}

func (k *Keeper) settle(ctx context.Context, name string) error {
	receipt, err := k.hub.Settle(ctx, name, client.TxOpts{From: k.cfg.Account})
	switch {
	case err == nil:
		k.log(ctx, slog.LevelDebug, "project settled", "project", name, "tx", receipt.TxID, "gas_used", receipt.GasUsed)
		return nil
	case errors.Is(err, hub.ErrSettled), errors.Is(err, hub.ErrNotDue):
		// Another call got there first.
		return nil
	default:
		k.log(ctx, slog.LevelWarn, "settle failed", "project", name, "error", err)
		return err
	}
}

func (k *Keeper) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if k.logger == nil {
		return
	}
	k.logger.Log(ctx, level, msg, args...)
}
