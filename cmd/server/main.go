package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundinghub/internal/client"
	"github.com/rpggio/fundinghub/internal/config"
	"github.com/rpggio/fundinghub/internal/contract"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/keeper"
	"github.com/rpggio/fundinghub/internal/ledger"
	"github.com/rpggio/fundinghub/internal/mcp"
	"github.com/rpggio/fundinghub/internal/repository"
	"github.com/rpggio/fundinghub/internal/sqlite"
	"github.com/rpggio/fundinghub/internal/transport"
	"github.com/rpggio/fundinghub/internal/web"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		if err := ensureDir(cfg.Log.Path); err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			rotator := &lumberjack.Logger{
				Filename:   cfg.Log.Path,
				MaxSize:    cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAge:     cfg.Log.MaxAgeDays,
				Compress:   cfg.Log.Compress,
			}
			defer rotator.Close()
			logWriter = rotator
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if err := ensureDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	c, hubAddr, err := startLedger(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer c.Stop()

	accounts := sqlite.NewAccountRepository(db)
	if err := provisionKeys(ctx, accounts, cfg.Auth.Keys, logger); err != nil {
		return err
	}

	h, err := client.New(client.Config{
		Address:      hubAddr.Hex(),
		NetworkID:    c.NetworkID(),
		Provider:     c,
		Defaults:     client.TxOpts{Gas: cfg.Ledger.GasLimit},
		WaitTimeout:  cfg.Client.WaitTimeout,
		PollInterval: cfg.Client.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("bind hub: %w", err)
	}

	resolver := transport.APIKeyResolver{Store: accounts}
	mcpServer := mcp.NewServer(mcp.Config{
		Services:       mcp.Services{Hub: h, Ledger: c},
		Resolver:       resolver,
		DefaultAccount: defaultAccount(cfg),
		AuthEnabled:    cfg.Auth.Enabled,
		TransportMode:  cfg.Transport.Mode,
		Logger:         logger,
	})

	if cfg.Transport.Mode == "stdio" {
		return runStdioMode(logger, mcpServer)
	}
	return runHTTPMode(ctx, cfg, logger, c, h, resolver, mcpServer)
}

// startLedger opens the chain, applies genesis balances and deploys the hub.
func startLedger(ctx context.Context, cfg config.Config, db *sqlite.DB, logger *slog.Logger) (*ledger.Chain, common.Address, error) {
	c, err := ledger.New(ctx, db, ledger.Options{
		NetworkID:   cfg.Ledger.NetworkID,
		GasLimit:    cfg.Ledger.GasLimit,
		MempoolSize: cfg.Ledger.MempoolSize,
		Clock:       ledger.SystemClock{},
	}, logger)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("open ledger: %w", err)
	}

	for _, g := range cfg.Ledger.Genesis {
		amount, err := g.Amount()
		if err != nil {
			return nil, common.Address{}, err
		}
		addr := common.HexToAddress(g.Address)
		balance, err := c.Balance(ctx, addr)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("read genesis balance: %w", err)
		}
		// Only top up to the allocation, so restarts don't mint again.
		if balance.Cmp(amount) < 0 {
			if err := c.Fund(ctx, addr, new(big.Int).Sub(amount, balance)); err != nil {
				return nil, common.Address{}, fmt.Errorf("fund %s: %w", addr.Hex(), err)
			}
		}
	}

	fundingHub := contract.NewFundingHub(hub.Options{SettleBatchSize: cfg.Hub.SettleBatchSize}, logger)
	hubAddr, err := c.Deploy(ctx, common.HexToAddress(cfg.Ledger.Deployer), fundingHub)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("deploy hub: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, common.Address{}, fmt.Errorf("start ledger: %w", err)
	}
	logger.Info("ledger started", "network_id", c.NetworkID(), "hub", hubAddr.Hex())
	return c, hubAddr, nil
}

func provisionKeys(ctx context.Context, accounts *sqlite.AccountRepository, keys []config.APIKey, logger *slog.Logger) error {
	for _, k := range keys {
		account := common.HexToAddress(k.Account)
		err := accounts.CreateAPIKey(ctx, transport.HashToken(k.Token), account, k.Description)
		switch {
		case errors.Is(err, repository.ErrConflict):
		case err != nil:
			return fmt.Errorf("provision api key for %s: %w", account.Hex(), err)
		default:
			logger.Info("api key provisioned", "account", account.Hex())
		}
	}
	return nil
}

func defaultAccount(cfg config.Config) common.Address {
	if cfg.Web.Account != "" {
		return common.HexToAddress(cfg.Web.Account)
	}
	return common.HexToAddress(cfg.Ledger.Deployer)
}

func runStdioMode(logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTPMode(ctx context.Context, cfg config.Config, logger *slog.Logger, c *ledger.Chain, h *client.Hub, resolver transport.AccountResolver, mcpServer *sdkmcp.Server) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	var authMw func(http.Handler) http.Handler
	var webAuth transport.AccountResolver
	if cfg.Auth.Enabled {
		authMw = transport.AuthMiddleware(resolver)
		webAuth = resolver
	}
	router := transport.NewServer(c, authMw, logger)
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)

	servers := []*http.Server{{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}}

	if cfg.Web.Enabled {
		servers = append(servers, &http.Server{
			Addr: fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
			Handler: web.NewRouter(web.Config{
				Hub:          h,
				Events:       c,
				Account:      defaultAccount(cfg),
				Auth:         webAuth,
				AllowOrigins: cfg.Web.AllowOrigins,
				Logger:       logger,
			}),
		})
	}

	if cfg.Keeper.Enabled {
		k, err := keeper.New(h, keeper.Config{
			Interval: cfg.Keeper.Interval,
			Workers:  cfg.Keeper.Workers,
			Account:  common.HexToAddress(cfg.Keeper.Account),
		}, logger)
		if err != nil {
			return err
		}
		if err := k.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := k.Stop(); err != nil {
				logger.Error("keeper shutdown error", "error", err)
			}
		}()
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "addr", srv.Addr, "error", err)
			}
		}(srv)
	}

	waitForShutdown(logger, servers...)
	return nil
}

func ensureDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, servers ...*http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "addr", srv.Addr, "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
