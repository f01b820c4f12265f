package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Hub       HubConfig       `yaml:"hub"`
	Client    ClientConfig    `yaml:"client"`
	Keeper    KeeperConfig    `yaml:"keeper"`
	Web       WebConfig       `yaml:"web"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the slog handler. When Path is set logs go to a
// rotated file instead of the console.
type LogConfig struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type TransportConfig struct {
	// Mode is "http" or "stdio". stdio serves MCP only.
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Keys are provisioned into the api key table at startup.
	Keys []APIKey `yaml:"keys"`
}

// APIKey binds a bearer token to a ledger account.
type APIKey struct {
	Token       string `yaml:"token"`
	Account     string `yaml:"account"`
	Description string `yaml:"description"`
}

type LedgerConfig struct {
	NetworkID   uint64           `yaml:"network_id"`
	GasLimit    uint64           `yaml:"gas_limit"`
	MempoolSize int              `yaml:"mempool_size"`
	Deployer    string           `yaml:"deployer"`
	Genesis     []GenesisAccount `yaml:"genesis"`
}

// GenesisAccount is a startup balance allocation. Balance is in wei.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// Amount parses Balance.
func (g GenesisAccount) Amount() (*big.Int, error) {
	v, ok := new(big.Int).SetString(g.Balance, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid genesis balance %q for %s", g.Balance, g.Address)
	}
	return v, nil
}

type HubConfig struct {
	SettleBatchSize int `yaml:"settle_batch_size"`
}

type ClientConfig struct {
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type KeeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Workers  int           `yaml:"workers"`
	// Account submits the settle calls.
	Account string `yaml:"account"`
}

type WebConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
	// Account is the sender for calls made through the forms.
	Account string `yaml:"account"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8545,
		},
		DB: DBConfig{
			Path: "fundhub.db",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Ledger: LedgerConfig{
			NetworkID:   1337,
			GasLimit:    4_712_300,
			MempoolSize: 256,
			Deployer:    "0x00000000000000000000000000000000000000f0",
		},
		Hub: HubConfig{
			SettleBatchSize: 50,
		},
		Client: ClientConfig{
			WaitTimeout:  240 * time.Second,
			PollInterval: time.Second,
		},
		Keeper: KeeperConfig{
			Interval: 30 * time.Second,
			Workers:  4,
			Account:  "0x00000000000000000000000000000000000000f0",
		},
		Web: WebConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			AllowOrigins: []string{"*"},
		},
	}
}

// Load reads configuration from an optional .env file, an optional YAML file
// and environment variables, in increasing precedence.
func Load() (Config, error) {
	envFile := os.Getenv("FUNDHUB_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("FUNDHUB_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("FUNDHUB_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("FUNDHUB_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if dbPath := os.Getenv("FUNDHUB_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("FUNDHUB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("FUNDHUB_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if mode := os.Getenv("FUNDHUB_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if err := envBool("FUNDHUB_AUTH_ENABLED", &cfg.Auth.Enabled); err != nil {
		return err
	}
	if raw := os.Getenv("FUNDHUB_NETWORK_ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FUNDHUB_NETWORK_ID: %w", err)
		}
		cfg.Ledger.NetworkID = id
	}
	if raw := os.Getenv("FUNDHUB_GAS_LIMIT"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FUNDHUB_GAS_LIMIT: %w", err)
		}
		cfg.Ledger.GasLimit = limit
	}
	if err := envInt("FUNDHUB_SETTLE_BATCH_SIZE", &cfg.Hub.SettleBatchSize); err != nil {
		return err
	}
	if err := envDuration("FUNDHUB_CLIENT_WAIT_TIMEOUT", &cfg.Client.WaitTimeout); err != nil {
		return err
	}
	if err := envBool("FUNDHUB_KEEPER_ENABLED", &cfg.Keeper.Enabled); err != nil {
		return err
	}
	if err := envDuration("FUNDHUB_KEEPER_INTERVAL", &cfg.Keeper.Interval); err != nil {
		return err
	}
	if err := envInt("FUNDHUB_KEEPER_WORKERS", &cfg.Keeper.Workers); err != nil {
		return err
	}
	if err := envBool("FUNDHUB_WEB_ENABLED", &cfg.Web.Enabled); err != nil {
		return err
	}
	if err := envInt("FUNDHUB_WEB_PORT", &cfg.Web.Port); err != nil {
		return err
	}
	if account := os.Getenv("FUNDHUB_WEB_ACCOUNT"); account != "" {
		cfg.Web.Account = account
	}
	return nil
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	if c.Transport.Mode != "http" && c.Transport.Mode != "stdio" {
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Ledger.GasLimit == 0 {
		return errors.New("ledger gas limit must be positive")
	}
	if c.Hub.SettleBatchSize <= 0 {
		return errors.New("hub settle batch size must be positive")
	}
	if c.Keeper.Enabled && c.Keeper.Interval <= 0 {
		return errors.New("keeper interval must be positive")
	}
	addresses := map[string]string{
		"ledger.deployer": c.Ledger.Deployer,
		"keeper.account":  c.Keeper.Account,
	}
	if c.Web.Account != "" {
		addresses["web.account"] = c.Web.Account
	}
	for i, g := range c.Ledger.Genesis {
		addresses[fmt.Sprintf("ledger.genesis[%d]", i)] = g.Address
		if _, err := g.Amount(); err != nil {
			return err
		}
	}
	for i, k := range c.Auth.Keys {
		addresses[fmt.Sprintf("auth.keys[%d]", i)] = k.Account
		if k.Token == "" {
			return fmt.Errorf("auth.keys[%d]: empty token", i)
		}
	}
	for field, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q", field, addr)
		}
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func envInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func envBool(key string, dst *bool) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
