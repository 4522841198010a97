// Package config loads portal configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Data store drivers.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete runtime configuration.
type Config struct {
	Wallet    WalletConfig
	Fee       FeeConfig
	Chain     ChainConfig
	Store     StoreConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Reconcile ReconcileConfig
}

// WalletConfig controls wallet support and provider discovery.
type WalletConfig struct {
	Enabled       bool   `env:"WALLET_ENABLED"`
	LegacyEnabled bool   `env:"ENABLE_WALLET"`
	KeypairPath   string `env:"WALLET_KEYPAIR_PATH"`
	KeyEnv        string `env:"WALLET_KEY_ENV,default=WALLET_PRIVATE_KEY"`
	// Injected lists wallet daemons exposed as injected providers: "key=url,key=url".
	Injected string `env:"WALLET_INJECTED"`
	// Packages lists optional adapter packages: "name=url,name=url".
	Packages       string `env:"WALLET_PACKAGES"`
	BrandsFile     string `env:"WALLET_BRANDS_FILE"`
	DefaultAdapter string `env:"WALLET_DEFAULT_ADAPTER"`
}

// FeeConfig describes the per-vote token fee.
type FeeConfig struct {
	Mint             string `env:"ME_MINT"`
	Decimals         int    `env:"ME_DECIMALS,default=6"`
	Amount           string `env:"VOTE_FEE,default=0.5"`
	Recipient        string `env:"REWARDS_WALLET"`
	LegacyRecipient  string `env:"REWARDS_VAULT"`
	ComputeUnitLimit int    `env:"COMPUTE_UNIT_LIMIT,default=300000"`
	ComputeUnitPrice int64  `env:"COMPUTE_UNIT_PRICE,default=1000"`
}

// ChainConfig points at the ledger RPC.
type ChainConfig struct {
	RPC            string        `env:"SOLANA_RPC"`
	Cluster        string        `env:"SOLANA_CLUSTER,default=devnet"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT,default=90s"`
	PollInterval   time.Duration `env:"CONFIRM_POLL_INTERVAL,default=2s"`
}

// StoreConfig selects the vote data store and the device-local state file.
type StoreConfig struct {
	Driver      string `env:"DATA_STORE,default=supabase"`
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_ANON_KEY"`
	DatabaseURL string `env:"DATABASE_URL"`
	StatePath   string `env:"STATE_PATH,default=edens-gates.db"`
	// SeedFile optionally preloads the memory store from YAML.
	SeedFile string `env:"MEMORY_SEED_FILE"`
}

// HTTPConfig configures the local API.
type HTTPConfig struct {
	Addr      string  `env:"HTTP_ADDR,default=:8080"`
	RateLimit float64 `env:"RATE_LIMIT_RPS,default=5"`
	Burst     int     `env:"RATE_LIMIT_BURST,default=10"`
	// CORSOrigins is a comma-separated list of UI origins; "*" allows any.
	CORSOrigins string `env:"CORS_ORIGINS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// ReconcileConfig schedules the unrecorded-fee reconciler.
type ReconcileConfig struct {
	Schedule    string `env:"RECONCILE_SCHEDULE,default=@every 5m"`
	MaxAttempts int    `env:"RECONCILE_MAX_ATTEMPTS,default=20"`
}

// Endpoint is a named URL parsed from a "name=url" list.
type Endpoint struct {
	Name string
	URL  string
}

// Load reads an optional dotenv file and decodes the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// WalletOn reports whether wallet-backed voting is enabled.
func (c *Config) WalletOn() bool {
	return c.Wallet.Enabled || c.Wallet.LegacyEnabled
}

// RewardsWallet returns the fee recipient, honouring the legacy key.
func (c *Config) RewardsWallet() string {
	if c.Fee.Recipient != "" {
		return c.Fee.Recipient
	}
	return c.Fee.LegacyRecipient
}

// RPCEndpoint returns the explicit RPC URL or the one for the configured cluster.
func (c *Config) RPCEndpoint() string {
	if c.Chain.RPC != "" {
		return c.Chain.RPC
	}
	switch strings.ToLower(c.Chain.Cluster) {
	case "mainnet", "mainnet-beta":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

// CORSOrigins splits CORS_ORIGINS.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.HTTP.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// InjectedProviders parses WALLET_INJECTED.
func (c *Config) InjectedProviders() ([]Endpoint, error) {
	return ParseEndpoints(c.Wallet.Injected)
}

// OptionalPackages parses WALLET_PACKAGES.
func (c *Config) OptionalPackages() ([]Endpoint, error) {
	return ParseEndpoints(c.Wallet.Packages)
}

// FeeAmount parses the decimal vote fee.
func (c *Config) FeeAmount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Fee.Amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("VOTE_FEE %q: %w", c.Fee.Amount, err)
	}
	return amount, nil
}

// Validate checks the configuration for the selected modes.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase data store")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres data store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DATA_STORE %q", c.Store.Driver)
	}

	if c.Chain.ConfirmTimeout <= 0 || c.Chain.PollInterval <= 0 {
		return errors.New("CONFIRM_TIMEOUT and CONFIRM_POLL_INTERVAL must be positive")
	}
	if _, err := c.InjectedProviders(); err != nil {
		return err
	}
	if _, err := c.OptionalPackages(); err != nil {
		return err
	}

	if !c.WalletOn() {
		return nil
	}
	if c.Fee.Mint == "" || c.RewardsWallet() == "" {
		return errors.New("wallet voting requires ME_MINT and REWARDS_WALLET")
	}
	if _, err := solana.PublicKeyFromBase58(c.Fee.Mint); err != nil {
		return fmt.Errorf("ME_MINT: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.RewardsWallet()); err != nil {
		return fmt.Errorf("REWARDS_WALLET: %w", err)
	}
	amount, err := c.FeeAmount()
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("VOTE_FEE must be positive, got %s", amount)
	}
	if c.Fee.Decimals < 0 || c.Fee.Decimals > 255 {
		return fmt.Errorf("ME_DECIMALS out of range: %d", c.Fee.Decimals)
	}
	if c.Fee.ComputeUnitLimit <= 0 || c.Fee.ComputeUnitLimit > 1_400_000 {
		return fmt.Errorf("COMPUTE_UNIT_LIMIT out of range: %d", c.Fee.ComputeUnitLimit)
	}
	if c.Fee.ComputeUnitPrice < 0 {
		return fmt.Errorf("COMPUTE_UNIT_PRICE must not be negative: %d", c.Fee.ComputeUnitPrice)
	}
	return nil
}

// ParseEndpoints parses "name=url,name=url" preserving order.
func ParseEndpoints(raw string) ([]Endpoint, error) {
	var out []Endpoint
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("malformed endpoint %q, want name=url", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate endpoint name %q", name)
		}
		seen[name] = true
		out = append(out, Endpoint{Name: name, URL: url})
	}
	return out, nil
}
