package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"TaxPool/internal/ledger"
	"TaxPool/internal/model"

	"github.com/holiman/uint256"
	"go.dedis.ch/kyber/v4"
	"gopkg.in/yaml.v3"
)

// minJWTSecretLen is the shortest accepted HS256 signing secret.
const minJWTSecretLen = 32

// Config holds all application configuration.
type Config struct {
	Ledger struct {
		Address      string        `yaml:"address"`
		DevWallet    string        `yaml:"dev_wallet"`
		DevFeeBps    uint64        `yaml:"dev_fee_rate_bps"`
		TaxBps       uint64        `yaml:"tax_rate_bps"`
		SellTaxBps   *uint64       `yaml:"sell_tax_rate_bps"`
		MinPurchase  string        `yaml:"min_purchase"`
		Interval     time.Duration `yaml:"distribution_interval"`
		StateFile    string        `yaml:"state_file"`
		InitialFunds string        `yaml:"oracle_fee_funding"`
	} `yaml:"ledger"`
	// Bank state files keep native and fee-token balances across restarts.
	// Empty keeps a bank in memory only.
	Bank struct {
		NativeStateFile string `yaml:"native_state_file"`
		FeeStateFile    string `yaml:"fee_state_file"`
	} `yaml:"bank"`
	Vault struct {
		Address string `yaml:"address"`
		Owner   string `yaml:"owner"`
	} `yaml:"vault"`
	Oracle struct {
		Coordinator    string        `yaml:"coordinator"`
		KeyID          string        `yaml:"key_id"`
		Fee            string        `yaml:"fee"`
		QueueSize      int           `yaml:"queue_size"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"oracle"`
	Schedule struct {
		UpkeepCron string `yaml:"upkeep_cron"`
		SweepCron  string `yaml:"sweep_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Addr      string        `yaml:"addr"`
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"http"`
	// Genesis seeds native balances of the in-process bank at start-up.
	Genesis map[string]string `yaml:"genesis"`
	Proxy   string            `yaml:"proxy"`
}

// defaults returns a Config holding every default. Load decodes the file on
// top of it, so only keys absent from the file keep these values.
func defaults() *Config {
	cfg := &Config{}
	cfg.Ledger.Address = "taxpool-ledger"
	cfg.Ledger.DevFeeBps = 100
	cfg.Ledger.TaxBps = 1900
	cfg.Ledger.MinPurchase = "0.01 ether"
	cfg.Ledger.Interval = 7 * 24 * time.Hour
	cfg.Ledger.StateFile = "data/ledger_state.json"
	cfg.Ledger.InitialFunds = "10 ether"
	cfg.Bank.NativeStateFile = "data/native_bank.json"
	cfg.Bank.FeeStateFile = "data/fee_bank.json"
	cfg.Vault.Address = "taxpool-vault"
	cfg.Oracle.Coordinator = "vrf-coordinator"
	cfg.Oracle.KeyID = "default"
	cfg.Oracle.Fee = "0.1 ether"
	cfg.Oracle.QueueSize = 16
	cfg.Oracle.RequestTimeout = time.Hour
	cfg.Schedule.UpkeepCron = "0 */5 * * * *"
	cfg.Schedule.SweepCron = "0 */10 * * * *"
	cfg.Database.SQLitePath = "data/taxpool.db"
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.TokenTTL = 24 * time.Hour
	return cfg
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Keys present in the file win over defaults even when they are zero.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DEV_WALLET"); v != "" {
		cfg.Ledger.DevWallet = v
	}
	if v := os.Getenv("VAULT_OWNER"); v != "" {
		cfg.Vault.Owner = v
	}
	if v := os.Getenv("TAX_RATE_BPS"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Ledger.TaxBps = bps
		}
	}
	if v := os.Getenv("DISTRIBUTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ledger.Interval = d
		}
	}
	if v := os.Getenv("CRON_UPKEEP"); v != "" {
		cfg.Schedule.UpkeepCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.HTTP.JWTSecret = v
	}

	return cfg, nil
}

// SellTax returns the sell tax rate, which follows tax_rate_bps unless
// sell_tax_rate_bps is set.
func (c *Config) SellTax() uint64 {
	if c.Ledger.SellTaxBps != nil {
		return *c.Ledger.SellTaxBps
	}
	return c.Ledger.TaxBps
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Ledger.DevWallet == "" {
		return fmt.Errorf("ledger.dev_wallet is required")
	}
	if c.Vault.Owner == "" {
		return fmt.Errorf("vault.owner is required")
	}
	if c.Ledger.DevFeeBps+c.Ledger.TaxBps >= model.BpsDenominator {
		return fmt.Errorf("ledger.dev_fee_rate_bps + ledger.tax_rate_bps must be below %d", model.BpsDenominator)
	}
	if c.SellTax() >= model.BpsDenominator {
		return fmt.Errorf("ledger.sell_tax_rate_bps must be below %d", model.BpsDenominator)
	}
	if c.Ledger.Interval <= 0 {
		return fmt.Errorf("ledger.distribution_interval must be positive")
	}
	for name, v := range map[string]string{
		"ledger.min_purchase":       c.Ledger.MinPurchase,
		"ledger.oracle_fee_funding": c.Ledger.InitialFunds,
		"oracle.fee":                c.Oracle.Fee,
	} {
		if _, err := model.ParseAmount(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for addr, v := range c.Genesis {
		if _, err := model.ParseAmount(v); err != nil {
			return fmt.Errorf("genesis.%s: %w", addr, err)
		}
	}
	if c.Oracle.RequestTimeout < 0 {
		return fmt.Errorf("oracle.request_timeout must not be negative")
	}
	for name, v := range map[string]string{
		"ledger.address":     c.Ledger.Address,
		"vault.address":      c.Vault.Address,
		"oracle.coordinator": c.Oracle.Coordinator,
	} {
		if v == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if c.Ledger.Address == c.Vault.Address || c.Ledger.Address == c.Oracle.Coordinator || c.Vault.Address == c.Oracle.Coordinator {
		return fmt.Errorf("ledger.address, vault.address and oracle.coordinator must differ")
	}
	if c.Oracle.QueueSize <= 0 {
		return fmt.Errorf("oracle.queue_size must be positive")
	}
	if len(c.HTTP.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("http.jwt_secret must be at least %d bytes", minJWTSecretLen)
	}
	if c.HTTP.TokenTTL <= 0 {
		return fmt.Errorf("http.token_ttl must be positive")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	return nil
}

// LedgerConfig converts the ledger, oracle and vault sections into the
// ledger's construction parameters. Validate must have passed.
func (c *Config) LedgerConfig(coordinatorKey kyber.Point) ledger.Config {
	return ledger.Config{
		Address:        model.Address(c.Ledger.Address),
		DevWallet:      model.Address(c.Ledger.DevWallet),
		DevFeeBps:      c.Ledger.DevFeeBps,
		TaxBps:         c.Ledger.TaxBps,
		SellTaxBps:     c.SellTax(),
		MinPurchase:    mustAmount(c.Ledger.MinPurchase),
		Interval:       c.Ledger.Interval,
		RequestTimeout: c.Oracle.RequestTimeout,
		Coordinator:    model.Address(c.Oracle.Coordinator),
		CoordinatorKey: coordinatorKey,
		KeyID:          c.Oracle.KeyID,
		OracleFee:      mustAmount(c.Oracle.Fee),
		StateFile:      c.Ledger.StateFile,
	}
}

// GenesisBalances returns the parsed genesis allocations.
func (c *Config) GenesisBalances() map[model.Address]*uint256.Int {
	out := make(map[model.Address]*uint256.Int, len(c.Genesis))
	for addr, v := range c.Genesis {
		out[model.Address(addr)] = mustAmount(v)
	}
	return out
}

// OracleFee returns the parsed oracle fee.
func (c *Config) OracleFee() *uint256.Int { return mustAmount(c.Oracle.Fee) }

// OracleFunding returns the fee-token amount credited to the ledger at start.
func (c *Config) OracleFunding() *uint256.Int { return mustAmount(c.Ledger.InitialFunds) }

func mustAmount(s string) *uint256.Int {
	v, err := model.ParseAmount(s)
	if err != nil {
		panic(fmt.Sprintf("amount %q: %v", s, err))
	}
	return v
}
