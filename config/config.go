package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// CollateralConfig declares one accepted collateral asset and its price
// source. The set is fixed at startup; the engine registry is immutable.
type CollateralConfig struct {
	Symbol  string `toml:"Symbol"`
	Address string `toml:"Address"`
	FeedURL string `toml:"FeedURL"`
}

// Config captures the runtime configuration for the synthetic-dollar daemon.
type Config struct {
	ListenAddress  string             `toml:"ListenAddress"`
	DataDir        string             `toml:"DataDir"`
	Environment    string             `toml:"Environment"`
	CustodyAddress string             `toml:"CustodyAddress"`
	DebtSymbol     string             `toml:"DebtSymbol"`
	DebtAddress    string             `toml:"DebtAddress"`
	LogFile        string             `toml:"LogFile"`
	LogMaxSizeMB   int                `toml:"LogMaxSizeMB"`
	LogMaxBackups  int                `toml:"LogMaxBackups"`
	Collateral     []CollateralConfig `toml:"collateral"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.Environment = strings.TrimSpace(c.Environment)
	c.DebtSymbol = strings.TrimSpace(c.DebtSymbol)
	if c.ListenAddress == "" {
		c.ListenAddress = ":8725"
	}
	if c.DataDir == "" {
		c.DataDir = "./synthd-data"
	}
	if c.DebtSymbol == "" {
		c.DebtSymbol = "DSC"
	}
	for i := range c.Collateral {
		c.Collateral[i].Symbol = strings.TrimSpace(c.Collateral[i].Symbol)
		c.Collateral[i].Address = strings.TrimSpace(c.Collateral[i].Address)
		c.Collateral[i].FeedURL = strings.TrimSpace(c.Collateral[i].FeedURL)
	}
}

// Validate rejects configurations that cannot produce a working engine.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.CustodyAddress) {
		return fmt.Errorf("CustodyAddress %q is not a hex address", c.CustodyAddress)
	}
	if !common.IsHexAddress(c.DebtAddress) {
		return fmt.Errorf("DebtAddress %q is not a hex address", c.DebtAddress)
	}
	if len(c.Collateral) == 0 {
		return fmt.Errorf("at least one [[collateral]] entry is required")
	}
	seen := make(map[common.Address]string, len(c.Collateral))
	for _, entry := range c.Collateral {
		if entry.Symbol == "" {
			return fmt.Errorf("collateral entry missing Symbol")
		}
		if !common.IsHexAddress(entry.Address) {
			return fmt.Errorf("collateral %s: Address %q is not a hex address", entry.Symbol, entry.Address)
		}
		if entry.FeedURL == "" {
			return fmt.Errorf("collateral %s: FeedURL is required", entry.Symbol)
		}
		addr := common.HexToAddress(entry.Address)
		if prev, dup := seen[addr]; dup {
			return fmt.Errorf("collateral %s: Address already used by %s", entry.Symbol, prev)
		}
		seen[addr] = entry.Symbol
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  ":8725",
		DataDir:        "./synthd-data",
		Environment:    "local",
		CustodyAddress: "0x00000000000000000000000000000000000D5CED",
		DebtSymbol:     "DSC",
		DebtAddress:    "0x00000000000000000000000000000000000D5C00",
		Collateral: []CollateralConfig{
			{
				Symbol:  "WETH",
				Address: "0x0000000000000000000000000000000000000E01",
				FeedURL: "http://127.0.0.1:8726/feeds/eth-usd",
			},
			{
				Symbol:  "WBTC",
				Address: "0x0000000000000000000000000000000000000B01",
				FeedURL: "http://127.0.0.1:8726/feeds/btc-usd",
			},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
