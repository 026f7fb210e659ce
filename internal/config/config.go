// Package config loads ethpeek configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the data service.
type Config struct {
	Chain     string          `yaml:"chain"`
	RPC       RPCConfig       `yaml:"rpc"`
	Etherscan EtherscanConfig `yaml:"etherscan"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Fetch     FetchConfig     `yaml:"fetch"`
}

// RPCConfig holds JSON-RPC client configuration.
type RPCConfig struct {
	// Endpoint is the HTTP(S) JSON-RPC endpoint URL.
	Endpoint string `yaml:"endpoint"`
	// WSEndpoint is the optional WebSocket endpoint. When empty the
	// subscription service never starts and operation is polling-only.
	WSEndpoint string        `yaml:"ws_endpoint,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
	// ChainID is the numeric chain ID, used for Sourcify lookups and
	// sanity-checked against the node at startup.
	ChainID uint64 `yaml:"chain_id"`
	// CurrencySymbol is the native currency ticker ("ETH", "POL").
	CurrencySymbol string `yaml:"currency_symbol"`
}

// EtherscanConfig holds explorer API configuration. An empty APIKey
// disables the Etherscan ABI source and transaction history.
type EtherscanConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// CacheConfig holds cache sizing and TTL overrides.
type CacheConfig struct {
	// Capacity is the global entry limit shared by all categories.
	Capacity int `yaml:"capacity"`
	// BlockTTL etc. override the per-category defaults when non-zero.
	BlockTTL   time.Duration `yaml:"block_ttl,omitempty"`
	BalanceTTL time.Duration `yaml:"balance_ttl,omitempty"`
	GasTTL     time.Duration `yaml:"gas_ttl,omitempty"`
	AbiTTL     time.Duration `yaml:"abi_ttl,omitempty"`
	EnsTTL     time.Duration `yaml:"ens_ttl,omitempty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetchConfig holds data service tuning.
type FetchConfig struct {
	// RecentBlocks is how many blocks a block-list fetch returns.
	RecentBlocks int `yaml:"recent_blocks"`
	// Retries is the attempt count for transient RPC failures.
	Retries int `yaml:"retries"`
	// RetryDelay is the fixed delay between retry attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration. A known chain
// name fills in endpoint, chain ID and currency symbol from the preset
// table unless the user overrode them.
func (c *Config) SetDefaults() {
	if c.Chain == "" {
		c.Chain = "ethereum"
	}
	if preset, ok := ChainPreset(c.Chain); ok {
		if c.RPC.Endpoint == "" {
			c.RPC.Endpoint = preset.RPCEndpoint
		}
		if c.RPC.WSEndpoint == "" {
			c.RPC.WSEndpoint = preset.WSEndpoint
		}
		if c.RPC.ChainID == 0 {
			c.RPC.ChainID = preset.ChainID
		}
		if c.RPC.CurrencySymbol == "" {
			c.RPC.CurrencySymbol = preset.CurrencySymbol
		}
		if c.Etherscan.Endpoint == "" {
			c.Etherscan.Endpoint = preset.EtherscanEndpoint
		}
	}

	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = 30 * time.Second
	}
	if c.RPC.CurrencySymbol == "" {
		c.RPC.CurrencySymbol = "ETH"
	}

	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 1000
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Fetch.RecentBlocks == 0 {
		c.Fetch.RecentBlocks = 20
	}
	if c.Fetch.Retries == 0 {
		c.Fetch.Retries = 3
	}
	if c.Fetch.RetryDelay == 0 {
		c.Fetch.RetryDelay = 500 * time.Millisecond
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if chain := os.Getenv("ETHPEEK_CHAIN"); chain != "" {
		c.Chain = chain
	}
	if endpoint := os.Getenv("ETHPEEK_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if ws := os.Getenv("ETHPEEK_WS_ENDPOINT"); ws != "" {
		c.RPC.WSEndpoint = ws
	}
	if timeout := os.Getenv("ETHPEEK_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid ETHPEEK_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = duration
	}
	if chainID := os.Getenv("ETHPEEK_CHAIN_ID"); chainID != "" {
		val, err := strconv.ParseUint(chainID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ETHPEEK_CHAIN_ID: %w", err)
		}
		c.RPC.ChainID = val
	}
	if key := os.Getenv("ETHPEEK_ETHERSCAN_API_KEY"); key != "" {
		c.Etherscan.APIKey = key
	}
	if endpoint := os.Getenv("ETHPEEK_ETHERSCAN_ENDPOINT"); endpoint != "" {
		c.Etherscan.Endpoint = endpoint
	}
	if capacity := os.Getenv("ETHPEEK_CACHE_CAPACITY"); capacity != "" {
		val, err := strconv.Atoi(capacity)
		if err != nil {
			return fmt.Errorf("invalid ETHPEEK_CACHE_CAPACITY: %w", err)
		}
		c.Cache.Capacity = val
	}
	if level := os.Getenv("ETHPEEK_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("ETHPEEK_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if recent := os.Getenv("ETHPEEK_FETCH_RECENT_BLOCKS"); recent != "" {
		val, err := strconv.Atoi(recent)
		if err != nil {
			return fmt.Errorf("invalid ETHPEEK_FETCH_RECENT_BLOCKS: %w", err)
		}
		c.Fetch.RecentBlocks = val
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive")
	}
	if c.Fetch.RecentBlocks <= 0 {
		return fmt.Errorf("recent block count must be positive")
	}
	if c.Fetch.Retries < 1 {
		return fmt.Errorf("retry count must be at least 1")
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for anything still unset
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
