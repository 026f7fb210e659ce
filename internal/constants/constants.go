// Package constants collects shared defaults and well-known chain values.
package constants

import "time"

// Cache Constants
const (
	// DefaultCacheCapacity is the global entry limit across all cache categories
	DefaultCacheCapacity = 1000

	// BlockTTL is how long block summaries and details stay fresh
	BlockTTL = time.Hour

	// TransactionTTL is how long transaction details stay fresh
	TransactionTTL = time.Hour

	// BalanceTTL is how long address balances stay fresh
	BalanceTTL = 30 * time.Second

	// GasInfoTTL is how long gas price data stays fresh, roughly one block
	GasInfoTTL = 12 * time.Second

	// TokenMetadataTTL is how long token name/symbol/decimals stay fresh
	TokenMetadataTTL = time.Hour

	// AbiTTL is how long resolved contract ABIs stay fresh
	AbiTTL = time.Hour

	// EnsNameTTL is how long ENS resolutions stay fresh
	EnsNameTTL = 10 * time.Minute
)

// RPC Constants
const (
	// DefaultRPCTimeout is the default timeout for a single RPC call
	DefaultRPCTimeout = 30 * time.Second

	// DefaultMaxRetries is the attempt count for transient transport failures
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the fixed delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond
)

// Subscription Constants
const (
	// InitialReconnectDelay is the first reconnect backoff step
	InitialReconnectDelay = time.Second

	// MaxReconnectDelay caps the doubling reconnect backoff
	MaxReconnectDelay = 30 * time.Second
)

// Gas Constants
const (
	// FeeHistoryBlockCount is how many recent blocks feed gas estimation
	FeeHistoryBlockCount = 20

	// CongestionBaseFeeWei marks the base fee above which the network
	// is reported as congested (100 gwei)
	CongestionBaseFeeWei = 100_000_000_000

	// TxGasLimit is the intrinsic gas of a plain value transfer
	TxGasLimit = 21000
)

// Registry Constants
const (
	// SourcifyEndpoint is the Sourcify full-match repository base URL
	SourcifyEndpoint = "https://repo.sourcify.dev"

	// FourByteEndpoint is the 4byte.directory signature lookup base URL
	FourByteEndpoint = "https://www.4byte.directory"

	// RegistryRequestTimeout bounds a single registry HTTP lookup
	RegistryRequestTimeout = 10 * time.Second

	// RegistryRatePerSecond limits outbound registry lookups
	RegistryRatePerSecond = 5
)
