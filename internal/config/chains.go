package config

import "strings"

// Preset describes a known chain: public RPC endpoint, chain ID,
// native currency and explorer API endpoint.
type Preset struct {
	Name              string
	RPCEndpoint       string
	WSEndpoint        string
	ChainID           uint64
	CurrencySymbol    string
	EtherscanEndpoint string
}

var presets = map[string]Preset{
	"ethereum": {
		Name:              "Ethereum",
		RPCEndpoint:       "https://eth.merkle.io",
		ChainID:           1,
		CurrencySymbol:    "ETH",
		EtherscanEndpoint: "https://api.etherscan.io/api",
	},
	"arbitrum": {
		Name:              "Arbitrum One",
		RPCEndpoint:       "https://arb1.arbitrum.io/rpc",
		ChainID:           42161,
		CurrencySymbol:    "ETH",
		EtherscanEndpoint: "https://api.arbiscan.io/api",
	},
	"optimism": {
		Name:              "Optimism",
		RPCEndpoint:       "https://mainnet.optimism.io",
		ChainID:           10,
		CurrencySymbol:    "ETH",
		EtherscanEndpoint: "https://api-optimistic.etherscan.io/api",
	},
	"base": {
		Name:              "Base",
		RPCEndpoint:       "https://mainnet.base.org",
		ChainID:           8453,
		CurrencySymbol:    "ETH",
		EtherscanEndpoint: "https://api.basescan.org/api",
	},
	"polygon": {
		Name:              "Polygon PoS",
		RPCEndpoint:       "https://polygon-rpc.com",
		ChainID:           137,
		CurrencySymbol:    "POL",
		EtherscanEndpoint: "https://api.polygonscan.com/api",
	},
}

var aliases = map[string]string{
	"mainnet":      "ethereum",
	"eth":          "ethereum",
	"arb":          "arbitrum",
	"arbitrum-one": "arbitrum",
	"op":           "optimism",
	"matic":        "polygon",
}

// ChainPreset looks up a chain preset by name or alias, case-insensitively.
func ChainPreset(name string) (Preset, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	preset, ok := presets[key]
	return preset, ok
}

// ChainNames returns the canonical preset names.
func ChainNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
