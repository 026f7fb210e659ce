package constants

import "github.com/ethereum/go-ethereum/common"

// Well-known contract addresses, identical on every chain that carries them.
var (
	// Multicall3Address is the canonical Multicall3 deployment, present at
	// the same address on all major EVM chains.
	Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

	// EnsRegistryAddress is the ENS registry on Ethereum mainnet.
	EnsRegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")
)

// EIP1967ImplementationSlot is the storage slot holding a proxy's
// implementation address per EIP-1967:
// keccak256("eip1967.proxy.implementation") - 1.
var EIP1967ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
