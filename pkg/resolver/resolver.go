// Package resolver finds contract ABIs by walking an ordered chain of
// sources: cache, builtin standards, Sourcify, Etherscan. Misses are
// cached as an Unknown sentinel so repeated lookups stay off the network.
package resolver

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
	"github.com/0xmhha/ethpeek/pkg/abi"
	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/etherscan"
	"github.com/0xmhha/ethpeek/pkg/sourcify"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// coreSelectorThreshold is the number of core selectors a deployed
// bytecode must embed before the builtin heuristic accepts a standard.
const coreSelectorThreshold = 3

// ChainReader is the subset of the chain client the resolver needs.
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	GetChainID(ctx context.Context) (*big.Int, error)
}

// SourcifySource fetches verification metadata from a Sourcify repository.
type SourcifySource interface {
	Metadata(ctx context.Context, chainID uint64, address common.Address) (*sourcify.Result, error)
}

// EtherscanSource fetches verified ABIs from an Etherscan-style API.
type EtherscanSource interface {
	HasAPIKey() bool
	ContractABI(ctx context.Context, address common.Address) (string, error)
}

type Config struct {
	Chain     ChainReader
	Cache     *cache.Store
	Sourcify  SourcifySource
	Etherscan EtherscanSource
	// ChainID selects the Sourcify repository partition. Zero means
	// query the node once on first use.
	ChainID  uint64
	Selector *SelectorClient
	Logger   *zap.Logger
}

// inflightCall lets concurrent resolutions for one address share a
// single lookup.
type inflightCall struct {
	done chan struct{}
	abi  *abi.ContractABI
	err  error
}

type Resolver struct {
	chain     ChainReader
	cache     *cache.Store
	sourcify  SourcifySource
	etherscan EtherscanSource
	selector  *SelectorClient
	logger    *zap.Logger

	chainIDMu sync.Mutex
	chainID   uint64

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

func New(cfg Config) (*Resolver, error) {
	if cfg.Chain == nil {
		return nil, errors.New("resolver: chain reader is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		chain:     cfg.Chain,
		cache:     cfg.Cache,
		sourcify:  cfg.Sourcify,
		etherscan: cfg.Etherscan,
		selector:  cfg.Selector,
		chainID:   cfg.ChainID,
		logger:    logger.Named("resolver"),
		inflight:  make(map[string]*inflightCall),
	}, nil
}

// Resolve returns the best available ABI for a contract. The result is
// never nil on a nil error; an address with no resolvable ABI yields the
// Unknown sentinel. Concurrent calls for the same address share one
// lookup.
func (r *Resolver) Resolve(ctx context.Context, address common.Address) (*abi.ContractABI, error) {
	key := peektypes.NormalizeAddress(address)
	if cached, ok := r.cacheGet(key); ok {
		return cached, nil
	}

	r.mu.Lock()
	if call, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.abi, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[key] = call
	r.mu.Unlock()

	call.abi, call.err = r.resolve(ctx, address)
	if call.err == nil {
		r.cachePut(key, call.abi)
	}

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	close(call.done)

	return call.abi, call.err
}

func (r *Resolver) resolve(ctx context.Context, address common.Address) (*abi.ContractABI, error) {
	code, err := r.chain.CodeAt(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return abi.NewUnknownABI(address), nil
	}

	if impl, ok := r.proxyImplementation(ctx, address); ok {
		resolved, err := r.resolveDirect(ctx, impl)
		if err != nil {
			return nil, err
		}
		if !resolved.IsUnknown() {
			r.logger.Debug("resolved proxy implementation",
				zap.String("proxy", address.Hex()),
				zap.String("implementation", impl.Hex()))
			return resolved.WithAddress(address), nil
		}
		// Fall through and try the proxy's own bytecode.
	}

	return r.resolveWithCode(ctx, address, code)
}

// resolveDirect resolves an implementation address without another proxy
// indirection. Proxy chains are followed one level only.
func (r *Resolver) resolveDirect(ctx context.Context, address common.Address) (*abi.ContractABI, error) {
	code, err := r.chain.CodeAt(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return abi.NewUnknownABI(address), nil
	}
	return r.resolveWithCode(ctx, address, code)
}

func (r *Resolver) resolveWithCode(ctx context.Context, address common.Address, code []byte) (*abi.ContractABI, error) {
	if builtin := r.matchBuiltin(ctx, address, code); builtin != nil {
		return builtin, nil
	}
	if resolved := r.fromSourcify(ctx, address); resolved != nil {
		return resolved, nil
	}
	if resolved := r.fromEtherscan(ctx, address); resolved != nil {
		return resolved, nil
	}
	return abi.NewUnknownABI(address), nil
}

// proxyImplementation reads the EIP-1967 implementation slot. A zero
// word means the contract is not such a proxy.
func (r *Resolver) proxyImplementation(ctx context.Context, address common.Address) (common.Address, bool) {
	word, err := r.chain.StorageAt(ctx, address, constants.EIP1967ImplementationSlot)
	if err != nil {
		r.logger.Debug("implementation slot read failed",
			zap.String("address", address.Hex()), zap.Error(err))
		return common.Address{}, false
	}
	impl := common.BytesToAddress(word)
	if impl == (common.Address{}) {
		return common.Address{}, false
	}
	return impl, true
}

// matchBuiltin tries the token standards. An ERC-165 answer wins; the
// bytecode selector scan is the fallback for pre-165 contracts.
func (r *Resolver) matchBuiltin(ctx context.Context, address common.Address, code []byte) *abi.ContractABI {
	for _, builtin := range abi.Builtins() {
		if builtin.InterfaceID == ([4]byte{}) {
			continue
		}
		supported, answered := r.supportsInterface(ctx, address, builtin.InterfaceID)
		if !answered {
			continue
		}
		if supported {
			return builtin.ABIFor(address)
		}
	}
	for _, builtin := range abi.Builtins() {
		if builtin.MatchesBytecode(code, coreSelectorThreshold) {
			return builtin.ABIFor(address)
		}
	}
	return nil
}

// supportsInterface probes ERC-165. The second return is false when the
// contract does not answer the probe at all.
func (r *Resolver) supportsInterface(ctx context.Context, address common.Address, interfaceID [4]byte) (bool, bool) {
	input, err := abi.PackSupportsInterface(interfaceID)
	if err != nil {
		return false, false
	}
	ret, err := r.chain.CallContract(ctx, ethereum.CallMsg{To: &address, Data: input})
	if err != nil || len(ret) != 32 {
		return false, false
	}
	return ret[31] == 1, true
}

func (r *Resolver) fromSourcify(ctx context.Context, address common.Address) *abi.ContractABI {
	if r.sourcify == nil {
		return nil
	}
	chainID, err := r.resolveChainID(ctx)
	if err != nil {
		r.logger.Warn("cannot determine chain id for sourcify lookup", zap.Error(err))
		return nil
	}
	result, err := r.sourcify.Metadata(ctx, chainID, address)
	if err != nil {
		if !errors.Is(err, sourcify.ErrNotFound) {
			r.logger.Debug("sourcify lookup failed",
				zap.String("address", address.Hex()), zap.Error(err))
		}
		return nil
	}
	name := result.Name
	if name == "" {
		name = "Contract"
	}
	contract, err := abi.NewContractABI(address, name, peektypes.AbiSourceSourcify, result.AbiJSON)
	if err != nil {
		r.logger.Warn("sourcify returned unparseable ABI",
			zap.String("address", address.Hex()), zap.Error(err))
		return nil
	}
	return contract
}

func (r *Resolver) fromEtherscan(ctx context.Context, address common.Address) *abi.ContractABI {
	if r.etherscan == nil || !r.etherscan.HasAPIKey() {
		return nil
	}
	abiJSON, err := r.etherscan.ContractABI(ctx, address)
	if err != nil {
		if !errors.Is(err, etherscan.ErrNotFound) {
			r.logger.Debug("etherscan lookup failed",
				zap.String("address", address.Hex()), zap.Error(err))
		}
		return nil
	}
	contract, err := abi.NewContractABI(address, "Contract", peektypes.AbiSourceEtherscan, abiJSON)
	if err != nil {
		r.logger.Warn("etherscan returned unparseable ABI",
			zap.String("address", address.Hex()), zap.Error(err))
		return nil
	}
	return contract
}

// ResolveSelector looks up a human-readable signature for a 4-byte
// function selector via the signature database. Unknown selectors are
// cached as an empty signature.
func (r *Resolver) ResolveSelector(ctx context.Context, selector string) (string, error) {
	if r.selector == nil {
		return "", nil
	}
	key := peektypes.NormalizeSelector(selector)
	if r.cache != nil {
		if cached, ok := r.cache.Get(cache.CategorySelector, key); ok {
			return cached.(string), nil
		}
	}
	signature, err := r.selector.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if r.cache != nil {
		r.cache.Put(cache.CategorySelector, key, signature)
	}
	return signature, nil
}

func (r *Resolver) resolveChainID(ctx context.Context) (uint64, error) {
	r.chainIDMu.Lock()
	defer r.chainIDMu.Unlock()
	if r.chainID != 0 {
		return r.chainID, nil
	}
	id, err := r.chain.GetChainID(ctx)
	if err != nil {
		return 0, err
	}
	r.chainID = id.Uint64()
	return r.chainID, nil
}

func (r *Resolver) cacheGet(key string) (*abi.ContractABI, bool) {
	if r.cache == nil {
		return nil, false
	}
	value, ok := r.cache.Get(cache.CategoryAbi, key)
	if !ok {
		return nil, false
	}
	contract, ok := value.(*abi.ContractABI)
	return contract, ok
}

func (r *Resolver) cachePut(key string, contract *abi.ContractABI) {
	if r.cache == nil {
		return
	}
	r.cache.Put(cache.CategoryAbi, key, contract)
}
