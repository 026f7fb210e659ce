// Package ens resolves ENS names to addresses through the on-chain
// registry. Only forward resolution is implemented; an unresolvable name
// is a normal outcome, not an error.
package ens

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
	"github.com/0xmhha/ethpeek/pkg/cache"
)

const registryABIJSON = `[
	{"type":"function","name":"resolver","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"addr","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(abiJSON string) gethabi.ABI {
	parsed, err := gethabi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Namehash implements the EIP-137 name algorithm. The empty name hashes
// to 32 zero bytes.
func Namehash(name string) common.Hash {
	node := common.Hash{}
	if name == "" {
		return node
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), labelHash)
	}
	return node
}

// ChainCaller is the read-only contract call surface the resolver needs.
type ChainCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

type Resolver struct {
	chain    ChainCaller
	cache    *cache.Store
	registry common.Address
	logger   *zap.Logger
}

type Config struct {
	Chain ChainCaller
	Cache *cache.Store
	// Registry overrides the mainnet ENS registry address.
	Registry common.Address
	Logger   *zap.Logger
}

func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == (common.Address{}) {
		registry = constants.EnsRegistryAddress
	}
	return &Resolver{
		chain:    cfg.Chain,
		cache:    cfg.Cache,
		registry: registry,
		logger:   logger.Named("ens"),
	}
}

// cachedResult lets unresolved names be cached alongside hits.
type cachedResult struct {
	address  common.Address
	resolved bool
}

// Resolve maps an ENS name to an address. A name with no resolver or a
// zero address record returns (zero, false, nil). Errors are reserved
// for transport failures.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return common.Address{}, false, nil
	}

	if r.cache != nil {
		if value, ok := r.cache.Get(cache.CategoryEnsName, name); ok {
			result := value.(cachedResult)
			return result.address, result.resolved, nil
		}
	}

	address, resolved, err := r.lookup(ctx, name)
	if err != nil {
		return common.Address{}, false, err
	}
	if r.cache != nil {
		r.cache.Put(cache.CategoryEnsName, name, cachedResult{address: address, resolved: resolved})
	}
	return address, resolved, nil
}

func (r *Resolver) lookup(ctx context.Context, name string) (common.Address, bool, error) {
	node := Namehash(name)

	resolverAddr, ok, err := r.callForAddress(ctx, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, false, err
	}
	if !ok {
		r.logger.Debug("name has no resolver", zap.String("name", name))
		return common.Address{}, false, nil
	}

	address, ok, err := r.callForAddress(ctx, resolverAddr, "addr", node)
	if err != nil {
		return common.Address{}, false, err
	}
	if !ok {
		r.logger.Debug("resolver has no address record", zap.String("name", name))
		return common.Address{}, false, nil
	}
	return address, true, nil
}

// callForAddress calls a single bytes32 -> address method. A revert is
// treated the same as a zero answer: the name is simply not set up.
func (r *Resolver) callForAddress(ctx context.Context, target common.Address, method string, node common.Hash) (common.Address, bool, error) {
	input, err := registryABI.Pack(method, [32]byte(node))
	if err != nil {
		return common.Address{}, false, err
	}
	ret, err := r.chain.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input})
	if err != nil {
		if isRevert(err) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, err
	}
	if len(ret) < 32 {
		return common.Address{}, false, nil
	}
	address := common.BytesToAddress(ret[:32])
	if address == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return address, true, nil
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
