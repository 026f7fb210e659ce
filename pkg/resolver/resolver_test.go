package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/ethpeek/internal/constants"
	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/etherscan"
	"github.com/0xmhha/ethpeek/pkg/sourcify"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

var (
	contractAddr = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	implAddr     = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// erc20Code carries three ERC-20 core selectors for the bytecode scan.
var erc20Code = common.Hex2Bytes("6080604052a9059cbb000070a08231000018160ddd")

const tokenABIJSON = `[{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[]}]`

type fakeChain struct {
	codeAt       func(common.Address) ([]byte, error)
	storageAt    func(common.Address, common.Hash) ([]byte, error)
	callContract func(ethereum.CallMsg) ([]byte, error)
	codeCalls    atomic.Int64
}

func (f *fakeChain) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	f.codeCalls.Add(1)
	if f.codeAt == nil {
		return nil, nil
	}
	return f.codeAt(account)
}

func (f *fakeChain) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	if f.storageAt == nil {
		return make([]byte, 32), nil
	}
	return f.storageAt(account, slot)
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if f.callContract == nil {
		return nil, errors.New("execution reverted")
	}
	return f.callContract(msg)
}

func (f *fakeChain) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

type fakeSourcify struct {
	result *sourcify.Result
	err    error
	calls  atomic.Int64
}

func (f *fakeSourcify) Metadata(ctx context.Context, chainID uint64, address common.Address) (*sourcify.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEtherscan struct {
	abiJSON string
	err     error
	hasKey  bool
	calls   atomic.Int64
}

func (f *fakeEtherscan) HasAPIKey() bool { return f.hasKey }

func (f *fakeEtherscan) ContractABI(ctx context.Context, address common.Address) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.abiJSON, nil
}

func newTestResolver(t *testing.T, cfg Config) *Resolver {
	t.Helper()
	if cfg.Cache == nil {
		store, err := cache.New(cache.Config{Capacity: 100})
		require.NoError(t, err)
		cfg.Cache = store
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRequiresChain(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestResolveEOA(t *testing.T) {
	chain := &fakeChain{}
	r := newTestResolver(t, Config{Chain: chain, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.True(t, contract.IsUnknown())

	// The miss is cached.
	_, err = r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chain.codeCalls.Load())
}

func TestResolveBuiltinByInterface(t *testing.T) {
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) { return []byte{0x60, 0x80}, nil },
		callContract: func(msg ethereum.CallMsg) ([]byte, error) {
			// supportsInterface(0x80ac58cd) answers true.
			if len(msg.Data) >= 8 && msg.Data[4] == 0x80 && msg.Data[5] == 0xac {
				ret := make([]byte, 32)
				ret[31] = 1
				return ret, nil
			}
			return make([]byte, 32), nil
		},
	}
	r := newTestResolver(t, Config{Chain: chain, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, "ERC721", contract.Name)
	assert.Equal(t, peektypes.AbiSourceBuiltin, contract.Source)
	assert.Equal(t, contractAddr, contract.Address)
}

func TestResolveBuiltinByBytecode(t *testing.T) {
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) { return erc20Code, nil },
	}
	r := newTestResolver(t, Config{Chain: chain, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, "ERC20", contract.Name)
	assert.Equal(t, peektypes.AbiSourceBuiltin, contract.Source)
}

func TestResolveSourcify(t *testing.T) {
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) { return []byte{0x60, 0x80}, nil },
	}
	source := &fakeSourcify{result: &sourcify.Result{AbiJSON: tokenABIJSON, Name: "Minter"}}
	r := newTestResolver(t, Config{Chain: chain, Sourcify: source, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, "Minter", contract.Name)
	assert.Equal(t, peektypes.AbiSourceSourcify, contract.Source)
	assert.False(t, contract.IsUnknown())
}

func TestResolveEtherscanFallback(t *testing.T) {
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) { return []byte{0x60, 0x80}, nil },
	}
	source := &fakeSourcify{err: sourcify.ErrNotFound}
	scan := &fakeEtherscan{abiJSON: tokenABIJSON, hasKey: true}
	r := newTestResolver(t, Config{Chain: chain, Sourcify: source, Etherscan: scan, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, peektypes.AbiSourceEtherscan, contract.Source)
	assert.Equal(t, int64(1), source.calls.Load())
	assert.Equal(t, int64(1), scan.calls.Load())
}

func TestResolveEtherscanSkippedWithoutKey(t *testing.T) {
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) { return []byte{0x60, 0x80}, nil },
	}
	source := &fakeSourcify{err: sourcify.ErrNotFound}
	scan := &fakeEtherscan{err: etherscan.ErrNoAPIKey}
	r := newTestResolver(t, Config{Chain: chain, Sourcify: source, Etherscan: scan, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.True(t, contract.IsUnknown())
	assert.Zero(t, scan.calls.Load())
}

func TestResolveUnknownCached(t *testing.T) {
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) { return []byte{0x60, 0x80}, nil },
	}
	source := &fakeSourcify{err: sourcify.ErrNotFound}
	r := newTestResolver(t, Config{Chain: chain, Sourcify: source, ChainID: 1})

	for i := 0; i < 3; i++ {
		contract, err := r.Resolve(context.Background(), contractAddr)
		require.NoError(t, err)
		assert.True(t, contract.IsUnknown())
	}
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestResolveProxy(t *testing.T) {
	implWord := make([]byte, 32)
	copy(implWord[12:], implAddr.Bytes())

	chain := &fakeChain{
		codeAt: func(account common.Address) ([]byte, error) {
			if account == implAddr {
				return erc20Code, nil
			}
			return []byte{0x60, 0x80}, nil
		},
		storageAt: func(account common.Address, slot common.Hash) ([]byte, error) {
			if account == contractAddr && slot == constants.EIP1967ImplementationSlot {
				return implWord, nil
			}
			return make([]byte, 32), nil
		},
	}
	r := newTestResolver(t, Config{Chain: chain, ChainID: 1})

	contract, err := r.Resolve(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, "ERC20", contract.Name)
	// The implementation's ABI is attributed to the proxy address.
	assert.Equal(t, contractAddr, contract.Address)
}

func TestResolveDeduplicatesInflight(t *testing.T) {
	gate := make(chan struct{})
	chain := &fakeChain{
		codeAt: func(common.Address) ([]byte, error) {
			<-gate
			return erc20Code, nil
		},
	}
	r := newTestResolver(t, Config{Chain: chain, ChainID: 1})

	const callers = 8
	var wg sync.WaitGroup
	names := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			contract, err := r.Resolve(context.Background(), contractAddr)
			errs[i] = err
			if contract != nil {
				names[i] = contract.Name
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, "ERC20", names[i])
	}
	assert.Equal(t, int64(1), chain.codeCalls.Load())
}

func TestResolveSelector(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests.Add(1)
		assert.Equal(t, "0xa9059cbb", req.URL.Query().Get("hex_signature"))
		fmt.Fprint(w, `{"results":[
			{"id":31781,"text_signature":"many_msg_babbage(bytes1)"},
			{"id":145,"text_signature":"transfer(address,uint256)"}
		]}`)
	}))
	defer server.Close()

	chain := &fakeChain{}
	r := newTestResolver(t, Config{
		Chain:    chain,
		ChainID:  1,
		Selector: NewSelectorClient(SelectorConfig{Endpoint: server.URL, RatePerSecond: 1000}),
	})

	signature, err := r.ResolveSelector(context.Background(), "0xA9059CBB")
	require.NoError(t, err)
	assert.Equal(t, "transfer(address,uint256)", signature)

	// Second lookup is served from cache.
	signature, err = r.ResolveSelector(context.Background(), "a9059cbb")
	require.NoError(t, err)
	assert.Equal(t, "transfer(address,uint256)", signature)
	assert.Equal(t, int64(1), requests.Load())
}

func TestResolveSelectorUnknownCached(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer server.Close()

	chain := &fakeChain{}
	r := newTestResolver(t, Config{
		Chain:    chain,
		ChainID:  1,
		Selector: NewSelectorClient(SelectorConfig{Endpoint: server.URL, RatePerSecond: 1000}),
	})

	for i := 0; i < 2; i++ {
		signature, err := r.ResolveSelector(context.Background(), "0xdeadbeef")
		require.NoError(t, err)
		assert.Empty(t, signature)
	}
	assert.Equal(t, int64(1), requests.Load())
}

func TestResolveSelectorWithoutClient(t *testing.T) {
	r := newTestResolver(t, Config{Chain: &fakeChain{}, ChainID: 1})
	signature, err := r.ResolveSelector(context.Background(), "0xa9059cbb")
	require.NoError(t, err)
	assert.Empty(t, signature)
}
