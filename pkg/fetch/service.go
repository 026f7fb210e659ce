// Package fetch orchestrates chain reads into display-ready projections.
// Every operation runs in its own goroutine and finishes by publishing
// exactly one terminal event on the bus; callers never block on the
// network.
package fetch

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/pkg/abi"
	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/client"
	"github.com/0xmhha/ethpeek/pkg/events"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// Request key categories.
const (
	KeyLatestBlock   = "latest_block"
	KeyRecentBlocks  = "recent_blocks"
	KeyBlockDetail   = "block_detail"
	KeyTransaction   = "transaction"
	KeyAddress       = "address"
	KeyGasInfo       = "gas_info"
	KeyTokenMetadata = "token_metadata"
	KeyInternalCalls = "internal_calls"
	KeyEns           = "ens"
	KeySearch        = "search"
)

// DefaultRequestTimeout bounds one unit of fetch work end to end.
const DefaultRequestTimeout = 30 * time.Second

// DefaultHistoryLimit is how many history entries the address view asks
// the explorer API for.
const DefaultHistoryLimit = 25

// ChainClient is the chain read surface the service consumes.
type ChainClient interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	GetBlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	BatchGetBlocks(ctx context.Context, numbers []uint64) ([]*types.Block, error)
	GetTransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	GetChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	FeeHistory(ctx context.Context, blockCount uint64, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Aggregate(ctx context.Context, calls []client.Call) ([]client.CallResult, error)
	TraceTransaction(ctx context.Context, hash common.Hash) ([]peektypes.InternalCall, error)
}

// AbiResolver finds contract ABIs and selector signatures.
type AbiResolver interface {
	Resolve(ctx context.Context, address common.Address) (*abi.ContractABI, error)
	ResolveSelector(ctx context.Context, selector string) (string, error)
}

// EnsResolver maps ENS names to addresses.
type EnsResolver interface {
	Resolve(ctx context.Context, name string) (common.Address, bool, error)
}

// HistorySource provides address transaction history from an explorer
// API. It is optional enrichment.
type HistorySource interface {
	HasAPIKey() bool
	TxHistory(ctx context.Context, address common.Address, limit int) ([]peektypes.HistoryEntry, error)
}

type Config struct {
	Chain    ChainClient
	Cache    *cache.Store
	Resolver AbiResolver
	Decoder  *abi.Decoder
	Ens      EnsResolver
	History  HistorySource
	Bus      *events.Bus
	Logger   *zap.Logger
	// RequestTimeout bounds each unit of work.
	RequestTimeout time.Duration
	// HistoryLimit caps explorer history entries per address view.
	HistoryLimit int
}

// Service coordinates all data retrieval. One in-flight unit of work
// exists per RequestKey; duplicate requests while one is running are
// absorbed because every interested consumer sees the published event.
type Service struct {
	chain        ChainClient
	cache        *cache.Store
	resolver     AbiResolver
	decoder      *abi.Decoder
	ens          EnsResolver
	history      HistorySource
	bus          *events.Bus
	logger       *zap.Logger
	timeout      time.Duration
	historyLimit int

	generation atomic.Uint64

	chainIDMu sync.Mutex
	chainID   *big.Int

	mu       sync.Mutex
	inflight map[events.RequestKey]struct{}

	wg sync.WaitGroup
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Chain == nil {
		return nil, errors.New("fetch: chain client is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("fetch: event bus is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = abi.NewDecoder(logger)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		chain:        cfg.Chain,
		cache:        cfg.Cache,
		resolver:     cfg.Resolver,
		decoder:      decoder,
		ens:          cfg.Ens,
		history:      cfg.History,
		bus:          cfg.Bus,
		logger:       logger.Named("fetch"),
		timeout:      timeout,
		historyLimit: historyLimit,
		inflight:     make(map[events.RequestKey]struct{}),
	}, nil
}

// NextGeneration advances the staleness counter. The consumer bumps it
// when its view changes; events stamped with older generations are
// ignored on arrival.
func (s *Service) NextGeneration() uint64 {
	return s.generation.Add(1)
}

// CurrentGeneration returns the staleness counter without advancing it.
func (s *Service) CurrentGeneration() uint64 {
	return s.generation.Load()
}

// Wait blocks until all in-flight work has published. Intended for
// shutdown and tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// dispatch runs one unit of work under the coalescing table. When the
// key is already in flight the call is a no-op; the running work's
// event answers every caller.
func (s *Service) dispatch(key events.RequestKey, work func(ctx context.Context, base events.Base) (events.Event, error)) {
	s.mu.Lock()
	if _, exists := s.inflight[key]; exists {
		s.mu.Unlock()
		return
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	base := events.NewBase(key, s.CurrentGeneration())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		event, err := work(ctx, base)

		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("fetch failed",
				zap.String("key", key.String()), zap.Error(err))
			s.bus.Publish(events.ErrorEvent{Base: base, Err: err})
			return
		}
		s.bus.Publish(event)
	}()
}

// resolveChainID queries the node once and memoizes the answer.
func (s *Service) resolveChainID(ctx context.Context) (*big.Int, error) {
	s.chainIDMu.Lock()
	defer s.chainIDMu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.chain.GetChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}

func (s *Service) cacheGet(category cache.Category, key string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(category, key)
}

func (s *Service) cachePut(category cache.Category, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	s.cache.Put(category, key, value)
}
