// Package client wraps the Ethereum JSON-RPC connection with caching and
// bounded retries for transient transport failures.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
	"github.com/0xmhha/ethpeek/pkg/cache"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// Client wraps an Ethereum JSON-RPC client with read caching and retries.
type Client struct {
	ethClient  *ethclient.Client
	rpcClient  *rpc.Client
	endpoint   string
	logger     *zap.Logger
	cache      *cache.Store
	retries    int
	retryDelay time.Duration
}

// Config holds client configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
	// Cache is optional; a nil cache disables read caching.
	Cache *cache.Store
	// Retries bounds attempts for transient transport failures.
	Retries    int
	RetryDelay time.Duration
}

// NewClient creates a new Ethereum client and verifies the connection.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = constants.DefaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = constants.DefaultRetryDelay
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	ethClient := ethclient.NewClient(rpcClient)

	client := &Client{
		ethClient:  ethClient,
		rpcClient:  rpcClient,
		endpoint:   cfg.Endpoint,
		logger:     logger.Named("client"),
		cache:      cfg.Cache,
		retries:    retries,
		retryDelay: retryDelay,
	}

	if err := client.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	client.logger.Info("connected to Ethereum RPC",
		zap.String("endpoint", cfg.Endpoint))

	return client, nil
}

// Ping verifies the connection to the RPC endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection.
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// EthClient returns the underlying ethclient.Client.
func (c *Client) EthClient() *ethclient.Client {
	return c.ethClient
}

// RPCClient returns the underlying rpc.Client.
func (c *Client) RPCClient() *rpc.Client {
	return c.rpcClient
}

// GetLatestBlockNumber returns the latest block number. Never cached.
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := c.withRetry(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		blockNumber, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return blockNumber, nil
}

// GetBlockByNumber fetches a block by its number, cache first.
func (c *Client) GetBlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	key := fmt.Sprintf("%d", number)
	if block, ok := c.cacheGet(cache.CategoryBlock, key); ok {
		return block.(*types.Block), nil
	}

	var block *types.Block
	err := c.withRetry(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		block, err = c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	c.cachePut(cache.CategoryBlock, key, block)
	c.cachePut(cache.CategoryBlock, peektypes.NormalizeHash(block.Hash()), block)
	return block, nil
}

// GetBlockByHash fetches a block by its hash, cache first.
func (c *Client) GetBlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	key := peektypes.NormalizeHash(hash)
	if block, ok := c.cacheGet(cache.CategoryBlock, key); ok {
		return block.(*types.Block), nil
	}

	var block *types.Block
	err := c.withRetry(ctx, "eth_getBlockByHash", func(ctx context.Context) error {
		var err error
		block, err = c.ethClient.BlockByHash(ctx, hash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash.Hex(), err)
	}

	c.cachePut(cache.CategoryBlock, key, block)
	return block, nil
}

// GetTransactionByHash fetches a transaction by its hash. Mined
// transactions are cached; pending ones are not, their inclusion state
// still changes.
func (c *Client) GetTransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	key := peektypes.NormalizeHash(hash)
	if tx, ok := c.cacheGet(cache.CategoryTransaction, key); ok {
		return tx.(*types.Transaction), false, nil
	}

	var (
		tx        *types.Transaction
		isPending bool
	)
	err := c.withRetry(ctx, "eth_getTransactionByHash", func(ctx context.Context) error {
		var err error
		tx, isPending, err = c.ethClient.TransactionByHash(ctx, hash)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}

	if !isPending {
		c.cachePut(cache.CategoryTransaction, key, tx)
	}
	return tx, isPending, nil
}

// GetTransactionReceipt fetches a transaction receipt.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.withRetry(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var err error
		receipt, err = c.ethClient.TransactionReceipt(ctx, hash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// GetBlockReceipts fetches all receipts for a block.
func (c *Client) GetBlockReceipts(ctx context.Context, blockNumber uint64) (types.Receipts, error) {
	var receipts []*types.Receipt
	err := c.withRetry(ctx, "eth_getBlockReceipts", func(ctx context.Context) error {
		var err error
		receipts, err = c.ethClient.BlockReceipts(ctx,
			rpc.BlockNumberOrHashWithNumber(rpc.BlockNumber(blockNumber)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get receipts for block %d: %w", blockNumber, err)
	}
	return types.Receipts(receipts), nil
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// BalanceAt returns the balance of an account. The latest balance
// (blockNumber nil) is cached under its short-lived category.
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	key := peektypes.NormalizeAddress(account)
	if blockNumber == nil {
		if balance, ok := c.cacheGet(cache.CategoryBalance, key); ok {
			return balance.(*big.Int), nil
		}
	}

	var balance *big.Int
	err := c.withRetry(ctx, "eth_getBalance", func(ctx context.Context) error {
		var err error
		balance, err = c.ethClient.BalanceAt(ctx, account, blockNumber)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", account.Hex(), err)
	}

	if blockNumber == nil {
		c.cachePut(cache.CategoryBalance, key, balance)
	}
	return balance, nil
}

// NonceAt returns the account nonce at the latest block.
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.withRetry(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		nonce, err = c.ethClient.NonceAt(ctx, account, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce for %s: %w", account.Hex(), err)
	}
	return nonce, nil
}

// CodeAt returns the deployed bytecode at the given address.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	var code []byte
	err := c.withRetry(ctx, "eth_getCode", func(ctx context.Context) error {
		var err error
		code, err = c.ethClient.CodeAt(ctx, account, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get code for %s: %w", account.Hex(), err)
	}
	return code, nil
}

// StorageAt reads a raw storage slot at the latest block.
func (c *Client) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	var data []byte
	err := c.withRetry(ctx, "eth_getStorageAt", func(ctx context.Context) error {
		var err error
		data, err = c.ethClient.StorageAt(ctx, account, slot, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read storage %s[%s]: %w", account.Hex(), slot.Hex(), err)
	}
	return data, nil
}

// CallContract executes a read-only contract call at the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var output []byte
	err := c.withRetry(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		output, err = c.ethClient.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return output, nil
}

// FilterLogs fetches logs matching the query.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.withRetry(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.ethClient.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	return logs, nil
}

// FeeHistory fetches base fees and priority fee percentiles for recent blocks.
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	var history *ethereum.FeeHistory
	err := c.withRetry(ctx, "eth_feeHistory", func(ctx context.Context) error {
		var err error
		history, err = c.ethClient.FeeHistory(ctx, blockCount, nil, rewardPercentiles)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get fee history: %w", err)
	}
	return history, nil
}

// SuggestGasPrice fetches the node's gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.withRetry(ctx, "eth_gasPrice", func(ctx context.Context) error {
		var err error
		price, err = c.ethClient.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// BatchGetBlocks fetches multiple blocks in a single batch request.
// Blocks the node does not have come back as nil entries.
func (c *Client) BatchGetBlocks(ctx context.Context, numbers []uint64) ([]*types.Block, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	raws := make([]json.RawMessage, len(numbers))
	batch := make([]rpc.BatchElem, len(numbers))

	for i, num := range numbers {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{fmt.Sprintf("0x%x", num), true},
			Result: &raws[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch call failed: %w", err)
	}

	blocks := make([]*types.Block, len(numbers))
	for i, elem := range batch {
		if elem.Error != nil {
			c.logger.Error("failed to fetch block in batch",
				zap.Uint64("block_number", numbers[i]),
				zap.Error(elem.Error))
			return nil, fmt.Errorf("failed to fetch block %d: %w", numbers[i], elem.Error)
		}
		block, err := decodeRPCBlock(raws[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode block %d: %w", numbers[i], err)
		}
		blocks[i] = block
	}

	return blocks, nil
}

// decodeRPCBlock rebuilds a block from the eth_getBlockByNumber response
// shape: header fields at the top level plus the transaction list.
// types.Block cannot be the unmarshal target itself; it has no exported
// fields, so decoding into it yields a block with a nil header.
func decodeRPCBlock(raw json.RawMessage) (*types.Block, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var head types.Header
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	var body struct {
		Transactions []*types.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	return types.NewBlockWithHeader(&head).WithBody(types.Body{Transactions: body.Transactions}), nil
}

// SubscribeNewHead subscribes to new block headers. Requires a WebSocket
// transport.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	sub, err := c.ethClient.SubscribeNewHead(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	return sub, nil
}

// SubscribePendingTransactions subscribes to pending transaction hashes.
// Requires a WebSocket transport.
func (c *Client) SubscribePendingTransactions(ctx context.Context) (<-chan common.Hash, ethereum.Subscription, error) {
	ch := make(chan common.Hash, 100)

	sub, err := c.rpcClient.EthSubscribe(ctx, ch, "newPendingTransactions")
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("failed to subscribe to pending transactions: %w", err)
	}

	c.logger.Info("subscribed to pending transactions")

	return ch, sub, nil
}

func (c *Client) cacheGet(category cache.Category, key string) (interface{}, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(category, key)
}

func (c *Client) cachePut(category cache.Category, key string, value interface{}) {
	if c.cache != nil {
		c.cache.Put(category, key, value)
	}
}
