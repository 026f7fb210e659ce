// Package etherscan is a minimal client for Etherscan-style explorer
// APIs, used as an ABI source of last resort and for address transaction
// history.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/ethpeek/internal/constants"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// ErrNotFound means the API answered but had nothing for the query, for
// example an unverified contract or an address without transactions.
var ErrNotFound = errors.New("etherscan: not found")

// ErrNoAPIKey is returned when the client was built without an API key.
var ErrNoAPIKey = errors.New("etherscan: no API key configured")

type Config struct {
	// Endpoint is the API base, for example https://api.etherscan.io/api.
	Endpoint string
	APIKey   string
	Logger   *zap.Logger
	// RatePerSecond throttles outbound requests. Zero uses the free tier
	// default.
	RatePerSecond int
	HTTPClient    *http.Client
}

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.RegistryRequestTimeout}
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = constants.RegistryRatePerSecond
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		logger:     logger.Named("etherscan"),
	}
}

// HasAPIKey reports whether the client can make authenticated requests.
// Callers skip the etherscan source entirely when this is false.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// envelope is the common Etherscan response shape. Result is a string
// for getabi and an array for txlist, so it stays raw here.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// ContractABI fetches the verified ABI JSON for a contract.
// Unverified contracts come back as ErrNotFound.
func (c *Client) ContractABI(ctx context.Context, address common.Address) (string, error) {
	params := url.Values{
		"module":  {"contract"},
		"action":  {"getabi"},
		"address": {address.Hex()},
	}
	env, err := c.get(ctx, params)
	if err != nil {
		return "", err
	}
	if env.Status != "1" {
		var result string
		_ = json.Unmarshal(env.Result, &result)
		if strings.Contains(strings.ToLower(result), "not verified") {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("etherscan getabi: %s: %s", env.Message, result)
	}
	var abiJSON string
	if err := json.Unmarshal(env.Result, &abiJSON); err != nil {
		return "", fmt.Errorf("etherscan getabi: decoding result: %w", err)
	}
	return abiJSON, nil
}

// historyTx mirrors one entry of the account txlist result.
type historyTx struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	IsError     string `json:"isError"`
}

// TxHistory fetches the most recent transactions touching an address,
// newest first. An address with no transactions yields an empty slice.
func (c *Client) TxHistory(ctx context.Context, address common.Address, limit int) ([]peektypes.HistoryEntry, error) {
	if limit <= 0 {
		limit = 25
	}
	params := url.Values{
		"module":  {"account"},
		"action":  {"txlist"},
		"address": {address.Hex()},
		"page":    {"1"},
		"offset":  {strconv.Itoa(limit)},
		"sort":    {"desc"},
	}
	env, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	if env.Status != "1" {
		// "No transactions found" is a normal empty answer.
		if strings.EqualFold(env.Message, "No transactions found") {
			return []peektypes.HistoryEntry{}, nil
		}
		var result string
		_ = json.Unmarshal(env.Result, &result)
		return nil, fmt.Errorf("etherscan txlist: %s: %s", env.Message, result)
	}

	var txs []historyTx
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, fmt.Errorf("etherscan txlist: decoding result: %w", err)
	}

	entries := make([]peektypes.HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		entry, err := tx.toEntry()
		if err != nil {
			c.logger.Debug("skipping malformed history entry",
				zap.String("hash", tx.Hash), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (tx historyTx) toEntry() (peektypes.HistoryEntry, error) {
	blockNumber, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
	if err != nil {
		return peektypes.HistoryEntry{}, fmt.Errorf("block number %q: %w", tx.BlockNumber, err)
	}
	timestamp, err := strconv.ParseUint(tx.TimeStamp, 10, 64)
	if err != nil {
		return peektypes.HistoryEntry{}, fmt.Errorf("timestamp %q: %w", tx.TimeStamp, err)
	}
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return peektypes.HistoryEntry{}, fmt.Errorf("value %q is not a decimal", tx.Value)
	}
	entry := peektypes.HistoryEntry{
		Hash:        common.HexToHash(tx.Hash),
		BlockNumber: blockNumber,
		Time:        timestamp,
		From:        common.HexToAddress(tx.From),
		Value:       value,
		Failed:      tx.IsError == "1",
	}
	if tx.To != "" {
		to := common.HexToAddress(tx.To)
		entry.To = &to
	}
	return entry, nil
}

func (c *Client) get(ctx context.Context, params url.Values) (*envelope, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.apiKey)
	reqURL := c.endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("etherscan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan request: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("etherscan request: reading body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("etherscan request: decoding response: %w", err)
	}
	return &env, nil
}
