// Package sourcify fetches verified contract metadata from the Sourcify
// repository. Sourcify needs no API key, so it is tried before Etherscan.
package sourcify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
)

// ErrNotFound means the contract has neither a full nor a partial match
// in the repository.
var ErrNotFound = errors.New("sourcify: contract not verified")

type Config struct {
	// Endpoint is the repository base, for example https://repo.sourcify.dev.
	Endpoint   string
	Logger     *zap.Logger
	HTTPClient *http.Client
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = constants.SourcifyEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.RegistryRequestTimeout}
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: httpClient,
		logger:     logger.Named("sourcify"),
	}
}

// metadata is the subset of the Solidity metadata document we consume.
type metadata struct {
	Output struct {
		Abi json.RawMessage `json:"abi"`
	} `json:"output"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}

// Result carries the extracted ABI and the contract name from the
// compilation target.
type Result struct {
	AbiJSON string
	Name    string
	// Partial is true when only a partial match was found.
	Partial bool
}

// Metadata fetches the verification metadata for a contract, preferring
// a full match over a partial one.
func (c *Client) Metadata(ctx context.Context, chainID uint64, address common.Address) (*Result, error) {
	for _, matchType := range []string{"full_match", "partial_match"} {
		result, err := c.fetch(ctx, matchType, chainID, address)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Partial = matchType == "partial_match"
		return result, nil
	}
	return nil, ErrNotFound
}

func (c *Client) fetch(ctx context.Context, matchType string, chainID uint64, address common.Address) (*Result, error) {
	reqURL := fmt.Sprintf("%s/contracts/%s/%d/%s/metadata.json",
		c.endpoint, matchType, chainID, address.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sourcify request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("sourcify request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("sourcify request: reading body: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("sourcify request: decoding metadata: %w", err)
	}
	if len(meta.Output.Abi) == 0 {
		return nil, fmt.Errorf("sourcify metadata for %s has no ABI", address.Hex())
	}

	name := ""
	for _, contractName := range meta.Settings.CompilationTarget {
		name = contractName
		break
	}
	return &Result{
		AbiJSON: string(meta.Output.Abi),
		Name:    name,
	}, nil
}
