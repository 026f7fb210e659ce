package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/ethpeek/internal/constants"
)

// SelectorClient looks up function signatures on a 4byte.directory
// compatible API.
type SelectorClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type SelectorConfig struct {
	// Endpoint is the API base, for example https://www.4byte.directory.
	Endpoint      string
	Logger        *zap.Logger
	RatePerSecond int
	HTTPClient    *http.Client
}

func NewSelectorClient(cfg SelectorConfig) *SelectorClient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = constants.FourByteEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.RegistryRequestTimeout}
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = constants.RegistryRatePerSecond
	}
	return &SelectorClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		logger:     logger.Named("fourbyte"),
	}
}

type signatureResult struct {
	ID            int64  `json:"id"`
	TextSignature string `json:"text_signature"`
}

type signatureResponse struct {
	Results []signatureResult `json:"results"`
}

// Lookup returns the text signature registered for a selector, or an
// empty string when the directory has none. Of multiple matches the one
// registered first wins; later entries are usually collision spam.
func (s *SelectorClient) Lookup(ctx context.Context, selector string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{"hex_signature": {selector}}
	reqURL := s.endpoint + "/api/v1/signatures/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fourbyte request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fourbyte request: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("fourbyte request: reading body: %w", err)
	}
	var parsed signatureResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("fourbyte request: decoding response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", nil
	}

	oldest := parsed.Results[0]
	for _, result := range parsed.Results[1:] {
		if result.ID < oldest.ID {
			oldest = result
		}
	}
	return oldest.TextSignature, nil
}
